package config

import (
	"errors"
	"strconv"
	"strings"
	"testing"
)

// memBackend is an in-memory Backend for load tests.
type memBackend struct {
	strings map[string]string
	ints    map[string]int
	err     error
}

func (m *memBackend) GetString(key string) (string, bool, error) {
	if m.err != nil {
		return "", false, m.err
	}
	v, ok := m.strings[key]
	return v, ok, nil
}

func (m *memBackend) GetInt(key string) (int, bool, error) {
	if m.err != nil {
		return 0, false, m.err
	}
	if v, ok := m.ints[key]; ok {
		return v, true, nil
	}
	if v, ok := m.strings[key]; ok {
		i, err := strconv.Atoi(v)
		if err != nil {
			return 0, true, err
		}
		return i, true, nil
	}
	return 0, false, nil
}

func (m *memBackend) SetString(key, val string) error  { m.strings[key] = val; return nil }
func (m *memBackend) SetInt(key string, val int) error { m.ints[key] = val; return nil }
func (m *memBackend) Delete(key string) error {
	delete(m.strings, key)
	delete(m.ints, key)
	return nil
}

func emptyBackend() *memBackend {
	return &memBackend{strings: make(map[string]string), ints: make(map[string]int)}
}

func TestLoadWith_Defaults(t *testing.T) {
	cfg, err := loadWith(emptyBackend())
	if err != nil {
		t.Fatalf("loadWith: %v", err)
	}

	if cfg.Server.Port != 4000 || cfg.Server.MCPPort != 4001 {
		t.Errorf("server = %+v", cfg.Server)
	}
	if cfg.Ollama.BaseURL != "http://localhost:11434" || cfg.Ollama.Model != "mistral-nemo" || cfg.Ollama.EmbedModel != "nomic-embed-text" {
		t.Errorf("ollama = %+v", cfg.Ollama)
	}
	if cfg.Retrieval.TopK != 8 || cfg.Retrieval.ComprehensiveTopK != 16 || cfg.Retrieval.FinalTopK != 6 {
		t.Errorf("retrieval = %+v", cfg.Retrieval)
	}
	if !cfg.Rerank.Enabled || cfg.Rerank.Timeout != "20s" {
		t.Errorf("rerank = %+v", cfg.Rerank)
	}
	if cfg.RAG.MaxAttempts != 3 {
		t.Errorf("max attempts = %d", cfg.RAG.MaxAttempts)
	}
	if cfg.Conversation.MaxHistoryTurns != 50 {
		t.Errorf("max history turns = %d", cfg.Conversation.MaxHistoryTurns)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("log level = %q", cfg.Log.Level)
	}
}

func TestLoadWith_BackendOverrides(t *testing.T) {
	b := emptyBackend()
	b.strings["ollama.model"] = "llama3"
	b.ints["server.port"] = 9000
	b.ints["rag.max_attempts"] = 5
	b.strings["rerank.enabled"] = "false"

	cfg, err := loadWith(b)
	if err != nil {
		t.Fatalf("loadWith: %v", err)
	}
	if cfg.Ollama.Model != "llama3" {
		t.Errorf("model = %q", cfg.Ollama.Model)
	}
	if cfg.Server.Port != 9000 {
		t.Errorf("port = %d", cfg.Server.Port)
	}
	if cfg.RAG.MaxAttempts != 5 {
		t.Errorf("max attempts = %d", cfg.RAG.MaxAttempts)
	}
	if cfg.Rerank.Enabled {
		t.Error("rerank.enabled = true, want false from backend")
	}
	// Untouched keys keep their defaults.
	if cfg.Server.MCPPort != 4001 {
		t.Errorf("mcp port = %d", cfg.Server.MCPPort)
	}
}

func TestLoadWith_BadBoolKeepsDefault(t *testing.T) {
	b := emptyBackend()
	b.strings["rerank.enabled"] = "sideways"

	cfg, err := loadWith(b)
	if err != nil {
		t.Fatalf("loadWith: %v", err)
	}
	if !cfg.Rerank.Enabled {
		t.Error("unparseable bool should leave the default in place")
	}
}

func TestLoadWith_BackendError(t *testing.T) {
	b := emptyBackend()
	b.err = errors.New("backend exploded")

	if _, err := loadWith(b); err == nil {
		t.Fatal("expected error from failing backend")
	}
}

func TestLoadWith_EnvOverrides(t *testing.T) {
	b := emptyBackend()
	b.strings["ollama.model"] = "from-backend"

	t.Setenv("DOCQA_OLLAMA_MODEL", "from-env")
	t.Setenv("DOCQA_SERVER_PORT", "8123")
	t.Setenv("DOCQA_RERANK_ENABLED", "false")

	cfg, err := loadWith(b)
	if err != nil {
		t.Fatalf("loadWith: %v", err)
	}
	if cfg.Ollama.Model != "from-env" {
		t.Errorf("model = %q, env should win over backend", cfg.Ollama.Model)
	}
	if cfg.Server.Port != 8123 {
		t.Errorf("port = %d", cfg.Server.Port)
	}
	if cfg.Rerank.Enabled {
		t.Error("rerank.enabled = true, want env override")
	}
}

func TestLoadWith_BadEnvIntKeepsDefault(t *testing.T) {
	t.Setenv("DOCQA_SERVER_PORT", "not-a-port")

	cfg, err := loadWith(emptyBackend())
	if err != nil {
		t.Fatalf("loadWith: %v", err)
	}
	if cfg.Server.Port != 4000 {
		t.Errorf("port = %d, want default on bad env value", cfg.Server.Port)
	}
}

func TestShowAll_CoversEveryKey(t *testing.T) {
	cfg := defaults()
	infos := ShowAll(cfg)

	if len(infos) != len(specs) {
		t.Fatalf("len = %d, want %d", len(infos), len(specs))
	}
	byKey := make(map[string]KeyInfo, len(infos))
	for _, info := range infos {
		byKey[info.Key] = info
		if info.EnvVar == "" || !strings.HasPrefix(info.EnvVar, "DOCQA_") {
			t.Errorf("key %s env var = %q", info.Key, info.EnvVar)
		}
	}
	if byKey["server.port"].Value != "4000" {
		t.Errorf("server.port = %q", byKey["server.port"].Value)
	}
	if byKey["rerank.enabled"].Value != "true" {
		t.Errorf("rerank.enabled = %q", byKey["rerank.enabled"].Value)
	}
}

func TestValidKeys(t *testing.T) {
	keys := ValidKeys()
	want := map[string]bool{
		"server.port":      false,
		"ollama.base_url":  false,
		"rerank.timeout":   false,
		"storage.data_dir": false,
		"rag.max_attempts": false,
	}
	for _, k := range keys {
		if _, ok := want[k]; ok {
			want[k] = true
		}
	}
	for k, seen := range want {
		if !seen {
			t.Errorf("key %s missing from ValidKeys", k)
		}
	}
}
