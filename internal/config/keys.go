package config

import (
	"fmt"
	"os"
	"strconv"
)

type keyType int

const (
	kString keyType = iota
	kInt
	kBool
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "server.port", typ: kInt, env: "DOCQA_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "server.mcp_port", typ: kInt, env: "DOCQA_SERVER_MCP_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.MCPPort = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.MCPPort },
	},
	{
		key: "ollama.base_url", typ: kString, env: "DOCQA_OLLAMA_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Ollama.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Ollama.BaseURL },
	},
	{
		key: "ollama.model", typ: kString, env: "DOCQA_OLLAMA_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Ollama.Model = v.(string) },
		extract: func(cfg Config) any { return cfg.Ollama.Model },
	},
	{
		key: "ollama.embed_model", typ: kString, env: "DOCQA_OLLAMA_EMBED_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Ollama.EmbedModel = v.(string) },
		extract: func(cfg Config) any { return cfg.Ollama.EmbedModel },
	},
	{
		key: "storage.data_dir", typ: kString, env: "DOCQA_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "log.level", typ: kString, env: "DOCQA_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
	{
		key: "retrieval.top_k", typ: kInt, env: "DOCQA_RETRIEVAL_TOP_K",
		apply:   func(cfg *Config, v any) { cfg.Retrieval.TopK = v.(int) },
		extract: func(cfg Config) any { return cfg.Retrieval.TopK },
	},
	{
		key: "retrieval.comprehensive_top_k", typ: kInt, env: "DOCQA_RETRIEVAL_COMPREHENSIVE_TOP_K",
		apply:   func(cfg *Config, v any) { cfg.Retrieval.ComprehensiveTopK = v.(int) },
		extract: func(cfg Config) any { return cfg.Retrieval.ComprehensiveTopK },
	},
	{
		key: "retrieval.final_top_k", typ: kInt, env: "DOCQA_RETRIEVAL_FINAL_TOP_K",
		apply:   func(cfg *Config, v any) { cfg.Retrieval.FinalTopK = v.(int) },
		extract: func(cfg Config) any { return cfg.Retrieval.FinalTopK },
	},
	{
		key: "rerank.enabled", typ: kBool, env: "DOCQA_RERANK_ENABLED",
		apply:   func(cfg *Config, v any) { cfg.Rerank.Enabled = v.(bool) },
		extract: func(cfg Config) any { return cfg.Rerank.Enabled },
	},
	{
		key: "rerank.timeout", typ: kString, env: "DOCQA_RERANK_TIMEOUT",
		apply:   func(cfg *Config, v any) { cfg.Rerank.Timeout = v.(string) },
		extract: func(cfg Config) any { return cfg.Rerank.Timeout },
	},
	{
		key: "rerank.top_k", typ: kInt, env: "DOCQA_RERANK_TOP_K",
		apply:   func(cfg *Config, v any) { cfg.Rerank.TopK = v.(int) },
		extract: func(cfg Config) any { return cfg.Rerank.TopK },
	},
	{
		key: "rerank.comprehensive_top_k", typ: kInt, env: "DOCQA_RERANK_COMPREHENSIVE_TOP_K",
		apply:   func(cfg *Config, v any) { cfg.Rerank.ComprehensiveTopK = v.(int) },
		extract: func(cfg Config) any { return cfg.Rerank.ComprehensiveTopK },
	},
	{
		key: "rag.max_attempts", typ: kInt, env: "DOCQA_RAG_MAX_ATTEMPTS",
		apply:   func(cfg *Config, v any) { cfg.RAG.MaxAttempts = v.(int) },
		extract: func(cfg Config) any { return cfg.RAG.MaxAttempts },
	},
	{
		key: "conversation.max_history_turns", typ: kInt, env: "DOCQA_CONVERSATION_MAX_HISTORY_TURNS",
		apply:   func(cfg *Config, v any) { cfg.Conversation.MaxHistoryTurns = v.(int) },
		extract: func(cfg Config) any { return cfg.Conversation.MaxHistoryTurns },
	},
}

func applyBackend(cfg *Config, b Backend) error {
	for _, s := range specs {
		switch s.typ {
		case kString:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kInt:
			v, ok, err := b.GetInt(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kBool:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok && v != "" {
				if bv, err := strconv.ParseBool(v); err == nil {
					s.apply(cfg, bv)
				} else {
					fmt.Fprintf(os.Stderr, "[WARN] could not parse bool from config key %s=%q: %v. Using default value.\n", s.key, v, err)
				}
			}
		}
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		if s.env == "" {
			continue
		}
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		switch s.typ {
		case kString:
			s.apply(cfg, raw)
		case kInt:
			if i, err := strconv.Atoi(raw); err == nil {
				s.apply(cfg, i)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse integer from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		case kBool:
			if b, err := strconv.ParseBool(raw); err == nil {
				s.apply(cfg, b)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse bool from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		}
	}
}
