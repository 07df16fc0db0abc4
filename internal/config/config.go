package config

type Config struct {
	Server       ServerConfig
	Ollama       OllamaConfig
	Storage      StorageConfig
	Log          LogConfig
	Retrieval    RetrievalConfig
	Rerank       RerankConfig
	RAG          RAGConfig
	Conversation ConversationConfig
}

type ServerConfig struct {
	Port    int
	MCPPort int
}

type OllamaConfig struct {
	BaseURL    string
	Model      string
	EmbedModel string
}

type StorageConfig struct {
	DataDir string
}

type LogConfig struct {
	Level string
}

type RetrievalConfig struct {
	TopK              int
	ComprehensiveTopK int
	FinalTopK         int
}

type RerankConfig struct {
	Enabled           bool
	Timeout           string
	TopK              int
	ComprehensiveTopK int
}

type RAGConfig struct {
	MaxAttempts int
}

type ConversationConfig struct {
	MaxHistoryTurns int
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:    4000,
			MCPPort: 4001,
		},
		Ollama: OllamaConfig{
			BaseURL:    "http://localhost:11434",
			Model:      "mistral-nemo",
			EmbedModel: "nomic-embed-text",
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Log: LogConfig{
			Level: "info",
		},
		Retrieval: RetrievalConfig{
			TopK:              8,
			ComprehensiveTopK: 16,
			FinalTopK:         6,
		},
		Rerank: RerankConfig{
			Enabled:           true,
			Timeout:           "20s",
			TopK:              6,
			ComprehensiveTopK: 12,
		},
		RAG: RAGConfig{
			MaxAttempts: 3,
		},
		Conversation: ConversationConfig{
			MaxHistoryTurns: 50,
		},
	}
}

// Load reads configuration from the JSON file backend at
// $XDG_CONFIG_HOME/docqa/config.json, then applies DOCQA_* environment
// variable overrides. Missing file and missing keys fall back to defaults.
func Load() (Config, error) {
	return loadWith(newFileBackend())
}

func loadWith(b Backend) (Config, error) {
	cfg := defaults()
	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}
	applyEnvOverrides(&cfg)
	return cfg, nil
}
