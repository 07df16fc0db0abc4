package engine

import "context"

// Engine abstracts a text-generation and embedding backend (Ollama or any
// API-compatible server). The orchestrator, reranker, and embedder depend on
// this interface instead of a concrete client, so tests can substitute mocks
// and the backend can be swapped without touching the core pipeline.
type Engine interface {
	// Generate runs a single prompt/system completion and returns the raw text.
	Generate(ctx context.Context, model, prompt, system string, temperature float64) (string, error)

	// Chat sends messages to the given model and returns the assistant's response.
	// When jsonSchema is non-nil, structured JSON output is requested.
	Chat(ctx context.Context, model string, messages []Message, jsonSchema *Schema) (string, error)

	// Embed returns the embedding vector for the given text using the specified model.
	Embed(ctx context.Context, model string, text string) ([]float32, error)

	// IsRunning reports whether the inference backend is reachable.
	IsRunning(ctx context.Context) bool

	// ListModels returns the names of all locally available models.
	ListModels(ctx context.Context) ([]string, error)
}
