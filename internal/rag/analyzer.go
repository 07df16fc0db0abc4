package rag

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"docqa/internal/engine"
)

const analyzeSystemPrompt = "You are a query analyzer. Respond only in valid JSON."

const analyzePromptTemplate = `Analyze this query and provide:
1. Intent (search, command, explanation, debug)
2. Key topics
3. Preferred result type (code, explanation, steps)
4. Required depth (brief, detailed, comprehensive)

Query: %s

Respond in JSON format with keys: intent, topics, result_type, depth.`

// analyzeQuery asks the engine to classify the query. The output is treated
// as an untrusted classifier: any transport or parse failure yields
// defaultAnalysis rather than an error, so a misbehaving model can never
// crash the run.
func (o *Orchestrator) analyzeQuery(ctx context.Context, q string) QueryAnalysis {
	schema := &engine.Schema{
		Type: "object",
		Properties: map[string]engine.SchemaProperty{
			"intent":      {Type: "string", Description: "One of: search, command, explanation, debug"},
			"topics":      {Type: "array", Description: "Key topics in the query", Items: &engine.SchemaProperty{Type: "string"}},
			"result_type": {Type: "string", Description: "Preferred result type: code, explanation, steps"},
			"depth":       {Type: "string", Description: "Required depth: brief, detailed, comprehensive"},
		},
		Required: []string{"intent", "topics"},
	}

	raw, err := o.engine.Chat(ctx, o.model, []engine.Message{
		{Role: "system", Content: analyzeSystemPrompt},
		{Role: "user", Content: strings.Replace(analyzePromptTemplate, "%s", q, 1)},
	}, schema)
	if err != nil {
		slog.Warn("query analysis failed, using default", "error", err)
		return defaultAnalysis()
	}

	var analysis QueryAnalysis
	if err := json.Unmarshal([]byte(extractJSONObject(raw)), &analysis); err != nil {
		slog.Warn("query analysis returned malformed JSON, using default", "error", err)
		return defaultAnalysis()
	}
	if analysis.Intent == "" {
		analysis.Intent = "search"
	}
	if analysis.Topics == nil {
		analysis.Topics = []string{}
	}
	return analysis
}

// extractJSONObject trims markdown fences and conversational filler around a
// JSON object. Returns the input unchanged when no braces are found (the
// subsequent unmarshal will fail and trigger the default).
func extractJSONObject(s string) string {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start == -1 || end <= start {
		return s
	}
	return s[start : end+1]
}
