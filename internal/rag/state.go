// Package rag implements the adaptive retrieval-augmented generation
// workflow: a bounded analyze → retrieve → generate → evaluate loop that
// either accepts an answer or refines the query and retries, up to a maximum
// attempt count.
package rag

import (
	"docqa/internal/composer"
	"docqa/internal/query"
	"docqa/internal/retrieval"
)

// state names the workflow positions. Transitions are driven by runState in
// the orchestrator; stateFinalize is terminal.
type state int

const (
	stateAnalyze state = iota
	stateRetrieve
	stateGenerate
	stateEvaluate
	stateRefine
	stateFinalize
)

// QueryAnalysis is the LLM-produced query classification. It is untrusted
// model output used only as a routing hint; parse failures are replaced by
// defaultAnalysis, never propagated.
type QueryAnalysis struct {
	Intent     string   `json:"intent"`
	Topics     []string `json:"topics"`
	ResultType string   `json:"result_type,omitempty"`
	Depth      string   `json:"depth,omitempty"`
}

// defaultAnalysis is the safe fallback when analysis fails or parses badly.
func defaultAnalysis() QueryAnalysis {
	return QueryAnalysis{Intent: "search", Topics: []string{}}
}

// WorkflowState is the per-run mutable record threaded through every stage.
// It is created at run start and discarded at run end; nothing is persisted.
type WorkflowState struct {
	Query               string
	OriginalQuery       string
	ConversationContext string

	SearchPlan    query.SearchQuery
	Analysis      QueryAnalysis
	RetrievedDocs []retrieval.AggregatedHit

	LLMResponse string
	Sources     []composer.Source
	IsRelevant  bool

	Attempts    int
	MaxAttempts int

	FinalResponse string
}

// Result is what every run returns to the transport layer: always a value,
// never a panic or an unhandled error. Attempts and Sources let callers
// distinguish "no evidence found" from a system fault.
type Result struct {
	Response string            `json:"response"`
	Sources  []composer.Source `json:"sources"`
	Attempts int               `json:"attempts"`
	Analysis QueryAnalysis     `json:"query_analysis"`
	Err      string            `json:"error,omitempty"`
}
