package rag

import (
	"context"
	"fmt"
	"log/slog"

	"docqa/internal/composer"
	"docqa/internal/engine"
	"docqa/internal/query"
	"docqa/internal/retrieval"
)

// Retriever runs a multi-search retrieval pass over the sub-queries of a
// decomposed query and returns aggregated, deduplicated hits.
type Retriever interface {
	Retrieve(ctx context.Context, subQueries []string, comprehensive bool) ([]retrieval.AggregatedHit, error)
}

// DocReranker reorders retrieved hits by relevance to the query. It never
// fails: implementations degrade to a score-ordered truncation.
type DocReranker interface {
	Rerank(ctx context.Context, q string, hits []retrieval.AggregatedHit, comprehensive bool) []retrieval.AggregatedHit
}

// DefaultMaxAttempts bounds the generate/evaluate loop.
const DefaultMaxAttempts = 3

// Orchestrator drives the adaptive workflow. It owns no storage: the
// retriever, reranker, and engine are injected, and each Run is independent.
type Orchestrator struct {
	engine      engine.Engine
	retriever   Retriever
	reranker    DocReranker
	model       string
	maxAttempts int
}

func NewOrchestrator(e engine.Engine, retriever Retriever, reranker DocReranker, model string, maxAttempts int) *Orchestrator {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	return &Orchestrator{
		engine:      e,
		retriever:   retriever,
		reranker:    reranker,
		model:       model,
		maxAttempts: maxAttempts,
	}
}

// Run executes the full workflow for one query and always returns a Result.
// Operational failures are folded into the Result rather than returned, so
// transport layers can render them uniformly.
func (o *Orchestrator) Run(ctx context.Context, rawQuery string) Result {
	ws := &WorkflowState{
		Query:         rawQuery,
		OriginalQuery: rawQuery,
		MaxAttempts:   o.maxAttempts,
	}

	st := stateAnalyze
	for st != stateFinalize {
		next, err := o.runState(ctx, st, ws)
		if err != nil {
			slog.Error("workflow state failed", "state", st, "attempts", ws.Attempts, "error", err)
			return Result{
				Response: fmt.Sprintf("Error processing query: %v", err),
				Sources:  []composer.Source{},
				Attempts: ws.Attempts,
				Analysis: ws.Analysis,
				Err:      err.Error(),
			}
		}
		st = next
	}

	return Result{
		Response: ws.FinalResponse,
		Sources:  ws.Sources,
		Attempts: ws.Attempts,
		Analysis: ws.Analysis,
	}
}

func (o *Orchestrator) runState(ctx context.Context, st state, ws *WorkflowState) (state, error) {
	switch st {
	case stateAnalyze:
		return o.analyze(ctx, ws)
	case stateRetrieve:
		return o.retrieve(ctx, ws)
	case stateGenerate:
		return o.generateState(ctx, ws)
	case stateEvaluate:
		return o.evaluate(ws)
	case stateRefine:
		return o.refineState(ctx, ws)
	default:
		return stateFinalize, fmt.Errorf("unknown workflow state %d", st)
	}
}

func (o *Orchestrator) analyze(ctx context.Context, ws *WorkflowState) (state, error) {
	ws.SearchPlan = query.Decompose(ws.Query)
	ws.ConversationContext = query.ExtractContext(ws.Query)
	ws.Analysis = o.analyzeQuery(ctx, ws.SearchPlan.Original)
	slog.Debug("query analyzed",
		"intent", ws.SearchPlan.Intent,
		"comprehensive", ws.SearchPlan.IsComprehensive,
		"sub_queries", len(ws.SearchPlan.Decomposed))
	return stateRetrieve, nil
}

func (o *Orchestrator) retrieve(ctx context.Context, ws *WorkflowState) (state, error) {
	hits, err := o.retriever.Retrieve(ctx, ws.SearchPlan.Decomposed, ws.SearchPlan.IsComprehensive)
	if err != nil {
		return stateFinalize, fmt.Errorf("retrieve documents: %w", err)
	}
	ws.RetrievedDocs = o.reranker.Rerank(ctx, ws.SearchPlan.Original, hits, ws.SearchPlan.IsComprehensive)
	slog.Debug("documents retrieved", "aggregated", len(hits), "kept", len(ws.RetrievedDocs))
	return stateGenerate, nil
}

func (o *Orchestrator) generateState(ctx context.Context, ws *WorkflowState) (state, error) {
	docContext := composer.Build(ws.RetrievedDocs)
	resp, err := o.generate(ctx, ws.SearchPlan.Original, ws.ConversationContext, docContext.Text)
	if err != nil {
		return stateFinalize, err
	}
	ws.LLMResponse = resp
	ws.Sources = docContext.Sources
	return stateEvaluate, nil
}

func (o *Orchestrator) evaluate(ws *WorkflowState) (state, error) {
	ws.Attempts++
	ws.IsRelevant = Evaluate(ws.LLMResponse, len(ws.RetrievedDocs) > 0, ws.Attempts, ws.MaxAttempts, ws.SearchPlan.IsComprehensive)
	if ws.IsRelevant {
		ws.FinalResponse = ws.LLMResponse
		return stateFinalize, nil
	}
	slog.Info("response rejected, refining query", "attempt", ws.Attempts, "max_attempts", ws.MaxAttempts)
	return stateRefine, nil
}

func (o *Orchestrator) refineState(ctx context.Context, ws *WorkflowState) (state, error) {
	ws.Query = o.refine(ctx, ws.Query, ws.LLMResponse)
	// Rebuild the search plan so the next retrieval pass searches for the
	// refined query instead of the original decomposition.
	ws.SearchPlan = query.Decompose(ws.Query)
	return stateRetrieve, nil
}
