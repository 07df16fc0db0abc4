// Package reranking re-scores aggregated hits with a pairwise (query, text)
// relevance model. The rerank score is the opposite polarity of the combined
// retrieval score: higher means more relevant. Re-ranking is a quality
// enhancement, not a correctness dependency: every failure mode degrades to
// a passthrough truncation of the aggregator's order.
package reranking

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"docqa/internal/engine"
	"docqa/internal/retrieval"
)

const scoringConcurrency = 3

// Scorer is the pairwise relevance collaborator. Higher score = more relevant.
type Scorer interface {
	Score(ctx context.Context, query, text string) (float64, error)
}

// Reranker reorders aggregated hits by pairwise relevance and truncates to a
// top-K that scales with query comprehensiveness.
type Reranker struct {
	scorer  Scorer
	timeout time.Duration

	topK              int
	comprehensiveTopK int
}

// New creates a Reranker. A nil scorer yields a passthrough reranker that only
// truncates. Non-positive budgets select the defaults (6 narrow / 12
// comprehensive); a non-positive timeout defaults to 20s.
func New(scorer Scorer, timeout time.Duration, topK, comprehensiveTopK int) *Reranker {
	if topK <= 0 {
		topK = 6
	}
	if comprehensiveTopK <= 0 {
		comprehensiveTopK = 12
	}
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &Reranker{
		scorer:            scorer,
		timeout:           timeout,
		topK:              topK,
		comprehensiveTopK: comprehensiveTopK,
	}
}

// Rerank scores each hit against the query, sorts descending by score, and
// truncates. If the scorer is absent, errors, or the timeout fires before
// scoring completes, the aggregator's order is preserved and only truncated.
func (r *Reranker) Rerank(ctx context.Context, query string, hits []retrieval.AggregatedHit, comprehensive bool) []retrieval.AggregatedHit {
	limit := r.topK
	if comprehensive {
		limit = r.comprehensiveTopK
	}

	if r.scorer == nil || len(hits) == 0 {
		return truncated(hits, limit)
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	scored := make([]retrieval.AggregatedHit, len(hits))
	copy(scored, hits)

	g, gCtx := errgroup.WithContext(timeoutCtx)
	g.SetLimit(scoringConcurrency)
	for i := range scored {
		g.Go(func() error {
			score, err := r.scorer.Score(gCtx, query, scored[i].Text)
			if err != nil {
				return fmt.Errorf("scoring hit %d: %w", i, err)
			}
			scored[i].RerankScore = score
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		slog.Warn("reranking degraded to passthrough", "error", err)
		return truncated(hits, limit)
	}

	// Descending by rerank score; stable so the aggregator's (deterministic)
	// order breaks exact ties.
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].RerankScore > scored[j].RerankScore
	})

	return truncated(scored, limit)
}

func truncated(hits []retrieval.AggregatedHit, limit int) []retrieval.AggregatedHit {
	if len(hits) > limit {
		return hits[:limit]
	}
	return hits
}

// EngineScorer prompts a local model for a JSON relevance score.
type EngineScorer struct {
	engine engine.Engine
	model  string
}

// NewEngineScorer creates a Scorer backed by the given engine and model.
func NewEngineScorer(e engine.Engine, model string) *EngineScorer {
	return &EngineScorer{engine: e, model: model}
}

// Score rates the relevance of text to query on a 0.0–1.0 scale.
func (s *EngineScorer) Score(ctx context.Context, query, text string) (float64, error) {
	prompt := "Rate the relevance of the following text to the query on a scale of 0.0 to 1.0.\n" +
		"Query: " + query + "\n" +
		"Text: " + text + "\n" +
		`Respond with only a JSON object: {"score": <float>}`

	schema := &engine.Schema{
		Type: "object",
		Properties: map[string]engine.SchemaProperty{
			"score": {Type: "number", Description: "Relevance score 0.0–1.0"},
		},
		Required: []string{"score"},
	}

	resp, err := s.engine.Chat(ctx, s.model, []engine.Message{
		{Role: "user", Content: prompt},
	}, schema)
	if err != nil {
		return 0, err
	}
	return parseScore(resp)
}

// parseScore robustly extracts a relevance score from an LLM response. Small
// local models frequently wrap JSON in markdown code fences or prepend
// conversational filler, so the parser strips fences and extracts the JSON
// object by brace position before unmarshalling.
func parseScore(resp string) (float64, error) {
	s := strings.TrimSpace(resp)

	if idx := strings.Index(s, "```"); idx != -1 {
		s = s[idx+3:]
		if strings.HasPrefix(s, "json") {
			s = s[4:]
		}
		if end := strings.Index(s, "```"); end != -1 {
			s = s[:end]
		}
	}

	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start == -1 || end <= start {
		return 0, fmt.Errorf("no JSON object in response")
	}

	var obj struct {
		Score float64 `json:"score"`
	}
	if err := json.Unmarshal([]byte(s[start:end+1]), &obj); err != nil {
		return 0, fmt.Errorf("unmarshal score: %w", err)
	}
	return obj.Score, nil
}
