package retrieval

import (
	"context"
	"log/slog"
	"sort"
)

// searchPenalty is the per-position score adjustment applied to hits from
// later sub-queries. It is an explicit, documented tie-break that prefers hits
// surfaced by earlier (more specific) sub-queries when raw distances tie or
// nearly tie.
const searchPenalty = 0.01

// Default retrieval budgets. Comprehensive queries get a larger k and keep the
// full aggregated set so results sample broadly across source documents
// instead of collapsing to the single best-matching one.
const (
	DefaultK        = 8
	ComprehensiveK  = 16
	defaultFinalCap = 6
)

// TextEmbedder turns a sub-query into a vector for similarity search.
type TextEmbedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Aggregator issues one similarity search per sub-query and merges the
// results into a deduplicated, deterministically ranked hit list.
type Aggregator struct {
	embedder TextEmbedder
	index    Index

	k              int
	comprehensiveK int
	finalCap       int
}

// NewAggregator creates an Aggregator over the given embedder and index.
// Non-positive budgets select the defaults (8/16 neighbors, final cap 6 for
// narrow queries).
func NewAggregator(embedder TextEmbedder, index Index, k, comprehensiveK, finalCap int) *Aggregator {
	if k <= 0 {
		k = DefaultK
	}
	if comprehensiveK <= 0 {
		comprehensiveK = ComprehensiveK
	}
	if finalCap <= 0 {
		finalCap = defaultFinalCap
	}
	return &Aggregator{
		embedder:       embedder,
		index:          index,
		k:              k,
		comprehensiveK: comprehensiveK,
		finalCap:       finalCap,
	}
}

// Retrieve runs every sub-query sequentially, in decomposition order, and
// aggregates the hits. A hit seen by multiple sub-queries is merged under its
// stable identity: the lower combined score wins, and the set of search
// indices that found it is unioned. Individual sub-query failures degrade to
// warnings; the pass continues with whatever the remaining searches return.
func (a *Aggregator) Retrieve(ctx context.Context, subQueries []string, comprehensive bool) ([]AggregatedHit, error) {
	k := a.k
	if comprehensive {
		k = a.comprehensiveK
	}

	merged := make(map[string]*AggregatedHit)
	var order []string // first-seen identity order, the tie-break for equal scores

	for i, sub := range subQueries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		vec, err := a.embedder.Embed(ctx, sub)
		if err != nil {
			slog.Warn("sub-query embedding failed", "index", i, "error", err)
			continue
		}

		hits, err := a.index.Search(vec, k)
		if err != nil {
			slog.Warn("sub-query search failed", "index", i, "error", err)
			continue
		}

		for _, hit := range hits {
			key := hit.Meta.Identity()
			score := hit.Distance + float64(i)*searchPenalty

			existing, ok := merged[key]
			if !ok {
				merged[key] = &AggregatedHit{
					Hit:             hit,
					CombinedScore:   score,
					FoundInSearches: []int{i},
				}
				order = append(order, key)
				continue
			}

			if score < existing.CombinedScore {
				existing.Hit = hit
				existing.CombinedScore = score
			}
			if !containsInt(existing.FoundInSearches, i) {
				existing.FoundInSearches = append(existing.FoundInSearches, i)
			}
		}
	}

	results := make([]AggregatedHit, 0, len(merged))
	for _, key := range order {
		results = append(results, *merged[key])
	}

	// Ascending combined score; stable sort keeps first-seen order on ties,
	// so ranking is deterministic given deterministic inputs.
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].CombinedScore < results[j].CombinedScore
	})

	limit := a.finalCap
	if comprehensive {
		limit = k
	}
	if len(results) > limit {
		results = results[:limit]
	}

	slog.Debug("retrieval pass complete",
		"sub_queries", len(subQueries),
		"unique_hits", len(merged),
		"returned", len(results),
	)
	return results, nil
}

func containsInt(s []int, v int) bool {
	for _, x := range s {
		if x == v {
			return true
		}
	}
	return false
}
