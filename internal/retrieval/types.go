// Package retrieval provides the vector index, the embedding front-end, and
// the multi-search aggregator that merges hits across decomposed sub-queries.
package retrieval

import "time"

// Chunk is the structural metadata attached to every retrievable unit. The
// ingestion side guarantees a non-empty DocID, a section path (possibly empty
// for root-level content), a kind tag, and the has-code/commands pair.
type Chunk struct {
	DocID          string
	SectionPath    []string
	SectionPathStr string
	Kind           string
	StepNo         int
	HasCode        bool
	Commands       []string
	StartLine      int
	EndLine        int
}

// Identity returns the stable identity key for deduplication across
// sub-queries within one retrieval pass.
func (c Chunk) Identity() string {
	return c.DocID + "_" + c.SectionPathStr
}

// Record is a row in the vector index.
type Record struct {
	ID        string
	Text      string
	Meta      Chunk
	Embedding []float32
	CreatedAt time.Time
}

// Hit is a raw similarity-search result. Distance is a similarity cost
// (cosine distance): 0 means identical, lower means closer.
type Hit struct {
	Text     string
	Meta     Chunk
	Distance float64
}

// AggregatedHit is a Hit merged across sub-queries. CombinedScore is the
// distance adjusted by the positional tie-break; FoundInSearches lists every
// sub-query index that surfaced this chunk. RerankScore is populated by the
// re-ranking stage (higher = more relevant, the opposite polarity of
// CombinedScore).
type AggregatedHit struct {
	Hit
	CombinedScore   float64
	FoundInSearches []int
	RerankScore     float64
}

// Index is the similarity-search collaborator the aggregator depends on.
type Index interface {
	Search(vector []float32, k int) ([]Hit, error)
}
