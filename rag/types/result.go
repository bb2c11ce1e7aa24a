package types

// Result represents a single chunk returned by a store or a search.
type Result struct {
	ID        string
	Metadata  map[string]string
	Embedding []float32
	Content   string

	// Distance is the raw cosine distance reported by the vector store.
	// Lower means closer. Zero when the result did not come from the
	// dense path.
	Distance float32

	// Similarity is the dense score derived from Distance as
	// 1/(1+distance). The value is in the range (0, 1].
	Similarity float32

	// SparseScore is the normalized BM25 score, score/(score+1).
	// Zero when the chunk did not match any query term.
	SparseScore float32

	// CombinedScore is the weighted sum of Similarity and SparseScore
	// computed by the fusion step.
	CombinedScore float32
}
