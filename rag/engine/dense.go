package engine

import (
	"fmt"

	"github.com/esgrag/esgrag/rag/interfaces"
	"github.com/esgrag/esgrag/rag/types"
)

// DenseRetriever adapts a document store's vector search to the scoring
// scale used by the fusion step. Store and embedding failures are
// returned to the caller as is; there is no fallback path.
type DenseRetriever struct {
	store interfaces.Engine
}

func NewDenseRetriever(store interfaces.Engine) *DenseRetriever {
	return &DenseRetriever{store: store}
}

// Search returns up to k results with Similarity derived from the raw
// distance as 1/(1+distance). The mapping is monotonic, so store
// ordering is preserved, and keeps every dense score inside (0, 1].
func (d *DenseRetriever) Search(query string, k int) ([]types.Result, error) {
	results, err := d.store.Search(query, k)
	if err != nil {
		return nil, fmt.Errorf("dense search failed: %w", err)
	}

	for i := range results {
		results[i].Similarity = 1 / (1 + results[i].Distance)
	}

	return results, nil
}
