package engine

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/esgrag/esgrag/rag/interfaces"
	"github.com/esgrag/esgrag/rag/types"
	lru "github.com/hashicorp/golang-lru/v2"
)

// ErrNotReady is returned when a search reaches a collection whose
// hybrid engine has not been built yet, which happens before the first
// document is ingested.
var ErrNotReady = errors.New("hybrid engine not ready")

// DefaultCandidateMultiplier controls how many candidates each path
// over-fetches per requested result before fusion.
const DefaultCandidateMultiplier = 3

// HybridSearchEngine fuses dense vector retrieval with BM25 keyword
// retrieval over a fixed corpus snapshot. An instance is bound to the
// corpus version it was built from: construction takes the snapshot and
// builds the sparse index, and there is no way to update it afterwards.
// When the corpus changes, build a new instance.
type HybridSearchEngine struct {
	store      interfaces.Engine
	dense      *DenseRetriever
	sparse     *BM25Index
	weights    types.Weights
	multiplier int
	cache      *lru.Cache[searchKey, []types.Result]
	cacheSize  int
}

type searchKey struct {
	query string
	k     int
}

// Option configures a HybridSearchEngine at construction time.
type Option func(*HybridSearchEngine)

// WithCandidateMultiplier replaces the default over-fetch factor.
func WithCandidateMultiplier(m int) Option {
	return func(h *HybridSearchEngine) {
		h.multiplier = m
	}
}

// WithCache keeps the last size fused result sets in memory. Safe
// because the engine's results are fixed for its corpus version.
func WithCache(size int) Option {
	return func(h *HybridSearchEngine) {
		h.cacheSize = size
	}
}

// NewHybridSearchEngine snapshots the store and builds the sparse index
// over it. An empty store fails fast: returning an engine that cannot
// rank anything only defers the error to the first query.
func NewHybridSearchEngine(store interfaces.Engine, weights types.Weights, opts ...Option) (*HybridSearchEngine, error) {
	docs, err := store.Enumerate()
	if err != nil {
		return nil, fmt.Errorf("failed to snapshot corpus: %w", err)
	}

	sparse, err := NewBM25Index(docs)
	if err != nil {
		return nil, fmt.Errorf("failed to build sparse index: %w", err)
	}

	h := &HybridSearchEngine{
		store:      store,
		dense:      NewDenseRetriever(store),
		sparse:     sparse,
		weights:    weights,
		multiplier: DefaultCandidateMultiplier,
	}
	for _, opt := range opts {
		opt(h)
	}

	if h.multiplier < 1 {
		return nil, fmt.Errorf("candidate multiplier must be at least 1, got %d", h.multiplier)
	}
	if h.cacheSize > 0 {
		cache, err := lru.New[searchKey, []types.Result](h.cacheSize)
		if err != nil {
			return nil, fmt.Errorf("failed to create result cache: %w", err)
		}
		h.cache = cache
	}

	return h, nil
}

// Count returns the size of the corpus snapshot the engine was built on.
func (h *HybridSearchEngine) Count() int {
	return h.sparse.Len()
}

// Weights returns the fusion weights the engine ranks with.
func (h *HybridSearchEngine) Weights() types.Weights {
	return h.weights
}

// Search runs both retrieval paths and returns the k best chunks by
// combined score. Each path contributes up to multiplier*k candidates;
// a chunk found by both paths is counted once, keyed by its ID. Fewer
// than k results means the corpus had nothing further to offer, never
// that something was lost.
func (h *HybridSearchEngine) Search(query string, k int) ([]types.Result, error) {
	if k <= 0 {
		return []types.Result{}, nil
	}

	key := searchKey{query: query, k: k}
	if h.cache != nil {
		if cached, ok := h.cache.Get(key); ok {
			return append([]types.Result(nil), cached...), nil
		}
	}

	candidates := k * h.multiplier

	denseResults, err := h.dense.Search(query, candidates)
	if err != nil {
		return nil, err
	}
	sparseResults := h.sparse.TopK(query, candidates)

	fused := h.fuse(denseResults, sparseResults)
	if len(fused) > k {
		fused = fused[:k]
	}

	if h.cache != nil {
		h.cache.Add(key, append([]types.Result(nil), fused...))
	}

	return fused, nil
}

// SearchWithFilter fetches a widened fused ranking and keeps only the
// chunks whose metadata matches every filter entry exactly, up to k.
// A short or empty result set is valid.
func (h *HybridSearchEngine) SearchWithFilter(query string, k int, filter map[string]string) ([]types.Result, error) {
	if k <= 0 {
		return []types.Result{}, nil
	}

	results, err := h.Search(query, k*2)
	if err != nil {
		return nil, err
	}

	if len(filter) == 0 {
		if len(results) > k {
			results = results[:k]
		}
		return results, nil
	}

	filtered := make([]types.Result, 0, k)
	for _, r := range results {
		if !matchesMetadata(r.Metadata, filter) {
			continue
		}
		filtered = append(filtered, r)
		if len(filtered) == k {
			break
		}
	}

	return filtered, nil
}

// fuse merges the two candidate lists by chunk ID, keeping the highest
// score a path produced for a chunk and zero for the path that missed
// it. The fused list is ordered by combined score, ties broken by
// corpus insertion order.
func (h *HybridSearchEngine) fuse(dense, sparse []types.Result) []types.Result {
	merged := make([]types.Result, 0, len(dense)+len(sparse))
	byID := make(map[string]int, len(dense)+len(sparse))

	for _, r := range dense {
		if i, ok := byID[r.ID]; ok {
			if r.Similarity > merged[i].Similarity {
				merged[i].Similarity = r.Similarity
				merged[i].Distance = r.Distance
			}
			continue
		}
		r.SparseScore = 0
		byID[r.ID] = len(merged)
		merged = append(merged, r)
	}

	for _, r := range sparse {
		if i, ok := byID[r.ID]; ok {
			if r.SparseScore > merged[i].SparseScore {
				merged[i].SparseScore = r.SparseScore
			}
			continue
		}
		r.Similarity = 0
		byID[r.ID] = len(merged)
		merged = append(merged, r)
	}

	for i := range merged {
		merged[i].CombinedScore = float32(
			h.weights.Dense*float64(merged[i].Similarity) +
				h.weights.Sparse*float64(merged[i].SparseScore))
	}

	sort.SliceStable(merged, func(a, b int) bool {
		if merged[a].CombinedScore != merged[b].CombinedScore {
			return merged[a].CombinedScore > merged[b].CombinedScore
		}
		return h.snapshotPosition(merged[a].ID) < h.snapshotPosition(merged[b].ID)
	})

	return merged
}

func (h *HybridSearchEngine) snapshotPosition(id string) int {
	if pos, ok := h.sparse.Position(id); ok {
		return pos
	}
	return math.MaxInt
}

func matchesMetadata(metadata, filter map[string]string) bool {
	for k, v := range filter {
		if metadata[k] != v {
			return false
		}
	}
	return true
}
