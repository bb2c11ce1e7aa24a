package types

import "fmt"

// Weights controls how dense and sparse scores are blended into the
// combined score. Sparse is always the complement of Dense so the two
// components stay on a shared scale.
type Weights struct {
	Dense  float64
	Sparse float64
}

// DefaultDenseWeight favors the dense path, which works better for
// conversational Korean queries. Keyword-heavy lookups still surface
// through the sparse share.
const DefaultDenseWeight = 0.6

// NewWeights builds fusion weights from the dense share.
func NewWeights(dense float64) (Weights, error) {
	if dense < 0 || dense > 1 {
		return Weights{}, fmt.Errorf("dense weight must be between 0 and 1, got %g", dense)
	}
	return Weights{Dense: dense, Sparse: 1 - dense}, nil
}

// DefaultWeights returns the standard 0.6/0.4 blend.
func DefaultWeights() Weights {
	w, _ := NewWeights(DefaultDenseWeight)
	return w
}
