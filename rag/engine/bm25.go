package engine

import (
	"errors"
	"math"
	"sort"

	"github.com/esgrag/esgrag/pkg/korean"
	"github.com/esgrag/esgrag/rag/types"
)

// ErrEmptyCorpus is returned when an index is requested over a store
// that holds no documents.
var ErrEmptyCorpus = errors.New("no documents in corpus")

// Okapi BM25 parameters.
const (
	bm25K1      = 1.5
	bm25B       = 0.75
	bm25Epsilon = 0.25
)

// BM25Index scores documents against keyword queries with Okapi BM25.
// It is built once over a corpus snapshot and is immutable afterwards;
// when the corpus changes a new index must be built. Scores stay paired
// with the snapshot's own documents, so the index never depends on the
// ordering of the live store.
type BM25Index struct {
	docs     []types.Result
	position map[string]int

	termFreqs []map[string]int
	docLen    []int
	avgdl     float64
	idf       map[string]float64
}

// NewBM25Index tokenizes every document of the snapshot and computes
// the corpus statistics. An empty snapshot is a configuration error:
// building a retrieval engine over nothing is never intended.
func NewBM25Index(docs []types.Result) (*BM25Index, error) {
	if len(docs) == 0 {
		return nil, ErrEmptyCorpus
	}

	idx := &BM25Index{
		docs:      docs,
		position:  make(map[string]int, len(docs)),
		termFreqs: make([]map[string]int, len(docs)),
		docLen:    make([]int, len(docs)),
		idf:       map[string]float64{},
	}

	docFreq := map[string]int{}
	totalLen := 0
	for i, doc := range docs {
		idx.position[doc.ID] = i

		tokens := korean.Tokenize(doc.Content)
		freqs := make(map[string]int, len(tokens))
		for _, t := range tokens {
			freqs[t]++
		}
		idx.termFreqs[i] = freqs
		idx.docLen[i] = len(tokens)
		totalLen += len(tokens)

		for t := range freqs {
			docFreq[t]++
		}
	}
	idx.avgdl = float64(totalLen) / float64(len(docs))

	// Probabilistic idf can go negative for terms present in most
	// documents; those are floored to a fraction of the average idf,
	// matching BM25Okapi.
	n := float64(len(docs))
	idfSum := 0.0
	var negative []string
	for term, freq := range docFreq {
		idf := math.Log(n-float64(freq)+0.5) - math.Log(float64(freq)+0.5)
		idx.idf[term] = idf
		idfSum += idf
		if idf < 0 {
			negative = append(negative, term)
		}
	}
	floor := bm25Epsilon * idfSum / float64(len(idx.idf))
	for _, term := range negative {
		idx.idf[term] = floor
	}

	return idx, nil
}

// Len returns the number of documents in the snapshot.
func (idx *BM25Index) Len() int {
	return len(idx.docs)
}

// Position reports the insertion-order position of a chunk ID within
// the snapshot.
func (idx *BM25Index) Position(id string) (int, bool) {
	pos, ok := idx.position[id]
	return pos, ok
}

// Scores computes a raw BM25 score for every document in the snapshot,
// aligned with the snapshot order. A query that tokenizes to nothing
// yields all zeros; that is a valid result, not an error.
func (idx *BM25Index) Scores(query string) []float64 {
	scores := make([]float64, len(idx.docs))
	if idx.avgdl == 0 {
		return scores
	}

	for _, term := range korean.Tokenize(query) {
		idf, ok := idx.idf[term]
		if !ok {
			continue
		}
		for i, freqs := range idx.termFreqs {
			tf := float64(freqs[term])
			if tf == 0 {
				continue
			}
			norm := bm25K1 * (1 - bm25B + bm25B*float64(idx.docLen[i])/idx.avgdl)
			scores[i] += idf * tf * (bm25K1 + 1) / (tf + norm)
		}
	}

	return scores
}

// TopK returns the k best keyword matches for the query. Documents
// scoring zero are excluded entirely, so a keyword miss can never dilute
// fused rankings. Surviving scores are squashed to (0, 1) via s/(s+1)
// and attached to copies of the snapshot documents as SparseScore. Ties
// keep insertion order.
func (idx *BM25Index) TopK(query string, k int) []types.Result {
	scores := idx.Scores(query)

	order := make([]int, len(scores))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return scores[order[a]] > scores[order[b]]
	})

	results := make([]types.Result, 0, k)
	for _, i := range order {
		if len(results) == k {
			break
		}
		if scores[i] <= 0 {
			break
		}
		doc := idx.docs[i]
		doc.SparseScore = float32(scores[i] / (scores[i] + 1))
		results = append(results, doc)
	}

	return results
}
