package rag_test

import (
	"fmt"
	"strconv"
	"sync"

	"github.com/esgrag/esgrag/rag/interfaces"
	"github.com/esgrag/esgrag/rag/types"
)

// memoryEngine is an in-memory Engine for exercising the collection
// layer without embeddings. Its dense search returns every chunk at a
// uniform distance, so rankings in these tests come from the keyword
// side of the hybrid engine.
type memoryEngine struct {
	mu   sync.Mutex
	docs []types.Result
	next int
}

var _ interfaces.Engine = &memoryEngine{}

func newMemoryEngine() *memoryEngine {
	return &memoryEngine{next: 1}
}

func (m *memoryEngine) Store(s string, meta map[string]string) (types.Result, error) {
	results, err := m.StoreDocuments([]string{s}, meta)
	if err != nil {
		return types.Result{}, err
	}
	return results[0], nil
}

func (m *memoryEngine) StoreDocuments(s []string, meta map[string]string) ([]types.Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	results := make([]types.Result, 0, len(s))
	for _, content := range s {
		r := types.Result{
			ID:       strconv.Itoa(m.next),
			Content:  content,
			Metadata: meta,
		}
		m.next++
		m.docs = append(m.docs, r)
		results = append(results, r)
	}
	return results, nil
}

func (m *memoryEngine) Delete(where map[string]string, whereDocuments map[string]string, ids ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	drop := map[string]bool{}
	for _, id := range ids {
		drop[id] = true
	}

	kept := m.docs[:0]
	for _, d := range m.docs {
		if drop[d.ID] || matchesMetadata(d.Metadata, where) {
			continue
		}
		kept = append(kept, d)
	}
	m.docs = kept
	return nil
}

func matchesMetadata(meta, where map[string]string) bool {
	if len(where) == 0 {
		return false
	}
	for k, v := range where {
		if meta[k] != v {
			return false
		}
	}
	return true
}

func (m *memoryEngine) Reset() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.docs = nil
	m.next = 1
	return nil
}

func (m *memoryEngine) Search(s string, similarEntries int) ([]types.Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if similarEntries <= 0 {
		return []types.Result{}, nil
	}

	results := []types.Result{}
	for _, d := range m.docs {
		d.Distance = 0.5
		d.Similarity = 1.0 / 1.5
		results = append(results, d)
		if len(results) == similarEntries {
			break
		}
	}
	return results, nil
}

func (m *memoryEngine) Enumerate() ([]types.Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([]types.Result(nil), m.docs...), nil
}

func (m *memoryEngine) GetByID(id string) (types.Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, d := range m.docs {
		if d.ID == id {
			return d, nil
		}
	}
	return types.Result{}, fmt.Errorf("document %s not found", id)
}

func (m *memoryEngine) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.docs)
}
