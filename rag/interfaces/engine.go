package interfaces

import "github.com/esgrag/esgrag/rag/types"

// Engine is the document store contract shared by the vector backends.
// Stored chunks are immutable; the only way to change one is to delete
// it and store a new chunk.
type Engine interface {
	Store(s string, meta map[string]string) (types.Result, error)
	StoreDocuments(s []string, meta map[string]string) ([]types.Result, error)
	Delete(where map[string]string, whereDocuments map[string]string, ids ...string) error
	Reset() error

	// Search runs a dense similarity query and returns up to
	// similarEntries results with Distance populated, closest first.
	Search(s string, similarEntries int) ([]types.Result, error)

	// Enumerate returns every stored chunk in insertion order. The
	// sparse index is built from this snapshot.
	Enumerate() ([]types.Result, error)

	GetByID(id string) (types.Result, error)
	Count() int
}
