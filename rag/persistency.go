package rag

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/esgrag/esgrag/rag/engine"
	"github.com/esgrag/esgrag/rag/types"
	"github.com/mudler/xlog"
)

// PersistentKB is a named collection of ingested files backed by a
// document store. It tracks its files and external sources in a JSON
// state file, keeps copies of ingested files in an asset directory,
// and owns the hybrid engine answering searches. The hybrid engine is
// bound to one corpus version, so every mutation swaps in a freshly
// built instance.
type PersistentKB struct {
	sync.Mutex
	engine       Engine
	hybrid       *engine.HybridSearchEngine
	weights      types.Weights
	engineOpts   []engine.Option
	files        []fileEntry
	sources      []ExternalSource
	path         string
	assetDir     string
	maxChunkSize int
}

type fileEntry struct {
	Name     string            `json:"name"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

type kbState struct {
	Files           []fileEntry      `json:"files"`
	ExternalSources []ExternalSource `json:"external_sources,omitempty"`
}

func loadDB(path string) (*kbState, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	state := &kbState{}
	err = json.Unmarshal(data, state)
	return state, err
}

func NewPersistentCollectionKB(stateFile, assetDir string, store Engine, weights types.Weights, maxChunkSize int, engineOpts ...engine.Option) (*PersistentKB, error) {
	if err := os.MkdirAll(assetDir, 0755); err != nil {
		return nil, err
	}

	db := &PersistentKB{
		engine:       store,
		weights:      weights,
		engineOpts:   engineOpts,
		files:        []fileEntry{},
		path:         stateFile,
		assetDir:     assetDir,
		maxChunkSize: maxChunkSize,
	}

	if _, err := os.Stat(stateFile); err != nil {
		db.Lock()
		defer db.Unlock()
		if err := db.save(); err != nil {
			return nil, err
		}
		return db, db.rebuildHybrid()
	}

	state, err := loadDB(stateFile)
	if err != nil {
		return nil, err
	}
	db.files = state.Files
	db.sources = state.ExternalSources

	db.Lock()
	defer db.Unlock()

	// A state file listing files over an empty store means the vector
	// data is gone, for example after switching engines. Re-ingest from
	// the asset copies.
	if store.Count() == 0 && len(db.files) > 0 {
		xlog.Info("Store is empty but state lists files, repopulating", "state", stateFile)
		if err := db.repopulate(); err != nil {
			return nil, err
		}
		return db, nil
	}

	return db, db.rebuildHybrid()
}

// rebuildHybrid builds a hybrid engine for the store's current corpus
// version. Empty stores leave the collection without an engine until
// the first document arrives. Callers must hold the lock.
func (db *PersistentKB) rebuildHybrid() error {
	if db.engine.Count() == 0 {
		db.hybrid = nil
		return nil
	}

	h, err := engine.NewHybridSearchEngine(db.engine, db.weights, db.engineOpts...)
	if err != nil {
		return fmt.Errorf("failed to build hybrid engine: %w", err)
	}
	db.hybrid = h
	return nil
}

func (db *PersistentKB) save() error {
	data, err := json.Marshal(kbState{Files: db.files, ExternalSources: db.sources})
	if err != nil {
		return err
	}

	return os.WriteFile(db.path, data, 0644)
}

// repopulate re-ingests every tracked file from the asset directory.
// Callers must hold the lock.
func (db *PersistentKB) repopulate() error {
	if err := db.engine.Reset(); err != nil {
		return fmt.Errorf("failed to reset engine: %w", err)
	}

	for _, f := range db.files {
		if err := db.storeFile(f.Name, f.Metadata); err != nil {
			return fmt.Errorf("failed to store %s: %w", f.Name, err)
		}
	}

	return db.rebuildHybrid()
}

// ListEntries returns the names of the files in the collection.
func (db *PersistentKB) ListEntries() []string {
	db.Lock()
	defer db.Unlock()

	entries := make([]string, 0, len(db.files))
	for _, f := range db.files {
		entries = append(entries, f.Name)
	}
	return entries
}

func (db *PersistentKB) EntryExists(entry string) bool {
	db.Lock()
	defer db.Unlock()

	entry = filepath.Base(entry)
	for _, f := range db.files {
		if f.Name == entry {
			return true
		}
	}
	return false
}

// Count returns the number of chunks in the store.
func (db *PersistentKB) Count() int {
	db.Lock()
	defer db.Unlock()

	return db.engine.Count()
}

// Store copies a file into the asset directory, chunks it, stores the
// chunks and rebuilds the hybrid engine.
func (db *PersistentKB) Store(entry string, metadata map[string]string) error {
	db.Lock()
	defer db.Unlock()

	if _, err := os.Stat(entry); err != nil {
		return fmt.Errorf("file does not exist: %s", entry)
	}
	if err := copyFile(entry, db.assetDir); err != nil {
		return fmt.Errorf("failed to copy file: %w", err)
	}

	fileName := filepath.Base(entry)
	db.files = append(db.files, fileEntry{Name: fileName, Metadata: metadata})

	if err := db.storeFile(fileName, metadata); err != nil {
		return fmt.Errorf("failed to store file: %w", err)
	}

	if err := db.save(); err != nil {
		return err
	}

	return db.rebuildHybrid()
}

// StoreOrReplace stores a file, first removing a previously ingested
// version if one exists.
func (db *PersistentKB) StoreOrReplace(entry string, metadata map[string]string) error {
	if db.EntryExists(entry) {
		if err := db.RemoveEntry(filepath.Base(entry)); err != nil {
			return err
		}
	}

	return db.Store(entry, metadata)
}

// storeFile chunks one asset file into the engine. Per-chunk metadata
// from the report chunker overlays the file-level metadata. Callers
// must hold the lock.
func (db *PersistentKB) storeFile(fileName string, metadata map[string]string) error {
	pieces, err := chunkFile(fileName, db.assetDir, db.maxChunkSize)
	if err != nil {
		return err
	}

	plain := true
	for _, p := range pieces {
		if len(p.Metadata) > 0 {
			plain = false
			break
		}
	}

	if plain {
		contents := make([]string, 0, len(pieces))
		for _, p := range pieces {
			contents = append(contents, p.Content)
		}
		if len(contents) == 0 {
			return nil
		}
		_, err := db.engine.StoreDocuments(contents, fileMetadata(fileName, metadata, nil))
		return err
	}

	for _, p := range pieces {
		if _, err := db.engine.Store(p.Content, fileMetadata(fileName, metadata, p.Metadata)); err != nil {
			return err
		}
	}

	return nil
}

func fileMetadata(fileName string, fileMeta, chunkMeta map[string]string) map[string]string {
	meta := map[string]string{}
	for k, v := range fileMeta {
		meta[k] = v
	}
	meta["source"] = fileName
	meta["type"] = "file"
	for k, v := range chunkMeta {
		meta[k] = v
	}
	return meta
}

// RemoveEntry removes a file and its chunks from the collection.
func (db *PersistentKB) RemoveEntry(entry string) error {
	db.Lock()
	defer db.Unlock()

	entry = filepath.Base(entry)
	for i, f := range db.files {
		if f.Name == entry {
			db.files = append(db.files[:i], db.files[i+1:]...)
			os.Remove(filepath.Join(db.assetDir, f.Name))
			break
		}
	}

	if err := db.engine.Delete(map[string]string{"source": entry}, nil); err != nil {
		return fmt.Errorf("failed to delete chunks: %w", err)
	}

	if err := db.save(); err != nil {
		return err
	}

	return db.rebuildHybrid()
}

// GetEntryContent returns the stored chunks of one file.
func (db *PersistentKB) GetEntryContent(entry string) ([]types.Result, error) {
	db.Lock()
	defer db.Unlock()

	entry = filepath.Base(entry)
	found := false
	for _, f := range db.files {
		if f.Name == entry {
			found = true
			break
		}
	}
	if !found {
		return nil, fmt.Errorf("entry not found: %s", entry)
	}

	all, err := db.engine.Enumerate()
	if err != nil {
		return nil, err
	}

	results := []types.Result{}
	for _, r := range all {
		if r.Metadata["source"] == entry {
			results = append(results, r)
		}
	}
	return results, nil
}

func (db *PersistentKB) Reset() error {
	db.Lock()
	defer db.Unlock()

	for _, f := range db.files {
		os.Remove(filepath.Join(db.assetDir, f.Name))
	}
	db.files = []fileEntry{}
	db.sources = nil
	if err := db.save(); err != nil {
		return err
	}

	if err := db.engine.Reset(); err != nil {
		return err
	}
	db.hybrid = nil
	return nil
}

// Search ranks chunks against the query with the hybrid engine.
func (db *PersistentKB) Search(s string, maxResults int) ([]types.Result, error) {
	db.Lock()
	defer db.Unlock()

	if db.hybrid == nil {
		return nil, engine.ErrNotReady
	}
	return db.hybrid.Search(s, maxResults)
}

// SearchWithFilter ranks chunks against the query and keeps only those
// whose metadata matches the filter exactly.
func (db *PersistentKB) SearchWithFilter(s string, maxResults int, filter map[string]string) ([]types.Result, error) {
	db.Lock()
	defer db.Unlock()

	if db.hybrid == nil {
		return nil, engine.ErrNotReady
	}
	return db.hybrid.SearchWithFilter(s, maxResults, filter)
}

// CollectionStatistics summarizes a collection's corpus.
type CollectionStatistics struct {
	TotalFiles         int            `json:"total_files"`
	TotalChunks        int            `json:"total_chunks"`
	Sections           map[string]int `json:"sections"`
	ChunkTypes         map[string]int `json:"chunk_types"`
	Pages              int            `json:"pages"`
	EmbeddingDimension int            `json:"embedding_dimension,omitempty"`
}

// Statistics walks the corpus and tallies chunks by section, type and
// page.
func (db *PersistentKB) Statistics() (CollectionStatistics, error) {
	db.Lock()
	defer db.Unlock()

	stats := CollectionStatistics{
		TotalFiles: len(db.files),
		Sections:   map[string]int{},
		ChunkTypes: map[string]int{},
	}

	all, err := db.engine.Enumerate()
	if err != nil {
		return stats, err
	}

	pages := map[string]bool{}
	for _, r := range all {
		stats.TotalChunks++
		if s := r.Metadata["section"]; s != "" {
			stats.Sections[s]++
		}
		if t := r.Metadata["chunk_type"]; t != "" {
			stats.ChunkTypes[t]++
		}
		if p := r.Metadata["page"]; p != "" {
			pages[p] = true
		}
	}
	stats.Pages = len(pages)

	if dimer, ok := db.engine.(interface{ GetEmbeddingDimensions() (int, error) }); ok {
		if dims, err := dimer.GetEmbeddingDimensions(); err == nil {
			stats.EmbeddingDimension = dims
		}
	}

	return stats, nil
}

// GetExternalSources returns the external sources registered on the
// collection.
func (db *PersistentKB) GetExternalSources() []ExternalSource {
	db.Lock()
	defer db.Unlock()

	return append([]ExternalSource(nil), db.sources...)
}

// AddExternalSource registers an external source, replacing an earlier
// registration of the same URL.
func (db *PersistentKB) AddExternalSource(source ExternalSource) error {
	db.Lock()
	defer db.Unlock()

	for i, s := range db.sources {
		if s.URL == source.URL {
			db.sources[i] = source
			return db.save()
		}
	}
	db.sources = append(db.sources, source)
	return db.save()
}

// RemoveExternalSource unregisters an external source by URL.
func (db *PersistentKB) RemoveExternalSource(url string) error {
	db.Lock()
	defer db.Unlock()

	for i, s := range db.sources {
		if s.URL == url {
			db.sources = append(db.sources[:i], db.sources[i+1:]...)
			return db.save()
		}
	}
	return fmt.Errorf("source %s not found", url)
}

func copyFile(src, dst string) error {
	in, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dst, filepath.Base(src)), in, 0644)
}
