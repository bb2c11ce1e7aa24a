package rag

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/esgrag/esgrag/rag/sources"
	"github.com/mudler/xlog"
)

// ExternalSource represents a source that needs to be periodically updated
type ExternalSource struct {
	URL            string        `json:"url"`
	UpdateInterval time.Duration `json:"update_interval"`
	LastUpdate     time.Time     `json:"last_update"`
}

// SourceManager manages external sources for collections
type SourceManager struct {
	sources     map[string][]ExternalSource // collection name -> sources
	collections map[string]*PersistentKB    // collection name -> collection
	config      *sources.Config
	mu          sync.RWMutex
	done        chan struct{}
}

// NewSourceManager creates a new source manager
func NewSourceManager(config *sources.Config) *SourceManager {
	if config == nil {
		config = &sources.Config{}
	}
	return &SourceManager{
		sources:     make(map[string][]ExternalSource),
		collections: make(map[string]*PersistentKB),
		config:      config,
		done:        make(chan struct{}),
	}
}

// RegisterCollection registers a collection with the source manager
func (sm *SourceManager) RegisterCollection(name string, collection *PersistentKB) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.collections[name] = collection

	// Load existing sources from the collection
	for _, source := range collection.GetExternalSources() {
		sm.sources[name] = append(sm.sources[name], source)
		// Trigger an immediate update for each source
		go sm.updateSource(name, source, collection)
	}
}

// AddSource adds a new external source to a collection
func (sm *SourceManager) AddSource(collectionName, url string, updateInterval time.Duration) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	collection, exists := sm.collections[collectionName]
	if !exists {
		return fmt.Errorf("collection %s not found", collectionName)
	}

	source := ExternalSource{
		URL:            url,
		UpdateInterval: updateInterval,
		LastUpdate:     time.Now(),
	}

	// Add the source to the collection's persistent storage
	if err := collection.AddExternalSource(source); err != nil {
		return err
	}

	sm.sources[collectionName] = append(sm.sources[collectionName], source)

	// Trigger an immediate update
	go sm.updateSource(collectionName, source, collection)

	return nil
}

// RemoveSource removes an external source from a collection
func (sm *SourceManager) RemoveSource(collectionName, url string) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	collection, exists := sm.collections[collectionName]
	if !exists {
		return fmt.Errorf("collection %s not found", collectionName)
	}

	// Remove from collection's persistent storage
	if err := collection.RemoveExternalSource(url); err != nil {
		return err
	}

	// Drop the synced content if an update already ran
	entry := sourceEntryName(collectionName, url)
	if collection.EntryExists(entry) {
		if err := collection.RemoveEntry(entry); err != nil {
			return err
		}
	}

	// Remove from in-memory sources
	sources := sm.sources[collectionName]
	for i, s := range sources {
		if s.URL == url {
			sm.sources[collectionName] = append(sources[:i], sources[i+1:]...)
			break
		}
	}

	return nil
}

// updateSource updates a single source
func (sm *SourceManager) updateSource(collectionName string, source ExternalSource, collection *PersistentKB) {
	xlog.Info("Updating source", "collection", collectionName, "url", source.URL)
	content, err := sources.SourceRouter(source.URL, sm.config)
	if err != nil {
		xlog.Error("Error updating source", "url", source.URL, "error", err)
		return
	}

	// Write the content to a temporary file so it flows through the
	// regular ingestion path.
	tmpFile := filepath.Join(os.TempDir(), sourceEntryName(collectionName, source.URL))
	if err := os.WriteFile(tmpFile, []byte(content), 0644); err != nil {
		xlog.Error("Error creating temporary file", "error", err)
		return
	}
	defer os.Remove(tmpFile)

	if err := collection.StoreOrReplace(tmpFile, map[string]string{"url": source.URL, "type": "source"}); err != nil {
		xlog.Error("Error storing content in collection", "error", err)
		return
	}

	sm.markUpdated(collectionName, source.URL)
	xlog.Info("Source updated", "collection", collectionName, "url", source.URL, "length", len(content))
}

func (sm *SourceManager) markUpdated(collectionName, url string) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	for i, s := range sm.sources[collectionName] {
		if s.URL == url {
			sm.sources[collectionName][i].LastUpdate = time.Now()
			break
		}
	}
}

func sourceEntryName(collectionName, url string) string {
	return fmt.Sprintf("source-%s-%s.txt", collectionName, sanitizeURL(url))
}

// sanitizeURL converts a URL into a filesystem-safe string
func sanitizeURL(url string) string {
	replacer := strings.NewReplacer(
		"://", "-",
		"/", "-",
		"?", "-",
		"&", "-",
		"=", "-",
		"#", "-",
		"@", "-",
		":", "-",
		".", "-",
		"+", "-",
		" ", "-",
	)

	sanitized := replacer.Replace(strings.ToLower(url))

	for strings.Contains(sanitized, "--") {
		sanitized = strings.ReplaceAll(sanitized, "--", "-")
	}

	sanitized = strings.Trim(sanitized, "-")

	// Most filesystems cap names at 255 bytes
	if len(sanitized) > 255 {
		sanitized = sanitized[:255]
	}

	return sanitized
}

// Start starts the background service
func (sm *SourceManager) Start() {
	go func() {
		ticker := time.NewTicker(1 * time.Minute)
		defer ticker.Stop()

		for {
			select {
			case <-sm.done:
				return
			case <-ticker.C:
			}

			sm.mu.RLock()
			for collectionName, sources := range sm.sources {
				collection := sm.collections[collectionName]
				for _, source := range sources {
					if time.Since(source.LastUpdate) >= source.UpdateInterval {
						go sm.updateSource(collectionName, source, collection)
					}
				}
			}
			sm.mu.RUnlock()
		}
	}()
}

// Stop stops the background service. Updates already in flight finish
// on their own.
func (sm *SourceManager) Stop() {
	select {
	case <-sm.done:
	default:
		close(sm.done)
	}
}
