package rag

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/esgrag/esgrag/rag/engine"
	"github.com/esgrag/esgrag/rag/types"
	"github.com/mudler/xlog"
	"github.com/sashabaranov/go-openai"
)

const collectionPrefix = "collection-"

// NewPersistentChromeCollection creates a new persistent knowledge base collection using the ChromemDB engine
func NewPersistentChromeCollection(llmClient *openai.Client, collectionName, dbPath, filePath, embeddingModel string, maxChunkSize int, weights types.Weights, engineOpts ...engine.Option) *PersistentKB {
	chromemDB, err := engine.NewChromemDBCollection(collectionName, dbPath, llmClient, embeddingModel)
	if err != nil {
		xlog.Error("Failed to create ChromemDB", "error", err)
		os.Exit(1)
	}

	persistentKB, err := NewPersistentCollectionKB(
		filepath.Join(dbPath, fmt.Sprintf("%s%s.json", collectionPrefix, collectionName)),
		filePath,
		chromemDB,
		weights,
		maxChunkSize,
		engineOpts...)
	if err != nil {
		xlog.Error("Failed to create PersistentKB", "error", err)
		os.Exit(1)
	}

	return persistentKB
}

// NewPersistentPostgresCollection creates a new persistent knowledge base collection using the PostgresDB engine
func NewPersistentPostgresCollection(llmClient *openai.Client, collectionName, databaseURL, dbPath, filePath, embeddingModel string, maxChunkSize int, weights types.Weights, engineOpts ...engine.Option) *PersistentKB {
	pgDB, err := engine.NewPostgresDBCollection(collectionName, databaseURL, llmClient, embeddingModel)
	if err != nil {
		xlog.Error("Failed to create PostgresDB", "error", err)
		os.Exit(1)
	}

	persistentKB, err := NewPersistentCollectionKB(
		filepath.Join(dbPath, fmt.Sprintf("%s%s.json", collectionPrefix, collectionName)),
		filePath,
		pgDB,
		weights,
		maxChunkSize,
		engineOpts...)
	if err != nil {
		xlog.Error("Failed to create PersistentKB", "error", err)
		os.Exit(1)
	}

	return persistentKB
}

// ListAllCollections lists all collections in the database
func ListAllCollections(dbPath string) []string {
	collections := []string{}
	files, err := os.ReadDir(dbPath)
	if err != nil {
		return collections
	}

	for _, f := range files {
		if strings.HasPrefix(f.Name(), collectionPrefix) {
			collections = append(collections, strings.TrimPrefix(strings.TrimSuffix(f.Name(), ".json"), collectionPrefix))
		}
	}

	return collections
}
