package main

import (
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/esgrag/esgrag/rag"
	"github.com/esgrag/esgrag/rag/engine"
	"github.com/esgrag/esgrag/rag/sources"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/sashabaranov/go-openai"
)

type collectionList map[string]*rag.PersistentKB

var collections = collectionList{}

func startAPI(listenAddress string) {
	e := echo.New()
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())

	config := openai.DefaultConfig(openAIKey)
	if openAIBaseURL != "" {
		config.BaseURL = openAIBaseURL
	}
	openAIClient := openai.NewClientWithConfig(config)

	chatEngine := rag.NewChatEngine(openAIClient, llmModel, chatMaxTokens, float32(chatTemperature))
	sourceManager := rag.NewSourceManager(&sources.Config{GitPrivateKey: gitPrivateKey})

	// Reopen collections persisted by earlier runs
	for _, name := range rag.ListAllCollections(collectionDBPath) {
		collections[name] = newCollection(name, openAIClient)
		sourceManager.RegisterCollection(name, collections[name])
	}
	sourceManager.Start()

	registerStaticHandler(e)

	// API routes for managing collections
	e.POST("/api/collections", createCollection(collections, openAIClient, sourceManager))
	e.GET("/api/collections", listCollections)
	e.POST("/api/collections/:name/upload", uploadFile(collections))
	e.GET("/api/collections/:name/entries", listFiles(collections))
	e.GET("/api/collections/:name/entry/content", entryContent(collections))
	e.POST("/api/collections/:name/search", search(collections))
	e.POST("/api/collections/:name/reset", reset(collections))
	e.DELETE("/api/collections/:name/entry/delete", deleteEntry(collections))
	e.GET("/api/collections/:name/statistics", statistics(collections))
	e.POST("/api/collections/:name/chat", chat(collections, chatEngine))
	e.POST("/api/collections/:name/sources", addSource(sourceManager))
	e.GET("/api/collections/:name/sources", listSources(collections))
	e.DELETE("/api/collections/:name/sources", removeSource(sourceManager))

	e.Logger.Fatal(e.Start(listenAddress))
}

// newCollection builds a collection on the engine selected by
// VECTOR_ENGINE. Each collection keeps its assets in its own
// subdirectory.
func newCollection(name string, client *openai.Client) *rag.PersistentKB {
	assetDir := filepath.Join(fileAssets, name)
	switch vectorEngine {
	case "postgres":
		return rag.NewPersistentPostgresCollection(client, name, databaseURL, collectionDBPath, assetDir, embeddingModel, maxChunkSize, searchWeights, engineOpts...)
	default:
		return rag.NewPersistentChromeCollection(client, name, collectionDBPath, assetDir, embeddingModel, maxChunkSize, searchWeights, engineOpts...)
	}
}

func errorMessage(message string) map[string]string {
	return map[string]string{"error": message}
}

// createCollection handles creating a new collection
func createCollection(collections collectionList, client *openai.Client, sourceManager *rag.SourceManager) func(c echo.Context) error {
	return func(c echo.Context) error {
		type request struct {
			Name string `json:"name"`
		}

		r := new(request)
		if err := c.Bind(r); err != nil {
			return c.JSON(http.StatusBadRequest, errorMessage("Invalid request"))
		}
		if r.Name == "" {
			return c.JSON(http.StatusBadRequest, errorMessage("Collection name is required"))
		}

		if _, exists := collections[r.Name]; exists {
			return c.JSON(http.StatusConflict, errorMessage("Collection already exists"))
		}

		collections[r.Name] = newCollection(r.Name, client)
		sourceManager.RegisterCollection(r.Name, collections[r.Name])

		return c.JSON(http.StatusCreated, map[string]interface{}{
			"name":    r.Name,
			"entries": collections[r.Name].ListEntries(),
		})
	}
}

// listCollections returns all collections
func listCollections(c echo.Context) error {
	return c.JSON(http.StatusOK, rag.ListAllCollections(collectionDBPath))
}

// uploadFile handles uploading files to a collection
func uploadFile(collections collectionList) func(c echo.Context) error {
	return func(c echo.Context) error {
		name := c.Param("name")
		collection, exists := collections[name]
		if !exists {
			return c.JSON(http.StatusNotFound, errorMessage("Collection not found"))
		}

		file, err := c.FormFile("file")
		if err != nil {
			return c.JSON(http.StatusBadRequest, errorMessage("Failed to read file: "+err.Error()))
		}

		f, err := file.Open()
		if err != nil {
			return c.JSON(http.StatusBadRequest, errorMessage("Failed to open file: "+err.Error()))
		}
		defer f.Close()

		// Stage the upload in a temporary directory, Store copies it
		// into the collection's asset dir.
		tmpDir, err := os.MkdirTemp("", "esgrag-upload-*")
		if err != nil {
			return c.JSON(http.StatusInternalServerError, errorMessage("Failed to create temporary directory"))
		}
		defer os.RemoveAll(tmpDir)

		filePath := filepath.Join(tmpDir, filepath.Base(file.Filename))
		out, err := os.Create(filePath)
		if err != nil {
			return c.JSON(http.StatusInternalServerError, errorMessage("Failed to create file"))
		}

		if _, err := io.Copy(out, f); err != nil {
			out.Close()
			return c.JSON(http.StatusInternalServerError, errorMessage("Failed to copy file"))
		}
		out.Close()

		if err := collection.Store(filePath, map[string]string{}); err != nil {
			return c.JSON(http.StatusInternalServerError, errorMessage("Failed to store file: "+err.Error()))
		}

		return c.JSON(http.StatusOK, map[string]interface{}{
			"name":    name,
			"entries": collection.ListEntries(),
		})
	}
}

func listFiles(collections collectionList) func(c echo.Context) error {
	return func(c echo.Context) error {
		name := c.Param("name")
		collection, exists := collections[name]
		if !exists {
			return c.JSON(http.StatusNotFound, errorMessage("Collection not found"))
		}
		return c.JSON(http.StatusOK, collection.ListEntries())
	}
}

// entryContent returns the stored chunks of a single entry
func entryContent(collections collectionList) func(c echo.Context) error {
	return func(c echo.Context) error {
		name := c.Param("name")
		collection, exists := collections[name]
		if !exists {
			return c.JSON(http.StatusNotFound, errorMessage("Collection not found"))
		}

		entry := c.QueryParam("entry")
		if entry == "" {
			return c.JSON(http.StatusBadRequest, errorMessage("Entry name is required"))
		}
		if !collection.EntryExists(entry) {
			return c.JSON(http.StatusNotFound, errorMessage("Entry not found"))
		}

		results, err := collection.GetEntryContent(entry)
		if err != nil {
			return c.JSON(http.StatusInternalServerError, errorMessage("Failed to read entry content"))
		}
		return c.JSON(http.StatusOK, results)
	}
}

func search(collections collectionList) func(c echo.Context) error {
	return func(c echo.Context) error {
		name := c.Param("name")
		collection, exists := collections[name]
		if !exists {
			return c.JSON(http.StatusNotFound, errorMessage("Collection not found"))
		}

		type request struct {
			Query      string            `json:"query"`
			MaxResults int               `json:"max_results"`
			Filter     map[string]string `json:"filter"`
		}

		r := new(request)
		if err := c.Bind(r); err != nil {
			return c.JSON(http.StatusBadRequest, errorMessage("Invalid request"))
		}

		if r.MaxResults == 0 {
			r.MaxResults = 5
		}

		var err error
		var results interface{}
		if len(r.Filter) > 0 {
			results, err = collection.SearchWithFilter(r.Query, r.MaxResults, r.Filter)
		} else {
			results, err = collection.Search(r.Query, r.MaxResults)
		}
		if err != nil {
			if errors.Is(err, engine.ErrNotReady) {
				return c.JSON(http.StatusBadRequest, errorMessage("Collection is empty"))
			}
			return c.JSON(http.StatusInternalServerError, errorMessage("Failed to search collection"))
		}

		return c.JSON(http.StatusOK, results)
	}
}

func reset(collections collectionList) func(c echo.Context) error {
	return func(c echo.Context) error {
		name := c.Param("name")
		collection, exists := collections[name]
		if !exists {
			return c.JSON(http.StatusNotFound, errorMessage("Collection not found"))
		}

		if err := collection.Reset(); err != nil {
			return c.JSON(http.StatusInternalServerError, errorMessage("Failed to reset collection"))
		}
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	}
}

func deleteEntry(collections collectionList) func(c echo.Context) error {
	return func(c echo.Context) error {
		name := c.Param("name")
		collection, exists := collections[name]
		if !exists {
			return c.JSON(http.StatusNotFound, errorMessage("Collection not found"))
		}

		type request struct {
			Entry string `json:"entry"`
		}

		r := new(request)
		if err := c.Bind(r); err != nil {
			return c.JSON(http.StatusBadRequest, errorMessage("Invalid request"))
		}

		if err := collection.RemoveEntry(r.Entry); err != nil {
			return c.JSON(http.StatusInternalServerError, errorMessage("Failed to remove entry"))
		}

		return c.JSON(http.StatusOK, collection.ListEntries())
	}
}

// statistics summarizes a collection's corpus
func statistics(collections collectionList) func(c echo.Context) error {
	return func(c echo.Context) error {
		name := c.Param("name")
		collection, exists := collections[name]
		if !exists {
			return c.JSON(http.StatusNotFound, errorMessage("Collection not found"))
		}

		stats, err := collection.Statistics()
		if err != nil {
			return c.JSON(http.StatusInternalServerError, errorMessage("Failed to compute statistics"))
		}
		return c.JSON(http.StatusOK, stats)
	}
}

// chat answers a question grounded in the collection's documents
func chat(collections collectionList, chatEngine *rag.ChatEngine) func(c echo.Context) error {
	return func(c echo.Context) error {
		name := c.Param("name")
		collection, exists := collections[name]
		if !exists {
			return c.JSON(http.StatusNotFound, errorMessage("Collection not found"))
		}

		type request struct {
			Message   string `json:"message"`
			SessionID string `json:"session_id"`
		}

		r := new(request)
		if err := c.Bind(r); err != nil {
			return c.JSON(http.StatusBadRequest, errorMessage("Invalid request"))
		}
		if r.Message == "" {
			return c.JSON(http.StatusBadRequest, errorMessage("Message is required"))
		}

		response, err := chatEngine.Chat(c.Request().Context(), collection, r.Message, r.SessionID)
		if err != nil {
			return c.JSON(http.StatusInternalServerError, errorMessage("Failed to generate answer: "+err.Error()))
		}

		return c.JSON(http.StatusOK, response)
	}
}

// addSource registers an external source on a collection
func addSource(sourceManager *rag.SourceManager) func(c echo.Context) error {
	return func(c echo.Context) error {
		name := c.Param("name")

		type request struct {
			URL            string `json:"url"`
			UpdateInterval string `json:"update_interval"`
		}

		r := new(request)
		if err := c.Bind(r); err != nil {
			return c.JSON(http.StatusBadRequest, errorMessage("Invalid request"))
		}
		if r.URL == "" {
			return c.JSON(http.StatusBadRequest, errorMessage("URL is required"))
		}

		interval := time.Hour
		if r.UpdateInterval != "" {
			parsed, err := time.ParseDuration(r.UpdateInterval)
			if err != nil {
				return c.JSON(http.StatusBadRequest, errorMessage("Invalid update interval"))
			}
			interval = parsed
		}

		if err := sourceManager.AddSource(name, r.URL, interval); err != nil {
			return c.JSON(http.StatusInternalServerError, errorMessage("Failed to add source: "+err.Error()))
		}

		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	}
}

// listSources returns the external sources registered on a collection
func listSources(collections collectionList) func(c echo.Context) error {
	return func(c echo.Context) error {
		name := c.Param("name")
		collection, exists := collections[name]
		if !exists {
			return c.JSON(http.StatusNotFound, errorMessage("Collection not found"))
		}
		return c.JSON(http.StatusOK, collection.GetExternalSources())
	}
}

// removeSource unregisters an external source from a collection
func removeSource(sourceManager *rag.SourceManager) func(c echo.Context) error {
	return func(c echo.Context) error {
		name := c.Param("name")

		type request struct {
			URL string `json:"url"`
		}

		r := new(request)
		if err := c.Bind(r); err != nil {
			return c.JSON(http.StatusBadRequest, errorMessage("Invalid request"))
		}

		if err := sourceManager.RemoveSource(name, r.URL); err != nil {
			return c.JSON(http.StatusInternalServerError, errorMessage("Failed to remove source: "+err.Error()))
		}

		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	}
}
