// Package client is a small HTTP client for the esgrag API, used by
// the end-to-end suite and by external tooling.
package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/esgrag/esgrag/rag/types"
)

// Client is a client for the esgrag API
type Client struct {
	BaseURL string
}

// NewClient creates a new esgrag API client
func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
	}
}

// ChatSource is one citation attached to a chat answer.
type ChatSource struct {
	Index     int    `json:"index"`
	Page      string `json:"page"`
	Section   string `json:"section"`
	ChunkType string `json:"chunk_type"`
	Content   string `json:"content"`
	Keywords  string `json:"keywords"`
	Metrics   string `json:"metrics"`
}

// ChatResponse is a chat answer with its citations.
type ChatResponse struct {
	Answer    string       `json:"answer"`
	Sources   []ChatSource `json:"sources"`
	SessionID string       `json:"session_id"`
}

// ExternalSource is a URL synced into a collection on a schedule.
type ExternalSource struct {
	URL            string        `json:"url"`
	UpdateInterval time.Duration `json:"update_interval"`
	LastUpdate     time.Time     `json:"last_update"`
}

// Statistics summarizes a collection's corpus.
type Statistics struct {
	TotalFiles         int            `json:"total_files"`
	TotalChunks        int            `json:"total_chunks"`
	Sections           map[string]int `json:"sections"`
	ChunkTypes         map[string]int `json:"chunk_types"`
	Pages              int            `json:"pages"`
	EmbeddingDimension int            `json:"embedding_dimension,omitempty"`
}

func apiError(resp *http.Response, action string) error {
	var e struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&e); err == nil && e.Error != "" {
		return fmt.Errorf("%s: %s", action, e.Error)
	}
	return fmt.Errorf("%s: status %d", action, resp.StatusCode)
}

func (c *Client) postJSON(url string, payload interface{}, expect int) (*http.Response, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	resp, err := http.Post(url, "application/json", bytes.NewBuffer(data))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != expect {
		defer resp.Body.Close()
		return nil, apiError(resp, "request failed")
	}
	return resp, nil
}

func (c *Client) deleteJSON(url string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequest(http.MethodDelete, url, bytes.NewBuffer(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return apiError(resp, "request failed")
	}
	return nil
}

// CreateCollection creates a new collection
func (c *Client) CreateCollection(name string) error {
	url := fmt.Sprintf("%s/api/collections", c.BaseURL)

	type request struct {
		Name string `json:"name"`
	}

	resp, err := c.postJSON(url, request{Name: name}, http.StatusCreated)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

// ListCollections lists all collections
func (c *Client) ListCollections() ([]string, error) {
	url := fmt.Sprintf("%s/api/collections", c.BaseURL)

	resp, err := http.Get(url)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, apiError(resp, "failed to list collections")
	}

	var collections []string
	if err := json.NewDecoder(resp.Body).Decode(&collections); err != nil {
		return nil, err
	}
	return collections, nil
}

// ListEntries lists the entries of a collection
func (c *Client) ListEntries(collection string) ([]string, error) {
	url := fmt.Sprintf("%s/api/collections/%s/entries", c.BaseURL, collection)

	resp, err := http.Get(url)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, apiError(resp, "failed to list entries")
	}

	var entries []string
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// EntryContent returns the stored chunks of an entry
func (c *Client) EntryContent(collection, entry string) ([]types.Result, error) {
	url := fmt.Sprintf("%s/api/collections/%s/entry/content?entry=%s", c.BaseURL, collection, entry)

	resp, err := http.Get(url)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, apiError(resp, "failed to read entry content")
	}

	var results []types.Result
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return nil, err
	}
	return results, nil
}

// Search searches a collection
func (c *Client) Search(collection, query string, maxResults int) ([]types.Result, error) {
	return c.SearchWithFilter(collection, query, maxResults, nil)
}

// SearchWithFilter searches a collection keeping only results whose
// metadata matches the filter
func (c *Client) SearchWithFilter(collection, query string, maxResults int, filter map[string]string) ([]types.Result, error) {
	url := fmt.Sprintf("%s/api/collections/%s/search", c.BaseURL, collection)

	type request struct {
		Query      string            `json:"query"`
		MaxResults int               `json:"max_results"`
		Filter     map[string]string `json:"filter,omitempty"`
	}

	resp, err := c.postJSON(url, request{Query: query, MaxResults: maxResults, Filter: filter}, http.StatusOK)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var results []types.Result
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return nil, err
	}
	return results, nil
}

// Chat sends a message and returns the grounded answer. An empty
// session ID starts a new session; reuse the returned one to continue
// it.
func (c *Client) Chat(collection, message, sessionID string) (*ChatResponse, error) {
	url := fmt.Sprintf("%s/api/collections/%s/chat", c.BaseURL, collection)

	type request struct {
		Message   string `json:"message"`
		SessionID string `json:"session_id,omitempty"`
	}

	resp, err := c.postJSON(url, request{Message: message, SessionID: sessionID}, http.StatusOK)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	response := &ChatResponse{}
	if err := json.NewDecoder(resp.Body).Decode(response); err != nil {
		return nil, err
	}
	return response, nil
}

// Statistics returns a collection's corpus statistics
func (c *Client) Statistics(collection string) (*Statistics, error) {
	url := fmt.Sprintf("%s/api/collections/%s/statistics", c.BaseURL, collection)

	resp, err := http.Get(url)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, apiError(resp, "failed to get statistics")
	}

	stats := &Statistics{}
	if err := json.NewDecoder(resp.Body).Decode(stats); err != nil {
		return nil, err
	}
	return stats, nil
}

// Store uploads a file to a collection
func (c *Client) Store(collection, filePath string) error {
	url := fmt.Sprintf("%s/api/collections/%s/upload", c.BaseURL, collection)

	file, err := os.Open(filePath)
	if err != nil {
		return err
	}
	defer file.Close()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("file", filepath.Base(filePath))
	if err != nil {
		return err
	}

	if _, err := io.Copy(part, file); err != nil {
		return err
	}

	if err := writer.Close(); err != nil {
		return err
	}

	req, err := http.NewRequest(http.MethodPost, url, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return apiError(resp, "failed to upload file")
	}
	return nil
}

// RemoveEntry removes an entry from a collection
func (c *Client) RemoveEntry(collection, entry string) error {
	url := fmt.Sprintf("%s/api/collections/%s/entry/delete", c.BaseURL, collection)

	type request struct {
		Entry string `json:"entry"`
	}

	return c.deleteJSON(url, request{Entry: entry})
}

// Reset removes every entry from a collection
func (c *Client) Reset(collection string) error {
	url := fmt.Sprintf("%s/api/collections/%s/reset", c.BaseURL, collection)

	resp, err := c.postJSON(url, struct{}{}, http.StatusOK)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

// AddSource registers an external source on a collection
func (c *Client) AddSource(collection, sourceURL, updateInterval string) error {
	url := fmt.Sprintf("%s/api/collections/%s/sources", c.BaseURL, collection)

	type request struct {
		URL            string `json:"url"`
		UpdateInterval string `json:"update_interval,omitempty"`
	}

	resp, err := c.postJSON(url, request{URL: sourceURL, UpdateInterval: updateInterval}, http.StatusOK)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

// ListSources returns the external sources registered on a collection
func (c *Client) ListSources(collection string) ([]ExternalSource, error) {
	url := fmt.Sprintf("%s/api/collections/%s/sources", c.BaseURL, collection)

	resp, err := http.Get(url)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, apiError(resp, "failed to list sources")
	}

	var sources []ExternalSource
	if err := json.NewDecoder(resp.Body).Decode(&sources); err != nil {
		return nil, err
	}
	return sources, nil
}

// RemoveSource unregisters an external source from a collection
func (c *Client) RemoveSource(collection, sourceURL string) error {
	url := fmt.Sprintf("%s/api/collections/%s/sources", c.BaseURL, collection)

	type request struct {
		URL string `json:"url"`
	}

	return c.deleteJSON(url, request{URL: sourceURL})
}
