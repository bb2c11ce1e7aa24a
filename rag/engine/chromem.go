package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/esgrag/esgrag/pkg/korean"
	"github.com/esgrag/esgrag/rag/types"
	"github.com/mudler/xlog"
	"github.com/philippgille/chromem-go"
	"github.com/sashabaranov/go-openai"
)

// ChromemDB stores chunks in an embedded chromem-go collection.
// Documents get sequential integer IDs starting at 1, so the ID order
// is the insertion order. The next ID survives restarts through a small
// state file beside the database; deriving it from the document count
// would reuse IDs once entries have been deleted.
type ChromemDB struct {
	collectionName  string
	collection      *chromem.Collection
	index           int
	indexPath       string
	client          *openai.Client
	db              *chromem.DB
	embeddingsModel string
}

func NewChromemDBCollection(collection, path string, openaiClient *openai.Client, embeddingsModel string) (*ChromemDB, error) {
	db, err := chromem.NewPersistentDB(path, true)
	if err != nil {
		return nil, err
	}

	chromemDB := &ChromemDB{
		collectionName:  collection,
		index:           1,
		indexPath:       filepath.Join(path, fmt.Sprintf("ids-%s.json", collection)),
		db:              db,
		client:          openaiClient,
		embeddingsModel: embeddingsModel,
	}

	c, err := db.GetOrCreateCollection(collection, nil, chromemDB.embedding())
	if err != nil {
		return nil, err
	}
	chromemDB.collection = c

	if next, err := loadNextID(chromemDB.indexPath); err == nil && next > 0 {
		chromemDB.index = next
	} else if count := c.Count(); count > 0 {
		chromemDB.index = count + 1
	}

	return chromemDB, nil
}

func loadNextID(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	state := struct {
		Next int `json:"next"`
	}{}
	if err := json.Unmarshal(data, &state); err != nil {
		return 0, err
	}
	return state.Next, nil
}

func (c *ChromemDB) saveNextID() {
	data, _ := json.Marshal(struct {
		Next int `json:"next"`
	}{Next: c.index})
	if err := os.WriteFile(c.indexPath, data, 0644); err != nil {
		xlog.Warn("Failed to persist next document ID", "error", err)
	}
}

func (c *ChromemDB) Count() int {
	return c.collection.Count()
}

func (c *ChromemDB) Reset() error {
	if err := c.db.DeleteCollection(c.collectionName); err != nil {
		return fmt.Errorf("error deleting collection: %v", err)
	}
	collection, err := c.db.GetOrCreateCollection(c.collectionName, nil, c.embedding())
	if err != nil {
		return fmt.Errorf("error creating collection: %v", err)
	}
	c.collection = collection

	c.index = 1
	c.saveNextID()

	return nil
}

func (c *ChromemDB) GetEmbeddingDimensions() (int, error) {
	docs, err := c.Enumerate()
	if err != nil {
		return 0, err
	}
	if len(docs) == 0 {
		return 0, fmt.Errorf("no documents in collection")
	}

	return len(docs[0].Embedding), nil
}

// embedding expands English abbreviations before calling the embeddings
// API. Documents and queries both pass through here, so both sides of a
// similarity comparison see the same rewriting and the same model.
func (c *ChromemDB) embedding() chromem.EmbeddingFunc {
	return chromem.EmbeddingFunc(
		func(ctx context.Context, text string) ([]float32, error) {
			resp, err := c.client.CreateEmbeddings(ctx,
				openai.EmbeddingRequestStrings{
					Input: []string{korean.ExpandAbbreviations(text)},
					Model: openai.EmbeddingModel(c.embeddingsModel),
				},
			)
			if err != nil {
				return []float32{}, fmt.Errorf("error getting embeddings: %v", err)
			}

			if len(resp.Data) == 0 {
				return []float32{}, fmt.Errorf("no response from OpenAI API")
			}

			return resp.Data[0].Embedding, nil
		},
	)
}

func (c *ChromemDB) Store(s string, metadata map[string]string) (types.Result, error) {
	defer func() {
		c.index++
		c.saveNextID()
	}()
	if s == "" {
		return types.Result{}, fmt.Errorf("empty string")
	}

	docID := fmt.Sprint(c.index)

	if err := c.collection.AddDocuments(context.Background(), []chromem.Document{
		{
			Metadata: metadata,
			Content:  s,
			ID:       docID,
		},
	}, runtime.NumCPU()); err != nil {
		return types.Result{}, err
	}

	return types.Result{
		ID:       docID,
		Metadata: metadata,
		Content:  s,
	}, nil
}

func (c *ChromemDB) StoreDocuments(s []string, metadata map[string]string) ([]types.Result, error) {
	defer func() {
		c.index += len(s)
		c.saveNextID()
	}()

	if len(s) == 0 {
		return nil, fmt.Errorf("empty string")
	}

	results := make([]types.Result, len(s))
	documents := make([]chromem.Document, len(s))
	for i, content := range s {
		docID := fmt.Sprint(c.index + i)
		documents[i] = chromem.Document{
			Metadata: metadata,
			Content:  content,
			ID:       docID,
		}
		results[i] = types.Result{
			ID:       docID,
			Metadata: metadata,
			Content:  content,
		}
	}

	if err := c.collection.AddDocuments(context.Background(), documents, runtime.NumCPU()); err != nil {
		return nil, err
	}

	return results, nil
}

func (c *ChromemDB) Delete(where map[string]string, whereDocuments map[string]string, ids ...string) error {
	return c.collection.Delete(context.Background(), where, whereDocuments, ids...)
}

func (c *ChromemDB) GetByID(id string) (types.Result, error) {
	res, err := c.collection.GetByID(context.Background(), id)
	if err != nil {
		return types.Result{}, err
	}

	return types.Result{ID: res.ID, Metadata: res.Metadata, Embedding: res.Embedding, Content: res.Content}, nil
}

// Enumerate walks the ID sequence up to the high-water mark and returns
// every live chunk in insertion order. Gaps left by deletions are
// skipped.
func (c *ChromemDB) Enumerate() ([]types.Result, error) {
	results := []types.Result{}
	for i := 1; i < c.index; i++ {
		doc, err := c.collection.GetByID(context.Background(), fmt.Sprint(i))
		if err != nil {
			continue
		}
		results = append(results, types.Result{
			ID:        doc.ID,
			Metadata:  doc.Metadata,
			Embedding: doc.Embedding,
			Content:   doc.Content,
		})
	}
	return results, nil
}

// Search runs a dense similarity query. The query is expanded with
// domain synonyms first; documents were stored without expansion, so
// only the query side widens. Results carry the raw cosine distance.
func (c *ChromemDB) Search(s string, similarEntries int) ([]types.Result, error) {
	if similarEntries <= 0 {
		return []types.Result{}, nil
	}

	// chromem rejects queries asking for more results than documents.
	n := similarEntries
	if count := c.collection.Count(); n > count {
		n = count
	}
	if n == 0 {
		return []types.Result{}, nil
	}

	chromemResults, err := c.collection.Query(context.Background(), korean.EnhanceQuery(s), n, nil, nil)
	if err != nil {
		return nil, err
	}

	results := make([]types.Result, 0, len(chromemResults))
	for _, r := range chromemResults {
		results = append(results, types.Result{
			ID:       r.ID,
			Metadata: r.Metadata,
			Content:  r.Content,
			Distance: 1 - r.Similarity,
		})
	}

	return results, nil
}
