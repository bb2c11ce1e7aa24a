package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/esgrag/esgrag/pkg/korean"
	"github.com/esgrag/esgrag/rag/types"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mudler/xlog"
	"github.com/sashabaranov/go-openai"
)

// PostgresDB stores chunks in a pgvector-backed table. Row IDs come
// from a SERIAL column, so like the embedded store the ID order is the
// insertion order.
type PostgresDB struct {
	pool            *pgxpool.Pool
	collectionName  string
	tableName       string
	client          *openai.Client
	embeddingsModel string
	embeddingDims   int
}

// NewPostgresDBCollection creates a new PostgreSQL-based collection.
func NewPostgresDBCollection(collectionName, databaseURL string, openaiClient *openai.Client, embeddingsModel string) (*PostgresDB, error) {
	if databaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required for PostgreSQL engine")
	}

	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(context.Background(), config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// The vector column needs fixed dimensions, probe the model once.
	testEmbedding, err := getTestEmbedding(openaiClient, embeddingsModel)
	if err != nil {
		return nil, fmt.Errorf("failed to get test embedding: %w", err)
	}

	pg := &PostgresDB{
		pool:            pool,
		collectionName:  collectionName,
		tableName:       sanitizeTableName(collectionName),
		client:          openaiClient,
		embeddingsModel: embeddingsModel,
		embeddingDims:   len(testEmbedding),
	}

	if err := pg.setupDatabase(); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to setup database: %w", err)
	}

	// Embeddings made by a different model live in a different space
	// and must not be compared against new queries.
	if err := pg.checkAndRecalculateEmbeddings(); err != nil {
		xlog.Warn("Failed to check/recalculate embeddings", "error", err)
	}

	return pg, nil
}

func sanitizeTableName(name string) string {
	name = strings.ReplaceAll(name, "-", "_")
	name = strings.ReplaceAll(name, ".", "_")
	name = strings.ReplaceAll(name, " ", "_")
	if len(name) > 0 && (name[0] < 'a' || name[0] > 'z') && (name[0] < 'A' || name[0] > 'Z') {
		name = "col_" + name
	}
	return "documents_" + name
}

func getTestEmbedding(client *openai.Client, model string) ([]float32, error) {
	resp, err := client.CreateEmbeddings(context.Background(),
		openai.EmbeddingRequestStrings{
			Input: []string{"test"},
			Model: openai.EmbeddingModel(model),
		},
	)
	if err != nil {
		return nil, err
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("no embedding data returned")
	}
	return resp.Data[0].Embedding, nil
}

func (p *PostgresDB) setupDatabase() error {
	ctx := context.Background()

	_, err := p.pool.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector")
	if err != nil {
		return fmt.Errorf("failed to enable vector extension: %w", err)
	}

	_, err = p.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS collection_config (
			collection_name TEXT PRIMARY KEY,
			embedding_model TEXT NOT NULL,
			embedding_dimensions INTEGER NOT NULL,
			created_at TIMESTAMP DEFAULT NOW(),
			updated_at TIMESTAMP DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create collection_config table: %w", err)
	}

	_, err = p.pool.Exec(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id SERIAL PRIMARY KEY,
			content TEXT NOT NULL,
			metadata JSONB,
			embedding VECTOR(%d)
		)
	`, p.tableName, p.embeddingDims))
	if err != nil {
		return fmt.Errorf("failed to create documents table: %w", err)
	}

	_, err = p.pool.Exec(ctx, fmt.Sprintf(`
		CREATE INDEX IF NOT EXISTS idx_%s_embedding ON %s
		USING hnsw(embedding vector_cosine_ops)
	`, p.tableName, p.tableName))
	if err != nil {
		xlog.Warn("Failed to create HNSW index", "error", err)
	}

	return nil
}

func (p *PostgresDB) checkAndRecalculateEmbeddings() error {
	ctx := context.Background()

	var storedModel string
	var storedDims int
	err := p.pool.QueryRow(ctx, `
		SELECT embedding_model, embedding_dimensions
		FROM collection_config
		WHERE collection_name = $1
	`, p.collectionName).Scan(&storedModel, &storedDims)

	if err == pgx.ErrNoRows {
		_, err = p.pool.Exec(ctx, `
			INSERT INTO collection_config (collection_name, embedding_model, embedding_dimensions)
			VALUES ($1, $2, $3)
		`, p.collectionName, p.embeddingsModel, p.embeddingDims)
		return err
	}
	if err != nil {
		return fmt.Errorf("failed to query collection config: %w", err)
	}

	if storedModel == p.embeddingsModel && storedDims == p.embeddingDims {
		return nil
	}

	xlog.Info("Embedding model changed, recalculating embeddings",
		"collection", p.collectionName,
		"old_model", storedModel,
		"new_model", p.embeddingsModel,
		"old_dims", storedDims,
		"new_dims", p.embeddingDims)

	rows, err := p.pool.Query(ctx, fmt.Sprintf(`
		SELECT id, content FROM %s WHERE embedding IS NOT NULL ORDER BY id
	`, p.tableName))
	if err != nil {
		return fmt.Errorf("failed to query documents: %w", err)
	}
	defer rows.Close()

	var docIDs []int
	var texts []string
	for rows.Next() {
		var id int
		var text string
		if err := rows.Scan(&id, &text); err != nil {
			continue
		}
		docIDs = append(docIDs, id)
		texts = append(texts, text)
	}

	batchSize := 10
	for i := 0; i < len(texts); i += batchSize {
		end := i + batchSize
		if end > len(texts) {
			end = len(texts)
		}

		embeddings, err := p.embedTexts(ctx, texts[i:end])
		if err != nil {
			xlog.Warn("Failed to generate embeddings batch", "error", err)
			continue
		}

		batchIDs := docIDs[i:end]
		for j, embedding := range embeddings {
			_, err = p.pool.Exec(ctx, fmt.Sprintf(`
				UPDATE %s SET embedding = $1::vector WHERE id = $2
			`, p.tableName), formatVector(embedding), batchIDs[j])
			if err != nil {
				xlog.Warn("Failed to update embedding", "id", batchIDs[j], "error", err)
			}
		}
	}

	_, err = p.pool.Exec(ctx, `
		UPDATE collection_config
		SET embedding_model = $1, embedding_dimensions = $2, updated_at = NOW()
		WHERE collection_name = $3
	`, p.embeddingsModel, p.embeddingDims, p.collectionName)
	if err != nil {
		return fmt.Errorf("failed to update collection config: %w", err)
	}

	return nil
}

func formatVector(vec []float32) string {
	parts := make([]string, len(vec))
	for i, v := range vec {
		parts[i] = fmt.Sprintf("%.6f", v)
	}
	return "[" + strings.Join(parts, ",") + "]"
}

// embedTexts embeds a batch with the abbreviation rewrite applied, the
// same transform the queries get. The stored content stays untouched.
func (p *PostgresDB) embedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	input := make([]string, len(texts))
	for i, t := range texts {
		input[i] = korean.ExpandAbbreviations(t)
	}

	resp, err := p.client.CreateEmbeddings(ctx,
		openai.EmbeddingRequestStrings{
			Input: input,
			Model: openai.EmbeddingModel(p.embeddingsModel),
		},
	)
	if err != nil {
		return nil, fmt.Errorf("error getting embeddings: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("embedding count mismatch: expected %d, got %d", len(texts), len(resp.Data))
	}

	embeddings := make([][]float32, len(resp.Data))
	for i, d := range resp.Data {
		embeddings[i] = d.Embedding
	}
	return embeddings, nil
}

func (p *PostgresDB) Count() int {
	ctx := context.Background()
	var count int
	err := p.pool.QueryRow(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s", p.tableName)).Scan(&count)
	if err != nil {
		xlog.Error("Failed to count documents", err)
		return 0
	}
	return count
}

func (p *PostgresDB) Reset() error {
	ctx := context.Background()

	_, err := p.pool.Exec(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s CASCADE", p.tableName))
	if err != nil {
		return fmt.Errorf("failed to drop table: %w", err)
	}

	_, err = p.pool.Exec(ctx, "DELETE FROM collection_config WHERE collection_name = $1", p.collectionName)
	if err != nil {
		return fmt.Errorf("failed to delete collection config: %w", err)
	}

	return p.setupDatabase()
}

func (p *PostgresDB) GetEmbeddingDimensions() (int, error) {
	ctx := context.Background()

	var dims int
	err := p.pool.QueryRow(ctx, `
		SELECT embedding_dimensions
		FROM collection_config
		WHERE collection_name = $1
	`, p.collectionName).Scan(&dims)
	if err == nil {
		return dims, nil
	}

	var embeddingStr string
	err = p.pool.QueryRow(ctx, fmt.Sprintf(`
		SELECT embedding::text FROM %s WHERE embedding IS NOT NULL LIMIT 1
	`, p.tableName)).Scan(&embeddingStr)
	if err != nil {
		return 0, fmt.Errorf("no documents with embeddings found")
	}

	embeddingStr = strings.Trim(embeddingStr, "[]")
	return len(strings.Split(embeddingStr, ",")), nil
}

func (p *PostgresDB) Store(s string, metadata map[string]string) (types.Result, error) {
	results, err := p.StoreDocuments([]string{s}, metadata)
	if err != nil {
		return types.Result{}, err
	}
	if len(results) == 0 {
		return types.Result{}, fmt.Errorf("no result returned")
	}
	return results[0], nil
}

func (p *PostgresDB) StoreDocuments(s []string, metadata map[string]string) ([]types.Result, error) {
	if len(s) == 0 {
		return nil, fmt.Errorf("empty string array")
	}

	ctx := context.Background()

	embeddings, err := p.embedTexts(ctx, s)
	if err != nil {
		return nil, err
	}

	metadataJSON, err := json.Marshal(metadata)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal metadata: %w", err)
	}

	results := make([]types.Result, 0, len(s))
	for i, content := range s {
		var id int
		err = p.pool.QueryRow(ctx, fmt.Sprintf(`
			INSERT INTO %s (content, metadata, embedding)
			VALUES ($1, $2::jsonb, $3::vector)
			RETURNING id
		`, p.tableName),
			content, string(metadataJSON), formatVector(embeddings[i])).Scan(&id)
		if err != nil {
			return nil, fmt.Errorf("failed to insert document: %w", err)
		}

		results = append(results, types.Result{
			ID:       strconv.Itoa(id),
			Metadata: metadata,
			Content:  content,
		})
	}

	return results, nil
}

func (p *PostgresDB) Delete(where map[string]string, whereDocuments map[string]string, ids ...string) error {
	ctx := context.Background()

	if len(ids) > 0 {
		idInts := make([]int, 0, len(ids))
		for _, idStr := range ids {
			if idInt, err := strconv.Atoi(idStr); err == nil {
				idInts = append(idInts, idInt)
			}
		}
		if len(idInts) > 0 {
			query := fmt.Sprintf("DELETE FROM %s WHERE id = ANY($1)", p.tableName)
			_, err := p.pool.Exec(ctx, query, idInts)
			return err
		}
		return nil
	}

	if len(where) > 0 {
		conditions := []string{}
		args := []interface{}{}
		argIdx := 1
		for k, v := range where {
			conditions = append(conditions, fmt.Sprintf("metadata->>$%d = $%d", argIdx, argIdx+1))
			args = append(args, k, v)
			argIdx += 2
		}
		query := fmt.Sprintf("DELETE FROM %s WHERE %s", p.tableName, strings.Join(conditions, " AND "))
		_, err := p.pool.Exec(ctx, query, args...)
		return err
	}

	return nil
}

func (p *PostgresDB) GetByID(id string) (types.Result, error) {
	ctx := context.Background()

	var result types.Result
	var metadataJSON []byte

	err := p.pool.QueryRow(ctx, fmt.Sprintf(`
		SELECT id::text, content, metadata
		FROM %s WHERE id = $1
	`, p.tableName), id).Scan(&result.ID, &result.Content, &metadataJSON)
	if err != nil {
		return types.Result{}, fmt.Errorf("failed to get document: %w", err)
	}

	result.Metadata = parseMetadata(metadataJSON)

	return result, nil
}

// Enumerate returns every stored chunk ordered by ID, which is the
// insertion order of the SERIAL column.
func (p *PostgresDB) Enumerate() ([]types.Result, error) {
	ctx := context.Background()

	rows, err := p.pool.Query(ctx, fmt.Sprintf(`
		SELECT id::text, content, metadata FROM %s ORDER BY id
	`, p.tableName))
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate documents: %w", err)
	}
	defer rows.Close()

	results := []types.Result{}
	for rows.Next() {
		var r types.Result
		var metadataJSON []byte
		if err := rows.Scan(&r.ID, &r.Content, &metadataJSON); err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		r.Metadata = parseMetadata(metadataJSON)
		results = append(results, r)
	}

	return results, rows.Err()
}

// Search embeds the synonym-enhanced query and returns the closest
// chunks by cosine distance.
func (p *PostgresDB) Search(s string, similarEntries int) ([]types.Result, error) {
	if similarEntries <= 0 {
		return []types.Result{}, nil
	}

	ctx := context.Background()

	embeddings, err := p.embedTexts(ctx, []string{korean.EnhanceQuery(s)})
	if err != nil {
		return nil, fmt.Errorf("failed to get query embedding: %w", err)
	}
	queryEmbeddingStr := formatVector(embeddings[0])

	rows, err := p.pool.Query(ctx, fmt.Sprintf(`
		SELECT
			id::text,
			content,
			metadata,
			(embedding <=> $1::vector) as distance
		FROM %s
		WHERE embedding IS NOT NULL
		ORDER BY embedding <=> $1::vector
		LIMIT $2
	`, p.tableName), queryEmbeddingStr, similarEntries)
	if err != nil {
		return nil, fmt.Errorf("failed to execute search: %w", err)
	}
	defer rows.Close()

	results := []types.Result{}
	for rows.Next() {
		var r types.Result
		var metadataJSON []byte

		if err := rows.Scan(&r.ID, &r.Content, &metadataJSON, &r.Distance); err != nil {
			continue
		}
		r.Metadata = parseMetadata(metadataJSON)

		results = append(results, r)
	}

	return results, rows.Err()
}

func parseMetadata(metadataJSON []byte) map[string]string {
	metadata := map[string]string{}
	if len(metadataJSON) > 0 {
		if err := json.Unmarshal(metadataJSON, &metadata); err != nil {
			return map[string]string{}
		}
	}
	return metadata
}
