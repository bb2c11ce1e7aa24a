package main

import (
	"os"
	"strconv"

	"github.com/esgrag/esgrag/rag/engine"
	"github.com/esgrag/esgrag/rag/types"
	"github.com/mudler/xlog"
)

var (
	listenAddress    = envOr("LISTENING_ADDRESS", ":8080")
	openAIKey        = os.Getenv("OPENAI_API_KEY")
	openAIBaseURL    = os.Getenv("OPENAI_BASE_URL")
	embeddingModel   = envOr("EMBEDDING_MODEL", "text-embedding-3-small")
	llmModel         = envOr("LLM_MODEL", "gpt-4o-mini")
	vectorEngine     = envOr("VECTOR_ENGINE", "chromem")
	databaseURL      = os.Getenv("DATABASE_URL")
	collectionDBPath = envOr("COLLECTION_DB_PATH", "db")
	fileAssets       = envOr("FILE_ASSETS", "assets")
	gitPrivateKey    = os.Getenv("GIT_PRIVATE_KEY")

	maxChunkSize        = envInt("MAX_CHUNK_SIZE", 1200)
	denseWeight         = envFloat("HYBRID_DENSE_WEIGHT", types.DefaultDenseWeight)
	candidateMultiplier = envInt("HYBRID_CANDIDATE_MULTIPLIER", engine.DefaultCandidateMultiplier)
	searchCacheSize     = envInt("HYBRID_CACHE_SIZE", 0)
	chatMaxTokens       = envInt("CHAT_MAX_TOKENS", 2000)
	chatTemperature     = envFloat("CHAT_TEMPERATURE", 0.7)
)

// searchWeights and engineOpts are derived from the environment once at
// startup and shared by every collection.
var (
	searchWeights types.Weights
	engineOpts    []engine.Option
)

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		xlog.Warn("Ignoring invalid value", "var", key, "value", v)
		return fallback
	}
	return n
}

func envFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		xlog.Warn("Ignoring invalid value", "var", key, "value", v)
		return fallback
	}
	return f
}

func main() {
	weights, err := types.NewWeights(denseWeight)
	if err != nil {
		xlog.Error("Invalid HYBRID_DENSE_WEIGHT", "error", err)
		os.Exit(1)
	}
	searchWeights = weights

	engineOpts = []engine.Option{engine.WithCandidateMultiplier(candidateMultiplier)}
	if searchCacheSize > 0 {
		engineOpts = append(engineOpts, engine.WithCache(searchCacheSize))
	}

	if err := os.MkdirAll(collectionDBPath, 0755); err != nil {
		xlog.Error("Failed to create collection database directory", "error", err)
		os.Exit(1)
	}
	if err := os.MkdirAll(fileAssets, 0755); err != nil {
		xlog.Error("Failed to create file assets directory", "error", err)
		os.Exit(1)
	}

	xlog.Info("Starting esgrag",
		"address", listenAddress,
		"engine", vectorEngine,
		"embedding_model", embeddingModel,
		"llm_model", llmModel,
		"dense_weight", searchWeights.Dense)

	startAPI(listenAddress)
}
