package app

import (
	"context"
	"errors"
	"fmt"

	"docllama/internal/ai"
	"docllama/internal/config"
	"docllama/internal/logger"
	"docllama/internal/storage"
	"docllama/internal/telemetry"
	"docllama/internal/vectorindex"
	"docllama/services"

	"github.com/redis/go-redis/v9"
)

// App holds the services shared by the API server and the ingest worker.
type App struct {
	Ollama *ai.OllamaClient
	Index  vectorindex.Index
	Ingest *services.IngestService
	Chat   *services.ChatRelay
	Search *services.SearchService

	closeEmbedder func() error
}

// New builds every service from cfg. rdb and metrics may be nil.
func New(ctx context.Context, cfg *config.Config, rdb *redis.Client, metrics *telemetry.Metrics) (*App, error) {
	segmenter, err := services.NewSegmenter(cfg.ChunkChars, cfg.ChunkOverlap)
	if err != nil {
		return nil, err
	}

	ollama := ai.NewOllamaClient(cfg.OllamaURL, ai.OllamaOptions{
		EmbedTimeout:    cfg.EmbedTimeout,
		GenerateTimeout: cfg.GenerateTimeout,
		RateLimit:       cfg.EmbedRateLimit,
		Metrics:         metrics,
	})

	embedder, closeEmbedder, err := ai.NewEmbedder(ctx, cfg, ollama, rdb, metrics)
	if err != nil {
		return nil, fmt.Errorf("embedder: %w", err)
	}
	embeddings := services.NewEmbeddingService(embedder, cfg.EmbeddingsModel, cfg.EmbedConcurrency)

	store, err := storage.Open(ctx, cfg)
	if err != nil {
		_ = closeEmbedder()
		return nil, fmt.Errorf("blob store: %w", err)
	}

	index, err := vectorindex.Open(ctx, cfg)
	if err != nil {
		_ = closeEmbedder()
		return nil, fmt.Errorf("vector index: %w", err)
	}

	logger.Info("Services initialized",
		"ollama_url", cfg.OllamaURL,
		"vector_index", cfg.VectorIndex,
		"blob_store", cfg.BlobStore,
		"chunk_chars", cfg.ChunkChars,
		"chunk_overlap", cfg.ChunkOverlap)

	return &App{
		Ollama: ollama,
		Index:  index,
		Ingest: services.NewIngestService(store, services.NewPDFExtractor(), segmenter, embeddings, index, services.IngestOptions{
			Timeout: cfg.IngestTimeout,
			Metrics: metrics,
		}),
		Chat: services.NewChatRelay(ollama, services.ChatRelayOptions{
			DefaultModel:     cfg.DefaultModel,
			PromptSingleShot: cfg.ChatPromptSingleShot,
			Metrics:          metrics,
		}),
		Search:        services.NewSearchService(embeddings, index, ""),
		closeEmbedder: closeEmbedder,
	}, nil
}

// Close releases the index and the embedding provider client.
func (a *App) Close(ctx context.Context) error {
	indexErr := a.Index.Close(ctx)
	if err := a.closeEmbedder(); err != nil {
		return errors.Join(indexErr, fmt.Errorf("close embedder: %w", err))
	}
	return indexErr
}
