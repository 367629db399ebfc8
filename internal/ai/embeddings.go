package ai

import (
	"context"
	"fmt"

	"docllama/internal/config"
	"docllama/internal/logger"
	"docllama/internal/telemetry"
	"docllama/models"

	"github.com/google/generative-ai-go/genai"
	"github.com/redis/go-redis/v9"
	"google.golang.org/api/option"
)

// Embedder turns one text into one vector using the named model.
type Embedder interface {
	Embed(ctx context.Context, model, text string) ([]float32, error)
}

// GoogleEmbedder embeds through the Google Generative AI embedding API.
type GoogleEmbedder struct {
	client  *genai.Client
	metrics *telemetry.Metrics
}

func NewGoogleEmbedder(ctx context.Context, apiKey string, metrics *telemetry.Metrics) (*GoogleEmbedder, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("missing GEMINI_API_KEY for embeddings")
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, err
	}
	return &GoogleEmbedder{client: client, metrics: metrics}, nil
}

func (g *GoogleEmbedder) Embed(ctx context.Context, model, text string) ([]float32, error) {
	resp, err := g.client.EmbeddingModel(model).EmbedContent(ctx, genai.Text(text))
	g.metrics.RecordEmbeddingCall(model, err == nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrUpstream, err)
	}
	// genai SDK returns []float32 for Embedding.Values
	if resp.Embedding == nil || len(resp.Embedding.Values) == 0 {
		return nil, fmt.Errorf("%w: no embedding returned for model %s", models.ErrUpstream, model)
	}
	return resp.Embedding.Values, nil
}

func (g *GoogleEmbedder) Close() error {
	return g.client.Close()
}

// NewEmbedder assembles the configured provider with its retry and cache layers.
// rdb may be nil, in which case only the in-process cache is used. The returned
// close function releases the provider client and is never nil.
func NewEmbedder(ctx context.Context, cfg *config.Config, ollama *OllamaClient, rdb *redis.Client, metrics *telemetry.Metrics) (Embedder, func() error, error) {
	var base Embedder
	closeFn := func() error { return nil }
	switch cfg.EmbeddingsProvider {
	case "ollama", "":
		base = ollama
	case "google":
		google, err := NewGoogleEmbedder(ctx, cfg.GeminiAPIKey, metrics)
		if err != nil {
			return nil, nil, err
		}
		base, closeFn = google, google.Close
	default:
		return nil, nil, fmt.Errorf("unknown embeddings provider: %s", cfg.EmbeddingsProvider)
	}

	embedder := base
	if cfg.EmbedRetries > 0 {
		embedder = NewRetryingEmbedder(embedder, RetryPolicy{
			MaxRetries: uint64(cfg.EmbedRetries),
			Base:       cfg.EmbedRetryBase,
		})
	}

	if cfg.EmbedCacheSize > 0 || rdb != nil {
		cached, err := NewCachedEmbedder(embedder, CacheOptions{
			Size:  cfg.EmbedCacheSize,
			Redis: rdb,
			TTL:   cfg.EmbedCacheTTL,
		})
		if err != nil {
			_ = closeFn()
			return nil, nil, err
		}
		embedder = cached
	}

	logger.Info("Embedder configured",
		"provider", cfg.EmbeddingsProvider,
		"model", cfg.EmbeddingsModel,
		"retries", cfg.EmbedRetries,
		"cache_size", cfg.EmbedCacheSize,
		"redis_cache", rdb != nil,
	)
	return embedder, closeFn, nil
}
