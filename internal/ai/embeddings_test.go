package ai

import (
	"context"
	"testing"

	"docllama/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEmbedder(t *testing.T) {
	ctx := context.Background()
	ollama := NewOllamaClient("http://127.0.0.1:1", OllamaOptions{})

	t.Run("Should return a no-op closer for ollama", func(t *testing.T) {
		cfg := &config.Config{EmbeddingsProvider: "ollama", EmbedCacheSize: 8}
		embedder, closeFn, err := NewEmbedder(ctx, cfg, ollama, nil, nil)
		require.NoError(t, err)
		require.NotNil(t, closeFn)
		assert.IsType(t, &CachedEmbedder{}, embedder)
		assert.NoError(t, closeFn())
	})

	t.Run("Should close the google client", func(t *testing.T) {
		cfg := &config.Config{EmbeddingsProvider: "google", GeminiAPIKey: "k"}
		embedder, closeFn, err := NewEmbedder(ctx, cfg, ollama, nil, nil)
		require.NoError(t, err)
		assert.IsType(t, &GoogleEmbedder{}, embedder)
		assert.NoError(t, closeFn())
	})

	t.Run("Should reject an unknown provider", func(t *testing.T) {
		cfg := &config.Config{EmbeddingsProvider: "openai"}
		_, closeFn, err := NewEmbedder(ctx, cfg, ollama, nil, nil)
		require.Error(t, err)
		assert.Nil(t, closeFn)
	})
}
