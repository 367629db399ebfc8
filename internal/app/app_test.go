package app

import (
	"context"
	"testing"

	"docllama/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) *config.Config {
	return &config.Config{
		OllamaURL:          "http://127.0.0.1:1",
		DefaultModel:       "llama3",
		EmbeddingsProvider: "ollama",
		EmbeddingsModel:    "nomic-embed-text",
		EmbedConcurrency:   2,
		EmbedCacheSize:     16,
		DataDir:            t.TempDir(),
		BlobStore:          "fs",
		ChunkChars:         100,
		ChunkOverlap:       10,
		VectorIndex:        "file",
	}
}

func TestNew(t *testing.T) {
	ctx := context.Background()

	t.Run("Should build services on local storage", func(t *testing.T) {
		a, err := New(ctx, testConfig(t), nil, nil)
		require.NoError(t, err)
		defer a.Close(ctx)

		assert.NotNil(t, a.Ingest)
		assert.NotNil(t, a.Chat)
		assert.NotNil(t, a.Search)
		n, err := a.Index.Count(ctx)
		require.NoError(t, err)
		assert.Zero(t, n)
	})

	t.Run("Should release the google embedder on close", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.EmbeddingsProvider, cfg.GeminiAPIKey = "google", "k"
		cfg.EmbeddingsModel = config.DefaultEmbeddingsModel("google")
		a, err := New(ctx, cfg, nil, nil)
		require.NoError(t, err)
		assert.NoError(t, a.Close(ctx))
	})

	t.Run("Should fail cleanly when the blob store cannot open", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.EmbeddingsProvider, cfg.GeminiAPIKey = "google", "k"
		cfg.BlobStore = "ftp"
		_, err := New(ctx, cfg, nil, nil)
		assert.ErrorContains(t, err, "blob store")
	})

	t.Run("Should reject an invalid chunk configuration", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.ChunkChars, cfg.ChunkOverlap = 10, 15
		_, err := New(ctx, cfg, nil, nil)
		assert.Error(t, err)
	})
}
