package ai

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"docllama/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc, opts OllamaOptions) *OllamaClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewOllamaClient(srv.URL+"/", opts)
}

func TestOllamaClient_ListModels(t *testing.T) {
	t.Run("Should return model names from tags", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, TagsEndpoint, r.URL.Path)
			_, _ = w.Write([]byte(`{"models":[{"name":"llama3:latest"},{"name":"nomic-embed-text:latest"}]}`))
		}, OllamaOptions{})

		names, err := client.ListModels(context.Background())
		require.NoError(t, err)
		assert.Equal(t, []string{"llama3:latest", "nomic-embed-text:latest"}, names)
	})

	t.Run("Should wrap backend failures as upstream errors", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "boom", http.StatusInternalServerError)
		}, OllamaOptions{})

		_, err := client.ListModels(context.Background())
		require.ErrorIs(t, err, models.ErrUpstream)
		assert.Contains(t, err.Error(), "500")
		assert.Contains(t, err.Error(), "boom")
	})
}

func TestPartitionModels(t *testing.T) {
	t.Run("Should split embedding models by name", func(t *testing.T) {
		gen, emb := PartitionModels([]string{"llama3", "nomic-embed-text", "mxbai-embed-large", "mistral", "Nomic-v2"})
		assert.Equal(t, []string{"llama3", "mistral"}, gen)
		assert.Equal(t, []string{"nomic-embed-text", "mxbai-embed-large", "Nomic-v2"}, emb)
	})

	t.Run("Should return empty lists rather than nil", func(t *testing.T) {
		gen, emb := PartitionModels(nil)
		assert.NotNil(t, gen)
		assert.NotNil(t, emb)
	})
}

func TestOllamaClient_Embed(t *testing.T) {
	t.Run("Should send model and prompt and decode the native shape", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, EmbeddingsEndpoint, r.URL.Path)
			var body map[string]any
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "nomic-embed-text", body["model"])
			assert.Equal(t, "hello", body["prompt"])
			_, _ = w.Write([]byte(`{"embedding":[0.1,0.2,0.3]}`))
		}, OllamaOptions{})

		v, err := client.Embed(context.Background(), "nomic-embed-text", "hello")
		require.NoError(t, err)
		assert.Equal(t, []float32{0.1, 0.2, 0.3}, v)
	})

	t.Run("Should accept the OpenAI-compatible shape", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"data":[{"embedding":[1,2]}]}`))
		}, OllamaOptions{})

		v, err := client.Embed(context.Background(), "m", "x")
		require.NoError(t, err)
		assert.Equal(t, []float32{1, 2}, v)
	})

	t.Run("Should reject an empty vector", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"embedding":[]}`))
		}, OllamaOptions{})

		_, err := client.Embed(context.Background(), "m", "x")
		assert.ErrorIs(t, err, models.ErrUpstream)
	})

	t.Run("Should honour the embed timeout", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-r.Context().Done():
			case <-time.After(2 * time.Second):
			}
		}, OllamaOptions{EmbedTimeout: 50 * time.Millisecond})

		_, err := client.Embed(context.Background(), "m", "x")
		require.ErrorIs(t, err, models.ErrUpstream)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})
}

func TestOllamaClient_Generate(t *testing.T) {
	t.Run("Should request a non-streaming completion", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, GenerateEndpoint, r.URL.Path)
			var body map[string]any
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, false, body["stream"])
			assert.Equal(t, "llama3", body["model"])
			_, _ = w.Write([]byte(`{"response":"Hello there","done":true}`))
		}, OllamaOptions{})

		text, err := client.Generate(context.Background(), "llama3", "hi")
		require.NoError(t, err)
		assert.Equal(t, "Hello there", text)
	})
}

func TestOllamaClient_OpenStream(t *testing.T) {
	t.Run("Should return the open body", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, ChatEndpoint, r.URL.Path)
			_, _ = w.Write([]byte("{\"message\":{\"content\":\"Hi\"}}\n{\"done\":true}\n"))
		}, OllamaOptions{GenerateTimeout: time.Minute})

		body, err := client.OpenStream(context.Background(), ChatEndpoint, map[string]any{"stream": true})
		require.NoError(t, err)
		data, err := io.ReadAll(body)
		require.NoError(t, err)
		require.NoError(t, body.Close())
		assert.Contains(t, string(data), "Hi")
	})

	t.Run("Should fail before streaming on a non-success status", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, `{"error":"model not found"}`, http.StatusNotFound)
		}, OllamaOptions{})

		_, err := client.OpenStream(context.Background(), ChatEndpoint, map[string]any{})
		require.ErrorIs(t, err, models.ErrUpstream)
		assert.Contains(t, err.Error(), "model not found")
	})
}
