package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChatRequestInput(t *testing.T) {
	t.Run("Should prefer messages over prompt", func(t *testing.T) {
		req := ChatRequest{Prompt: "ignored", Messages: []ChatMessage{{Role: RoleUser, Content: "hi"}}}
		in, err := req.Input()
		require.NoError(t, err)
		assert.Equal(t, MessagesInput{{Role: RoleUser, Content: "hi"}}, in)
	})

	t.Run("Should use the prompt when no messages are given", func(t *testing.T) {
		in, err := ChatRequest{Prompt: "hello"}.Input()
		require.NoError(t, err)
		assert.Equal(t, PromptInput("hello"), in)
	})

	t.Run("Should reject an empty request", func(t *testing.T) {
		_, err := ChatRequest{Prompt: "   "}.Input()
		assert.ErrorIs(t, err, ErrValidation)
	})

	t.Run("Should reject unknown roles", func(t *testing.T) {
		_, err := ChatRequest{Messages: []ChatMessage{{Role: "tool", Content: "x"}}}.Input()
		assert.ErrorIs(t, err, ErrValidation)
	})
}

func TestEmbedError(t *testing.T) {
	t.Run("Should expose the failing index and unwrap", func(t *testing.T) {
		err := fmt.Errorf("batch: %w", &EmbedError{Index: 3, Err: ErrUpstream})
		var embedErr *EmbedError
		require.ErrorAs(t, err, &embedErr)
		assert.Equal(t, 3, embedErr.Index)
		assert.True(t, errors.Is(err, ErrUpstream))
		assert.Contains(t, err.Error(), "embedding text 3")
	})
}

func TestIngestResultJSON(t *testing.T) {
	t.Run("Should omit stats for skipped documents", func(t *testing.T) {
		out, err := json.Marshal(IngestResult{File: "a.txt", Status: IngestStatusSkipped})
		require.NoError(t, err)
		assert.JSONEq(t, `{"file":"a.txt","status":"skipped (not a PDF)"}`, string(out))
	})

	t.Run("Should flatten stats for successful documents", func(t *testing.T) {
		out, err := json.Marshal(IngestResult{File: "a.pdf", Status: IngestStatusOK, IngestStats: &IngestStats{
			Pages: 2, Chars: 10, PDFPath: "p", TextPath: "t", ChunkCount: 1, ChunkPath: "c", Indexed: 1,
		}})
		require.NoError(t, err)
		assert.JSONEq(t, `{"file":"a.pdf","status":"ok","pages":2,"chars":10,"pdf_path":"p","txt_path":"t","chunk_count":1,"chunk_path":"c","indexed":1}`, string(out))
	})
}

func TestSearchResultJSON(t *testing.T) {
	t.Run("Should render a missing distance as null", func(t *testing.T) {
		out, err := json.Marshal(SearchResult{Text: "x", Meta: ChunkMetadata{File: "a.pdf", Page: 1}})
		require.NoError(t, err)
		assert.JSONEq(t, `{"text":"x","meta":{"file":"a.pdf","page":1,"chunk":0},"distance":null}`, string(out))
	})
}
