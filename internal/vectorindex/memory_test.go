package vectorindex

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"docllama/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func entry(id, file string, page int, vector ...float32) Entry {
	return Entry{
		ID:       id,
		Vector:   vector,
		Text:     "text " + id,
		Metadata: models.ChunkMetadata{File: file, Page: page},
	}
}

// runIndexContract exercises behaviour every local backend shares.
func runIndexContract(t *testing.T, newIndex func(t *testing.T) Index) {
	ctx := context.Background()

	t.Run("Should rank by ascending distance and cap at k", func(t *testing.T) {
		idx := newIndex(t)
		require.NoError(t, idx.Upsert(ctx, []Entry{
			entry("a", "doc.pdf", 1, 1, 0),
			entry("b", "doc.pdf", 1, 0, 1),
			entry("c", "doc.pdf", 2, 1, 1),
		}))

		matches, err := idx.Query(ctx, []float32{1, 0}, 2)
		require.NoError(t, err)
		require.Len(t, matches, 2)
		assert.Equal(t, "a", matches[0].ID)
		assert.Equal(t, "c", matches[1].ID)
		require.NotNil(t, matches[0].Distance)
		assert.InDelta(t, 0, *matches[0].Distance, 1e-9)
		assert.LessOrEqual(t, *matches[0].Distance, *matches[1].Distance)
		assert.Equal(t, "text a", matches[0].Text)
		assert.Equal(t, models.ChunkMetadata{File: "doc.pdf", Page: 1}, matches[0].Metadata)
	})

	t.Run("Should return at most the index size", func(t *testing.T) {
		idx := newIndex(t)
		require.NoError(t, idx.Upsert(ctx, []Entry{entry("a", "doc.pdf", 1, 1, 0)}))
		matches, err := idx.Query(ctx, []float32{1, 0}, 10)
		require.NoError(t, err)
		assert.Len(t, matches, 1)
	})

	t.Run("Should overwrite entries with the same id", func(t *testing.T) {
		idx := newIndex(t)
		require.NoError(t, idx.Upsert(ctx, []Entry{entry("a", "doc.pdf", 1, 1, 0)}))
		replacement := entry("a", "doc.pdf", 3, 0, 1)
		replacement.Text = "new"
		require.NoError(t, idx.Upsert(ctx, []Entry{replacement}))

		n, err := idx.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
		matches, err := idx.Query(ctx, []float32{0, 1}, 1)
		require.NoError(t, err)
		assert.Equal(t, "new", matches[0].Text)
		assert.Equal(t, 3, matches[0].Metadata.Page)
	})

	t.Run("Should reject a mixed-dimension batch without writing any of it", func(t *testing.T) {
		idx := newIndex(t)
		require.NoError(t, idx.Upsert(ctx, []Entry{entry("a", "doc.pdf", 1, 1, 0)}))
		err := idx.Upsert(ctx, []Entry{entry("b", "doc.pdf", 1, 1, 0), entry("c", "doc.pdf", 1, 1, 0, 0)})
		require.ErrorIs(t, err, models.ErrIndex)

		n, err := idx.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	})

	t.Run("Should break distance ties by id", func(t *testing.T) {
		idx := newIndex(t)
		require.NoError(t, idx.Upsert(ctx, []Entry{
			entry("z", "doc.pdf", 1, 1, 0),
			entry("m", "doc.pdf", 1, 2, 0),
			entry("a", "doc.pdf", 1, 3, 0),
		}))
		for range 5 {
			matches, err := idx.Query(ctx, []float32{1, 0}, 3)
			require.NoError(t, err)
			assert.Equal(t, []string{"a", "m", "z"}, []string{matches[0].ID, matches[1].ID, matches[2].ID})
		}
	})

	t.Run("Should prune stale entries of one file only", func(t *testing.T) {
		idx := newIndex(t)
		require.NoError(t, idx.Upsert(ctx, []Entry{
			entry("a1", "a.pdf", 1, 1, 0),
			entry("a2", "a.pdf", 1, 1, 0),
			entry("b1", "b.pdf", 1, 1, 0),
		}))
		removed, err := idx.Prune(ctx, "a.pdf", []string{"a1"})
		require.NoError(t, err)
		assert.Equal(t, 1, removed)

		n, err := idx.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, n)
	})

	t.Run("Should validate k and the query vector", func(t *testing.T) {
		idx := newIndex(t)
		_, err := idx.Query(ctx, []float32{1}, 0)
		assert.ErrorIs(t, err, models.ErrValidation)
		_, err = idx.Query(ctx, nil, 1)
		assert.ErrorIs(t, err, models.ErrValidation)
	})

	t.Run("Should return no matches from an empty index", func(t *testing.T) {
		matches, err := newIndex(t).Query(ctx, []float32{1, 0}, 3)
		require.NoError(t, err)
		assert.Empty(t, matches)
	})
}

func TestMemoryIndex(t *testing.T) {
	runIndexContract(t, func(*testing.T) Index { return NewMemoryIndex() })

	t.Run("Should reject a query of the wrong dimension", func(t *testing.T) {
		idx := NewMemoryIndex()
		require.NoError(t, idx.Upsert(context.Background(), []Entry{entry("a", "doc.pdf", 1, 1, 0)}))
		_, err := idx.Query(context.Background(), []float32{1, 0, 0}, 1)
		assert.ErrorIs(t, err, models.ErrIndex)
	})

	t.Run("Should be safe under concurrent upserts and queries", func(t *testing.T) {
		idx := NewMemoryIndex()
		ctx := context.Background()
		var wg sync.WaitGroup
		for w := range 8 {
			wg.Add(2)
			go func() {
				defer wg.Done()
				for i := range 20 {
					_ = idx.Upsert(ctx, []Entry{entry(fmt.Sprintf("%d-%d", w, i), "doc.pdf", 1, float32(i), 1)})
				}
			}()
			go func() {
				defer wg.Done()
				for range 20 {
					_, _ = idx.Query(ctx, []float32{1, 1}, 5)
				}
			}()
		}
		wg.Wait()
		n, err := idx.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 160, n)
	})
}

func TestCosineDistance(t *testing.T) {
	t.Run("Should be zero for parallel and one for orthogonal vectors", func(t *testing.T) {
		assert.InDelta(t, 0, cosineDistance([]float32{2, 0}, []float32{5, 0}), 1e-9)
		assert.InDelta(t, 1, cosineDistance([]float32{1, 0}, []float32{0, 1}), 1e-9)
		assert.InDelta(t, 2, cosineDistance([]float32{1, 0}, []float32{-1, 0}), 1e-9)
		assert.Equal(t, 1.0, cosineDistance([]float32{0, 0}, []float32{1, 0}))
	})
}
