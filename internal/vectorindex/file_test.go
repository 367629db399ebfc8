package vectorindex

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"docllama/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileIndex(t *testing.T) {
	runIndexContract(t, func(t *testing.T) Index {
		idx, err := NewFileIndex(filepath.Join(t.TempDir(), "index", "index.json"))
		require.NoError(t, err)
		return idx
	})

	ctx := context.Background()

	t.Run("Should reload persisted entries", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "index.json")
		idx, err := NewFileIndex(path)
		require.NoError(t, err)
		require.NoError(t, idx.Upsert(ctx, []Entry{entry("a", "doc.pdf", 2, 1, 0), entry("b", "doc.pdf", 3, 0, 1)}))

		reopened, err := NewFileIndex(path)
		require.NoError(t, err)
		n, err := reopened.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		matches, err := reopened.Query(ctx, []float32{0, 1}, 1)
		require.NoError(t, err)
		assert.Equal(t, "b", matches[0].ID)
		assert.Equal(t, models.ChunkMetadata{File: "doc.pdf", Page: 3}, matches[0].Metadata)
	})

	t.Run("Should persist pruning", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "index.json")
		idx, err := NewFileIndex(path)
		require.NoError(t, err)
		require.NoError(t, idx.Upsert(ctx, []Entry{entry("a", "doc.pdf", 1, 1, 0), entry("b", "doc.pdf", 1, 0, 1)}))
		removed, err := idx.Prune(ctx, "doc.pdf", []string{"b"})
		require.NoError(t, err)
		assert.Equal(t, 1, removed)

		reopened, err := NewFileIndex(path)
		require.NoError(t, err)
		n, err := reopened.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	})

	t.Run("Should roll back a write that cannot be persisted", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "index.json")
		idx, err := NewFileIndex(path)
		require.NoError(t, err)
		require.NoError(t, idx.Upsert(ctx, []Entry{entry("a", "doc.pdf", 1, 1, 0)}))

		// A directory in place of the snapshot makes the commit fail.
		require.NoError(t, os.Remove(path))
		require.NoError(t, os.MkdirAll(filepath.Join(path, "keep"), 0o750))
		err = idx.Upsert(ctx, []Entry{entry("b", "doc.pdf", 1, 0, 1)})
		require.ErrorIs(t, err, models.ErrIndex)

		n, err := idx.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		leftovers, err := filepath.Glob(path + ".*.tmp")
		require.NoError(t, err)
		assert.Empty(t, leftovers)
	})

	t.Run("Should fail on a corrupt snapshot", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "index.json")
		require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))
		_, err := NewFileIndex(path)
		assert.ErrorIs(t, err, models.ErrIndex)
	})
}
