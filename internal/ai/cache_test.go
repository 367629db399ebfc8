package ai

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCachedEmbedder(t *testing.T) {
	ctx := context.Background()

	t.Run("Should serve repeated texts from the in-process cache", func(t *testing.T) {
		next := &scriptedEmbedder{vector: []float32{0.5, 0.25}}
		cached, err := NewCachedEmbedder(next, CacheOptions{Size: 8})
		require.NoError(t, err)

		first, err := cached.Embed(ctx, "m", "hello")
		require.NoError(t, err)
		second, err := cached.Embed(ctx, "m", "hello")
		require.NoError(t, err)
		assert.Equal(t, first, second)
		assert.Equal(t, int32(1), next.calls.Load())

		_, err = cached.Embed(ctx, "other-model", "hello")
		require.NoError(t, err)
		assert.Equal(t, int32(2), next.calls.Load())
	})

	t.Run("Should hand out copies callers cannot corrupt", func(t *testing.T) {
		next := &scriptedEmbedder{vector: []float32{1, 2}}
		cached, err := NewCachedEmbedder(next, CacheOptions{Size: 8})
		require.NoError(t, err)

		v, err := cached.Embed(ctx, "m", "x")
		require.NoError(t, err)
		v[0] = 99
		again, err := cached.Embed(ctx, "m", "x")
		require.NoError(t, err)
		assert.Equal(t, float32(1), again[0])
	})

	t.Run("Should share vectors through redis", func(t *testing.T) {
		mr := miniredis.RunT(t)
		rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		t.Cleanup(func() { _ = rdb.Close() })

		next := &scriptedEmbedder{vector: []float32{3, 4}}
		writer, err := NewCachedEmbedder(next, CacheOptions{Redis: rdb, TTL: time.Hour})
		require.NoError(t, err)
		_, err = writer.Embed(ctx, "m", "shared")
		require.NoError(t, err)

		key := redisEmbedPrefix + CacheKey("m", "shared")
		assert.True(t, mr.Exists(key))
		assert.Greater(t, mr.TTL(key), time.Duration(0))

		reader, err := NewCachedEmbedder(next, CacheOptions{Size: 4, Redis: rdb})
		require.NoError(t, err)
		v, err := reader.Embed(ctx, "m", "shared")
		require.NoError(t, err)
		assert.Equal(t, []float32{3, 4}, v)
		assert.Equal(t, int32(1), next.calls.Load())
	})

	t.Run("Should not cache failures", func(t *testing.T) {
		next := &scriptedEmbedder{errs: []error{upstreamStatus(500)}, vector: []float32{1}}
		cached, err := NewCachedEmbedder(next, CacheOptions{Size: 4})
		require.NoError(t, err)

		_, err = cached.Embed(ctx, "m", "x")
		require.Error(t, err)
		v, err := cached.Embed(ctx, "m", "x")
		require.NoError(t, err)
		assert.Equal(t, []float32{1}, v)
	})
}
