package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"docllama/internal/logger"
	"docllama/utils"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/redis/go-redis/v9"
)

const redisEmbedPrefix = "docllama:embed:"

type CacheOptions struct {
	Size  int           // in-process entries, 0 disables the LRU layer
	Redis *redis.Client // optional shared layer
	TTL   time.Duration // expiry of shared entries, 0 = no expiry
}

// CachedEmbedder memoizes vectors by model and text digest. Cache failures
// are logged and never fail an embedding.
type CachedEmbedder struct {
	next  Embedder
	local *lru.Cache[string, []float32]
	rdb   *redis.Client
	ttl   time.Duration
}

func NewCachedEmbedder(next Embedder, opts CacheOptions) (*CachedEmbedder, error) {
	c := &CachedEmbedder{next: next, rdb: opts.Redis, ttl: opts.TTL}
	if opts.Size > 0 {
		local, err := lru.New[string, []float32](opts.Size)
		if err != nil {
			return nil, fmt.Errorf("init embedding cache: %w", err)
		}
		c.local = local
	}
	return c, nil
}

func CacheKey(model, text string) string {
	return model + ":" + utils.SHA256Hex([]byte(text))
}

func (c *CachedEmbedder) Embed(ctx context.Context, model, text string) ([]float32, error) {
	key := CacheKey(model, text)

	if c.local != nil {
		if v, ok := c.local.Get(key); ok {
			return cloneVector(v), nil
		}
	}

	if c.rdb != nil {
		if v, ok := c.lookupShared(ctx, key); ok {
			if c.local != nil {
				c.local.Add(key, v)
			}
			return cloneVector(v), nil
		}
	}

	vector, err := c.next.Embed(ctx, model, text)
	if err != nil {
		return nil, err
	}

	if c.local != nil {
		c.local.Add(key, cloneVector(vector))
	}
	if c.rdb != nil {
		c.storeShared(ctx, key, vector)
	}
	return vector, nil
}

func (c *CachedEmbedder) lookupShared(ctx context.Context, key string) ([]float32, bool) {
	raw, err := c.rdb.Get(ctx, redisEmbedPrefix+key).Bytes()
	if err != nil {
		if err != redis.Nil {
			logger.Warn("Embedding cache lookup failed", "error", err)
		}
		return nil, false
	}
	var v []float32
	if err := json.Unmarshal(raw, &v); err != nil || len(v) == 0 {
		return nil, false
	}
	return v, true
}

func (c *CachedEmbedder) storeShared(ctx context.Context, key string, vector []float32) {
	raw, err := json.Marshal(vector)
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, redisEmbedPrefix+key, raw, c.ttl).Err(); err != nil {
		logger.Warn("Embedding cache store failed", "error", err)
	}
}

func cloneVector(v []float32) []float32 {
	out := make([]float32, len(v))
	copy(out, v)
	return out
}
