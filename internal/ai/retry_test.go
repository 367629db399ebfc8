package ai

import (
	"context"
	"fmt"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"docllama/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedEmbedder struct {
	calls  atomic.Int32
	errs   []error
	vector []float32
}

func (s *scriptedEmbedder) Embed(_ context.Context, _, _ string) ([]float32, error) {
	n := int(s.calls.Add(1)) - 1
	if n < len(s.errs) && s.errs[n] != nil {
		return nil, s.errs[n]
	}
	return s.vector, nil
}

func upstreamStatus(code int) error {
	return fmt.Errorf("%w: %w", models.ErrUpstream, &statusError{endpoint: EmbeddingsEndpoint, status: code})
}

func TestRetryingEmbedder(t *testing.T) {
	policy := RetryPolicy{MaxRetries: 3, Base: time.Millisecond}

	t.Run("Should retry transient failures until success", func(t *testing.T) {
		next := &scriptedEmbedder{
			errs:   []error{upstreamStatus(http.StatusServiceUnavailable), upstreamStatus(http.StatusTooManyRequests)},
			vector: []float32{1},
		}
		v, err := NewRetryingEmbedder(next, policy).Embed(context.Background(), "m", "x")
		require.NoError(t, err)
		assert.Equal(t, []float32{1}, v)
		assert.Equal(t, int32(3), next.calls.Load())
	})

	t.Run("Should not retry client errors", func(t *testing.T) {
		next := &scriptedEmbedder{errs: []error{upstreamStatus(http.StatusNotFound)}}
		_, err := NewRetryingEmbedder(next, policy).Embed(context.Background(), "m", "x")
		require.ErrorIs(t, err, models.ErrUpstream)
		assert.Equal(t, int32(1), next.calls.Load())
	})

	t.Run("Should give up after the configured retries", func(t *testing.T) {
		failure := upstreamStatus(http.StatusBadGateway)
		next := &scriptedEmbedder{errs: []error{failure, failure, failure, failure, failure}}
		_, err := NewRetryingEmbedder(next, policy).Embed(context.Background(), "m", "x")
		require.ErrorIs(t, err, models.ErrUpstream)
		assert.Equal(t, int32(4), next.calls.Load())
	})

	t.Run("Should stop when the caller is cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		assert.False(t, isRetryable(ctx, upstreamStatus(http.StatusBadGateway)))
	})
}
