package ai

import (
	"context"
	"errors"
	"net/http"
	"time"

	"docllama/models"

	"github.com/sethvargo/go-retry"
)

// RetryPolicy bounds how often a failed embedding is attempted again.
type RetryPolicy struct {
	MaxRetries uint64
	Base       time.Duration
	Max        time.Duration // cap on a single backoff step, 0 = uncapped
}

func (p RetryPolicy) backoff() retry.Backoff {
	base := p.Base
	if base <= 0 {
		base = 200 * time.Millisecond
	}
	b := retry.NewExponential(base)
	if p.Max > 0 {
		b = retry.WithCappedDuration(p.Max, b)
	}
	return retry.WithMaxRetries(p.MaxRetries, b)
}

// RetryingEmbedder retries transient upstream failures of the wrapped embedder.
type RetryingEmbedder struct {
	next   Embedder
	policy RetryPolicy
}

func NewRetryingEmbedder(next Embedder, policy RetryPolicy) *RetryingEmbedder {
	return &RetryingEmbedder{next: next, policy: policy}
}

func (r *RetryingEmbedder) Embed(ctx context.Context, model, text string) ([]float32, error) {
	var vector []float32
	err := retry.Do(ctx, r.policy.backoff(), func(ctx context.Context) error {
		v, err := r.next.Embed(ctx, model, text)
		if err != nil {
			if isRetryable(ctx, err) {
				return retry.RetryableError(err)
			}
			return err
		}
		vector = v
		return nil
	})
	if err != nil {
		return nil, err
	}
	return vector, nil
}

// isRetryable reports upstream failures worth another attempt: connection
// errors, 429 and 5xx. Cancellation of the caller is final.
func isRetryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil || errors.Is(err, context.Canceled) {
		return false
	}
	if !errors.Is(err, models.ErrUpstream) {
		return false
	}
	var statusErr *statusError
	if errors.As(err, &statusErr) {
		return statusErr.status == http.StatusTooManyRequests || statusErr.status >= 500
	}
	return true
}
