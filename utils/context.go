package utils

import (
	"context"
	"time"
)

// WithOptionalTimeout bounds parent by d, or leaves it unbounded when d <= 0.
func WithOptionalTimeout(parent context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(parent)
	}
	return context.WithTimeout(parent, d)
}
