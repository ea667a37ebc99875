// Package ratelimit provides token bucket rate limiting keyed by caller
// identity. Bucket state lives behind the Store interface, so a single
// process uses local memory while a fleet can share state through Redis
// without changing callers.
package ratelimit

import (
	"context"
	"time"

	"github.com/edgefront/bffgw/internal/ratelimit/store"
)

// Result is the outcome of an admission check.
type Result struct {
	// Allowed indicates whether the request may proceed.
	Allowed bool

	// Limit is the bucket capacity the check was evaluated against.
	Limit int

	// Remaining is the number of whole tokens left after the check.
	Remaining int

	// ResetAfter is the duration until the bucket is full again.
	ResetAfter time.Duration

	// RetryAfter is the duration until enough tokens are available for a
	// request of the same cost (zero when allowed).
	RetryAfter time.Duration
}

// Limiter decides whether a request identified by key may proceed against
// the given bucket shape.
type Limiter interface {
	// Allow attempts to take cost tokens from the bucket for key.
	Allow(ctx context.Context, key string, b store.Bucket, cost int) Result

	// Reset clears the bucket state for key.
	Reset(ctx context.Context, key string) error

	// Close releases limiter resources.
	Close() error
}
