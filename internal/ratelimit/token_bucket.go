package ratelimit

import (
	"context"

	"github.com/edgefront/bffgw/internal/observability"
	"github.com/edgefront/bffgw/internal/ratelimit/store"
)

// TokenBucketLimiter is a Limiter backed by a token bucket Store. Store
// failures fail open: admission control protects capacity, it must not
// become an outage of its own.
type TokenBucketLimiter struct {
	store  store.Store
	logger observability.Logger
}

// Option is a functional option for configuring the limiter.
type Option func(*TokenBucketLimiter)

// WithLogger sets the logger for the limiter.
func WithLogger(logger observability.Logger) Option {
	return func(l *TokenBucketLimiter) {
		l.logger = logger
	}
}

// NewTokenBucketLimiter creates a limiter over the given store.
func NewTokenBucketLimiter(s store.Store, opts ...Option) *TokenBucketLimiter {
	l := &TokenBucketLimiter{
		store:  s,
		logger: observability.NopLogger(),
	}

	for _, opt := range opts {
		opt(l)
	}

	return l
}

// Allow implements Limiter.
func (l *TokenBucketLimiter) Allow(ctx context.Context, key string, b store.Bucket, cost int) Result {
	if cost <= 0 {
		cost = 1
	}

	take, err := l.store.Take(ctx, key, b, cost)
	if err != nil {
		l.logger.Warn("rate limit store unavailable, failing open",
			observability.String("key", key),
			observability.Error(err),
		)
		return Result{
			Allowed:   true,
			Limit:     b.Capacity,
			Remaining: b.Capacity,
		}
	}

	return Result{
		Allowed:    take.Allowed,
		Limit:      b.Capacity,
		Remaining:  take.Remaining,
		ResetAfter: take.ResetAfter,
		RetryAfter: take.RetryAfter,
	}
}

// Reset implements Limiter.
func (l *TokenBucketLimiter) Reset(ctx context.Context, key string) error {
	return l.store.Reset(ctx, key)
}

// Close implements Limiter.
func (l *TokenBucketLimiter) Close() error {
	return l.store.Close()
}
