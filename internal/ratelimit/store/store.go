// Package store provides storage backends for token bucket state.
//
// The in-memory store is the default for a single gateway process. The Redis
// store shares bucket state between instances behind the same interface.
package store

import (
	"context"
	"time"
)

// Bucket describes a token bucket: its capacity and continuous refill rate.
type Bucket struct {
	// Capacity is the maximum number of tokens the bucket holds.
	Capacity int

	// RefillPerSecond is the refill rate in tokens per second. Tokens are
	// added proportionally to elapsed time, not at window boundaries.
	RefillPerSecond float64
}

// Take is the outcome of a token bucket deduction attempt.
type Take struct {
	// Allowed indicates whether the requested tokens were deducted.
	Allowed bool

	// Remaining is the number of whole tokens left in the bucket.
	Remaining int

	// ResetAfter is the duration until the bucket is full again.
	ResetAfter time.Duration

	// RetryAfter is the duration until the requested tokens become
	// available (zero when allowed).
	RetryAfter time.Duration
}

// Store holds token bucket state keyed by caller identity.
type Store interface {
	// Take refills the bucket for key based on elapsed time, then attempts
	// to deduct cost tokens. The deduction is all-or-nothing.
	Take(ctx context.Context, key string, b Bucket, cost int) (Take, error)

	// Reset removes the bucket state for key.
	Reset(ctx context.Context, key string) error

	// Close releases store resources.
	Close() error
}
