// Package retry provides fixed-backoff retry for transient failures.
package retry

import (
	"context"
	"time"
)

// Default retry configuration constants.
const (
	// DefaultMaxAttempts is the default total number of attempts,
	// including the first call.
	DefaultMaxAttempts = 3

	// DefaultBackoff is the default fixed delay between attempts.
	DefaultBackoff = 500 * time.Millisecond
)

// Config contains retry configuration parameters.
type Config struct {
	// MaxAttempts is the total number of attempts including the first
	// call. Default is 3.
	MaxAttempts int

	// Backoff is the fixed delay between attempts. Default is 500ms.
	Backoff time.Duration
}

// DefaultConfig returns the default retry configuration.
func DefaultConfig() *Config {
	return &Config{
		MaxAttempts: DefaultMaxAttempts,
		Backoff:     DefaultBackoff,
	}
}

// GetMaxAttempts returns the effective total attempt count.
func (c *Config) GetMaxAttempts() int {
	if c == nil || c.MaxAttempts <= 0 {
		return DefaultMaxAttempts
	}
	return c.MaxAttempts
}

// GetBackoff returns the effective backoff.
func (c *Config) GetBackoff() time.Duration {
	if c == nil || c.Backoff <= 0 {
		return DefaultBackoff
	}
	return c.Backoff
}

// RetryableFunc is a function that can be retried.
type RetryableFunc func(ctx context.Context) error

// ShouldRetryFunc determines if an error should trigger another attempt.
type ShouldRetryFunc func(error) bool

// OnRetryFunc is called before each retry attempt.
type OnRetryFunc func(attempt int, err error, backoff time.Duration)

// Options contains optional retry behavior configuration.
type Options struct {
	// ShouldRetry determines if an error should trigger another attempt.
	// If nil, all errors are retried.
	ShouldRetry ShouldRetryFunc

	// OnRetry is called before each retry attempt.
	OnRetry OnRetryFunc
}

// Do executes fn up to the configured number of attempts, sleeping the
// fixed backoff between attempts. The last error is returned unchanged, so
// callers keep the original error type for classification.
func Do(ctx context.Context, cfg *Config, fn RetryableFunc, opts *Options) error {
	maxAttempts := cfg.GetMaxAttempts()
	backoff := cfg.GetBackoff()

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}

		if opts != nil && opts.ShouldRetry != nil && !opts.ShouldRetry(lastErr) {
			return lastErr
		}

		// No sleep after the final attempt.
		if attempt < maxAttempts {
			if opts != nil && opts.OnRetry != nil {
				opts.OnRetry(attempt, lastErr, backoff)
			}

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}
	}

	return lastErr
}
