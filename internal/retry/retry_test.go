package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	errTransient = errors.New("transient")
	errPermanent = errors.New("permanent")
)

func fastConfig() *Config {
	return &Config{MaxAttempts: 3, Backoff: time.Millisecond}
}

func TestDoSucceedsFirstAttempt(t *testing.T) {
	attempts := 0
	err := Do(context.Background(), fastConfig(), func(context.Context) error {
		attempts++
		return nil
	}, nil)

	require.NoError(t, err)
	assert.Equal(t, 1, attempts)
}

func TestDoRetriesUntilSuccess(t *testing.T) {
	attempts := 0
	err := Do(context.Background(), fastConfig(), func(context.Context) error {
		attempts++
		if attempts < 3 {
			return errTransient
		}
		return nil
	}, nil)

	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestDoExhaustsAttempts(t *testing.T) {
	attempts := 0
	err := Do(context.Background(), fastConfig(), func(context.Context) error {
		attempts++
		return errTransient
	}, nil)

	assert.ErrorIs(t, err, errTransient)
	assert.Equal(t, 3, attempts)
}

func TestDoStopsOnNonRetryable(t *testing.T) {
	attempts := 0
	opts := &Options{
		ShouldRetry: func(err error) bool {
			return errors.Is(err, errTransient)
		},
	}

	err := Do(context.Background(), fastConfig(), func(context.Context) error {
		attempts++
		return errPermanent
	}, opts)

	assert.ErrorIs(t, err, errPermanent)
	assert.Equal(t, 1, attempts)
}

func TestDoOnRetryCallback(t *testing.T) {
	var notified []int
	opts := &Options{
		OnRetry: func(attempt int, err error, backoff time.Duration) {
			notified = append(notified, attempt)
			assert.ErrorIs(t, err, errTransient)
			assert.Equal(t, time.Millisecond, backoff)
		},
	}

	_ = Do(context.Background(), fastConfig(), func(context.Context) error {
		return errTransient
	}, opts)

	// The callback fires before each retry, not before the first attempt
	// and not after the last.
	assert.Equal(t, []int{1, 2}, notified)
}

func TestDoContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Do(ctx, fastConfig(), func(context.Context) error {
		t.Error("must not run with cancelled context")
		return nil
	}, nil)

	assert.ErrorIs(t, err, context.Canceled)
}

func TestDoContextCancelledBetweenAttempts(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	attempts := 0
	err := Do(ctx, &Config{MaxAttempts: 3, Backoff: time.Minute}, func(context.Context) error {
		attempts++
		cancel()
		return errTransient
	}, nil)

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, attempts)
}

func TestConfigDefaults(t *testing.T) {
	var cfg *Config
	assert.Equal(t, DefaultMaxAttempts, cfg.GetMaxAttempts())
	assert.Equal(t, DefaultBackoff, cfg.GetBackoff())

	cfg = &Config{MaxAttempts: -1, Backoff: -1}
	assert.Equal(t, DefaultMaxAttempts, cfg.GetMaxAttempts())
	assert.Equal(t, DefaultBackoff, cfg.GetBackoff())
}
