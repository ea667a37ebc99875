package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgefront/bffgw/internal/ratelimit/store"
)

func TestTokenBucketLimiterAllowAndDeny(t *testing.T) {
	s := store.NewMemoryStore()
	defer s.Close()

	l := NewTokenBucketLimiter(s)
	b := store.Bucket{Capacity: 3, RefillPerSecond: 0.001}

	for i := 0; i < 3; i++ {
		result := l.Allow(context.Background(), "user:u1", b, 1)
		assert.True(t, result.Allowed)
		assert.Equal(t, 3, result.Limit)
	}

	result := l.Allow(context.Background(), "user:u1", b, 1)
	assert.False(t, result.Allowed)
	assert.Greater(t, result.RetryAfter, time.Duration(0))
}

func TestTokenBucketLimiterDefaultCost(t *testing.T) {
	s := store.NewMemoryStore()
	defer s.Close()

	l := NewTokenBucketLimiter(s)
	b := store.Bucket{Capacity: 1, RefillPerSecond: 0.001}

	result := l.Allow(context.Background(), "k", b, 0)
	assert.True(t, result.Allowed)

	result = l.Allow(context.Background(), "k", b, 0)
	assert.False(t, result.Allowed)
}

// failingStore simulates an unavailable backing store.
type failingStore struct{}

func (failingStore) Take(context.Context, string, store.Bucket, int) (store.Take, error) {
	return store.Take{}, errors.New("store down")
}

func (failingStore) Reset(context.Context, string) error { return nil }
func (failingStore) Close() error                        { return nil }

func TestTokenBucketLimiterFailsOpen(t *testing.T) {
	l := NewTokenBucketLimiter(failingStore{})
	b := store.Bucket{Capacity: 5, RefillPerSecond: 1}

	result := l.Allow(context.Background(), "k", b, 1)
	assert.True(t, result.Allowed)
	assert.Equal(t, 5, result.Remaining)
}

func TestTokenBucketLimiterReset(t *testing.T) {
	s := store.NewMemoryStore()
	defer s.Close()

	l := NewTokenBucketLimiter(s)
	b := store.Bucket{Capacity: 1, RefillPerSecond: 0.001}

	require.True(t, l.Allow(context.Background(), "k", b, 1).Allowed)
	require.False(t, l.Allow(context.Background(), "k", b, 1).Allowed)

	require.NoError(t, l.Reset(context.Background(), "k"))
	assert.True(t, l.Allow(context.Background(), "k", b, 1).Allowed)
}
