package store

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedisStore(t *testing.T) *RedisStore {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return NewRedisStore(client, "")
}

func TestRedisStoreTakeWithinCapacity(t *testing.T) {
	s := newTestRedisStore(t)

	b := Bucket{Capacity: 2, RefillPerSecond: 0.001}

	for i := 0; i < 2; i++ {
		take, err := s.Take(context.Background(), "client", b, 1)
		require.NoError(t, err)
		assert.True(t, take.Allowed, "request %d should be allowed", i+1)
	}

	take, err := s.Take(context.Background(), "client", b, 1)
	require.NoError(t, err)
	assert.False(t, take.Allowed)
	assert.Equal(t, 0, take.Remaining)
	assert.Greater(t, take.RetryAfter, time.Duration(0))
}

func TestRedisStoreRefill(t *testing.T) {
	s := newTestRedisStore(t)

	b := Bucket{Capacity: 1, RefillPerSecond: 100}

	take, err := s.Take(context.Background(), "client", b, 1)
	require.NoError(t, err)
	require.True(t, take.Allowed)

	take, err = s.Take(context.Background(), "client", b, 1)
	require.NoError(t, err)
	require.False(t, take.Allowed)

	time.Sleep(30 * time.Millisecond)

	take, err = s.Take(context.Background(), "client", b, 1)
	require.NoError(t, err)
	assert.True(t, take.Allowed)
}

func TestRedisStoreIndependentKeys(t *testing.T) {
	s := newTestRedisStore(t)

	b := Bucket{Capacity: 1, RefillPerSecond: 0.001}

	take, err := s.Take(context.Background(), "a", b, 1)
	require.NoError(t, err)
	require.True(t, take.Allowed)

	take, err = s.Take(context.Background(), "b", b, 1)
	require.NoError(t, err)
	assert.True(t, take.Allowed)
}

func TestRedisStoreReset(t *testing.T) {
	s := newTestRedisStore(t)

	b := Bucket{Capacity: 1, RefillPerSecond: 0.001}

	take, err := s.Take(context.Background(), "client", b, 1)
	require.NoError(t, err)
	require.True(t, take.Allowed)

	require.NoError(t, s.Reset(context.Background(), "client"))

	take, err = s.Take(context.Background(), "client", b, 1)
	require.NoError(t, err)
	assert.True(t, take.Allowed)
}

func TestRedisStoreUnavailable(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	s := NewRedisStore(client, "")
	mr.Close()

	_, err := s.Take(context.Background(), "client", Bucket{Capacity: 1, RefillPerSecond: 1}, 1)
	assert.Error(t, err)
}
