package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgefront/bffgw/internal/config"
	"github.com/edgefront/bffgw/internal/observability"
)

func newTestRedisCache(t *testing.T) (*redisCache, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)

	c, err := newRedisCache(config.CacheSpaceConfig{
		Entity: "member",
		TTL:    config.Duration(time.Minute),
		Redis:  &config.RedisConfig{Addr: mr.Addr()},
	}, observability.NopLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	return c, mr
}

func TestRedisCacheSetGet(t *testing.T) {
	c, _ := newTestRedisCache(t)

	require.NoError(t, c.Set(context.Background(), "u1", []byte(`{"nickname":"Alice"}`), 0))

	value, err := c.Get(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, []byte(`{"nickname":"Alice"}`), value)
}

func TestRedisCacheMiss(t *testing.T) {
	c, _ := newTestRedisCache(t)

	_, err := c.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestRedisCacheKeysArePrefixed(t *testing.T) {
	c, mr := newTestRedisCache(t)

	require.NoError(t, c.Set(context.Background(), "u1", []byte("v"), 0))

	assert.True(t, mr.Exists("bffgw:cache:member:u1"))
}

func TestRedisCacheTTLExpiry(t *testing.T) {
	c, mr := newTestRedisCache(t)

	require.NoError(t, c.Set(context.Background(), "u1", []byte("v"), time.Second))

	mr.FastForward(2 * time.Second)

	_, err := c.Get(context.Background(), "u1")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestRedisCacheGetMulti(t *testing.T) {
	c, _ := newTestRedisCache(t)

	require.NoError(t, c.Set(context.Background(), "u1", []byte("1"), 0))
	require.NoError(t, c.Set(context.Background(), "u2", []byte("2"), 0))

	found, err := c.GetMulti(context.Background(), []string{"u1", "u2", "u3"})
	require.NoError(t, err)
	assert.Len(t, found, 2)
	assert.Equal(t, []byte("1"), found["u1"])
	assert.NotContains(t, found, "u3")
}

func TestRedisCacheGetMultiEmpty(t *testing.T) {
	c, _ := newTestRedisCache(t)

	found, err := c.GetMulti(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, found)
}

func TestRedisCacheDelete(t *testing.T) {
	c, _ := newTestRedisCache(t)

	require.NoError(t, c.Set(context.Background(), "u1", []byte("v"), 0))
	require.NoError(t, c.Delete(context.Background(), "u1"))

	_, err := c.Get(context.Background(), "u1")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestRedisCacheUnavailable(t *testing.T) {
	c, mr := newTestRedisCache(t)
	mr.Close()

	_, err := c.Get(context.Background(), "u1")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrCacheMiss)

	_, err = c.GetMulti(context.Background(), []string{"u1"})
	assert.Error(t, err)
}

func TestRedisCacheRequiresAddr(t *testing.T) {
	_, err := newRedisCache(config.CacheSpaceConfig{Entity: "x"}, observability.NopLogger())
	assert.Error(t, err)
}
