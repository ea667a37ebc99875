package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/edgefront/bffgw/internal/config"
	"github.com/edgefront/bffgw/internal/observability"
)

// redisCache is a Redis-backed cache space shared between gateway
// instances.
type redisCache struct {
	entity     string
	client     *redis.Client
	prefix     string
	defaultTTL time.Duration
	logger     observability.Logger
}

// newRedisCache creates a Redis-backed cache space.
func newRedisCache(cfg config.CacheSpaceConfig, logger observability.Logger) (*redisCache, error) {
	if cfg.Redis == nil || cfg.Redis.Addr == "" {
		return nil, fmt.Errorf("redis backend for %s requires an address", cfg.Entity)
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	c := &redisCache{
		entity:     cfg.Entity,
		client:     client,
		prefix:     "bffgw:cache:" + cfg.Entity + ":",
		defaultTTL: cfg.TTL.Duration(),
		logger:     logger,
	}

	logger.Info("redis cache initialized",
		observability.String("entity", cfg.Entity),
		observability.String("addr", cfg.Redis.Addr))

	return c, nil
}

// Get retrieves a value from Redis.
func (c *redisCache) Get(ctx context.Context, key string) ([]byte, error) {
	value, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		RecordMiss(c.entity, "redis")
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}

	RecordHit(c.entity, "redis")
	return value, nil
}

// GetMulti retrieves several keys with one MGET. Missing keys are absent
// from the result.
func (c *redisCache) GetMulti(ctx context.Context, keys []string) (map[string][]byte, error) {
	if len(keys) == 0 {
		return map[string][]byte{}, nil
	}

	prefixed := make([]string, len(keys))
	for i, key := range keys {
		prefixed[i] = c.prefix + key
	}

	values, err := c.client.MGet(ctx, prefixed...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis mget: %w", err)
	}

	found := make(map[string][]byte, len(keys))
	for i, value := range values {
		if value == nil {
			RecordMiss(c.entity, "redis")
			continue
		}
		s, ok := value.(string)
		if !ok {
			RecordMiss(c.entity, "redis")
			continue
		}
		RecordHit(c.entity, "redis")
		found[keys[i]] = []byte(s)
	}

	return found, nil
}

// Set stores a value in Redis.
func (c *redisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl == 0 {
		ttl = c.defaultTTL
	}

	if err := c.client.Set(ctx, c.prefix+key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}

	return nil
}

// Delete removes a value from Redis.
func (c *redisCache) Delete(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, c.prefix+key).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}

	return nil
}

// Close closes the Redis connection.
func (c *redisCache) Close() error {
	return c.client.Close()
}
