// Package cache provides per-entity cache spaces and a batch-aware
// read-through loader. Each entity type gets an independent space with its
// own TTL, size bound and backend.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/edgefront/bffgw/internal/config"
	"github.com/edgefront/bffgw/internal/observability"
)

// Common cache errors.
var (
	// ErrCacheMiss indicates that the key was not found in the cache.
	ErrCacheMiss = errors.New("cache miss")
)

// Cache is one entity type's cache space. Values are opaque bytes; the
// batch loader handles encoding.
type Cache interface {
	// Get retrieves a value. Returns ErrCacheMiss if the key is not found
	// or has expired.
	Get(ctx context.Context, key string) ([]byte, error)

	// GetMulti retrieves several keys at once. Missing keys are simply
	// absent from the result.
	GetMulti(ctx context.Context, keys []string) (map[string][]byte, error)

	// Set stores a value with the given TTL. A TTL of 0 uses the space
	// default.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a value.
	Delete(ctx context.Context, key string) error

	// Close releases cache resources.
	Close() error
}

// CacheWithStats extends Cache with statistics.
type CacheWithStats interface {
	Cache

	// Stats returns cache statistics.
	Stats() Stats
}

// Stats contains cache statistics.
type Stats struct {
	// Hits is the number of cache hits.
	Hits int64

	// Misses is the number of cache misses.
	Misses int64

	// Size is the current number of entries.
	Size int64
}

// HitRate returns the hit rate as a percentage.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total) * 100
}

// New creates a cache space from its configuration.
func New(cfg config.CacheSpaceConfig, logger observability.Logger) (Cache, error) {
	if logger == nil {
		logger = observability.NopLogger()
	}

	switch cfg.Backend {
	case "memory", "":
		return newMemoryCache(cfg, logger), nil
	case "redis":
		return newRedisCache(cfg, logger)
	default:
		return nil, fmt.Errorf("unknown cache backend: %s", cfg.Backend)
	}
}
