package cache

import (
	"container/list"
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/edgefront/bffgw/internal/config"
	"github.com/edgefront/bffgw/internal/observability"
)

// memoryCache is an in-memory LRU cache with TTL.
type memoryCache struct {
	entity     string
	logger     observability.Logger
	maxEntries int
	defaultTTL time.Duration

	mu       sync.Mutex
	items    map[string]*list.Element
	eviction *list.List

	hits   int64
	misses int64

	stopCh    chan struct{}
	closeOnce sync.Once
}

// memoryCacheEntry is one entry in the memory cache.
type memoryCacheEntry struct {
	key       string
	value     []byte
	expiresAt time.Time
}

// newMemoryCache creates an in-memory cache space. A background goroutine
// removes expired entries; Close stops it.
func newMemoryCache(cfg config.CacheSpaceConfig, logger observability.Logger) *memoryCache {
	maxEntries := cfg.MaxEntries
	if maxEntries <= 0 {
		maxEntries = config.DefaultCacheMaxEntries
	}

	c := &memoryCache{
		entity:     cfg.Entity,
		logger:     logger,
		maxEntries: maxEntries,
		defaultTTL: cfg.TTL.Duration(),
		items:      make(map[string]*list.Element),
		eviction:   list.New(),
		stopCh:     make(chan struct{}),
	}

	go c.cleanupLoop()

	logger.Info("memory cache initialized",
		observability.String("entity", c.entity),
		observability.Int("maxEntries", maxEntries),
		observability.Duration("defaultTTL", c.defaultTTL))

	return c
}

// Get retrieves a value from the cache.
func (c *memoryCache) Get(_ context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	value, ok := c.get(key)
	if !ok {
		atomic.AddInt64(&c.misses, 1)
		RecordMiss(c.entity, "memory")
		return nil, ErrCacheMiss
	}

	atomic.AddInt64(&c.hits, 1)
	RecordHit(c.entity, "memory")

	return value, nil
}

// GetMulti retrieves several keys at once. Missing keys are absent from
// the result.
func (c *memoryCache) GetMulti(_ context.Context, keys []string) (map[string][]byte, error) {
	found := make(map[string][]byte, len(keys))

	c.mu.Lock()
	defer c.mu.Unlock()

	for _, key := range keys {
		value, ok := c.get(key)
		if !ok {
			atomic.AddInt64(&c.misses, 1)
			RecordMiss(c.entity, "memory")
			continue
		}
		atomic.AddInt64(&c.hits, 1)
		RecordHit(c.entity, "memory")
		found[key] = value
	}

	return found, nil
}

// get looks up a live entry and bumps its recency. Caller holds the lock.
func (c *memoryCache) get(key string) ([]byte, bool) {
	elem, exists := c.items[key]
	if !exists {
		return nil, false
	}

	entry := elem.Value.(*memoryCacheEntry)
	if !entry.expiresAt.IsZero() && time.Now().After(entry.expiresAt) {
		c.removeElement(elem)
		return nil, false
	}

	c.eviction.MoveToFront(elem)
	return entry.value, true
}

// Set stores a value in the cache.
func (c *memoryCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl == 0 {
		ttl = c.defaultTTL
	}

	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = time.Now().Add(ttl)
	}

	entry := &memoryCacheEntry{
		key:       key,
		value:     value,
		expiresAt: expiresAt,
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, exists := c.items[key]; exists {
		c.eviction.MoveToFront(elem)
		elem.Value = entry
		return nil
	}

	elem := c.eviction.PushFront(entry)
	c.items[key] = elem

	for c.eviction.Len() > c.maxEntries {
		c.evictOldest()
	}

	RecordSize(c.entity, "memory", c.eviction.Len())

	return nil
}

// Delete removes a value from the cache.
func (c *memoryCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, exists := c.items[key]; exists {
		c.removeElement(elem)
	}

	return nil
}

// Close stops the cleanup goroutine and clears the cache.
func (c *memoryCache) Close() error {
	c.closeOnce.Do(func() {
		close(c.stopCh)
	})

	c.mu.Lock()
	defer c.mu.Unlock()

	c.items = make(map[string]*list.Element)
	c.eviction.Init()

	return nil
}

// Stats returns cache statistics.
func (c *memoryCache) Stats() Stats {
	c.mu.Lock()
	size := int64(c.eviction.Len())
	c.mu.Unlock()

	return Stats{
		Hits:   atomic.LoadInt64(&c.hits),
		Misses: atomic.LoadInt64(&c.misses),
		Size:   size,
	}
}

// evictOldest removes the least recently used entry. Caller holds the lock.
func (c *memoryCache) evictOldest() {
	elem := c.eviction.Back()
	if elem != nil {
		c.removeElement(elem)
		RecordEviction(c.entity, "memory")
	}
}

// removeElement removes an element. Caller holds the lock.
func (c *memoryCache) removeElement(elem *list.Element) {
	c.eviction.Remove(elem)
	entry := elem.Value.(*memoryCacheEntry)
	delete(c.items, entry.key)
}

// cleanupLoop periodically removes expired entries.
func (c *memoryCache) cleanupLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.cleanup()
		case <-c.stopCh:
			return
		}
	}
}

// cleanup removes expired entries under a single write lock.
func (c *memoryCache) cleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	var toRemove []*list.Element

	for elem := c.eviction.Back(); elem != nil; elem = elem.Prev() {
		entry := elem.Value.(*memoryCacheEntry)
		if !entry.expiresAt.IsZero() && now.After(entry.expiresAt) {
			toRemove = append(toRemove, elem)
		}
	}

	for _, elem := range toRemove {
		c.removeElement(elem)
	}

	if len(toRemove) > 0 {
		c.logger.Debug("cache cleanup completed",
			observability.String("entity", c.entity),
			observability.Int("removed", len(toRemove)))
	}
}
