package store

import (
	"context"
	"sync"
	"time"
)

// MemoryStore implements Store with per-key in-memory buckets. Buckets are
// created lazily with an atomic create-if-absent; different keys never
// contend on a shared lock.
type MemoryStore struct {
	buckets sync.Map

	cleanupInterval time.Duration
	bucketTTL       time.Duration
	stopCleanup     chan struct{}
	closeOnce       sync.Once
}

// bucketState is the mutable state for a single key.
type bucketState struct {
	mu         sync.Mutex
	tokens     float64
	lastUpdate time.Time
}

// NewMemoryStore creates a new in-memory store. A background goroutine
// removes buckets idle longer than their TTL; call Close to stop it.
func NewMemoryStore() *MemoryStore {
	return NewMemoryStoreWithTTL(5*time.Minute, 10*time.Minute)
}

// NewMemoryStoreWithTTL creates a new in-memory store with custom cleanup
// settings.
func NewMemoryStoreWithTTL(cleanupInterval, bucketTTL time.Duration) *MemoryStore {
	s := &MemoryStore{
		cleanupInterval: cleanupInterval,
		bucketTTL:       bucketTTL,
		stopCleanup:     make(chan struct{}),
	}

	go s.cleanupLoop()

	return s
}

// Take implements Store.
func (s *MemoryStore) Take(_ context.Context, key string, b Bucket, cost int) (Take, error) {
	now := time.Now()

	value, _ := s.buckets.LoadOrStore(key, &bucketState{
		tokens:     float64(b.Capacity),
		lastUpdate: now,
	})
	state := value.(*bucketState)

	state.mu.Lock()
	defer state.mu.Unlock()

	// Refill based on elapsed time. The timestamp never moves backwards, so
	// a clock adjustment cannot mint tokens or eat them.
	if now.After(state.lastUpdate) {
		elapsed := now.Sub(state.lastUpdate).Seconds()
		state.tokens += elapsed * b.RefillPerSecond
		if state.tokens > float64(b.Capacity) {
			state.tokens = float64(b.Capacity)
		}
		state.lastUpdate = now
	}

	// All-or-nothing deduction.
	allowed := state.tokens >= float64(cost)
	if allowed {
		state.tokens -= float64(cost)
	}

	remaining := int(state.tokens)
	if remaining < 0 {
		remaining = 0
	}

	resetAfter := durationForTokens(float64(b.Capacity)-state.tokens, b.RefillPerSecond)

	var retryAfter time.Duration
	if !allowed {
		retryAfter = durationForTokens(float64(cost)-state.tokens, b.RefillPerSecond)
	}

	return Take{
		Allowed:    allowed,
		Remaining:  remaining,
		ResetAfter: resetAfter,
		RetryAfter: retryAfter,
	}, nil
}

// Reset implements Store.
func (s *MemoryStore) Reset(_ context.Context, key string) error {
	s.buckets.Delete(key)
	return nil
}

// Close implements Store. Safe to call multiple times.
func (s *MemoryStore) Close() error {
	s.closeOnce.Do(func() {
		close(s.stopCleanup)
	})
	return nil
}

// Size returns the number of buckets currently held.
func (s *MemoryStore) Size() int {
	count := 0
	s.buckets.Range(func(_, _ interface{}) bool {
		count++
		return true
	})
	return count
}

// durationForTokens returns the time needed to refill the given number of
// tokens at the given rate.
func durationForTokens(tokens, refillPerSecond float64) time.Duration {
	if tokens <= 0 || refillPerSecond <= 0 {
		return 0
	}
	return time.Duration(tokens / refillPerSecond * float64(time.Second))
}

// cleanupLoop periodically removes buckets idle longer than the TTL.
func (s *MemoryStore) cleanupLoop() {
	ticker := time.NewTicker(s.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.removeStale(s.bucketTTL)
		case <-s.stopCleanup:
			return
		}
	}
}

// removeStale drops buckets not touched within maxAge.
func (s *MemoryStore) removeStale(maxAge time.Duration) {
	now := time.Now()

	s.buckets.Range(func(key, value interface{}) bool {
		state := value.(*bucketState)
		state.mu.Lock()
		stale := now.Sub(state.lastUpdate) > maxAge
		state.mu.Unlock()
		if stale {
			s.buckets.Delete(key)
		}
		return true
	})
}
