package cache

import (
	"context"
	"encoding/json"
	"time"

	"golang.org/x/time/rate"

	"github.com/edgefront/bffgw/internal/config"
	"github.com/edgefront/bffgw/internal/observability"
)

// FetchFunc loads entities by id from a downstream batch endpoint. Ids the
// downstream does not know are simply absent from the result.
type FetchFunc[V any] func(ctx context.Context, ids []string) (map[string]V, error)

// BatchLoader is a read-through loader over one cache space. A batch
// request is split into cached hits and misses; misses are fetched from
// the downstream in bounded chunks, issued sequentially, and stored back.
//
// The loader degrades instead of failing: a cache outage falls through to
// the fetch, and a fetch failure returns whatever was already resolved.
type BatchLoader[V any] struct {
	entity    string
	cache     Cache
	fetch     FetchFunc[V]
	chunkSize int
	ttl       time.Duration
	pacer     *rate.Limiter
	logger    observability.Logger
}

// LoaderOption is a functional option for configuring a batch loader.
type LoaderOption[V any] func(*BatchLoader[V])

// WithLoaderLogger sets the logger for the loader.
func WithLoaderLogger[V any](logger observability.Logger) LoaderOption[V] {
	return func(l *BatchLoader[V]) {
		l.logger = logger
	}
}

// NewBatchLoader creates a read-through loader for one entity type. When
// the configuration sets a fetch rate, chunk fetches are paced to it.
func NewBatchLoader[V any](cfg config.CacheSpaceConfig, c Cache, fetch FetchFunc[V], opts ...LoaderOption[V]) *BatchLoader[V] {
	chunkSize := cfg.ChunkSize
	if chunkSize <= 0 {
		chunkSize = config.DefaultBatchChunkSize
	}

	l := &BatchLoader[V]{
		entity:    cfg.Entity,
		cache:     c,
		fetch:     fetch,
		chunkSize: chunkSize,
		ttl:       cfg.TTL.Duration(),
		logger:    observability.NopLogger(),
	}

	if cfg.FetchRatePerSecond > 0 {
		l.pacer = rate.NewLimiter(rate.Limit(cfg.FetchRatePerSecond), 1)
	}

	for _, opt := range opts {
		opt(l)
	}

	return l
}

// GetOne resolves a single id. The second return reports whether the id
// resolved anywhere.
func (l *BatchLoader[V]) GetOne(ctx context.Context, id string) (V, bool) {
	results := l.GetBatch(ctx, []string{id})
	v, ok := results[id]
	return v, ok
}

// GetBatch resolves ids through the cache, fetching misses from the
// downstream. Ids that resolve nowhere are absent from the result; the
// batch as a whole never fails.
func (l *BatchLoader[V]) GetBatch(ctx context.Context, ids []string) map[string]V {
	ids = dedupe(ids)
	results := make(map[string]V, len(ids))
	if len(ids) == 0 {
		return results
	}

	missing := l.fromCache(ctx, ids, results)
	if len(missing) == 0 {
		return results
	}

	l.fetchMissing(ctx, missing, results)

	return results
}

// fromCache fills results from the cache and returns the ids still
// missing. A cache error degrades to fetching everything.
func (l *BatchLoader[V]) fromCache(ctx context.Context, ids []string, results map[string]V) []string {
	cached, err := l.cache.GetMulti(ctx, ids)
	if err != nil {
		l.logger.Warn("cache unavailable, falling through to fetch",
			observability.String("entity", l.entity),
			observability.Error(err),
		)
		return ids
	}

	var missing []string
	for _, id := range ids {
		data, ok := cached[id]
		if !ok {
			missing = append(missing, id)
			continue
		}
		var v V
		if err := json.Unmarshal(data, &v); err != nil {
			missing = append(missing, id)
			continue
		}
		results[id] = v
	}

	return missing
}

// fetchMissing fetches ids from the downstream in sequential chunks and
// stores results back into the cache. A chunk failure abandons the
// remaining chunks; everything resolved so far is kept.
func (l *BatchLoader[V]) fetchMissing(ctx context.Context, missing []string, results map[string]V) {
	for start := 0; start < len(missing); start += l.chunkSize {
		end := start + l.chunkSize
		if end > len(missing) {
			end = len(missing)
		}
		chunk := missing[start:end]

		if l.pacer != nil {
			if err := l.pacer.Wait(ctx); err != nil {
				return
			}
		}

		fetched, err := l.fetch(ctx, chunk)
		if err != nil {
			RecordBatchFetch(l.entity, "error")
			l.logger.Warn("batch fetch failed, returning partial results",
				observability.String("entity", l.entity),
				observability.Int("requested", len(chunk)),
				observability.Error(err),
			)
			return
		}
		RecordBatchFetch(l.entity, "ok")

		for id, v := range fetched {
			results[id] = v
			l.store(ctx, id, v)
		}
	}
}

// store writes one fetched entity back to the cache. Store failures are
// absorbed.
func (l *BatchLoader[V]) store(ctx context.Context, id string, v V) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := l.cache.Set(ctx, id, data, l.ttl); err != nil {
		l.logger.Warn("cache store failed",
			observability.String("entity", l.entity),
			observability.String("id", id),
			observability.Error(err),
		)
	}
}

// Evict removes one id from the cache.
func (l *BatchLoader[V]) Evict(ctx context.Context, id string) error {
	return l.cache.Delete(ctx, id)
}

// EvictAsync removes one id without blocking the caller. Used after
// mutations so the response path never waits on the cache.
func (l *BatchLoader[V]) EvictAsync(id string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := l.cache.Delete(ctx, id); err != nil {
			l.logger.Warn("async eviction failed",
				observability.String("entity", l.entity),
				observability.String("id", id),
				observability.Error(err),
			)
		}
	}()
}

// dedupe removes duplicate ids preserving first-seen order.
func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := ids[:0:0]
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
