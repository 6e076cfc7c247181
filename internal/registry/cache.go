package registry

import (
	"clientreg/internal/metrics"
	"clientreg/internal/ports"
	"clientreg/internal/types"
	"context"
	"sync"

	json "github.com/goccy/go-json"
	log "github.com/sirupsen/logrus"
)

// coherentCache wraps a ResponseCache so that a read which raced a write can never leave
// a stale entry behind. Readers take a generation ticket before querying the store and
// fill the cache only if no invalidation happened since. Fill and invalidate hold the
// same lock, so an invalidation either wins (the fill is dropped) or runs after the fill
// (and removes it).
//
// The guard covers writers in this process. With a shared Redis cache, writes from other
// instances are bounded by the cache TTL.
type coherentCache struct {
	backend ports.ResponseCache

	mu  sync.Mutex
	gen uint64
}

func newCoherentCache(backend ports.ResponseCache) *coherentCache {
	return &coherentCache{backend: backend}
}

// ticket returns the current generation. Take it before reading the store.
func (c *coherentCache) ticket() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen
}

// load decodes the cached value for key into v. Backend and decode failures count as a miss.
func (c *coherentCache) load(ctx context.Context, key types.CacheKey, v any) bool {
	b, ok, err := c.backend.Get(ctx, key)
	if err != nil {
		metrics.CacheErrorsTotal.WithLabelValues("get").Inc()
		log.WithError(err).WithField("key", key.String()).Warn("response cache get failed")
		return false
	}
	if !ok {
		metrics.CacheLookupsTotal.WithLabelValues(key.Kind(), "miss").Inc()
		return false
	}
	if err := json.Unmarshal(b, v); err != nil {
		metrics.CacheLookupsTotal.WithLabelValues(key.Kind(), "miss").Inc()
		log.WithError(err).WithField("key", key.String()).Warn("discarding undecodable cache entry")
		return false
	}
	metrics.CacheLookupsTotal.WithLabelValues(key.Kind(), "hit").Inc()
	return true
}

// fill stores v under key unless the cache was invalidated after ticket was taken.
func (c *coherentCache) fill(ctx context.Context, ticket uint64, key types.CacheKey, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		log.WithError(err).WithField("key", key.String()).Error("failed to encode cache entry")
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != ticket {
		metrics.CacheSetsSkippedTotal.Inc()
		return
	}
	if err := c.backend.Set(ctx, key, b); err != nil {
		metrics.CacheErrorsTotal.WithLabelValues("set").Inc()
		log.WithError(err).WithField("key", key.String()).Warn("response cache set failed")
	}
}

// invalidate drops every key and bumps the generation. It returns the first backend error
// after attempting all keys.
func (c *coherentCache) invalidate(ctx context.Context, keys ...types.CacheKey) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	var first error
	for _, k := range keys {
		if err := c.backend.Invalidate(ctx, k); err != nil {
			metrics.CacheErrorsTotal.WithLabelValues("invalidate").Inc()
			if first == nil {
				first = err
			}
		}
	}
	return first
}
