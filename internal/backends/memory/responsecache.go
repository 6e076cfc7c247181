package memory

import (
	"clientreg/internal/types"
	"context"
	"time"
)

// ResponseCache keeps serialized responses in process, each for a fixed TTL.
type ResponseCache struct {
	ttl   time.Duration
	items *TTL[string, []byte]
}

func NewResponseCache(ttl time.Duration) *ResponseCache {
	return &ResponseCache{ttl: ttl, items: NewTTL[string, []byte]()}
}

func (c *ResponseCache) Get(_ context.Context, key types.CacheKey) ([]byte, bool, error) {
	v, ok := c.items.Get(key.String())
	return v, ok, nil
}

func (c *ResponseCache) Set(_ context.Context, key types.CacheKey, value []byte) error {
	c.items.Set(key.String(), value, c.ttl)
	return nil
}

func (c *ResponseCache) Invalidate(_ context.Context, key types.CacheKey) error {
	c.items.Delete(key.String())
	return nil
}

// RunJanitor sweeps expired entries every interval until ctx is done.
func (c *ResponseCache) RunJanitor(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.items.Sweep()
		}
	}
}
