package redis

import (
	"clientreg/internal/types"
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	cacheKeyNameTemplate = "_clientreg_cache_"
)

var (
	errEmptyValue      = errors.New("empty cached value")
	errUnknownEncoding = errors.New("unknown cached value encoding")
)

// ResponseCache shares cached responses between instances. Entries expire after ttl.
type ResponseCache struct {
	cli *redis.Client
	ttl time.Duration
}

func NewResponseCache(cli *redis.Client, ttl time.Duration) *ResponseCache {
	return &ResponseCache{cli: cli, ttl: ttl}
}

func (c *ResponseCache) Get(ctx context.Context, key types.CacheKey) ([]byte, bool, error) {
	b, err := c.cli.Get(ctx, getCacheKey(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, err
	}
	v, err := decodeValue(b)
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}

func (c *ResponseCache) Set(ctx context.Context, key types.CacheKey, value []byte) error {
	return c.cli.Set(ctx, getCacheKey(key), encodeValue(value), c.ttl).Err()
}

func (c *ResponseCache) Invalidate(ctx context.Context, key types.CacheKey) error {
	return c.cli.Del(ctx, getCacheKey(key)).Err()
}

func getCacheKey(key types.CacheKey) string {
	return cacheKeyNameTemplate + key.String()
}
