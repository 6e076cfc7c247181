package ports

import (
	"clientreg/internal/types"
	"context"
)

// ResponseCache holds serialized read responses. After Invalidate(k) the next Get(k)
// MUST miss until the next Set(k, ...). Expiry policy belongs to the implementation.
type ResponseCache interface {
	Get(ctx context.Context, key types.CacheKey) ([]byte, bool, error)
	Set(ctx context.Context, key types.CacheKey, value []byte) error
	Invalidate(ctx context.Context, key types.CacheKey) error
}
