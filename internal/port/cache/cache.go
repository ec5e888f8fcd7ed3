// Package cache defines the port interface for caching.
package cache

import (
	"context"
	"time"
)

// Cache is the port interface for key-value caching.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// LoadFunc produces the value for a cache miss.
type LoadFunc func(ctx context.Context) ([]byte, error)

// Loader is implemented by caches that collapse concurrent misses for the
// same key into a single load.
type Loader interface {
	GetOrLoad(ctx context.Context, key string, ttl time.Duration, load LoadFunc) ([]byte, error)
}

// GetOrLoad returns the cached value for key, calling load and storing its
// result on a miss. Cache read and write failures fall through to load.
func GetOrLoad(ctx context.Context, c Cache, key string, ttl time.Duration, load LoadFunc) ([]byte, error) {
	if l, ok := c.(Loader); ok {
		return l.GetOrLoad(ctx, key, ttl, load)
	}
	if val, ok, err := c.Get(ctx, key); err == nil && ok {
		return val, nil
	}
	val, err := load(ctx)
	if err != nil {
		return nil, err
	}
	_ = c.Set(ctx, key, val, ttl)
	return val, nil
}
