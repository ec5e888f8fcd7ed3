// Package tiered layers an in-process cache over a shared remote one.
package tiered

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Strob0t/agentrouter/internal/port/cache"
)

var (
	_ cache.Cache  = (*Cache)(nil)
	_ cache.Loader = (*Cache)(nil)
)

// Cache reads from near (L1) before far (L2) and promotes far hits into
// near. Writes and deletes go to both. A nil far level is allowed.
type Cache struct {
	near    cache.Cache
	far     cache.Cache
	nearTTL time.Duration
	loads   singleflight.Group
}

// New returns a two-level cache. nearTTL caps how long entries live in the
// near level; zero means the caller's TTL applies unchanged.
func New(near, far cache.Cache, nearTTL time.Duration) *Cache {
	return &Cache{near: near, far: far, nearTTL: nearTTL}
}

// Get returns the value from the first level that has it. A near-level
// failure is logged and the far level is still consulted.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, ok, err := c.near.Get(ctx, key)
	switch {
	case err != nil && c.far == nil:
		return nil, false, err
	case err != nil:
		slog.DebugContext(ctx, "near cache get failed", "key", key, "error", err)
	case ok || c.far == nil:
		return val, ok, nil
	}

	val, ok, err = c.far.Get(ctx, key)
	if err != nil || !ok {
		return nil, false, err
	}
	_ = c.near.Set(ctx, key, val, c.nearTTL)
	return val, true, nil
}

func (c *Cache) nearExpiry(ttl time.Duration) time.Duration {
	if c.nearTTL <= 0 {
		return ttl
	}
	if ttl <= 0 || c.nearTTL < ttl {
		return c.nearTTL
	}
	return ttl
}

// Set stores value in both levels.
func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	err := c.near.Set(ctx, key, value, c.nearExpiry(ttl))
	if c.far != nil {
		err = errors.Join(err, c.far.Set(ctx, key, value, ttl))
	}
	return err
}

// Delete removes key from both levels, attempting each even if one fails.
func (c *Cache) Delete(ctx context.Context, key string) error {
	err := c.near.Delete(ctx, key)
	if c.far != nil {
		err = errors.Join(err, c.far.Delete(ctx, key))
	}
	return err
}

// GetOrLoad returns the cached value or runs load once per key across
// concurrent callers. The load is detached from the cancellation of whichever
// caller started it. Cache failures are logged; load errors are returned and
// never stored.
func (c *Cache) GetOrLoad(ctx context.Context, key string, ttl time.Duration, load cache.LoadFunc) ([]byte, error) {
	val, ok, err := c.Get(ctx, key)
	if err != nil {
		slog.WarnContext(ctx, "cache get failed", "key", key, "error", err)
	}
	if ok {
		return val, nil
	}

	res := c.loads.DoChan(key, func() (any, error) {
		lctx := context.WithoutCancel(ctx)
		data, err := load(lctx)
		if err != nil {
			return nil, err
		}
		if err := c.Set(lctx, key, data, ttl); err != nil {
			slog.WarnContext(lctx, "cache set failed", "key", key, "error", err)
		}
		return data, nil
	})
	select {
	case r := <-res:
		if r.Err != nil {
			return nil, r.Err
		}
		return r.Val.([]byte), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
