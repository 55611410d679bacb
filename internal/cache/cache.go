// Package cache is the keyed string cache that fronts the store on the hot
// path. Keys follow the cachekey namespace; values are rendered XML, session
// JSON or scalar settings.
package cache

import (
	"context"
	"fmt"
	"time"
)

// NoExpiry stores a value until it is deleted.
const NoExpiry time.Duration = 0

// Cache is a keyed string cache. Implementations must be safe for concurrent
// use. Set with a ttl of NoExpiry keeps the value until deleted.
type Cache interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	DeletePrefix(ctx context.Context, prefix string) error
}

// Fetch returns the cached value for key, calling load on a miss and storing
// its result. A failing cache read falls through to load; a failing write is
// returned alongside the loaded value.
func Fetch(ctx context.Context, c Cache, key string, ttl time.Duration, load func(ctx context.Context) (string, error)) (value string, hit bool, err error) {
	if v, ok, err := c.Get(ctx, key); err == nil && ok {
		return v, true, nil
	}
	v, err := load(ctx)
	if err != nil {
		return "", false, err
	}
	if err := c.Set(ctx, key, v, ttl); err != nil {
		return v, false, fmt.Errorf("storing %s: %w", key, err)
	}
	return v, false, nil
}
