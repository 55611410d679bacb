package cache

import (
	"context"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// Local is an in-process cache.
type Local struct {
	c *gocache.Cache
}

// NewLocal creates an in-process cache. Expired entries are purged every
// cleanup interval.
func NewLocal(cleanup time.Duration) *Local {
	return &Local{c: gocache.New(gocache.NoExpiration, cleanup)}
}

func (l *Local) Get(_ context.Context, key string) (string, bool, error) {
	v, ok := l.c.Get(key)
	if !ok {
		return "", false, nil
	}
	s, ok := v.(string)
	return s, ok, nil
}

func (l *Local) Set(_ context.Context, key, value string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = gocache.NoExpiration
	}
	l.c.Set(key, value, ttl)
	return nil
}

func (l *Local) Delete(_ context.Context, keys ...string) error {
	for _, k := range keys {
		l.c.Delete(k)
	}
	return nil
}

// DeletePrefix drops every key starting with prefix. The empty prefix
// flushes the cache.
func (l *Local) DeletePrefix(_ context.Context, prefix string) error {
	if prefix == "" {
		l.c.Flush()
		return nil
	}
	for k := range l.c.Items() {
		if strings.HasPrefix(k, prefix) {
			l.c.Delete(k)
		}
	}
	return nil
}

// Len returns the number of stored entries, expired ones included until
// the next cleanup.
func (l *Local) Len() int {
	return l.c.ItemCount()
}
