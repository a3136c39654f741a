package amplitude

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// Cache stores remote evaluation results keyed by a hash of the user.
// You may want to provide an implementation using a library like github.com/hashicorp/golang-lru/v2,
// or use [NewTTLCache].
// A cache lets repeated fetches for the same identity skip the round trip to Amplitude.
type Cache interface {
	// Set sets the value for the given key.
	Set(ctx context.Context, key string, value any) error
	// Get gets the value for the given key.
	Get(ctx context.Context, key string) (any, error)
}

// cacheClearer is implemented by caches that can drop every entry.
// The bridge's Clear flushes such caches together with the variant cache.
type cacheClearer interface {
	Clear(ctx context.Context) error
}

// TTLCache is an in-memory [Cache] whose entries expire after a fixed TTL.
type TTLCache struct {
	items *gocache.Cache
}

// NewTTLCache returns a [TTLCache] that keeps entries for ttl.
// Expired entries are purged every 2*ttl.
func NewTTLCache(ttl time.Duration) *TTLCache {
	return &TTLCache{
		items: gocache.New(ttl, 2*ttl),
	}
}

// Set implements [Cache].
func (c *TTLCache) Set(_ context.Context, key string, value any) error {
	c.items.Set(key, value, gocache.DefaultExpiration)
	return nil
}

// Get implements [Cache]. A missing or expired key returns nil and no error.
func (c *TTLCache) Get(_ context.Context, key string) (any, error) {
	if value, found := c.items.Get(key); found {
		return value, nil
	}
	return nil, nil
}

// Clear drops every entry.
func (c *TTLCache) Clear(context.Context) error {
	c.items.Flush()
	return nil
}

var _ cacheClearer = (*TTLCache)(nil)
