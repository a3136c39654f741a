package amplitude

import (
	"sync"
	"sync/atomic"
)

// VariantCache holds the last successfully fetched [VariantSet].
//
// Writers replace the whole snapshot under a mutex; readers load the current
// snapshot through an atomic pointer and never block. A reader therefore sees
// either the previous set or the next one, never a mix of both.
type VariantCache struct {
	mu      sync.Mutex
	current atomic.Pointer[VariantSet]
}

// NewVariantCache returns an empty cache.
func NewVariantCache() *VariantCache {
	return &VariantCache{}
}

// Apply replaces the cached set with set. The cache takes ownership of set;
// callers must not modify it afterwards.
func (c *VariantCache) Apply(set VariantSet) {
	if set == nil {
		set = VariantSet{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current.Store(&set)
}

// Lookup returns a copy of the cached variant for flagKey.
// The second result is false when no variant is cached for the key.
func (c *VariantCache) Lookup(flagKey string) (Variant, bool) {
	snapshot := c.current.Load()
	if snapshot == nil {
		return Variant{}, false
	}
	v, ok := (*snapshot)[flagKey]
	if !ok {
		return Variant{}, false
	}
	return v.clone(), true
}

// Snapshot returns a deep copy of the current set. The result is never nil.
func (c *VariantCache) Snapshot() VariantSet {
	snapshot := c.current.Load()
	if snapshot == nil {
		return VariantSet{}
	}
	set := make(VariantSet, len(*snapshot))
	for flagKey, v := range *snapshot {
		set[flagKey] = v.clone()
	}
	return set
}

// Clear empties the cache. Lookups miss until the next Apply.
func (c *VariantCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current.Store(nil)
}
