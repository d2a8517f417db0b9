// Package cache holds lazily created service instances keyed by name.
package cache

import (
	"sync"
	"sync/atomic"
)

// InstanceCache stores singleton instances and records lookup statistics.
// Insertion order is retained so owners can release instances in reverse.
type InstanceCache struct {
	mu        sync.RWMutex
	instances map[string]any
	order     []string

	// Statistics (using atomic operations for thread safety)
	stats struct {
		hits   int64
		misses int64
	}
}

// Statistics tracks cache performance metrics.
type Statistics struct {
	Hits   int64
	Misses int64
	Count  int
}

// New creates an empty instance cache.
func New() *InstanceCache {
	return &InstanceCache{
		instances: make(map[string]any),
	}
}

// Get retrieves the instance stored under name.
func (c *InstanceCache) Get(name string) (any, bool) {
	c.mu.RLock()
	instance, ok := c.instances[name]
	c.mu.RUnlock()

	if ok {
		atomic.AddInt64(&c.stats.hits, 1)
	} else {
		atomic.AddInt64(&c.stats.misses, 1)
	}
	return instance, ok
}

// Peek retrieves the instance stored under name without recording a hit or
// a miss.
func (c *InstanceCache) Peek(name string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	instance, ok := c.instances[name]
	return instance, ok
}

// Set stores instance under name. The first stored instance wins; later calls
// for the same name return the existing instance unchanged.
func (c *InstanceCache) Set(name string, instance any) any {
	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, ok := c.instances[name]; ok {
		return existing
	}
	c.instances[name] = instance
	c.order = append(c.order, name)
	return instance
}

// Len returns the number of cached instances.
func (c *InstanceCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.instances)
}

// Names returns the cached names in insertion order.
func (c *InstanceCache) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]string(nil), c.order...)
}

// Drain empties the cache and returns the instances in insertion order.
func (c *InstanceCache) Drain() []any {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]any, 0, len(c.order))
	for _, name := range c.order {
		out = append(out, c.instances[name])
	}

	c.instances = make(map[string]any)
	c.order = nil
	return out
}

// Stats returns a snapshot of the cache statistics.
func (c *InstanceCache) Stats() Statistics {
	return Statistics{
		Hits:   atomic.LoadInt64(&c.stats.hits),
		Misses: atomic.LoadInt64(&c.stats.misses),
		Count:  c.Len(),
	}
}
