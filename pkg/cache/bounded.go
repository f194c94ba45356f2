// Package cache provides a size-bounded in-memory cache with FIFO eviction.
package cache

import (
	"sync"

	"github.com/hatlen/tiv/pkg/metrics"
	"github.com/hatlen/tiv/tiv"
)

// Cache stores up to capacity bytes of values keyed by file id. When a push
// would exceed the capacity, the oldest entries are evicted in insertion
// order until the new value fits. A single value larger than the capacity is
// still admitted after the cache has been emptied and stays until the next
// push evicts it.
type Cache[T any] struct {
	name     string
	capacity int64

	mu    sync.Mutex
	size  int64
	items map[uint64]entry[T]
	order []uint64
}

type entry[T any] struct {
	path  string
	value T
	size  int64
}

// New returns an empty cache. The name is used as the metrics label.
func New[T any](name string, capacity int64) *Cache[T] {
	return &Cache[T]{
		name:     name,
		capacity: capacity,
		items:    make(map[uint64]entry[T]),
	}
}

// Get returns the cached value for id. Entries are stored by path hash, so
// the stored path is compared with the requested one: a hash collision is
// reported as a miss instead of returning the wrong file.
func (c *Cache[T]) Get(id tiv.FileID) (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	item, ok := c.items[id.Hash()]
	if !ok || item.path != id.GetPath() {
		metrics.CacheMisses.WithLabelValues(c.name).Inc()

		var zero T
		return zero, false
	}

	metrics.CacheHits.WithLabelValues(c.name).Inc()

	return item.value, true
}

// Push stores the value for id, evicting the oldest entries as needed. The
// first write wins: if an entry for id already exists, the incoming value is
// discarded. The same applies when a different path hashes to the same key.
func (c *Cache[T]) Push(id tiv.FileID, value T, size int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.items[id.Hash()]; ok {
		return
	}

	for c.size+size > c.capacity && len(c.order) > 0 {
		c.evictOldest()
	}

	c.items[id.Hash()] = entry[T]{
		path:  id.GetPath(),
		value: value,
		size:  size,
	}
	c.order = append(c.order, id.Hash())
	c.size += size

	metrics.CacheSize.WithLabelValues(c.name).Set(float64(c.size))
}

func (c *Cache[T]) evictOldest() {
	hash := c.order[0]
	c.order = c.order[1:]

	c.size -= c.items[hash].size
	delete(c.items, hash)

	metrics.CacheEvictions.WithLabelValues(c.name).Inc()
}

// Clear drops all entries.
func (c *Cache[T]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.size = 0
	c.items = make(map[uint64]entry[T])
	c.order = nil

	metrics.CacheSize.WithLabelValues(c.name).Set(0)
}

// Size reports the total size of all cached values in bytes.
func (c *Cache[T]) Size() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.size
}

// Len reports the number of cached entries.
func (c *Cache[T]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.items)
}
