package stb

import (
	"container/list"
	"sync"
)

// CacheStats contains parse cache counters.
type CacheStats struct {
	Hits      int64
	Misses    int64
	Evictions int64
	Size      int
	MaxSize   int
}

type cacheEntry[K comparable, V any] struct {
	key   K
	value V
}

// lruCache is a thread-safe LRU cache. Zero max size means unbounded.
type lruCache[K comparable, V any] struct {
	mu        sync.Mutex
	maxSize   int
	entries   map[K]*list.Element
	evictList *list.List
	stats     CacheStats
}

func newLRUCache[K comparable, V any](maxSize int) *lruCache[K, V] {
	if maxSize < 0 {
		maxSize = 0
	}
	return &lruCache[K, V]{
		maxSize:   maxSize,
		entries:   make(map[K]*list.Element),
		evictList: list.New(),
	}
}

func (c *lruCache[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.entries[key]
	if !ok {
		c.stats.Misses++
		var zero V
		return zero, false
	}
	c.evictList.MoveToFront(elem)
	c.stats.Hits++
	return elem.Value.(*cacheEntry[K, V]).value, true
}

func (c *lruCache[K, V]) Put(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.entries[key]; ok {
		elem.Value.(*cacheEntry[K, V]).value = value
		c.evictList.MoveToFront(elem)
		return
	}
	c.entries[key] = c.evictList.PushFront(&cacheEntry[K, V]{key: key, value: value})
	if c.maxSize > 0 && c.evictList.Len() > c.maxSize {
		oldest := c.evictList.Back()
		if oldest != nil {
			c.evictList.Remove(oldest)
			delete(c.entries, oldest.Value.(*cacheEntry[K, V]).key)
			c.stats.Evictions++
		}
	}
}

func (c *lruCache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.evictList.Len()
}

func (c *lruCache[K, V]) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.stats
	s.Size = c.evictList.Len()
	s.MaxSize = c.maxSize
	return s
}
