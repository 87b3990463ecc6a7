// Package cache provides a fixed-size LRU cache.
package cache

import (
	"container/list"
	"expvar"
	"sync"
)

// Interface is the API the lake uses for its value cache.
type Interface[K comparable, V any] interface {
	Put(key K, value V)
	Get(key K) (value V, ok bool)
	Remove(key K)
	Clear()
	GetHitRate() float64
	SetMetrics(hits, misses *expvar.Int)
	Len() int
}

type cacheEntry[K comparable, V any] struct {
	key   K
	value V
}

// LRUCache is a fixed-size LRU cache safe for concurrent use. A capacity of
// zero or less disables it: Put is ignored and Get always misses.
type LRUCache[K comparable, V any] struct {
	mu         sync.Mutex
	capacity   int
	lruList    *list.List
	cacheItems map[K]*list.Element
	onEvicted  func(key K, value V)

	hits   *expvar.Int
	misses *expvar.Int
}

var _ Interface[string, int] = (*LRUCache[string, int])(nil)

// NewLRUCache creates a new LRUCache. onEvicted is optional.
func NewLRUCache[K comparable, V any](capacity int, onEvicted func(key K, value V)) *LRUCache[K, V] {
	if capacity < 0 {
		capacity = 0
	}
	return &LRUCache[K, V]{
		capacity:   capacity,
		lruList:    list.New(),
		cacheItems: make(map[K]*list.Element),
		onEvicted:  onEvicted,
	}
}

func (c *LRUCache[K, V]) SetMetrics(hits, misses *expvar.Int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hits = hits
	c.misses = misses
}

// Get retrieves a value and marks it as most recently used. A disabled cache
// does not count misses.
func (c *LRUCache[K, V]) Get(key K) (value V, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.capacity <= 0 {
		return value, false
	}

	if elem, ok := c.cacheItems[key]; ok {
		if c.hits != nil {
			c.hits.Add(1)
		}
		c.lruList.MoveToFront(elem)
		return elem.Value.(*cacheEntry[K, V]).value, true
	}

	if c.misses != nil {
		c.misses.Add(1)
	}
	return value, false
}

// Put adds or replaces a value, evicting the least recently used entry when
// the cache is full.
func (c *LRUCache[K, V]) Put(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.capacity <= 0 {
		return
	}

	if elem, ok := c.cacheItems[key]; ok {
		c.lruList.MoveToFront(elem)
		elem.Value.(*cacheEntry[K, V]).value = value
		return
	}

	if c.lruList.Len() >= c.capacity {
		c.evict()
	}
	c.cacheItems[key] = c.lruList.PushFront(&cacheEntry[K, V]{key: key, value: value})
}

// Remove drops key from the cache without calling onEvicted.
func (c *LRUCache[K, V]) Remove(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if elem, ok := c.cacheItems[key]; ok {
		c.lruList.Remove(elem)
		delete(c.cacheItems, key)
	}
}

// Len returns the current number of items in the cache.
func (c *LRUCache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lruList.Len()
}

// evict removes the least recently used item. Must be called with c.mu locked.
func (c *LRUCache[K, V]) evict() {
	elem := c.lruList.Back()
	if elem == nil {
		return
	}
	removed := c.lruList.Remove(elem).(*cacheEntry[K, V])
	delete(c.cacheItems, removed.key)
	if c.onEvicted != nil {
		c.onEvicted(removed.key, removed.value)
	}
}

// Clear removes all entries and resets the hit and miss counters.
func (c *LRUCache[K, V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.onEvicted != nil {
		for _, elem := range c.cacheItems {
			e := elem.Value.(*cacheEntry[K, V])
			c.onEvicted(e.key, e.value)
		}
	}
	c.lruList = list.New()
	c.cacheItems = make(map[K]*list.Element)
	if c.hits != nil {
		c.hits.Set(0)
	}
	if c.misses != nil {
		c.misses.Set(0)
	}
}

// GetHitRate returns hits / (hits + misses), or 0 before any lookup.
func (c *LRUCache[K, V]) GetHitRate() float64 {
	c.mu.Lock()
	hitsVar, missesVar := c.hits, c.misses
	c.mu.Unlock()

	var hits, misses float64
	if hitsVar != nil {
		hits = float64(hitsVar.Value())
	}
	if missesVar != nil {
		misses = float64(missesVar.Value())
	}
	total := hits + misses
	if total == 0 {
		return 0.0
	}
	return hits / total
}
