package cache

import (
	"container/list"
	"sync"
)

// LRU is a bounded, keyed in-memory cache with least-recently-used
// eviction. It holds opaque values (e.g. loaded model handles) and is
// safe for concurrent use.
type LRU[V any] struct {
	mu      sync.Mutex
	maxSize int
	items   map[string]*list.Element
	order   *list.List // front = most recently used
	onEvict func(key string, value V)
}

type lruEntry[V any] struct {
	key   string
	value V
}

// Option configures an LRU.
type Option[V any] func(*LRU[V])

// WithOnEvict registers a callback invoked when an entry is evicted or
// replaced. Called outside the cache lock is not guaranteed; keep it cheap.
func WithOnEvict[V any](fn func(key string, value V)) Option[V] {
	return func(c *LRU[V]) { c.onEvict = fn }
}

// NewLRU creates a bounded LRU cache. maxSize must be positive.
func NewLRU[V any](maxSize int, opts ...Option[V]) *LRU[V] {
	if maxSize <= 0 {
		maxSize = 1
	}
	c := &LRU[V]{
		maxSize: maxSize,
		items:   make(map[string]*list.Element),
		order:   list.New(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the cached value and marks it most recently used.
func (c *LRU[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		var zero V
		return zero, false
	}
	c.order.MoveToFront(el)
	return el.Value.(*lruEntry[V]).value, true
}

// Put inserts or replaces a value, evicting the least recently used entry
// when the cache is full.
func (c *LRU[V]) Put(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[key]; ok {
		old := el.Value.(*lruEntry[V])
		prev := old.value
		old.value = value
		c.order.MoveToFront(el)
		if c.onEvict != nil {
			c.onEvict(key, prev)
		}
		return
	}

	if c.order.Len() >= c.maxSize {
		c.evictOldest()
	}
	el := c.order.PushFront(&lruEntry[V]{key: key, value: value})
	c.items[key] = el
}

// Delete removes a key if present.
func (c *LRU[V]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[key]; ok {
		c.removeElement(el)
	}
}

// Len returns the current number of cached entries.
func (c *LRU[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

func (c *LRU[V]) evictOldest() {
	el := c.order.Back()
	if el != nil {
		c.removeElement(el)
	}
}

func (c *LRU[V]) removeElement(el *list.Element) {
	entry := el.Value.(*lruEntry[V])
	c.order.Remove(el)
	delete(c.items, entry.key)
	if c.onEvict != nil {
		c.onEvict(entry.key, entry.value)
	}
}
