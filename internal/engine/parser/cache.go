package parser

import (
	"container/list"
	"sync"

	"crossmod/internal/engine/diag"
	"crossmod/internal/engine/module"
	"crossmod/internal/engine/source"
)

// lruCache is a thread-safe, capacity-bounded least-recently-used map.
type lruCache[K comparable, V any] struct {
	mu       sync.Mutex
	capacity int
	items    map[K]*list.Element
	order    *list.List // front = most-recently used
}

type lruEntry[K comparable, V any] struct {
	key   K
	value V
}

func newLRUCache[K comparable, V any](capacity int) *lruCache[K, V] {
	if capacity <= 0 {
		capacity = 1
	}
	return &lruCache[K, V]{
		capacity: capacity,
		items:    make(map[K]*list.Element, capacity),
		order:    list.New(),
	}
}

func (c *lruCache[K, V]) get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		var zero V
		return zero, false
	}
	c.order.MoveToFront(el)
	return el.Value.(*lruEntry[K, V]).value, true
}

func (c *lruCache[K, V]) put(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[key]; ok {
		c.order.MoveToFront(el)
		el.Value.(*lruEntry[K, V]).value = value
		return
	}
	if c.order.Len() >= c.capacity {
		if back := c.order.Back(); back != nil {
			c.order.Remove(back)
			delete(c.items, back.Value.(*lruEntry[K, V]).key)
		}
	}
	c.items[key] = c.order.PushFront(&lruEntry[K, V]{key: key, value: value})
}

func (c *lruCache[K, V]) evictIf(pred func(K) bool) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for key, el := range c.items {
		if pred(key) {
			c.order.Remove(el)
			delete(c.items, key)
			n++
		}
	}
	return n
}

func (c *lruCache[K, V]) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

type cacheKey struct {
	unit source.Handle
	hash [32]byte
}

type cachedParse struct {
	module *module.Module
	diags  []*diag.Diagnostic
}

// Cache memoizes parse results by unit and content hash. Stored values are
// pristine copies; callers always receive deep clones.
type Cache struct {
	lru *lruCache[cacheKey, cachedParse]
}

// NewCache returns a cache holding at most capacity parse results.
func NewCache(capacity int) *Cache {
	return &Cache{lru: newLRUCache[cacheKey, cachedParse](capacity)}
}

func (c *Cache) Get(h source.Handle, hash [32]byte) (*module.Module, []*diag.Diagnostic, bool) {
	if c == nil {
		return nil, nil, false
	}
	v, ok := c.lru.get(cacheKey{unit: h, hash: hash})
	if !ok {
		return nil, nil, false
	}
	return v.module.Clone(), cloneDiags(v.diags), true
}

func (c *Cache) Put(h source.Handle, hash [32]byte, m *module.Module, diags []*diag.Diagnostic) {
	if c == nil {
		return
	}
	c.lru.put(cacheKey{unit: h, hash: hash}, cachedParse{module: m.Clone(), diags: cloneDiags(diags)})
}

// Forget drops every cached result of unit h.
func (c *Cache) Forget(h source.Handle) int {
	if c == nil {
		return 0
	}
	return c.lru.evictIf(func(k cacheKey) bool { return k.unit == h })
}

func (c *Cache) Len() int {
	if c == nil {
		return 0
	}
	return c.lru.len()
}

func cloneDiags(in []*diag.Diagnostic) []*diag.Diagnostic {
	if in == nil {
		return nil
	}
	out := make([]*diag.Diagnostic, len(in))
	for i, d := range in {
		out[i] = d.Clone()
	}
	return out
}
