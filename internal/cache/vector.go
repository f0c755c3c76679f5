package cache

import (
	"container/list"
	"sync"
)

type vectorEntry struct {
	key string
	vec []float32
}

// VectorCache memoizes text-to-embedding lookups with LRU eviction. The same
// text always maps to the same vector for the life of the cache; there is no
// TTL and no invalidation on upstream model change.
type VectorCache struct {
	mu    sync.Mutex
	cap   int
	order *list.List
	items map[string]*list.Element
}

// NewVectorCache creates an LRU vector cache. Capacity <= 0 means unbounded.
func NewVectorCache(capacity int) *VectorCache {
	return &VectorCache{
		cap:   capacity,
		order: list.New(),
		items: make(map[string]*list.Element),
	}
}

// Get returns the cached vector for text, marking it recently used.
func (c *VectorCache) Get(text string) ([]float32, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.items[text]
	if !ok {
		return nil, false
	}
	c.order.MoveToFront(el)
	return el.Value.(vectorEntry).vec, true
}

// Put stores the vector for text, evicting the least recently used entry
// when over capacity.
func (c *VectorCache) Put(text string, vec []float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.items[text]; ok {
		el.Value = vectorEntry{key: text, vec: vec}
		c.order.MoveToFront(el)
		return
	}
	c.items[text] = c.order.PushFront(vectorEntry{key: text, vec: vec})
	if c.cap > 0 && c.order.Len() > c.cap {
		last := c.order.Back()
		if last != nil {
			c.order.Remove(last)
			delete(c.items, last.Value.(vectorEntry).key)
		}
	}
}

// Len reports the number of cached vectors.
func (c *VectorCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}
