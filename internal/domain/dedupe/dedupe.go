// Package dedupe remembers the outcome of idempotent requests.
package dedupe

import (
	"container/list"
	"context"
	"sync"
	"sync/atomic"
)

// Cache maps request ids to the result they first produced.
type Cache[V any] interface {
	// Lookup returns the recorded result for id.
	Lookup(ctx context.Context, id string) (V, bool)

	// Record stores the result for id. An id that is already present keeps
	// its first result.
	Record(ctx context.Context, id string, v V)

	// Forget removes id so the request can be retried.
	Forget(ctx context.Context, id string)

	Size() int64
}

type entry[V any] struct {
	id string
	v  V
}

// inMemory is a Cache bounded by insertion order. When maxSize > 0 the oldest
// id is evicted first; maxSize <= 0 keeps everything.
type inMemory[V any] struct {
	mu      sync.Mutex
	items   map[string]*list.Element
	order   *list.List
	maxSize int
	size    atomic.Int64
}

// NewInMemory creates an in-memory result cache.
func NewInMemory[V any](opts ...Option) Cache[V] {
	o := options{maxSize: 50000}
	for _, opt := range opts {
		opt(&o)
	}
	return &inMemory[V]{
		items:   make(map[string]*list.Element),
		order:   list.New(),
		maxSize: o.maxSize,
	}
}

func (c *inMemory[V]) Lookup(_ context.Context, id string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.items[id]; ok {
		return el.Value.(*entry[V]).v, true
	}
	var zero V
	return zero, false
}

func (c *inMemory[V]) Record(_ context.Context, id string, v V) {
	if id == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.items[id]; ok {
		return
	}
	if c.maxSize > 0 && len(c.items) >= c.maxSize {
		c.evictOldest()
	}
	c.items[id] = c.order.PushFront(&entry[V]{id: id, v: v})
	c.size.Add(1)
}

func (c *inMemory[V]) Forget(_ context.Context, id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.items[id]; ok {
		c.order.Remove(el)
		delete(c.items, id)
		c.size.Add(-1)
	}
}

// evictOldest must be called with c.mu held.
func (c *inMemory[V]) evictOldest() {
	el := c.order.Back()
	if el == nil {
		return
	}
	c.order.Remove(el)
	delete(c.items, el.Value.(*entry[V]).id)
	c.size.Add(-1)
}

func (c *inMemory[V]) Size() int64 {
	return c.size.Load()
}
