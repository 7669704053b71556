// Package dedupe maps submission fingerprints to the job that first
// carried them, so identical optimization requests share one job.
package dedupe

import (
	"context"
	"sync"
	"sync/atomic"
)

// Deduper records fingerprint -> job ID bindings.
type Deduper interface {
	// Claim atomically binds key to id unless key is already bound.
	// It returns the bound job ID and whether it was already present.
	Claim(ctx context.Context, key, id string) (string, bool)

	// Release drops the binding for key, allowing a retry. Used when a
	// claimed submission could not be enqueued.
	Release(ctx context.Context, key string)

	// Lookup returns the job bound to key, if any.
	Lookup(ctx context.Context, key string) (string, bool)

	Size() int64
}

// node is an entry of the insertion-ordered list.
type node struct {
	key        string
	id         string
	prev, next *node
}

func (n *node) reset() {
	*n = node{}
}

// inMemoryDeduper keeps bindings in a map plus a doubly linked list in
// insertion order. When bounded, the oldest binding is evicted first.
type inMemoryDeduper struct {
	mu       sync.Mutex
	seen     map[string]*node
	head     *node // newest
	tail     *node // oldest
	maxSize  int   // 0 or negative = unbounded
	size     atomic.Int64
	nodePool sync.Pool
}

// NewInMemoryDeduper creates a new in-memory deduper with configuration options.
func NewInMemoryDeduper(opts ...Option) Deduper {
	d := &inMemoryDeduper{
		maxSize: 10_000,
	}
	for _, opt := range opts {
		opt(d)
	}
	d.seen = make(map[string]*node)
	d.nodePool = sync.Pool{
		New: func() interface{} {
			return &node{}
		},
	}
	return d
}

func (d *inMemoryDeduper) Claim(_ context.Context, key, id string) (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if n, ok := d.seen[key]; ok {
		return n.id, true
	}
	if d.maxSize > 0 && len(d.seen) >= d.maxSize {
		d.evictOldest()
	}

	n := d.nodePool.Get().(*node)
	n.key, n.id = key, id
	d.pushFront(n)
	d.seen[key] = n
	d.size.Add(1)
	return id, false
}

func (d *inMemoryDeduper) Release(_ context.Context, key string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	n, ok := d.seen[key]
	if !ok {
		return
	}
	d.remove(n)
}

func (d *inMemoryDeduper) Lookup(_ context.Context, key string) (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if n, ok := d.seen[key]; ok {
		return n.id, true
	}
	return "", false
}

// Size returns the current number of bindings.
func (d *inMemoryDeduper) Size() int64 {
	return d.size.Load()
}

// Must be called with d.mu held.
func (d *inMemoryDeduper) pushFront(n *node) {
	n.next = d.head
	if d.head != nil {
		d.head.prev = n
	}
	d.head = n
	if d.tail == nil {
		d.tail = n
	}
}

// Must be called with d.mu held.
func (d *inMemoryDeduper) evictOldest() {
	if d.tail != nil {
		d.remove(d.tail)
	}
}

// Must be called with d.mu held.
func (d *inMemoryDeduper) remove(n *node) {
	if n.prev != nil {
		n.prev.next = n.next
	} else {
		d.head = n.next
	}
	if n.next != nil {
		n.next.prev = n.prev
	} else {
		d.tail = n.prev
	}
	delete(d.seen, n.key)
	n.reset()
	d.nodePool.Put(n)
	d.size.Add(-1)
}
