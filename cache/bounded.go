// Package cache holds the storage layers behind the template engine: the
// on-disk compiled artifact store, size-bounded in-memory memos and the
// key-value stores used by @cache blocks.
package cache

import "sync"

// DefaultSize is used when a Bounded cache is created with a non-positive size.
const DefaultSize = 1000

// Bounded is a size-bounded in-memory map. When full, the oldest 10% of the
// entries (by insertion) are evicted.
type Bounded[K comparable, V any] struct {
	mu      sync.RWMutex
	entries map[K]V
	order   []K
	maxSize int
}

// NewBounded creates a bounded cache holding at most maxSize entries.
func NewBounded[K comparable, V any](maxSize int) *Bounded[K, V] {
	if maxSize <= 0 {
		maxSize = DefaultSize
	}
	return &Bounded[K, V]{
		entries: make(map[K]V),
		maxSize: maxSize,
	}
}

// Get returns the value stored under key.
func (b *Bounded[K, V]) Get(key K) (V, bool) {
	b.mu.RLock()
	v, ok := b.entries[key]
	b.mu.RUnlock()
	return v, ok
}

// Put stores value under key, evicting old entries when at capacity.
func (b *Bounded[K, V]) Put(key K, value V) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.entries[key]; ok {
		b.entries[key] = value
		return
	}
	if len(b.entries) >= b.maxSize {
		b.evictOldest(max(b.maxSize/10, 1))
	}
	b.entries[key] = value
	b.order = append(b.order, key)
}

// Delete removes key.
func (b *Bounded[K, V]) Delete(key K) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.entries[key]; !ok {
		return
	}
	delete(b.entries, key)
	for i, k := range b.order {
		if k == key {
			b.order = append(b.order[:i], b.order[i+1:]...)
			break
		}
	}
}

// DeleteFunc removes every entry whose key matches fn.
func (b *Bounded[K, V]) DeleteFunc(fn func(K) bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	kept := b.order[:0]
	for _, k := range b.order {
		if fn(k) {
			delete(b.entries, k)
			continue
		}
		kept = append(kept, k)
	}
	b.order = kept
}

// Flush removes all entries.
func (b *Bounded[K, V]) Flush() {
	b.mu.Lock()
	b.entries = make(map[K]V)
	b.order = nil
	b.mu.Unlock()
}

// Len returns the number of entries.
func (b *Bounded[K, V]) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.entries)
}

// evictOldest removes the n oldest entries. Caller must hold the lock.
func (b *Bounded[K, V]) evictOldest(n int) {
	n = min(n, len(b.order))
	for _, k := range b.order[:n] {
		delete(b.entries, k)
	}
	b.order = append(b.order[:0], b.order[n:]...)
}
