// Copyright 2025 Joseph Cumines
//
// Package handle maps opaque, session-scoped string identifiers to
// in-process objects, so that a stateless wire protocol can refer to
// long-lived values (UI elements, for example) across calls without
// re-sending them.
//
// Identifiers are the prefix followed by a decimal counter starting at 1.
// The counter is never reset or decremented, so an identifier is never
// reissued within the lifetime of a Cache, even after Remove.

package handle

import (
	"strconv"
	"sync"
)

// ElementPrefix is the identifier prefix used for UI element handles.
const ElementPrefix = "elem_"

// Cache is a concurrency-safe identifier to value mapping.
// The zero value is not usable; use NewCache.
//
//lint:ignore BETTERALIGN struct is intentionally ordered for clarity
type Cache[T any] struct {
	items  map[string]T
	prefix string
	next   uint64
	mu     sync.Mutex
}

// NewCache creates an empty cache issuing identifiers with the given prefix.
func NewCache[T any](prefix string) *Cache[T] {
	return &Cache[T]{
		items:  make(map[string]T),
		prefix: prefix,
	}
}

// Put stores v under the next unused identifier and returns it.
func (c *Cache[T]) Put(v T) string {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.next++
	id := c.prefix + strconv.FormatUint(c.next, 10)
	c.items[id] = v
	return id
}

// Get returns the value stored under id. The boolean is false if the
// identifier was never issued by this cache, or has been removed.
func (c *Cache[T]) Get(id string) (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	v, ok := c.items[id]
	return v, ok
}

// Remove forgets id. Removing an unknown identifier is a no-op.
func (c *Cache[T]) Remove(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.items, id)
}

// Len returns the number of live entries.
func (c *Cache[T]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.items)
}

// Issued returns how many identifiers have been issued, including removed ones.
func (c *Cache[T]) Issued() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.next
}
