// Package state holds mutable data that bound handlers share.
//
// Handlers run concurrently, one goroutine per request. Process-wide values
// live in a Cell; values that belong to one browser session live in a Store
// keyed by the session id.
package state

import "sync"

// Cell is a mutex-guarded value.
type Cell[T any] struct {
	mu sync.Mutex
	v  T
}

// NewCell returns a Cell holding v.
func NewCell[T any](v T) *Cell[T] {
	return &Cell[T]{v: v}
}

// Get returns the current value.
func (c *Cell[T]) Get() T {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.v
}

// Set replaces the value.
func (c *Cell[T]) Set(v T) {
	c.mu.Lock()
	c.v = v
	c.mu.Unlock()
}

// Update applies fn to the value atomically and returns the new value.
func (c *Cell[T]) Update(fn func(T) T) T {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.v = fn(c.v)
	return c.v
}
