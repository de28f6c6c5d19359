// Package syncx provides extended synchronization primitives
package syncx

import "sync"

// Guard wraps a mutex-protected value with scoped access helpers.
// Used for session status and other small cross-goroutine state.
type Guard[T any] struct {
	mu    sync.RWMutex
	value T
}

// NewGuard creates a guarded value.
func NewGuard[T any](initial T) *Guard[T] {
	return &Guard[T]{value: initial}
}

// Get returns a copy of the value (T should be a value type or immutable).
func (g *Guard[T]) Get() T {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.value
}

// Set atomically replaces the value.
func (g *Guard[T]) Set(v T) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.value = v
}

// Swap atomically replaces and returns the old value.
func (g *Guard[T]) Swap(v T) T {
	g.mu.Lock()
	defer g.mu.Unlock()
	old := g.value
	g.value = v
	return old
}

// CompareAndSwap replaces the value only if eq reports the current value
// equal to expected, returning whether the swap happened.
func (g *Guard[T]) CompareAndSwap(v T, eq func(T) bool) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !eq(g.value) {
		return false
	}
	g.value = v
	return true
}
