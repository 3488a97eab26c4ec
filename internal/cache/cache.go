// Package cache provides the time-boxed caches used for symbol and financial
// lookups, backed by process memory or redis.
package cache

import (
	"context"
	"sync"
	"time"
)

// Cache stores values of type T under string keys for a fixed TTL. Expired
// entries are treated as absent.
type Cache[T any] interface {
	Get(ctx context.Context, key string) (T, bool)
	Set(ctx context.Context, key string, value T)
	Delete(ctx context.Context, key string)
}

type entry[T any] struct {
	value   T
	expires time.Time
}

// Memory is an in-process Cache. Get returns the stored value itself, so a
// pointer type yields the same object on every hit.
type Memory[T any] struct {
	ttl time.Duration

	mu      sync.Mutex
	entries map[string]entry[T]

	now func() time.Time
}

// NewMemory creates an in-process cache with the given TTL.
func NewMemory[T any](ttl time.Duration) *Memory[T] {
	return &Memory[T]{
		ttl:     ttl,
		entries: make(map[string]entry[T]),
		now:     time.Now,
	}
}

// WithClock replaces the clock used for expiry and returns m.
func (m *Memory[T]) WithClock(now func() time.Time) *Memory[T] {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
	return m
}

// Get returns the cached value for key when it has not expired.
func (m *Memory[T]) Get(_ context.Context, key string) (T, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[key]
	if !ok {
		var zero T
		return zero, false
	}
	if !m.now().Before(e.expires) {
		delete(m.entries, key)
		var zero T
		return zero, false
	}
	return e.value, true
}

// Set stores value under key.
func (m *Memory[T]) Set(_ context.Context, key string, value T) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = entry[T]{value: value, expires: m.now().Add(m.ttl)}
}

// Delete removes key.
func (m *Memory[T]) Delete(_ context.Context, key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
}

// Len returns the number of stored entries, expired or not.
func (m *Memory[T]) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}
