package engine

import (
	"context"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// CacheStrategy stores task results by key. Get reports ok=false on a miss.
// Errors from either method degrade the call to a live execution; they are never
// returned to the caller of Execute.
type CacheStrategy[T any] interface {
	Get(ctx context.Context, key string) (T, bool, error)
	Set(ctx context.Context, key string, value T) error
}

const defaultMemoryCacheSize = 1024

type memoryEntry[T any] struct {
	value     T
	expiresAt time.Time // zero means no expiry
}

// MemoryCache is an in-process LRU cache with optional TTL. Safe for concurrent use.
type MemoryCache[T any] struct {
	lru *lru.Cache[string, memoryEntry[T]]
	ttl time.Duration
	now func() time.Time
}

// NewMemoryCache creates a cache holding at most size entries (1024 when size <= 0).
// ttl <= 0 means entries never expire.
func NewMemoryCache[T any](size int, ttl time.Duration) (*MemoryCache[T], error) {
	if size <= 0 {
		size = defaultMemoryCacheSize
	}
	c, err := lru.New[string, memoryEntry[T]](size)
	if err != nil {
		return nil, err
	}
	return &MemoryCache[T]{lru: c, ttl: ttl, now: time.Now}, nil
}

// Get implements CacheStrategy.
func (m *MemoryCache[T]) Get(ctx context.Context, key string) (T, bool, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, false, err
	}
	ent, ok := m.lru.Get(key)
	if !ok {
		return zero, false, nil
	}
	if !ent.expiresAt.IsZero() && !m.now().Before(ent.expiresAt) {
		m.lru.Remove(key)
		return zero, false, nil
	}
	return ent.value, true, nil
}

// Set implements CacheStrategy.
func (m *MemoryCache[T]) Set(ctx context.Context, key string, value T) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	ent := memoryEntry[T]{value: value}
	if m.ttl > 0 {
		ent.expiresAt = m.now().Add(m.ttl)
	}
	m.lru.Add(key, ent)
	return nil
}

// Len returns the number of stored entries, including expired ones not yet evicted.
func (m *MemoryCache[T]) Len() int { return m.lru.Len() }

// Purge removes every entry.
func (m *MemoryCache[T]) Purge() { m.lru.Purge() }

// Compile-time check that MemoryCache implements CacheStrategy.
var _ CacheStrategy[string] = (*MemoryCache[string])(nil)
