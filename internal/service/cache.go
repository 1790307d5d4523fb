package service

import (
	"sync"
	"time"
)

// TTLCache is a single-value cache with a fixed TTL and an injectable clock.
// It replaces what would otherwise be ambient module-level state so tests can
// control time and invalidation deterministically.
type TTLCache[T any] struct {
	mu      sync.Mutex
	value   T
	setAt   time.Time
	hasVal  bool
	ttl     time.Duration
	nowFunc func() time.Time
}

// NewTTLCache creates a cache with the given TTL.
// Parameters:
//   - ttl: how long a stored value stays fresh.
// Returns:
//   - *TTLCache[T]: empty cache.
func NewTTLCache[T any](ttl time.Duration) *TTLCache[T] {
	return &TTLCache[T]{ttl: ttl, nowFunc: time.Now}
}

// SetClock overrides the cache's clock. Test hook.
func (c *TTLCache[T]) SetClock(now func() time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nowFunc = now
}

// Get returns the cached value if it is still fresh.
// Parameters: none.
// Returns:
//   - T: cached value (zero if stale or unset).
//   - bool: true if the value is fresh.
func (c *TTLCache[T]) Get() (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var zero T
	if !c.hasVal || c.nowFunc().Sub(c.setAt) > c.ttl {
		return zero, false
	}
	return c.value, true
}

// Set stores a value and stamps it with the current time.
func (c *TTLCache[T]) Set(value T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.value = value
	c.setAt = c.nowFunc()
	c.hasVal = true
}

// Clear drops the cached value.
func (c *TTLCache[T]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	var zero T
	c.value = zero
	c.hasVal = false
}
