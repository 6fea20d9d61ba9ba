// Package ratelimit provides a fixed-window counting primitive keyed by an
// arbitrary string. It backs both DDoS detection and login lockout.
package ratelimit

import (
	"sync"
	"time"
)

type windowState struct {
	count       int
	windowStart time.Time
}

// Counter is an in-memory fixed-window rate limiter. State is best-effort
// and does not survive process restarts. Safe for concurrent use; the
// read-modify-write per key is atomic under a single lock.
type Counter struct {
	mu      sync.Mutex
	windows map[string]*windowState
	now     func() time.Time
}

// NewCounter creates an empty counter.
func NewCounter() *Counter {
	return &Counter{
		windows: make(map[string]*windowState),
		now:     time.Now,
	}
}

// Check records one hit for key and reports whether it is within limit for
// the given window. When the elapsed time since the window start exceeds
// window, the counter resets (count=1, windowStart=now) and the hit is
// allowed.
func (c *Counter) Check(key string, limit int, window time.Duration) bool {
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	state, ok := c.windows[key]
	if !ok || now.Sub(state.windowStart) > window {
		c.windows[key] = &windowState{count: 1, windowStart: now}
		return true
	}

	if state.count < limit {
		state.count++
		return true
	}
	return false
}

// Count returns the current count for key within its window, or zero if the
// window has lapsed.
func (c *Counter) Count(key string, window time.Duration) int {
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	state, ok := c.windows[key]
	if !ok || now.Sub(state.windowStart) > window {
		return 0
	}
	return state.count
}

// Reset clears state for a key unconditionally.
func (c *Counter) Reset(key string) {
	c.mu.Lock()
	delete(c.windows, key)
	c.mu.Unlock()
}

// Purge drops windows whose start is older than window. Called from the
// background cleanup task to bound memory on high-cardinality keys.
func (c *Counter) Purge(window time.Duration) int {
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key, state := range c.windows {
		if now.Sub(state.windowStart) > window {
			delete(c.windows, key)
			removed++
		}
	}
	return removed
}

// SetNowFunc overrides the clock. Test hook.
func (c *Counter) SetNowFunc(now func() time.Time) {
	c.mu.Lock()
	c.now = now
	c.mu.Unlock()
}
