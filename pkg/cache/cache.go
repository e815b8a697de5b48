// Package cache provides a small expiring memoizer for wrapping upstream
// calls whose results stay valid for a short wall-clock window.
package cache

import (
	"sync"
	"time"
)

type entry[V any] struct {
	value      V
	computedAt time.Time
}

// Expiring memoizes a fallible function per key for a fixed duration.
//
// Every invocation is serialized by one internal mutex: calls on unrelated
// keys contend with each other, and the wrapped function never runs
// concurrently with itself through the same wrapper. That trades call-path
// parallelism for a cache that can never hand out a half-written entry; at
// this endpoint count the tradeoff is acceptable. There is no per-key
// locking and no lock-free fast path.
//
// Expired entries are swept lazily on access across all keys; there is no
// background janitor. An expire of zero or less disables caching: every
// call invokes the function directly and nothing is stored.
type Expiring[K comparable, V any] struct {
	expire  time.Duration
	compute func(K) (V, error)
	now     func() time.Time

	mu      sync.Mutex
	entries map[K]entry[V]
}

// NewExpiring wraps compute with an expire-bounded memo per key.
func NewExpiring[K comparable, V any](expire time.Duration, compute func(K) (V, error)) *Expiring[K, V] {
	return &Expiring[K, V]{
		expire:  expire,
		compute: compute,
		now:     time.Now,
		entries: make(map[K]entry[V]),
	}
}

// Get returns the cached value for key, computing and storing it first if
// the key is absent or its entry has aged out. Errors from the wrapped
// function are returned as-is and never cached.
func (c *Expiring[K, V]) Get(key K) (V, error) {
	if c.expire <= 0 {
		return c.compute(key)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	c.sweep(now)

	e, ok := c.entries[key]
	if !ok || now.Sub(e.computedAt) >= c.expire {
		value, err := c.compute(key)
		if err != nil {
			var zero V
			return zero, err
		}
		e = entry[V]{value: value, computedAt: now}
		c.entries[key] = e
	}
	return e.value, nil
}

// sweep drops every aged-out entry. Caller holds c.mu.
func (c *Expiring[K, V]) sweep(now time.Time) {
	for key, e := range c.entries {
		if now.Sub(e.computedAt) >= c.expire {
			delete(c.entries, key)
		}
	}
}

// Slot is the single-value variant of Expiring: one cache slot, no keying.
// Same expiry rules; whatever the last computation produced wins for the
// full window.
type Slot[V any] struct {
	expire  time.Duration
	compute func() (V, error)
	now     func() time.Time

	mu         sync.Mutex
	value      V
	computedAt time.Time
	valid      bool
}

// NewSlot wraps compute with a single expire-bounded memo slot.
func NewSlot[V any](expire time.Duration, compute func() (V, error)) *Slot[V] {
	return &Slot[V]{
		expire:  expire,
		compute: compute,
		now:     time.Now,
	}
}

// Get returns the cached value, recomputing it first if the slot is empty
// or aged out. Errors are returned as-is and never cached.
func (s *Slot[V]) Get() (V, error) {
	if s.expire <= 0 {
		return s.compute()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if s.valid && now.Sub(s.computedAt) < s.expire {
		return s.value, nil
	}

	value, err := s.compute()
	if err != nil {
		var zero V
		return zero, err
	}
	s.value, s.computedAt, s.valid = value, now, true
	return value, nil
}
