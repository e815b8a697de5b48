// Package syncutil provides the concurrency building blocks the middleware
// is composed from: a condition-based reader/writer lock, run-serialization
// for callables, and a periodic background scheduler.
package syncutil

import "sync"

// ReadWriteLock is a condition-based reader/writer lock. Readers share the
// lock; a writer is exclusive with both readers and other writers. Waiters
// are woken in bulk and re-check their own admission condition, so there is
// no priority ordering between waiting readers and writers — a writer can
// starve under continuous reader arrivals.
//
// All acquire operations block indefinitely. There is no timeout or
// context-aware variant.
type ReadWriteLock struct {
	mu      sync.Mutex
	cond    *sync.Cond
	readers int
	writer  bool
}

// NewReadWriteLock creates an unlocked ReadWriteLock.
func NewReadWriteLock() *ReadWriteLock {
	l := &ReadWriteLock{}
	l.cond = sync.NewCond(&l.mu)
	return l
}

// AcquireRead blocks while a writer holds the lock, then registers a reader.
func (l *ReadWriteLock) AcquireRead() {
	l.mu.Lock()
	defer l.mu.Unlock()
	for l.writer {
		l.cond.Wait()
	}
	l.readers++
}

// ReleaseRead deregisters a reader; the last reader out wakes all waiters.
func (l *ReadWriteLock) ReleaseRead() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.readers--
	if l.readers == 0 {
		l.cond.Broadcast()
	}
}

// AcquireWrite blocks until no writer is active and all readers have
// drained, then claims exclusive ownership.
func (l *ReadWriteLock) AcquireWrite() {
	l.mu.Lock()
	defer l.mu.Unlock()
	for l.writer || l.readers > 0 {
		l.cond.Wait()
	}
	l.writer = true
}

// ReleaseWrite drops exclusive ownership and wakes all waiters.
func (l *ReadWriteLock) ReleaseWrite() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.writer = false
	l.cond.Broadcast()
}

// WithRead runs fn under the read lock, releasing it on every exit path
// including panics.
func (l *ReadWriteLock) WithRead(fn func() error) error {
	l.AcquireRead()
	defer l.ReleaseRead()
	return fn()
}

// WithWrite runs fn under the write lock, releasing it on every exit path
// including panics.
func (l *ReadWriteLock) WithWrite(fn func() error) error {
	l.AcquireWrite()
	defer l.ReleaseWrite()
	return fn()
}
