package syncutil

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadWriteLock_ReadersShare(t *testing.T) {
	l := NewReadWriteLock()

	l.AcquireRead()
	acquired := make(chan struct{})
	go func() {
		l.AcquireRead()
		close(acquired)
	}()

	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("second reader blocked by first reader")
	}
	l.ReleaseRead()
	l.ReleaseRead()
}

func TestReadWriteLock_WriterWaitsForReaders(t *testing.T) {
	l := NewReadWriteLock()
	l.AcquireRead()

	acquired := make(chan struct{})
	go func() {
		l.AcquireWrite()
		close(acquired)
	}()

	select {
	case <-acquired:
		t.Fatal("writer admitted while a reader holds the lock")
	case <-time.After(50 * time.Millisecond):
	}

	l.ReleaseRead()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("writer not admitted after last reader released")
	}
	l.ReleaseWrite()
}

func TestReadWriteLock_ReaderWaitsForWriter(t *testing.T) {
	l := NewReadWriteLock()
	l.AcquireWrite()

	acquired := make(chan struct{})
	go func() {
		l.AcquireRead()
		close(acquired)
	}()

	select {
	case <-acquired:
		t.Fatal("reader admitted while the writer holds the lock")
	case <-time.After(50 * time.Millisecond):
	}

	l.ReleaseWrite()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("reader not admitted after writer released")
	}
	l.ReleaseRead()
}

// Hammers the lock with mixed readers and writers and checks the core
// invariant: a writer never overlaps another holder.
func TestReadWriteLock_MutualExclusionInvariant(t *testing.T) {
	l := NewReadWriteLock()
	var readers, writers, violations atomic.Int32
	var wg sync.WaitGroup

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_ = l.WithRead(func() error {
					readers.Add(1)
					if writers.Load() != 0 {
						violations.Add(1)
					}
					readers.Add(-1)
					return nil
				})
			}
		}()
	}
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				_ = l.WithWrite(func() error {
					if writers.Add(1) != 1 || readers.Load() != 0 {
						violations.Add(1)
					}
					writers.Add(-1)
					return nil
				})
			}
		}()
	}

	wg.Wait()
	assert.Zero(t, violations.Load(), "writer overlapped another lock holder")
}

func TestReadWriteLock_WithHelpersPropagateErrors(t *testing.T) {
	l := NewReadWriteLock()
	wantErr := errors.New("boom")

	require.ErrorIs(t, l.WithRead(func() error { return wantErr }), wantErr)
	require.ErrorIs(t, l.WithWrite(func() error { return wantErr }), wantErr)

	// Both failures must have released the lock.
	assertLockFree(t, l)
}

func TestReadWriteLock_WithHelpersReleaseOnPanic(t *testing.T) {
	l := NewReadWriteLock()

	func() {
		defer func() { _ = recover() }()
		_ = l.WithWrite(func() error { panic("boom") })
	}()
	func() {
		defer func() { _ = recover() }()
		_ = l.WithRead(func() error { panic("boom") })
	}()

	assertLockFree(t, l)
}

// assertLockFree fails the test unless a writer can get in promptly.
func assertLockFree(t *testing.T, l *ReadWriteLock) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		l.AcquireWrite()
		l.ReleaseWrite()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock was not released")
	}
}
