package syncutil

import "sync"

// Serialized wraps fn so that concurrent invocations never overlap: a second
// caller blocks until the first returns, then runs the body itself. Every
// call still executes fn — nothing is deduplicated and no result is shared
// between callers.
func Serialized(fn func() error) func() error {
	var mu sync.Mutex
	return func() error {
		mu.Lock()
		defer mu.Unlock()
		return fn()
	}
}
