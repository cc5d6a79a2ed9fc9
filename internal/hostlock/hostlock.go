// Package hostlock is the execution lock shared by every handle in the
// process.
//
// Handle state and the invalidation tree are only touched with the lock
// held. Calls into a storage engine are bracketed by Engine/Call, which drop
// the lock for the duration of the call when releasing has been switched on
// with SetRelease. The switch is process-wide.
package hostlock

import (
	"sync"
	"sync/atomic"
)

var (
	mu      sync.Mutex
	release atomic.Bool
)

// SetRelease turns lock release around engine calls on or off. It should be
// set once at startup, before handles are shared between goroutines.
func SetRelease(on bool) {
	release.Store(on)
}

// Releasing reports whether engine calls run without the lock.
func Releasing() bool {
	return release.Load()
}

// Lock acquires the host lock.
func Lock() {
	mu.Lock()
}

// Unlock releases the host lock.
func Unlock() {
	mu.Unlock()
}

// TryLock attempts to acquire the host lock without blocking.
func TryLock() bool {
	return mu.TryLock()
}

// Engine runs fn, an engine call, with the host lock held by the caller.
// The lock may be dropped while fn runs, so fn must only use engine handles
// the caller copied into locals beforehand, never handle fields.
func Engine(fn func() error) error {
	if !release.Load() {
		return fn()
	}
	mu.Unlock()
	defer mu.Lock()
	return fn()
}

// Call is Engine for calls that produce a value.
func Call[T any](fn func() (T, error)) (T, error) {
	if !release.Load() {
		return fn()
	}
	mu.Unlock()
	defer mu.Lock()
	return fn()
}
