// Package registry holds the state shared between host threads and the
// background engine: a single lock-protected handle slot and a lossy error slot.
package registry

import (
	"errors"
	"runtime"
	"sync"
)

// Mode selects shared or exclusive access.
type Mode int

const (
	// Read grants shared access; any number of readers may hold it.
	Read Mode = iota
	// Write grants exclusive access.
	Write
)

func (m Mode) String() string {
	if m == Write {
		return "write"
	}
	return "read"
}

var (
	// ErrOccupied is returned when a handle is already registered.
	ErrOccupied = errors.New("registry already holds a handle")
	// ErrContended is returned when the lock could not be acquired without blocking.
	ErrContended = errors.New("registry lock contended")
	// ErrEmpty is returned when no handle has been registered yet.
	ErrEmpty = errors.New("registry holds no handle")
)

// defaultAttempts bounds how many times a try-acquire is retried before giving up.
const defaultAttempts = 4

// Registry stores at most one handle of type T behind a read/write lock that
// is only ever try-acquired, so callers never block on it.
type Registry[T any] struct {
	mu       sync.RWMutex
	value    *T
	errs     *ErrorSlot
	attempts int
}

// Option customises a Registry.
type Option func(*options)

type options struct {
	attempts int
}

// WithAttempts overrides how many try-acquire attempts are made per access.
func WithAttempts(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.attempts = n
		}
	}
}

// New constructs an empty registry reporting failures to errs.
func New[T any](errs *ErrorSlot, opts ...Option) *Registry[T] {
	o := options{attempts: defaultAttempts}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return &Registry[T]{errs: errs, attempts: o.attempts}
}

// TrySet registers the handle when the registry is empty.
func (r *Registry[T]) TrySet(value *T) error {
	return r.Replace(value, nil)
}

// Replace registers the handle when the registry is empty or when stale
// reports the current handle as replaceable.
func (r *Registry[T]) Replace(value *T, stale func(current *T) bool) error {
	if !r.lock(Write) {
		r.errs.WeaklyRecord("failed to acquire registry for write; intent: install handle")
		return ErrContended
	}
	defer r.unlock(Write)
	if r.value != nil && (stale == nil || !stale(r.value)) {
		return ErrOccupied
	}
	r.value = value
	return nil
}

// With acquires the registry in the requested mode and runs fn against the
// stored handle. The boolean is false, and the error slot updated, when the
// lock is contended or no handle exists.
func With[T, R any](r *Registry[T], mode Mode, intent string, fn func(*T) R) (R, bool) {
	var zero R
	if r == nil {
		return zero, false
	}
	if !r.lock(mode) {
		r.errs.WeaklyRecordf("failed to acquire registry for %s; intent: %s", mode, intent)
		return zero, false
	}
	defer r.unlock(mode)
	if r.value == nil {
		r.errs.WeaklyRecordf("no server state registered; intent: %s", intent)
		return zero, false
	}
	return fn(r.value), true
}

func (r *Registry[T]) lock(mode Mode) bool {
	for i := 0; i < r.attempts; i++ {
		var ok bool
		if mode == Write {
			ok = r.mu.TryLock()
		} else {
			ok = r.mu.TryRLock()
		}
		if ok {
			return true
		}
		runtime.Gosched()
	}
	return false
}

func (r *Registry[T]) unlock(mode Mode) {
	if mode == Write {
		r.mu.Unlock()
		return
	}
	r.mu.RUnlock()
}
