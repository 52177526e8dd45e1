package registry

import (
	"fmt"
	"sync"
)

// unreadableError is reported by Peek when the slot itself is contended.
const unreadableError = "couldn't read last error"

// ErrorSlot keeps the most recent diagnostic message. Writes are best effort:
// a write that cannot take the lock immediately is dropped, so concurrent
// failures may overwrite or lose one another.
type ErrorSlot struct {
	mu  sync.Mutex
	msg string
	set bool
}

// NewErrorSlot returns an empty slot.
func NewErrorSlot() *ErrorSlot {
	return &ErrorSlot{}
}

// WeaklyRecord overwrites the last error when the slot is uncontended and
// silently does nothing otherwise.
func (e *ErrorSlot) WeaklyRecord(msg string) {
	if e == nil {
		return
	}
	if !e.mu.TryLock() {
		return
	}
	e.msg = msg
	e.set = true
	e.mu.Unlock()
}

// WeaklyRecordf formats and records a message.
func (e *ErrorSlot) WeaklyRecordf(format string, args ...any) {
	e.WeaklyRecord(fmt.Sprintf(format, args...))
}

// Peek returns the last recorded message without clearing it.
func (e *ErrorSlot) Peek() (string, bool) {
	if e == nil {
		return "", false
	}
	if !e.mu.TryLock() {
		return unreadableError, true
	}
	defer e.mu.Unlock()
	if !e.set {
		return "", false
	}
	return e.msg, true
}
