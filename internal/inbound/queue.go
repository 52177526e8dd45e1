// Package inbound provides the bounded many-to-one queue that collects
// client messages (and connection events) for the host to drain.
package inbound

import (
	"context"
	"errors"
	"sync"
)

var (
	// ErrClosed is returned when pushing into a closed queue.
	ErrClosed = errors.New("inbound queue closed")
	// ErrFull is returned by TryPush when the queue has no free slot.
	ErrFull = errors.New("inbound queue full")
)

// DefaultCapacity mirrors the default buffer depth of the client channels.
const DefaultCapacity = 16

// Queue is safe for any number of producers and one draining consumer.
// Items pushed from a single producer keep their order.
type Queue[T any] struct {
	items chan T
	done  chan struct{}
	once  sync.Once
}

// New constructs a queue holding at most capacity items.
func New[T any](capacity int) *Queue[T] {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Queue[T]{
		items: make(chan T, capacity),
		done:  make(chan struct{}),
	}
}

// Push enqueues the item, waiting for space while the queue is full. It gives
// up when the queue closes or ctx ends.
func (q *Queue[T]) Push(ctx context.Context, item T) error {
	//1.- Refuse early so a closed queue never accepts a racing send.
	select {
	case <-q.done:
		return ErrClosed
	default:
	}
	select {
	case q.items <- item:
		return nil
	case <-q.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TryPush enqueues without waiting.
func (q *Queue[T]) TryPush(item T) error {
	select {
	case <-q.done:
		return ErrClosed
	default:
	}
	select {
	case q.items <- item:
		return nil
	default:
		return ErrFull
	}
}

// Drain removes everything currently queued without blocking. At most one
// queue's worth of items is returned per call so a busy producer cannot keep
// the caller looping.
func (q *Queue[T]) Drain() []T {
	limit := cap(q.items)
	var out []T
	for i := 0; i < limit; i++ {
		select {
		case item := <-q.items:
			out = append(out, item)
		default:
			return out
		}
	}
	return out
}

// Len reports how many items are waiting.
func (q *Queue[T]) Len() int { return len(q.items) }

// Cap reports the queue bound.
func (q *Queue[T]) Cap() int { return cap(q.items) }

// Close rejects further pushes. Queued items remain drainable.
func (q *Queue[T]) Close() {
	q.once.Do(func() { close(q.done) })
}

// Closed reports whether Close has been called.
func (q *Queue[T]) Closed() bool {
	select {
	case <-q.done:
		return true
	default:
		return false
	}
}
