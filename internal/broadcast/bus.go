// Package broadcast implements a bounded one-to-many bus. Every subscriber
// reads through its own cursor; a subscriber that falls more than the ring
// capacity behind skips ahead and is told how many values it missed.
// Publishing never waits on subscribers.
package broadcast

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrClosed is returned once the bus has been closed and fully read.
var ErrClosed = errors.New("broadcast bus closed")

// LaggedError reports values overwritten before the subscriber read them.
type LaggedError struct {
	Missed uint64
}

func (e *LaggedError) Error() string {
	return fmt.Sprintf("subscriber lagged behind by %d values", e.Missed)
}

// DefaultCapacity matches the buffer depth used for the outbound channel.
const DefaultCapacity = 16

// Bus fans values out to all current subscribers.
type Bus[T any] struct {
	mu          sync.RWMutex
	ring        []T
	capacity    uint64
	tail        uint64
	notify      chan struct{}
	subscribers int
	published   uint64
	closed      bool
}

// New constructs a bus retaining the last capacity values.
func New[T any](capacity int) *Bus[T] {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Bus[T]{
		ring:     make([]T, capacity),
		capacity: uint64(capacity),
		notify:   make(chan struct{}),
	}
}

// Subscribe registers a cursor positioned after everything published so far.
func (b *Bus[T]) Subscribe() *Subscription[T] {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers++
	return &Subscription[T]{bus: b, next: b.tail}
}

// Publish appends the value and wakes waiting subscribers. It returns the
// number of subscribers at publish time; zero is not an error.
func (b *Bus[T]) Publish(value T) (int, error) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return 0, ErrClosed
	}
	//1.- Overwrite the oldest slot; lagging cursors detect this by sequence.
	b.ring[b.tail%b.capacity] = value
	b.tail++
	b.published++
	receivers := b.subscribers
	//2.- Swap the notify channel so every current waiter wakes exactly once.
	wake := b.notify
	b.notify = make(chan struct{})
	b.mu.Unlock()
	close(wake)
	return receivers, nil
}

// Close stops publishing. Subscribers may still read what remains retained.
func (b *Bus[T]) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	wake := b.notify
	b.notify = make(chan struct{})
	b.mu.Unlock()
	close(wake)
}

// Subscribers returns the number of live subscriptions.
func (b *Bus[T]) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.subscribers
}

// Published returns how many values were ever published.
func (b *Bus[T]) Published() uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.published
}

// Subscription is a single reader's cursor. It must be used by one goroutine.
type Subscription[T any] struct {
	bus    *Bus[T]
	next   uint64
	once   sync.Once
	closed bool
}

// Poll returns the next value when one is available. When none is, ok is
// false and wait is closed on the next publish or when the bus closes. A
// *LaggedError means the cursor was advanced past overwritten values; the
// caller should poll again.
func (s *Subscription[T]) Poll() (value T, ok bool, wait <-chan struct{}, err error) {
	b := s.bus
	b.mu.RLock()
	defer b.mu.RUnlock()
	if s.closed {
		return value, false, nil, ErrClosed
	}
	if s.next >= b.tail {
		if b.closed {
			return value, false, nil, ErrClosed
		}
		return value, false, b.notify, nil
	}
	var oldest uint64
	if b.tail > b.capacity {
		oldest = b.tail - b.capacity
	}
	if s.next < oldest {
		missed := oldest - s.next
		s.next = oldest
		return value, false, nil, &LaggedError{Missed: missed}
	}
	value = b.ring[s.next%b.capacity]
	s.next++
	return value, true, nil, nil
}

// Recv blocks until a value is available, the bus closes or ctx ends.
func (s *Subscription[T]) Recv(ctx context.Context) (T, error) {
	for {
		value, ok, wait, err := s.Poll()
		if err != nil || ok {
			return value, err
		}
		select {
		case <-wait:
		case <-ctx.Done():
			var zero T
			return zero, ctx.Err()
		}
	}
}

// Close detaches the subscription from the bus.
func (s *Subscription[T]) Close() {
	s.once.Do(func() {
		b := s.bus
		b.mu.Lock()
		b.subscribers--
		s.closed = true
		b.mu.Unlock()
	})
}
