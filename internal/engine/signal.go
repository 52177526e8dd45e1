package engine

import (
	"context"
	"sync/atomic"
)

// SignalState is the observable phase of a shutdown signal.
type SignalState int32

const (
	// NotRequested means the engine keeps serving.
	NotRequested SignalState = iota
	// Requested means shutdown was asked for and the engine is draining.
	Requested
	// Acknowledged means every engine task has exited.
	Acknowledged
)

func (s SignalState) String() string {
	switch s {
	case Requested:
		return "requested"
	case Acknowledged:
		return "acknowledged"
	default:
		return "not_requested"
	}
}

// Signal is a level-triggered shutdown flag. Once requested it stays
// requested, so observers that arrive late still see it.
type Signal struct {
	state  atomic.Int32
	ctx    context.Context
	cancel context.CancelFunc
}

// NewSignal returns a signal in the NotRequested state.
func NewSignal() *Signal {
	ctx, cancel := context.WithCancel(context.Background())
	return &Signal{ctx: ctx, cancel: cancel}
}

// Request moves the signal to Requested. It reports whether this call made
// the transition; later calls are no-ops.
func (s *Signal) Request() bool {
	if s == nil {
		return false
	}
	if !s.state.CompareAndSwap(int32(NotRequested), int32(Requested)) {
		return false
	}
	s.cancel()
	return true
}

// Requested reports whether shutdown was requested, including after acknowledgement.
func (s *Signal) Requested() bool {
	return s != nil && SignalState(s.state.Load()) != NotRequested
}

// Done is closed once shutdown has been requested.
func (s *Signal) Done() <-chan struct{} {
	return s.ctx.Done()
}

// Context is cancelled when shutdown is requested. Blocking work inside the
// engine derives from it.
func (s *Signal) Context() context.Context {
	return s.ctx
}

// Acknowledge records that the drain finished. It implies Request.
func (s *Signal) Acknowledge() {
	if s == nil {
		return
	}
	s.Request()
	s.state.Store(int32(Acknowledged))
}

// Acknowledged reports whether the drain finished.
func (s *Signal) Acknowledged() bool {
	return s != nil && SignalState(s.state.Load()) == Acknowledged
}

// State returns the current phase.
func (s *Signal) State() SignalState {
	if s == nil {
		return NotRequested
	}
	return SignalState(s.state.Load())
}
