// Package quicksocket is an embeddable WebSocket broadcast server. A host
// application drives it through a small synchronous control surface: it
// starts the engine, publishes batches to every connected client, drains the
// messages clients sent back and asks the engine to shut down. Every call
// returns immediately and never panics on network faults; failures surface
// as false/empty results plus a best-effort LastError entry.
package quicksocket

import (
	"context"
	"errors"

	"quicksocket/internal/engine"
	"quicksocket/internal/registry"
	"quicksocket/internal/wire"
)

// Stats is a point-in-time view of the running engine.
type Stats = engine.Stats

// Server is the host-owned context for one server at a time. The zero value
// is not usable; call New. All methods are safe for concurrent use.
type Server struct {
	opts options
	errs *registry.ErrorSlot
	reg  *registry.Registry[engine.Engine]
}

// New returns a server context with nothing bound yet.
func New(opts ...Option) *Server {
	o := defaultOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	errs := registry.NewErrorSlot()
	var regOpts []registry.Option
	if o.registryAttempts > 0 {
		regOpts = append(regOpts, registry.WithAttempts(o.registryAttempts))
	}
	o.engine.Errors = errs
	return &Server{
		opts: o,
		errs: errs,
		reg:  registry.New[engine.Engine](errs, regOpts...),
	}
}

// Start binds port (0 picks an ephemeral port) and launches the engine in
// the background. It returns false when a previous engine is still running
// or draining, when the registry is contended or when binding fails. A
// previous engine that has fully drained is replaced.
func (s *Server) Start(port int) bool {
	if s == nil {
		return false
	}
	engineOpts := s.opts.engine
	engineOpts.Port = port
	next := engine.New(engineOpts)

	//1.- Claim the registry first so two racing starts cannot both bind.
	err := s.reg.Replace(next, func(current *engine.Engine) bool {
		return current.Finished()
	})
	switch {
	case errors.Is(err, registry.ErrOccupied):
		s.errs.WeaklyRecord("server already running or still shutting down")
		return false
	case err != nil:
		return false
	}

	//2.- A failed bind leaves the new engine finished, so the next Start may replace it.
	if err := next.Start(); err != nil {
		s.errs.WeaklyRecordf("failed to start server: %v", err)
		return false
	}
	return true
}

// IsRunning reports whether the engine is accepting or still draining.
func (s *Server) IsRunning() bool {
	if s == nil {
		return false
	}
	alive, _ := registry.With(s.reg, registry.Read, "check liveness", func(e *engine.Engine) bool {
		return e.Alive()
	})
	return alive
}

// RequestShutdown asks the engine to stop and returns at once. Use IsRunning
// or Wait to observe the drain.
func (s *Server) RequestShutdown() {
	if s == nil {
		return
	}
	registry.With(s.reg, registry.Read, "request shutdown", func(e *engine.Engine) struct{} {
		e.RequestShutdown()
		return struct{}{}
	})
}

// LastError returns the most recently recorded failure without clearing it.
func (s *Server) LastError() (string, bool) {
	if s == nil {
		return "", false
	}
	return s.errs.Peek()
}

// SendMessages publishes msgs as one batch to every connected client. It
// returns true when the batch was published, including to zero clients.
func (s *Server) SendMessages(msgs []Message) bool {
	if s == nil {
		return false
	}
	for _, msg := range msgs {
		if !msg.Valid() {
			s.errs.WeaklyRecordf("refusing to send message of kind %s", msg.Kind)
			return false
		}
	}
	published, ok := registry.With(s.reg, registry.Read, "send messages", func(e *engine.Engine) bool {
		if len(msgs) == 0 {
			return true
		}
		if _, err := e.Publish(wire.Batch(msgs)); err != nil {
			s.errs.WeaklyRecordf("failed to publish batch: %v", err)
			return false
		}
		return true
	})
	return ok && published
}

// DrainClientMessages returns the client messages waiting since the last
// call, never more than one queue's worth. It never blocks.
func (s *Server) DrainClientMessages() []Message {
	if s == nil {
		return []Message{}
	}
	msgs, _ := registry.With(s.reg, registry.Write, "drain client messages", func(e *engine.Engine) []wire.Message {
		return e.DrainMessages()
	})
	if msgs == nil {
		return []Message{}
	}
	return msgs
}

// DrainNewConnectionEvents returns the peer addresses of clients accepted
// since the last call.
func (s *Server) DrainNewConnectionEvents() []string {
	if s == nil {
		return []string{}
	}
	events, _ := registry.With(s.reg, registry.Write, "drain connection events", func(e *engine.Engine) []string {
		return e.DrainEvents()
	})
	if events == nil {
		return []string{}
	}
	return events
}

// Addr returns the bound host:port, or "" when nothing is bound.
func (s *Server) Addr() string {
	if s == nil {
		return ""
	}
	addr, _ := registry.With(s.reg, registry.Read, "read address", func(e *engine.Engine) string {
		return e.Addr()
	})
	return addr
}

// Stats snapshots the current engine counters.
func (s *Server) Stats() Stats {
	if s == nil {
		return Stats{}
	}
	stats, _ := registry.With(s.reg, registry.Read, "read stats", func(e *engine.Engine) Stats {
		return e.Stats()
	})
	return stats
}

// Wait blocks until the current engine has fully drained or ctx ends. It
// returns nil immediately when no engine was ever started.
func (s *Server) Wait(ctx context.Context) error {
	if s == nil {
		return nil
	}
	current, ok := registry.With(s.reg, registry.Read, "wait for shutdown", func(e *engine.Engine) *engine.Engine {
		return e
	})
	if !ok {
		return nil
	}
	return current.Wait(ctx)
}
