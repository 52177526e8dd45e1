// Package engine runs the background side of the server: the accept loop,
// one forwarder/collector pair per connection and the shutdown drain.
package engine

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"quicksocket/internal/broadcast"
	"quicksocket/internal/inbound"
	"quicksocket/internal/logging"
	"quicksocket/internal/metrics"
	"quicksocket/internal/registry"
	"quicksocket/internal/wire"
)

const (
	// DefaultEventCapacity bounds the queue of unread connection events.
	DefaultEventCapacity = 16
	// DefaultShutdownGrace bounds how long the HTTP accept loop may take to stop.
	DefaultShutdownGrace = 5 * time.Second
	// DefaultPingInterval is the keepalive cadence when none is configured.
	DefaultPingInterval = 30 * time.Second
	// DefaultWriteTimeout bounds one batch write when none is configured.
	DefaultWriteTimeout = 10 * time.Second
	// DefaultMaxPayloadBytes limits a single inbound message.
	DefaultMaxPayloadBytes int64 = 1 << 20

	closeGrace = time.Second
	tracerName = "quicksocket/engine"
)

var (
	// ErrAlreadyStarted is returned when Start is called on a used engine.
	ErrAlreadyStarted = errors.New("engine already started")
	// ErrInvalidPort is returned for ports outside 0-65535.
	ErrInvalidPort = errors.New("port must be within 0-65535")
)

// Options configures an Engine. Zero values fall back to the defaults.
type Options struct {
	Host               string
	Port               int
	Path               string
	AllowedOrigins     []string
	MaxPayloadBytes    int64
	PingInterval       time.Duration
	WriteTimeout       time.Duration
	MaxClients         int
	BroadcastCapacity  int
	InboundCapacity    int
	EventCapacity      int
	DropLaggingClients bool
	ShutdownGrace      time.Duration
	Logger             *logging.Logger
	Metrics            *metrics.Collector
	Errors             *registry.ErrorSlot
}

// Stats is a point-in-time view of the engine.
type Stats struct {
	Addr           string  `json:"addr"`
	Alive          bool    `json:"alive"`
	Shutdown       string  `json:"shutdown"`
	Clients        int     `json:"clients"`
	Accepted       uint64  `json:"accepted"`
	Published      uint64  `json:"published"`
	PendingInbound int     `json:"pending_inbound"`
	PendingEvents  int     `json:"pending_events"`
	UptimeSeconds  float64 `json:"uptime_seconds"`
}

// Engine owns the listener, the channels and every connection task of one
// server lifetime. An Engine is started at most once.
type Engine struct {
	opts     Options
	logger   *logging.Logger
	metrics  *metrics.Collector
	errs     *registry.ErrorSlot
	tracer   trace.Tracer
	upgrader websocket.Upgrader

	bus     *broadcast.Bus[wire.Batch]
	inbound *inbound.Queue[wire.Message]
	events  *inbound.Queue[string]
	signal  *Signal
	alive   atomic.Bool

	mu       sync.Mutex
	started  bool
	closing  bool
	active   int
	conns    sync.WaitGroup
	listener net.Listener
	srv      *http.Server
	startAt  time.Time

	accepted atomic.Uint64
	done     chan struct{}
}

// New builds an engine with its channels allocated but no socket bound.
func New(opts Options) *Engine {
	if opts.Path == "" {
		opts.Path = "/"
	}
	if opts.MaxPayloadBytes <= 0 {
		opts.MaxPayloadBytes = DefaultMaxPayloadBytes
	}
	if opts.PingInterval <= 0 {
		opts.PingInterval = DefaultPingInterval
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = DefaultWriteTimeout
	}
	if opts.EventCapacity <= 0 {
		opts.EventCapacity = DefaultEventCapacity
	}
	if opts.ShutdownGrace <= 0 {
		opts.ShutdownGrace = DefaultShutdownGrace
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.L()
	}
	errs := opts.Errors
	if errs == nil {
		errs = registry.NewErrorSlot()
	}
	e := &Engine{
		opts:    opts,
		logger:  logger.With(logging.String("component", "engine")),
		metrics: opts.Metrics,
		errs:    errs,
		tracer:  otel.Tracer(tracerName),
		bus:     broadcast.New[wire.Batch](opts.BroadcastCapacity),
		inbound: inbound.New[wire.Message](opts.InboundCapacity),
		events:  inbound.New[string](opts.EventCapacity),
		signal:  NewSignal(),
		done:    make(chan struct{}),
	}
	e.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     e.checkOrigin,
	}
	return e
}

// Start binds the listener and launches the accept loop. Liveness is true
// when Start returns nil; a bind failure leaves the engine dead.
func (e *Engine) Start() error {
	e.mu.Lock()
	if e.started {
		e.mu.Unlock()
		return ErrAlreadyStarted
	}
	e.started = true
	e.mu.Unlock()

	if e.opts.Port < 0 || e.opts.Port > 65535 {
		e.abandon()
		return fmt.Errorf("%w, got %d", ErrInvalidPort, e.opts.Port)
	}
	address := net.JoinHostPort(e.opts.Host, strconv.Itoa(e.opts.Port))
	listener, err := net.Listen("tcp", address)
	if err != nil {
		e.abandon()
		return fmt.Errorf("bind %s: %w", address, err)
	}

	e.mu.Lock()
	e.listener = listener
	e.srv = &http.Server{Handler: e, ReadHeaderTimeout: 10 * time.Second}
	e.startAt = time.Now()
	e.mu.Unlock()

	e.alive.Store(true)
	e.logger.Info("websocket listener bound", logging.String("addr", listener.Addr().String()))
	go e.run()
	return nil
}

// abandon finalises an engine that never served so callers can replace it.
func (e *Engine) abandon() {
	e.signal.Acknowledge()
	e.bus.Close()
	e.inbound.Close()
	e.events.Close()
	close(e.done)
}

// run races the accept loop against the shutdown signal, then drains.
func (e *Engine) run() {
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- e.srv.Serve(e.listener)
	}()

	select {
	case <-e.signal.Done():
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			e.errs.WeaklyRecordf("accept loop failed: %v", err)
			e.logger.Error("accept loop failed", logging.Error(err))
		}
		e.signal.Request()
	}

	_, span := e.tracer.Start(context.Background(), "quicksocket.shutdown",
		trace.WithAttributes(attribute.String("quicksocket.addr", e.Addr())))
	defer span.End()

	//1.- Refuse upgrades that have not been tracked yet.
	e.mu.Lock()
	e.closing = true
	clients := e.active
	e.mu.Unlock()
	e.logger.Info("shutdown requested", logging.Int("clients", clients))

	//2.- Stop accepting. Hijacked connections are not touched by Shutdown.
	ctx, cancel := context.WithTimeout(context.Background(), e.opts.ShutdownGrace)
	if err := e.srv.Shutdown(ctx); err != nil {
		e.logger.Warn("graceful listener shutdown timed out", logging.Error(err))
		_ = e.srv.Close()
	}
	cancel()

	//3.- Every connection pair observes the signal and exits on its own.
	e.conns.Wait()

	e.alive.Store(false)
	e.signal.Acknowledge()
	e.bus.Close()
	e.inbound.Close()
	e.events.Close()
	span.SetAttributes(attribute.Int("quicksocket.drained_clients", clients))
	e.logger.Info("engine stopped", logging.Int("drained_clients", clients))
	close(e.done)
}

// ServeHTTP upgrades WebSocket requests on the configured path.
func (e *Engine) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if e.opts.Path != "/" && r.URL.Path != e.opts.Path {
		http.NotFound(w, r)
		return
	}
	if reason, ok := e.track(); !ok {
		e.metrics.ConnectionRefused(reason)
		http.Error(w, "server unavailable: "+reason, http.StatusServiceUnavailable)
		return
	}

	//1.- Subscribe before the handshake completes so a client never misses a
	// batch published after its dial returned.
	sub := e.bus.Subscribe()
	ws, err := e.upgrader.Upgrade(w, r, nil)
	if err != nil {
		sub.Close()
		e.untrack()
		e.metrics.ConnectionRefused("handshake")
		e.logger.Debug("websocket upgrade failed", logging.String("remote_addr", r.RemoteAddr), logging.Error(err))
		return
	}
	//2.- Report the peer without ever blocking the accept path.
	if err := e.events.TryPush(r.RemoteAddr); err != nil {
		e.metrics.ConnectionEventDropped()
		e.errs.WeaklyRecordf("dropped connection event for %s: %v", r.RemoteAddr, err)
	}
	e.accepted.Add(1)
	e.metrics.ConnectionOpened()

	c := newConnection(e, ws, sub, r.RemoteAddr)
	go c.collect()
	go c.forward()
}

func (e *Engine) track() (string, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closing {
		return "shutting_down", false
	}
	if e.opts.MaxClients > 0 && e.active >= e.opts.MaxClients {
		return "capacity", false
	}
	e.active++
	e.conns.Add(1)
	return "", true
}

func (e *Engine) untrack() {
	e.mu.Lock()
	e.active--
	e.mu.Unlock()
	e.conns.Done()
}

func (e *Engine) checkOrigin(r *http.Request) bool {
	if len(e.opts.AllowedOrigins) == 0 {
		return true
	}
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		return true
	}
	for _, allowed := range e.opts.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	return false
}

// Publish fans a batch out to every current subscriber and returns how many
// there were. Zero receivers is not an error.
func (e *Engine) Publish(batch wire.Batch) (int, error) {
	receivers, err := e.bus.Publish(batch.Clone())
	if err != nil {
		return 0, err
	}
	e.metrics.BatchPublished()
	return receivers, nil
}

// DrainMessages returns the client messages queued so far, oldest first.
func (e *Engine) DrainMessages() []wire.Message {
	return e.inbound.Drain()
}

// DrainEvents returns the peer addresses of connections accepted since the
// last call.
func (e *Engine) DrainEvents() []string {
	return e.events.Drain()
}

// RequestShutdown asks the engine to stop. It never blocks.
func (e *Engine) RequestShutdown() {
	if e.signal.Request() {
		e.logger.Debug("shutdown signal raised")
	}
}

// Alive reports whether the accept loop is up or still draining.
func (e *Engine) Alive() bool {
	return e.alive.Load()
}

// Signal exposes the shutdown signal for observers.
func (e *Engine) Signal() *Signal {
	return e.signal
}

// Done is closed once the engine has fully drained or failed to start.
func (e *Engine) Done() <-chan struct{} {
	return e.done
}

// Finished reports whether Done is closed.
func (e *Engine) Finished() bool {
	select {
	case <-e.done:
		return true
	default:
		return false
	}
}

// Wait blocks until the engine finishes or ctx ends.
func (e *Engine) Wait(ctx context.Context) error {
	select {
	case <-e.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Addr returns the bound listener address, or "" before binding.
func (e *Engine) Addr() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.listener == nil {
		return ""
	}
	return e.listener.Addr().String()
}

// Stats snapshots counters for observability endpoints.
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	clients := e.active
	startAt := e.startAt
	e.mu.Unlock()
	stats := Stats{
		Addr:           e.Addr(),
		Alive:          e.Alive(),
		Shutdown:       e.signal.State().String(),
		Clients:        clients,
		Accepted:       e.accepted.Load(),
		Published:      e.bus.Published(),
		PendingInbound: e.inbound.Len(),
		PendingEvents:  e.events.Len(),
	}
	if !startAt.IsZero() && stats.Alive {
		stats.UptimeSeconds = time.Since(startAt).Seconds()
	}
	return stats
}
