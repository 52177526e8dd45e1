package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Config controls how collectors are named and registered.
type Config struct {
	Namespace   string
	Subsystem   string
	ConstLabels prometheus.Labels
	Registry    *prometheus.Registry
}

// Option customises the collector configuration.
type Option func(*Config)

// WithNamespace sets the metrics namespace.
func WithNamespace(namespace string) Option {
	return func(c *Config) {
		c.Namespace = namespace
	}
}

// WithConstLabels adds constant labels to every metric.
func WithConstLabels(labels prometheus.Labels) Option {
	return func(c *Config) {
		c.ConstLabels = labels
	}
}

// WithRegistry registers the collectors on an existing registry.
func WithRegistry(registry *prometheus.Registry) Option {
	return func(c *Config) {
		if registry != nil {
			c.Registry = registry
		}
	}
}

// Collector exposes engine counters. A nil *Collector discards every update.
type Collector struct {
	registry *prometheus.Registry

	connectionsActive  prometheus.Gauge
	connectionsTotal   prometheus.Counter
	connectionsRefused *prometheus.CounterVec
	batchesPublished   prometheus.Counter
	messagesSent       prometheus.Counter
	bytesSent          prometheus.Counter
	messagesReceived   prometheus.Counter
	bytesReceived      prometheus.Counter
	laggedBatches      prometheus.Counter
	ioErrors           *prometheus.CounterVec
	eventsDropped      prometheus.Counter
}

// New builds the collectors. Each Collector owns a private registry unless
// one is supplied, so several servers may coexist in one process.
func New(opts ...Option) *Collector {
	cfg := Config{Namespace: "quicksocket"}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	if cfg.Registry == nil {
		cfg.Registry = prometheus.NewRegistry()
	}
	factory := promauto.With(cfg.Registry)
	counterOpts := func(name, help string) prometheus.CounterOpts {
		return prometheus.CounterOpts{
			Namespace:   cfg.Namespace,
			Subsystem:   cfg.Subsystem,
			Name:        name,
			Help:        help,
			ConstLabels: cfg.ConstLabels,
		}
	}
	return &Collector{
		registry: cfg.Registry,
		connectionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   cfg.Namespace,
			Subsystem:   cfg.Subsystem,
			Name:        "connections_active",
			Help:        "Currently connected WebSocket clients.",
			ConstLabels: cfg.ConstLabels,
		}),
		connectionsTotal:   factory.NewCounter(counterOpts("connections_total", "WebSocket connections accepted.")),
		connectionsRefused: factory.NewCounterVec(counterOpts("connections_refused_total", "WebSocket upgrades refused."), []string{"reason"}),
		batchesPublished:   factory.NewCounter(counterOpts("batches_published_total", "Outbound batches published by the host.")),
		messagesSent:       factory.NewCounter(counterOpts("messages_sent_total", "Messages written to clients.")),
		bytesSent:          factory.NewCounter(counterOpts("sent_bytes_total", "Payload bytes written to clients.")),
		messagesReceived:   factory.NewCounter(counterOpts("messages_received_total", "Data messages received from clients.")),
		bytesReceived:      factory.NewCounter(counterOpts("received_bytes_total", "Payload bytes received from clients.")),
		laggedBatches:      factory.NewCounter(counterOpts("lagged_batches_total", "Outbound batches skipped by lagging clients.")),
		ioErrors:           factory.NewCounterVec(counterOpts("io_errors_total", "Per-connection read and write failures."), []string{"direction"}),
		eventsDropped:      factory.NewCounter(counterOpts("connection_events_dropped_total", "Connection events dropped because the host was not draining.")),
	}
}

// Gatherer exposes the registry for HTTP exposition.
func (c *Collector) Gatherer() prometheus.Gatherer {
	if c == nil {
		return prometheus.NewRegistry()
	}
	return c.registry
}

func (c *Collector) ConnectionOpened() {
	if c == nil {
		return
	}
	c.connectionsTotal.Inc()
	c.connectionsActive.Inc()
}

func (c *Collector) ConnectionClosed() {
	if c == nil {
		return
	}
	c.connectionsActive.Dec()
}

// ConnectionRefused counts a refused upgrade by reason (shutdown, capacity, handshake).
func (c *Collector) ConnectionRefused(reason string) {
	if c == nil {
		return
	}
	c.connectionsRefused.WithLabelValues(reason).Inc()
}

func (c *Collector) BatchPublished() {
	if c == nil {
		return
	}
	c.batchesPublished.Inc()
}

func (c *Collector) MessagesSent(count, bytes int) {
	if c == nil {
		return
	}
	c.messagesSent.Add(float64(count))
	c.bytesSent.Add(float64(bytes))
}

func (c *Collector) MessageReceived(bytes int) {
	if c == nil {
		return
	}
	c.messagesReceived.Inc()
	c.bytesReceived.Add(float64(bytes))
}

func (c *Collector) BatchesLagged(missed uint64) {
	if c == nil {
		return
	}
	c.laggedBatches.Add(float64(missed))
}

func (c *Collector) ReadError() {
	if c == nil {
		return
	}
	c.ioErrors.WithLabelValues("read").Inc()
}

func (c *Collector) WriteError() {
	if c == nil {
		return
	}
	c.ioErrors.WithLabelValues("write").Inc()
}

func (c *Collector) ConnectionEventDropped() {
	if c == nil {
		return
	}
	c.eventsDropped.Inc()
}
