package quicksocket

import (
	"time"

	"quicksocket/internal/config"
	"quicksocket/internal/engine"
	"quicksocket/internal/logging"
	"quicksocket/internal/metrics"
)

// Option customises a Server.
type Option func(*options)

type options struct {
	engine           engine.Options
	registryAttempts int
}

func defaultOptions() options {
	return options{
		engine: engine.Options{
			Host:              config.DefaultHost,
			Path:              config.DefaultPath,
			MaxPayloadBytes:   config.DefaultMaxPayloadBytes,
			PingInterval:      config.DefaultPingInterval,
			WriteTimeout:      config.DefaultWriteTimeout,
			MaxClients:        config.DefaultMaxClients,
			BroadcastCapacity: config.DefaultBroadcastCapacity,
			InboundCapacity:   config.DefaultInboundCapacity,
			EventCapacity:     engine.DefaultEventCapacity,
		},
	}
}

// WithConfig applies every engine setting from a loaded configuration.
func WithConfig(cfg *config.Config) Option {
	return func(o *options) {
		if cfg == nil {
			return
		}
		o.engine.Host = cfg.Host
		o.engine.Path = cfg.Path
		o.engine.AllowedOrigins = append([]string(nil), cfg.AllowedOrigins...)
		o.engine.MaxPayloadBytes = cfg.MaxPayloadBytes
		o.engine.PingInterval = cfg.PingInterval
		o.engine.WriteTimeout = cfg.WriteTimeout
		o.engine.MaxClients = cfg.MaxClients
		o.engine.BroadcastCapacity = cfg.BroadcastCapacity
		o.engine.InboundCapacity = cfg.InboundCapacity
		o.engine.DropLaggingClients = cfg.DropLagging
	}
}

// WithHost sets the interface the listener binds to.
func WithHost(host string) Option {
	return func(o *options) {
		o.engine.Host = host
	}
}

// WithPath restricts upgrades to one HTTP path. "/" accepts every path.
func WithPath(path string) Option {
	return func(o *options) {
		if path != "" {
			o.engine.Path = path
		}
	}
}

// WithAllowedOrigins limits accepted Origin headers. Empty allows all.
func WithAllowedOrigins(origins ...string) Option {
	return func(o *options) {
		o.engine.AllowedOrigins = append([]string(nil), origins...)
	}
}

// WithMaxPayloadBytes limits the size of one inbound message.
func WithMaxPayloadBytes(n int64) Option {
	return func(o *options) {
		o.engine.MaxPayloadBytes = n
	}
}

// WithPingInterval sets the keepalive cadence.
func WithPingInterval(d time.Duration) Option {
	return func(o *options) {
		o.engine.PingInterval = d
	}
}

// WithWriteTimeout bounds how long one outbound batch may take.
func WithWriteTimeout(d time.Duration) Option {
	return func(o *options) {
		o.engine.WriteTimeout = d
	}
}

// WithMaxClients caps concurrent connections. Zero disables the cap.
func WithMaxClients(n int) Option {
	return func(o *options) {
		o.engine.MaxClients = n
	}
}

// WithCapacities sets the broadcast ring and inbound queue sizes.
func WithCapacities(broadcast, inbound int) Option {
	return func(o *options) {
		o.engine.BroadcastCapacity = broadcast
		o.engine.InboundCapacity = inbound
	}
}

// WithEventCapacity bounds the queue of undrained connection events.
func WithEventCapacity(n int) Option {
	return func(o *options) {
		o.engine.EventCapacity = n
	}
}

// WithDropLaggingClients disconnects clients that fall behind the broadcast
// ring instead of letting them skip ahead.
func WithDropLaggingClients(drop bool) Option {
	return func(o *options) {
		o.engine.DropLaggingClients = drop
	}
}

// WithShutdownGrace bounds how long the listener may take to stop.
func WithShutdownGrace(d time.Duration) Option {
	return func(o *options) {
		o.engine.ShutdownGrace = d
	}
}

// WithLogger injects the structured logger used by the engine.
func WithLogger(logger *logging.Logger) Option {
	return func(o *options) {
		o.engine.Logger = logger
	}
}

// WithMetrics wires a Prometheus collector into the engine.
func WithMetrics(collector *metrics.Collector) Option {
	return func(o *options) {
		o.engine.Metrics = collector
	}
}

// WithRegistryAttempts sets how many times a contended registry lock is
// retried before the call gives up.
func WithRegistryAttempts(n int) Option {
	return func(o *options) {
		o.registryAttempts = n
	}
}
