package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultHost is the interface the WebSocket listener binds to.
	DefaultHost = "127.0.0.1"
	// DefaultPort is the WebSocket port used when none is configured.
	DefaultPort = 10202
	// DefaultPath is the HTTP path upgraded to WebSocket; "/" accepts any path.
	DefaultPath = "/"
	// DefaultPingInterval controls the keepalive cadence for WebSocket connections.
	DefaultPingInterval = 30 * time.Second
	// DefaultWriteTimeout bounds how long one outbound batch may take to write.
	DefaultWriteTimeout = 10 * time.Second
	// DefaultMaxPayloadBytes limits inbound WebSocket message size.
	DefaultMaxPayloadBytes int64 = 1 << 20
	// DefaultMaxClients bounds concurrent WebSocket connections. Zero disables the limit.
	DefaultMaxClients = 256
	// DefaultBroadcastCapacity is the number of outbound batches retained for slow clients.
	DefaultBroadcastCapacity = 16
	// DefaultInboundCapacity bounds the aggregated client message queue.
	DefaultInboundCapacity = 16
	// DefaultPollInterval is how often the CLI host loop drains the engine.
	DefaultPollInterval = 50 * time.Millisecond

	// DefaultLogLevel controls verbosity for logs.
	DefaultLogLevel = "info"
	// DefaultLogPath is where structured logs are written.
	DefaultLogPath = "quicksocket.log"
	// DefaultLogMaxSizeMB caps the size of a single log file before rotation.
	DefaultLogMaxSizeMB = 100
	// DefaultLogMaxBackups limits retained rotated log files.
	DefaultLogMaxBackups = 10
	// DefaultLogMaxAgeDays controls how long rotated log files are kept on disk.
	DefaultLogMaxAgeDays = 7
	// DefaultLogCompression selects the codec for rotated log files.
	DefaultLogCompression = "gzip"
)

// Config captures all runtime tunables for the server and its CLI.
type Config struct {
	Host              string        `yaml:"host"`
	Port              int           `yaml:"port"`
	Path              string        `yaml:"path"`
	AllowedOrigins    []string      `yaml:"allowed_origins"`
	MaxPayloadBytes   int64         `yaml:"max_payload_bytes"`
	PingInterval      time.Duration `yaml:"ping_interval"`
	WriteTimeout      time.Duration `yaml:"write_timeout"`
	MaxClients        int           `yaml:"max_clients"`
	BroadcastCapacity int           `yaml:"broadcast_capacity"`
	InboundCapacity   int           `yaml:"inbound_capacity"`
	DropLagging       bool          `yaml:"drop_lagging"`
	PollInterval      time.Duration `yaml:"poll_interval"`
	Relay             bool          `yaml:"relay"`
	OpsAddr           string        `yaml:"ops_addr"`
	ControlAddr       string        `yaml:"control_addr"`
	Logging           LoggingConfig `yaml:"logging"`
}

// LoggingConfig captures structured logging configuration options.
type LoggingConfig struct {
	Level       string `yaml:"level"`
	Path        string `yaml:"path"`
	MaxSizeMB   int    `yaml:"max_size_mb"`
	MaxBackups  int    `yaml:"max_backups"`
	MaxAgeDays  int    `yaml:"max_age_days"`
	Compression string `yaml:"compression"`
}

// Default returns the configuration used when nothing is overridden.
func Default() *Config {
	return &Config{
		Host:              DefaultHost,
		Port:              DefaultPort,
		Path:              DefaultPath,
		MaxPayloadBytes:   DefaultMaxPayloadBytes,
		PingInterval:      DefaultPingInterval,
		WriteTimeout:      DefaultWriteTimeout,
		MaxClients:        DefaultMaxClients,
		BroadcastCapacity: DefaultBroadcastCapacity,
		InboundCapacity:   DefaultInboundCapacity,
		PollInterval:      DefaultPollInterval,
		Relay:             true,
		Logging: LoggingConfig{
			Level:       DefaultLogLevel,
			Path:        DefaultLogPath,
			MaxSizeMB:   DefaultLogMaxSizeMB,
			MaxBackups:  DefaultLogMaxBackups,
			MaxAgeDays:  DefaultLogMaxAgeDays,
			Compression: DefaultLogCompression,
		},
	}
}

// Load reads the configuration from environment variables, applying defaults
// and returning descriptive errors for invalid overrides.
func Load() (*Config, error) {
	return LoadFile("")
}

// LoadFile overlays the YAML file at path (when non-empty) on the defaults,
// then applies environment overrides.
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	if strings.TrimSpace(path) != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	var problems []string
	env := envReader{problems: &problems}

	cfg.Host = env.string("QUICKSOCKET_HOST", cfg.Host)
	cfg.Path = env.string("QUICKSOCKET_PATH", cfg.Path)
	cfg.OpsAddr = env.string("QUICKSOCKET_OPS_ADDR", cfg.OpsAddr)
	cfg.ControlAddr = env.string("QUICKSOCKET_CONTROL_ADDR", cfg.ControlAddr)
	if origins := parseList(os.Getenv("QUICKSOCKET_ALLOWED_ORIGINS")); origins != nil {
		cfg.AllowedOrigins = origins
	}
	cfg.Port = env.int("QUICKSOCKET_PORT", cfg.Port, 0)
	cfg.MaxPayloadBytes = env.int64("QUICKSOCKET_MAX_PAYLOAD_BYTES", cfg.MaxPayloadBytes)
	cfg.PingInterval = env.duration("QUICKSOCKET_PING_INTERVAL", cfg.PingInterval)
	cfg.WriteTimeout = env.duration("QUICKSOCKET_WRITE_TIMEOUT", cfg.WriteTimeout)
	cfg.MaxClients = env.int("QUICKSOCKET_MAX_CLIENTS", cfg.MaxClients, 0)
	cfg.BroadcastCapacity = env.int("QUICKSOCKET_BROADCAST_CAPACITY", cfg.BroadcastCapacity, 1)
	cfg.InboundCapacity = env.int("QUICKSOCKET_INBOUND_CAPACITY", cfg.InboundCapacity, 1)
	cfg.DropLagging = env.bool("QUICKSOCKET_DROP_LAGGING", cfg.DropLagging)
	cfg.PollInterval = env.duration("QUICKSOCKET_POLL_INTERVAL", cfg.PollInterval)
	cfg.Relay = env.bool("QUICKSOCKET_RELAY", cfg.Relay)

	cfg.Logging.Level = env.string("QUICKSOCKET_LOG_LEVEL", cfg.Logging.Level)
	cfg.Logging.Path = env.string("QUICKSOCKET_LOG_PATH", cfg.Logging.Path)
	cfg.Logging.MaxSizeMB = env.int("QUICKSOCKET_LOG_MAX_SIZE_MB", cfg.Logging.MaxSizeMB, 1)
	cfg.Logging.MaxBackups = env.int("QUICKSOCKET_LOG_MAX_BACKUPS", cfg.Logging.MaxBackups, 0)
	cfg.Logging.MaxAgeDays = env.int("QUICKSOCKET_LOG_MAX_AGE_DAYS", cfg.Logging.MaxAgeDays, 0)
	cfg.Logging.Compression = env.string("QUICKSOCKET_LOG_COMPRESSION", cfg.Logging.Compression)

	problems = append(problems, cfg.validate()...)
	if len(problems) > 0 {
		return nil, errors.New(strings.Join(problems, "; "))
	}
	return cfg, nil
}

// Address joins the configured host and port.
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func (c *Config) validate() []string {
	var problems []string
	if c.Port < 0 || c.Port > 65535 {
		problems = append(problems, fmt.Sprintf("port must be within 0-65535, got %d", c.Port))
	}
	if !strings.HasPrefix(c.Path, "/") {
		problems = append(problems, fmt.Sprintf("path must start with '/', got %q", c.Path))
	}
	if c.MaxPayloadBytes <= 0 {
		problems = append(problems, "max payload bytes must be positive")
	}
	if c.PingInterval <= 0 {
		problems = append(problems, "ping interval must be positive")
	}
	if c.WriteTimeout <= 0 {
		problems = append(problems, "write timeout must be positive")
	}
	if c.PollInterval <= 0 {
		problems = append(problems, "poll interval must be positive")
	}
	switch strings.ToLower(strings.TrimSpace(c.Logging.Compression)) {
	case "", "none", "off", "gzip", "gz", "zstd", "zst", "snappy", "sz":
	default:
		problems = append(problems, fmt.Sprintf("unknown log compression %q", c.Logging.Compression))
	}
	return problems
}

// envReader parses typed overrides and collects every problem instead of
// stopping at the first one.
type envReader struct {
	problems *[]string
}

func (e envReader) string(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

func (e envReader) int(key string, fallback, min int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < min {
		*e.problems = append(*e.problems, fmt.Sprintf("%s must be an integer >= %d, got %q", key, min, raw))
		return fallback
	}
	return value
}

func (e envReader) int64(key string, fallback int64) int64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || value <= 0 {
		*e.problems = append(*e.problems, fmt.Sprintf("%s must be a positive integer, got %q", key, raw))
		return fallback
	}
	return value
}

func (e envReader) duration(key string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	value, err := time.ParseDuration(raw)
	if err != nil || value <= 0 {
		*e.problems = append(*e.problems, fmt.Sprintf("%s must be a positive duration, got %q", key, raw))
		return fallback
	}
	return value
}

func (e envReader) bool(key string, fallback bool) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		*e.problems = append(*e.problems, fmt.Sprintf("%s must be a boolean value, got %q", key, raw))
		return fallback
	}
	return value
}

func parseList(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	values := make([]string, 0, len(parts))
	for _, part := range parts {
		if item := strings.TrimSpace(part); item != "" {
			values = append(values, item)
		}
	}
	return values
}
