package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"quicksocket/internal/engine"
	"quicksocket/internal/logging"
)

// StatusProvider exposes server state required for health and stats checks.
type StatusProvider interface {
	IsRunning() bool
	Stats() engine.Stats
	LastError() (string, bool)
}

// Options configures the HandlerSet.
type Options struct {
	Logger     *logging.Logger
	Status     StatusProvider
	Gatherer   prometheus.Gatherer
	TimeSource func() time.Time
}

// HandlerSet bundles the operational handlers.
type HandlerSet struct {
	logger   *logging.Logger
	status   StatusProvider
	gatherer prometheus.Gatherer
	now      func() time.Time
}

// NewHandlerSet constructs a HandlerSet using the provided options.
func NewHandlerSet(opts Options) *HandlerSet {
	logger := opts.Logger
	if logger == nil {
		logger = logging.L()
	}
	now := opts.TimeSource
	if now == nil {
		now = time.Now
	}
	gatherer := opts.Gatherer
	if gatherer == nil {
		gatherer = prometheus.NewRegistry()
	}
	return &HandlerSet{
		logger:   logger,
		status:   opts.Status,
		gatherer: gatherer,
		now:      now,
	}
}

// Register attaches all handlers to the provided router.
func (h *HandlerSet) Register(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/livez", h.LivenessHandler())
	r.Get("/readyz", h.ReadinessHandler())
	r.Handle("/metrics", h.MetricsHandler())
	r.Get("/api/stats", h.StatsHandler())
}

// Router builds a chi router with recovery and trace middleware and every
// handler registered.
func (h *HandlerSet) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(logging.HTTPTraceMiddleware(h.logger))
	h.Register(r)
	return r
}

// LivenessHandler reports that the HTTP server is reachable.
func (h *HandlerSet) LivenessHandler() http.HandlerFunc {
	type response struct {
		Status    string `json:"status"`
		Timestamp string `json:"timestamp"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, response{
			Status:    "alive",
			Timestamp: h.now().UTC().Format(time.RFC3339Nano),
		})
	}
}

// ReadinessHandler reports whether the WebSocket engine is serving.
func (h *HandlerSet) ReadinessHandler() http.HandlerFunc {
	type response struct {
		Status        string  `json:"status"`
		Message       string  `json:"message,omitempty"`
		UptimeSeconds float64 `json:"uptime_seconds"`
		Clients       int     `json:"clients"`
		Shutdown      string  `json:"shutdown,omitempty"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		if h.status == nil {
			writeJSON(w, http.StatusServiceUnavailable, response{Status: "error", Message: "no server configured"})
			return
		}
		stats := h.status.Stats()
		resp := response{
			Status:        "ok",
			UptimeSeconds: stats.UptimeSeconds,
			Clients:       stats.Clients,
			Shutdown:      stats.Shutdown,
		}
		status := http.StatusOK
		if !h.status.IsRunning() {
			status = http.StatusServiceUnavailable
			resp.Status = "error"
			resp.Message = "server not running"
			if msg, ok := h.status.LastError(); ok {
				resp.Message = msg
			}
		}
		writeJSON(w, status, resp)
	}
}

// MetricsHandler exposes the engine collectors in Prometheus text format.
func (h *HandlerSet) MetricsHandler() http.Handler {
	return promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{})
}

// StatsHandler returns the engine counters as JSON.
func (h *HandlerSet) StatsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if h.status == nil {
			http.Error(w, "no server configured", http.StatusServiceUnavailable)
			return
		}
		writeJSON(w, http.StatusOK, h.status.Stats())
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if status != http.StatusOK {
		w.WriteHeader(status)
	}
	_ = json.NewEncoder(w).Encode(payload)
}
