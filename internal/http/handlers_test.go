package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"quicksocket/internal/engine"
	"quicksocket/internal/logging"
	"quicksocket/internal/metrics"
)

type stubStatus struct {
	mu      sync.Mutex
	running bool
	stats   engine.Stats
	lastErr string
	calls   int
}

func (s *stubStatus) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *stubStatus) Stats() engine.Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return s.stats
}

func (s *stubStatus) LastError() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr, s.lastErr != ""
}

func TestLivenessHandlerReturnsJSON(t *testing.T) {
	fixed := time.Date(2024, time.January, 2, 15, 4, 5, 0, time.UTC)
	handlers := NewHandlerSet(Options{Logger: logging.NewTestLogger(), TimeSource: func() time.Time { return fixed }})
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/livez", nil)

	handlers.Router().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	var payload struct {
		Status    string `json:"status"`
		Timestamp string `json:"timestamp"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload.Status != "alive" {
		t.Fatalf("unexpected status %q", payload.Status)
	}
	if payload.Timestamp != fixed.Format(time.RFC3339Nano) {
		t.Fatalf("unexpected timestamp %q", payload.Timestamp)
	}
	if rr.Header().Get(logging.TraceIDHeader) == "" {
		t.Fatal("expected trace id header from middleware")
	}
}

func TestReadinessHandlerReportsRunning(t *testing.T) {
	status := &stubStatus{running: true, stats: engine.Stats{Clients: 3, UptimeSeconds: 45, Shutdown: "not_requested"}}
	handlers := NewHandlerSet(Options{Logger: logging.NewTestLogger(), Status: status})

	rr := httptest.NewRecorder()
	handlers.ReadinessHandler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var payload struct {
		Status        string  `json:"status"`
		Clients       int     `json:"clients"`
		UptimeSeconds float64 `json:"uptime_seconds"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload.Status != "ok" || payload.Clients != 3 || payload.UptimeSeconds != 45 {
		t.Fatalf("unexpected payload: %+v", payload)
	}
}

func TestReadinessHandlerUnavailable(t *testing.T) {
	status := &stubStatus{running: false, lastErr: "failed to start server: bind 127.0.0.1:10202: address already in use"}
	handlers := NewHandlerSet(Options{Logger: logging.NewTestLogger(), Status: status})

	rr := httptest.NewRecorder()
	handlers.ReadinessHandler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
	var payload struct {
		Status  string `json:"status"`
		Message string `json:"message"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload.Status != "error" || !strings.Contains(payload.Message, "address already in use") {
		t.Fatalf("unexpected payload: %+v", payload)
	}
}

func TestReadinessHandlerWithoutServer(t *testing.T) {
	handlers := NewHandlerSet(Options{Logger: logging.NewTestLogger()})
	rr := httptest.NewRecorder()
	handlers.ReadinessHandler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
}

func TestMetricsHandlerOutputsPrometheusFormat(t *testing.T) {
	collector := metrics.New()
	collector.ConnectionOpened()
	collector.BatchPublished()
	collector.MessagesSent(2, 10)
	handlers := NewHandlerSet(Options{Logger: logging.NewTestLogger(), Gatherer: collector.Gatherer()})

	rr := httptest.NewRecorder()
	handlers.Router().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if got := rr.Header().Get("Content-Type"); !strings.HasPrefix(got, "text/plain") {
		t.Fatalf("unexpected content type %q", got)
	}
	body := rr.Body.String()
	for _, substr := range []string{
		"quicksocket_connections_active 1",
		"quicksocket_batches_published_total 1",
		"quicksocket_messages_sent_total 2",
		"quicksocket_sent_bytes_total 10",
	} {
		if !strings.Contains(body, substr) {
			t.Fatalf("metrics missing %q:\n%s", substr, body)
		}
	}
}

func TestStatsHandlerReturnsJSON(t *testing.T) {
	status := &stubStatus{running: true, stats: engine.Stats{Addr: "127.0.0.1:10202", Alive: true, Clients: 2, Published: 5}}
	handlers := NewHandlerSet(Options{Logger: logging.NewTestLogger(), Status: status})

	rr := httptest.NewRecorder()
	handlers.Router().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/stats", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status: got %d", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("unexpected content type: got %q", ct)
	}
	var resp engine.Stats
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if resp != status.stats {
		t.Fatalf("unexpected stats: got %+v want %+v", resp, status.stats)
	}
	if status.calls != 1 {
		t.Fatalf("expected Stats to be called once, got %d", status.calls)
	}
}

func TestRouterRejectsWrongMethod(t *testing.T) {
	handlers := NewHandlerSet(Options{Logger: logging.NewTestLogger()})
	rr := httptest.NewRecorder()
	handlers.Router().ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/livez", nil))
	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rr.Code)
	}
}
