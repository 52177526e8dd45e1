package metrics

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCollectorTracksConnections(t *testing.T) {
	c := New()
	c.ConnectionOpened()
	c.ConnectionOpened()
	c.ConnectionClosed()
	c.ConnectionRefused("capacity")

	if got := testutil.ToFloat64(c.connectionsActive); got != 1 {
		t.Fatalf("expected 1 active connection, got %v", got)
	}
	if got := testutil.ToFloat64(c.connectionsTotal); got != 2 {
		t.Fatalf("expected 2 total connections, got %v", got)
	}
	if got := testutil.ToFloat64(c.connectionsRefused.WithLabelValues("capacity")); got != 1 {
		t.Fatalf("expected 1 refused connection, got %v", got)
	}
}

func TestCollectorsUsePrivateRegistries(t *testing.T) {
	a := New()
	b := New()
	a.MessagesSent(3, 12)
	b.MessagesSent(1, 4)

	if got := testutil.ToFloat64(a.bytesSent); got != 12 {
		t.Fatalf("expected 12 bytes on first collector, got %v", got)
	}
	if got := testutil.ToFloat64(b.messagesSent); got != 1 {
		t.Fatalf("expected 1 message on second collector, got %v", got)
	}
}

func TestGathererExposesNamespacedMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := New(WithRegistry(reg), WithNamespace("qs"))
	c.BatchesLagged(4)
	c.ReadError()

	expected := `
# HELP qs_lagged_batches_total Outbound batches skipped by lagging clients.
# TYPE qs_lagged_batches_total counter
qs_lagged_batches_total 4
`
	if err := testutil.GatherAndCompare(c.Gatherer(), strings.NewReader(expected), "qs_lagged_batches_total"); err != nil {
		t.Fatalf("unexpected exposition: %v", err)
	}
}

func TestNilCollectorIsInert(t *testing.T) {
	var c *Collector
	c.ConnectionOpened()
	c.ConnectionClosed()
	c.MessageReceived(5)
	c.WriteError()
	c.ConnectionEventDropped()
	if c.Gatherer() == nil {
		t.Fatalf("expected a usable gatherer from a nil collector")
	}
}
