package main

import (
	"context"
	"sync"
	"testing"
	"time"

	"quicksocket"
	"quicksocket/internal/logging"
)

type hostStub struct {
	mu      sync.Mutex
	events  []string
	inbound []quicksocket.Message
	sent    [][]quicksocket.Message
	refuse  bool
}

func (h *hostStub) SendMessages(msgs []quicksocket.Message) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.refuse {
		return false
	}
	h.sent = append(h.sent, msgs)
	return true
}

func (h *hostStub) DrainClientMessages() []quicksocket.Message {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := h.inbound
	h.inbound = nil
	return out
}

func (h *hostStub) DrainNewConnectionEvents() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := h.events
	h.events = nil
	return out
}

func (h *hostStub) sentBatches() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sent)
}

func TestHostLoopRelaysClientMessages(t *testing.T) {
	stub := &hostStub{
		events:  []string{"127.0.0.1:40000", "127.0.0.1:40001"},
		inbound: []quicksocket.Message{quicksocket.Text("a"), quicksocket.Binary([]byte("b"))},
	}
	loop := newHostLoop(stub, time.Millisecond, true, logging.NewTestLogger())

	events, relayed := loop.step()
	if events != 2 || relayed != 2 {
		t.Fatalf("expected 2 events and 2 relayed, got %d and %d", events, relayed)
	}
	if len(stub.sent) != 1 || stub.sent[0][0].String() != "a" || stub.sent[0][1].String() != "b" {
		t.Fatalf("unexpected relayed batches %v", stub.sent)
	}

	if events, relayed := loop.step(); events != 0 || relayed != 0 {
		t.Fatalf("expected idle step, got %d and %d", events, relayed)
	}
}

func TestHostLoopWithoutRelayOnlyDrains(t *testing.T) {
	stub := &hostStub{inbound: []quicksocket.Message{quicksocket.Text("a")}}
	loop := newHostLoop(stub, time.Millisecond, false, logging.NewTestLogger())

	if _, relayed := loop.step(); relayed != 0 {
		t.Fatalf("expected nothing relayed, got %d", relayed)
	}
	if len(stub.sent) != 0 {
		t.Fatal("relay disabled loop must not publish")
	}
	if len(stub.inbound) != 0 {
		t.Fatal("messages should still be drained")
	}
}

func TestHostLoopReportsRefusedRelay(t *testing.T) {
	stub := &hostStub{inbound: []quicksocket.Message{quicksocket.Text("a")}, refuse: true}
	loop := newHostLoop(stub, time.Millisecond, true, logging.NewTestLogger())
	if _, relayed := loop.step(); relayed != 0 {
		t.Fatalf("expected refused relay to count zero, got %d", relayed)
	}
}

func TestHostLoopRunStopsWithContext(t *testing.T) {
	stub := &hostStub{inbound: []quicksocket.Message{quicksocket.Text("tick")}}
	loop := newHostLoop(stub, time.Millisecond, true, logging.NewTestLogger())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- loop.Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for stub.sentBatches() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("loop never relayed")
		}
		time.Sleep(time.Millisecond)
	}
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not stop")
	}
}
