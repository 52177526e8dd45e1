package broadcast

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestSubscriberOnlySeesLaterValues(t *testing.T) {
	bus := New[int](4)
	if _, err := bus.Publish(1); err != nil {
		t.Fatalf("publish: %v", err)
	}

	sub := bus.Subscribe()
	defer sub.Close()

	if _, ok, _, err := sub.Poll(); ok || err != nil {
		t.Fatalf("new subscriber observed earlier value (ok=%t err=%v)", ok, err)
	}

	receivers, err := bus.Publish(2)
	if err != nil || receivers != 1 {
		t.Fatalf("expected one receiver, got %d err=%v", receivers, err)
	}
	value, ok, _, err := sub.Poll()
	if !ok || err != nil || value != 2 {
		t.Fatalf("expected 2, got %d ok=%t err=%v", value, ok, err)
	}
}

func TestPublishWithoutSubscribersIsBenign(t *testing.T) {
	bus := New[string](2)
	for i := 0; i < 10; i++ {
		receivers, err := bus.Publish("x")
		if err != nil || receivers != 0 {
			t.Fatalf("publish %d: receivers=%d err=%v", i, receivers, err)
		}
	}
	if bus.Published() != 10 {
		t.Fatalf("expected 10 published values, got %d", bus.Published())
	}
}

func TestSubscribersReadIndependentlyInOrder(t *testing.T) {
	bus := New[int](8)
	a := bus.Subscribe()
	b := bus.Subscribe()
	defer a.Close()
	defer b.Close()

	for i := 0; i < 5; i++ {
		if _, err := bus.Publish(i); err != nil {
			t.Fatalf("publish: %v", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	for _, sub := range []*Subscription[int]{a, b} {
		for want := 0; want < 5; want++ {
			got, err := sub.Recv(ctx)
			if err != nil || got != want {
				t.Fatalf("expected %d, got %d err=%v", want, got, err)
			}
		}
	}
}

func TestLaggingSubscriberSkipsAhead(t *testing.T) {
	bus := New[int](3)
	sub := bus.Subscribe()
	defer sub.Close()

	for i := 0; i < 7; i++ {
		if _, err := bus.Publish(i); err != nil {
			t.Fatalf("publish: %v", err)
		}
	}

	_, ok, _, err := sub.Poll()
	var lagged *LaggedError
	if ok || !errors.As(err, &lagged) {
		t.Fatalf("expected lag error, got ok=%t err=%v", ok, err)
	}
	if lagged.Missed != 4 {
		t.Fatalf("expected 4 missed values, got %d", lagged.Missed)
	}

	for want := 4; want < 7; want++ {
		got, ok, _, err := sub.Poll()
		if !ok || err != nil || got != want {
			t.Fatalf("expected %d after lag, got %d ok=%t err=%v", want, got, ok, err)
		}
	}
}

func TestRecvWakesOnPublish(t *testing.T) {
	bus := New[int](2)
	sub := bus.Subscribe()
	defer sub.Close()

	result := make(chan int, 1)
	go func() {
		got, err := sub.Recv(context.Background())
		if err == nil {
			result <- got
		}
	}()

	time.Sleep(10 * time.Millisecond)
	if _, err := bus.Publish(42); err != nil {
		t.Fatalf("publish: %v", err)
	}
	select {
	case got := <-result:
		if got != 42 {
			t.Fatalf("expected 42, got %d", got)
		}
	case <-time.After(time.Second):
		t.Fatal("subscriber was not woken by publish")
	}
}

func TestCloseDrainsThenReportsClosed(t *testing.T) {
	bus := New[int](4)
	sub := bus.Subscribe()
	defer sub.Close()

	if _, err := bus.Publish(1); err != nil {
		t.Fatalf("publish: %v", err)
	}
	bus.Close()
	bus.Close()

	if _, err := bus.Publish(2); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed on publish after close, got %v", err)
	}
	got, err := sub.Recv(context.Background())
	if err != nil || got != 1 {
		t.Fatalf("expected retained value 1, got %d err=%v", got, err)
	}
	if _, err := sub.Recv(context.Background()); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed after drain, got %v", err)
	}
}

func TestSubscriptionCloseIsIdempotent(t *testing.T) {
	bus := New[int](2)
	sub := bus.Subscribe()
	other := bus.Subscribe()
	defer other.Close()

	sub.Close()
	sub.Close()
	if n := bus.Subscribers(); n != 1 {
		t.Fatalf("expected 1 subscriber, got %d", n)
	}
	if _, _, _, err := sub.Poll(); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected closed subscription to report ErrClosed, got %v", err)
	}
}

func TestConcurrentPublishersNeverBlock(t *testing.T) {
	bus := New[int](4)
	stalled := bus.Subscribe()
	defer stalled.Close()

	var wg sync.WaitGroup
	done := make(chan struct{})
	for p := 0; p < 4; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				if _, err := bus.Publish(p*1000 + i); err != nil {
					t.Errorf("publish: %v", err)
					return
				}
			}
		}(p)
	}
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publishers stalled behind a subscriber that never reads")
	}
	if bus.Published() != 2000 {
		t.Fatalf("expected 2000 published values, got %d", bus.Published())
	}
}
