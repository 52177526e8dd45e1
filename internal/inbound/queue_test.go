package inbound

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestDrainOnEmptyQueueIsIdempotent(t *testing.T) {
	q := New[string](4)
	if got := q.Drain(); len(got) != 0 {
		t.Fatalf("expected empty drain, got %v", got)
	}
	if got := q.Drain(); len(got) != 0 {
		t.Fatalf("expected second drain to stay empty, got %v", got)
	}
}

func TestDrainReturnsItemsInOrder(t *testing.T) {
	q := New[int](8)
	for i := 0; i < 3; i++ {
		if err := q.Push(context.Background(), i); err != nil {
			t.Fatalf("push: %v", err)
		}
	}
	got := q.Drain()
	if len(got) != 3 || got[0] != 0 || got[1] != 1 || got[2] != 2 {
		t.Fatalf("unexpected drain %v", got)
	}
	if q.Len() != 0 {
		t.Fatalf("expected queue to be empty after drain, got %d", q.Len())
	}
}

func TestPushBlocksUntilSpaceOrCancel(t *testing.T) {
	q := New[int](1)
	if err := q.TryPush(1); err != nil {
		t.Fatalf("try push: %v", err)
	}
	if err := q.TryPush(2); !errors.Is(err, ErrFull) {
		t.Fatalf("expected ErrFull, got %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := q.Push(ctx, 2); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected push to respect cancellation, got %v", err)
	}

	pushed := make(chan error, 1)
	go func() { pushed <- q.Push(context.Background(), 3) }()
	time.Sleep(10 * time.Millisecond)
	if got := q.Drain(); len(got) != 1 || got[0] != 1 {
		t.Fatalf("unexpected drain %v", got)
	}
	select {
	case err := <-pushed:
		if err != nil {
			t.Fatalf("push after drain: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("push did not resume after space freed")
	}
}

func TestCloseUnblocksProducersAndKeepsItems(t *testing.T) {
	q := New[int](1)
	if err := q.Push(context.Background(), 1); err != nil {
		t.Fatalf("push: %v", err)
	}

	pushed := make(chan error, 1)
	go func() { pushed <- q.Push(context.Background(), 2) }()
	time.Sleep(10 * time.Millisecond)
	q.Close()
	q.Close()

	select {
	case err := <-pushed:
		if !errors.Is(err, ErrClosed) {
			t.Fatalf("expected ErrClosed, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("blocked producer not released by Close")
	}
	if !q.Closed() {
		t.Fatalf("expected Closed to report true")
	}
	if err := q.TryPush(3); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed from TryPush, got %v", err)
	}
	if got := q.Drain(); len(got) != 1 || got[0] != 1 {
		t.Fatalf("expected queued item to survive close, got %v", got)
	}
}

func TestPerProducerOrderIsPreserved(t *testing.T) {
	q := New[string](4)
	const producers, perProducer = 3, 50

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				if err := q.Push(context.Background(), fmt.Sprintf("%d:%d", p, i)); err != nil {
					t.Errorf("push: %v", err)
					return
				}
			}
		}(p)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	var got []string
	deadline := time.After(2 * time.Second)
	for len(got) < producers*perProducer {
		got = append(got, q.Drain()...)
		select {
		case <-deadline:
			t.Fatalf("timed out after draining %d items", len(got))
		default:
		}
	}
	<-done

	next := make([]int, producers)
	for _, item := range got {
		var p, i int
		if _, err := fmt.Sscanf(item, "%d:%d", &p, &i); err != nil {
			t.Fatalf("parse %q: %v", item, err)
		}
		if i != next[p] {
			t.Fatalf("producer %d out of order: got %d want %d", p, i, next[p])
		}
		next[p]++
	}
}
