package queue

import (
	"context"
	"testing"
	"time"

	"github.com/okian/crease/internal/domain/events"
)

func TestInMemoryQueue_BasicOperations(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(2))
	ctx := context.Background()

	if l := q.Len(ctx); l != 0 {
		t.Errorf("expected length 0, got %d", l)
	}
	if !q.Enqueue(ctx, Event{Type: events.BallCommitted, MatchID: "m1", Sequence: 1}) {
		t.Fatal("expected enqueue to succeed")
	}
	if l := q.Len(ctx); l != 1 {
		t.Errorf("expected length 1, got %d", l)
	}

	e := <-q.Dequeue(ctx)
	if e.Sequence != 1 || e.MatchID != "m1" {
		t.Errorf("unexpected event %+v", e)
	}
}

func TestInMemoryQueue_Capacity(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(2))
	ctx := context.Background()

	for i := int64(1); i <= 2; i++ {
		if !q.Enqueue(ctx, Event{MatchID: "m1", Sequence: i}) {
			t.Fatalf("expected enqueue %d to succeed", i)
		}
	}
	if q.Enqueue(ctx, Event{MatchID: "m1", Sequence: 3}) {
		t.Error("expected enqueue to fail when full")
	}
}

func TestInMemoryQueue_CloseDrains(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(4))
	ctx := context.Background()
	for i := int64(1); i <= 3; i++ {
		q.Enqueue(ctx, Event{MatchID: "m1", Sequence: i})
	}
	if err := q.Close(); err != nil {
		t.Fatal(err)
	}
	if err := q.Close(); err != nil {
		t.Fatal("second close should be a no-op")
	}
	if !q.IsClosed() {
		t.Error("expected queue to be closed")
	}
	if q.Enqueue(ctx, Event{MatchID: "m1", Sequence: 4}) {
		t.Error("expected enqueue after close to fail")
	}

	var got []int64
	for e := range q.Dequeue(ctx) {
		got = append(got, e.Sequence)
	}
	if len(got) != 3 || got[0] != 1 || got[2] != 3 {
		t.Errorf("expected queued events in order, got %v", got)
	}
}

func TestInMemoryQueue_CancelledContext(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(2))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if q.Enqueue(ctx, Event{MatchID: "m1"}) {
		t.Error("expected enqueue with cancelled context to fail")
	}
}

func TestInMemoryQueue_EnqueueWait(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(1))
	ctx := context.Background()
	if !q.Enqueue(ctx, Event{MatchID: "m1", Sequence: 1}) {
		t.Fatal("expected enqueue to succeed")
	}

	if q.EnqueueWait(ctx, Event{MatchID: "m1", Sequence: 2}, 20*time.Millisecond) {
		t.Error("expected enqueue on a full queue to give up after the wait")
	}

	out := q.Dequeue(ctx)
	done := make(chan bool, 1)
	go func() {
		done <- q.EnqueueWait(ctx, Event{MatchID: "m1", Sequence: 3}, 2*time.Second)
	}()
	if e := <-out; e.Sequence != 1 {
		t.Fatalf("expected sequence 1 first, got %d", e.Sequence)
	}
	if !<-done {
		t.Fatal("expected enqueue to succeed once room was made")
	}
	if e := <-out; e.Sequence != 3 {
		t.Errorf("expected sequence 3, got %d", e.Sequence)
	}

	_ = q.Close()
	if q.EnqueueWait(ctx, Event{MatchID: "m1"}, time.Second) {
		t.Error("expected enqueue after close to fail")
	}
}
