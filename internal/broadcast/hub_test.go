package broadcast_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"conveyor/internal/broadcast"
	"conveyor/internal/queue"
)

func publishN(hub *broadcast.Hub, parent string, count int) {
	for i := 1; i <= count; i++ {
		hub.Publish(broadcast.Event{
			QueueID:      parent,
			ParentTaskID: parent,
			PhaseNumber:  i,
			Status:       queue.StatusReady,
		})
	}
}

func TestPublishAssignsSequence(t *testing.T) {
	hub := broadcast.NewHub(8)
	publishN(hub, "task-1", 3)

	events, next := hub.Tail(10)
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}
	for i, evt := range events {
		if evt.Sequence != uint64(i+1) {
			t.Fatalf("expected sequence %d, got %d", i+1, evt.Sequence)
		}
		if evt.Timestamp.IsZero() {
			t.Fatal("expected timestamp to be set")
		}
	}
	if next != 3 {
		t.Fatalf("expected cursor 3, got %d", next)
	}
}

func TestBufferEvictsOldestAtCapacity(t *testing.T) {
	hub := broadcast.NewHub(4)
	publishN(hub, "task-1", 6)

	events, _ := hub.Tail(10)
	if len(events) != 4 {
		t.Fatalf("expected buffer capped at 4, got %d", len(events))
	}
	if events[0].Sequence != 3 {
		t.Fatalf("expected oldest retained sequence 3, got %d", events[0].Sequence)
	}
}

func TestFetchSinceCursor(t *testing.T) {
	hub := broadcast.NewHub(8)
	publishN(hub, "task-1", 5)

	events, next, err := hub.Fetch(context.Background(), 2, 0, false)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if len(events) != 3 || events[0].Sequence != 3 {
		t.Fatalf("expected events 3..5, got %#v", events)
	}
	if next != 5 {
		t.Fatalf("expected cursor 5, got %d", next)
	}

	events, next, err = hub.Fetch(context.Background(), next, 0, false)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("expected no new events, got %d", len(events))
	}
	if next != 5 {
		t.Fatalf("expected cursor unchanged, got %d", next)
	}
}

func TestFetchLimitPagesWithoutSkipping(t *testing.T) {
	hub := broadcast.NewHub(8)
	publishN(hub, "task-1", 5)

	events, next, err := hub.Fetch(context.Background(), 0, 2, false)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if len(events) != 2 || next != 2 {
		t.Fatalf("expected first page 1..2 with cursor 2, got %d events cursor %d", len(events), next)
	}

	events, next, err = hub.Fetch(context.Background(), next, 2, false)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if len(events) != 2 || events[0].Sequence != 3 || next != 4 {
		t.Fatalf("expected second page 3..4, got %#v cursor %d", events, next)
	}
}

func TestFetchWaitWakesOnPublish(t *testing.T) {
	hub := broadcast.NewHub(8)

	done := make(chan struct{})
	var events []broadcast.Event
	var err error
	go func() {
		defer close(done)
		events, _, err = hub.Fetch(context.Background(), 0, 0, true)
	}()

	time.Sleep(20 * time.Millisecond)
	hub.Publish(broadcast.Event{QueueID: "task-1", PhaseNumber: 1, Status: queue.StatusRunning})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Fetch did not wake on publish")
	}
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
}

func TestFetchWaitHonorsContext(t *testing.T) {
	hub := broadcast.NewHub(8)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, _, err := hub.Fetch(ctx, 0, 0, true)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}
}

func TestSlowSubscriberIsDropped(t *testing.T) {
	hub := broadcast.NewHub(8)

	ch, cancel := hub.Subscribe(1)
	defer cancel()
	if hub.SubscriberCount() != 1 {
		t.Fatalf("expected 1 subscriber, got %d", hub.SubscriberCount())
	}

	// The buffer holds one event; the second overflows and drops the subscriber.
	publishN(hub, "task-1", 2)
	if hub.SubscriberCount() != 0 {
		t.Fatalf("expected slow subscriber dropped, got %d", hub.SubscriberCount())
	}

	received := 0
	for range ch {
		received++
	}
	if received != 1 {
		t.Fatalf("expected 1 delivered event before drop, got %d", received)
	}
}

func TestSubscribeCancelClosesChannel(t *testing.T) {
	hub := broadcast.NewHub(8)

	ch, cancel := hub.Subscribe(4)
	cancel()
	if _, open := <-ch; open {
		t.Fatal("expected channel closed after cancel")
	}
	// Cancelling twice is safe.
	cancel()
}
