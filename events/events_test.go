package events

import (
	"testing"
	"time"
)

func TestBroadcasterDeliversToAllSubscribers(t *testing.T) {
	b := NewBroadcaster(4)
	s1 := b.Subscribe()
	s2 := b.Subscribe()
	defer b.Unsubscribe(s1)
	defer b.Unsubscribe(s2)

	b.Emit(Event{Name: ExecutionComplete, CommandID: "cmd-1"})

	for i, sub := range []Subscriber{s1, s2} {
		select {
		case ev := <-sub:
			if ev.Name != ExecutionComplete || ev.CommandID != "cmd-1" {
				t.Fatalf("subscriber %d got wrong event: %+v", i, ev)
			}
			if ev.Timestamp.IsZero() {
				t.Fatalf("subscriber %d event missing timestamp", i)
			}
		default:
			t.Fatalf("subscriber %d got no event", i)
		}
	}
}

func TestBroadcasterDropsOnFullBuffer(t *testing.T) {
	b := NewBroadcaster(1)
	sub := b.Subscribe()
	defer b.Unsubscribe(sub)

	b.Emit(Event{Name: StageExecutionStart, CommandID: "cmd-1"})
	// Buffer full; this one is dropped rather than blocking.
	done := make(chan struct{})
	go func() {
		b.Emit(Event{Name: StageExecutionComplete, CommandID: "cmd-1"})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("emit blocked on a full subscriber")
	}

	if ev := <-sub; ev.Name != StageExecutionStart {
		t.Fatalf("expected the first event, got %s", ev.Name)
	}
	select {
	case ev := <-sub:
		t.Fatalf("dropped event delivered: %s", ev.Name)
	default:
	}
}

func TestBroadcasterUnsubscribeClosesChannel(t *testing.T) {
	b := NewBroadcaster(1)
	sub := b.Subscribe()
	if b.SubscriberCount() != 1 {
		t.Fatal("expected one subscriber")
	}

	b.Unsubscribe(sub)
	if b.SubscriberCount() != 0 {
		t.Fatal("unsubscribe must remove the subscriber")
	}
	if _, open := <-sub; open {
		t.Fatal("unsubscribe must close the channel")
	}

	// Double unsubscribe is safe.
	b.Unsubscribe(sub)
}

func TestBroadcasterNilSafeEmit(t *testing.T) {
	var b *Broadcaster
	b.Emit(Event{Name: ExecutionFailed})
}
