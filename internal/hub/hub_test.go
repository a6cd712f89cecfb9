package hub

import (
	"fmt"
	"testing"
	"time"

	"github.com/runah1996/api.runah.pt/internal/cache"
)

func event(version int64) cache.Event {
	return cache.Event{
		Key:   "giveaway",
		Cause: cache.CauseForcedUpdate,
		Snapshot: cache.Snapshot{
			Payload: []byte(fmt.Sprintf(`{"v":%d}`, version)),
			Version: version,
		},
	}
}

func drain(t *testing.T, s *Subscriber, n int) []cache.Event {
	t.Helper()
	out := make([]cache.Event, 0, n)
	for i := 0; i < n; i++ {
		select {
		case ev, ok := <-s.Events():
			if !ok {
				t.Fatalf("queue closed after %d events, want %d", i, n)
			}
			out = append(out, ev)
		case <-time.After(time.Second):
			t.Fatalf("timed out after %d events, want %d", i, n)
		}
	}
	return out
}

func TestHub_DeliversInPublishOrder(t *testing.T) {
	h := New(8, PolicyDropNew, nil)
	defer h.Close()
	s := h.Subscribe()

	for v := int64(1); v <= 5; v++ {
		h.Publish(event(v))
	}

	got := drain(t, s, 5)
	for i, ev := range got {
		if ev.Snapshot.Version != int64(i+1) {
			t.Errorf("event %d: version %d, want %d", i, ev.Snapshot.Version, i+1)
		}
	}
}

func TestHub_FanOutReachesAllSubscribers(t *testing.T) {
	h := New(4, PolicyDropNew, nil)
	defer h.Close()

	subs := []*Subscriber{h.Subscribe(), h.Subscribe(), h.Subscribe()}
	h.Publish(event(1))

	for i, s := range subs {
		got := drain(t, s, 1)
		if got[0].Snapshot.Version != 1 {
			t.Errorf("subscriber %d: version %d, want 1", i, got[0].Snapshot.Version)
		}
	}
}

func TestHub_UnsubscribeStopsDeliveryAndClosesQueue(t *testing.T) {
	h := New(4, PolicyDropNew, nil)
	defer h.Close()
	s := h.Subscribe()

	h.Unsubscribe(s)
	h.Publish(event(1))

	ev, ok := <-s.Events()
	if ok {
		t.Fatalf("got event %+v after Unsubscribe", ev)
	}
}

func TestHub_UnsubscribeIsIdempotent(t *testing.T) {
	h := New(4, PolicyDropNew, nil)
	defer h.Close()
	s := h.Subscribe()

	h.Unsubscribe(s)
	h.Unsubscribe(s) // must not panic on the closed queue

	if n := h.Count(); n != 0 {
		t.Errorf("Count: got %d, want 0", n)
	}
}

func TestHub_OverflowDropOldest(t *testing.T) {
	h := New(2, PolicyDropOldest, nil)
	defer h.Close()
	s := h.Subscribe()

	h.Publish(event(1))
	h.Publish(event(2))
	h.Publish(event(3)) // evicts 1

	got := drain(t, s, 2)
	if got[0].Snapshot.Version != 2 || got[1].Snapshot.Version != 3 {
		t.Errorf("queue after drop_oldest: versions %d,%d, want 2,3",
			got[0].Snapshot.Version, got[1].Snapshot.Version)
	}
}

func TestHub_OverflowDropNew(t *testing.T) {
	h := New(2, PolicyDropNew, nil)
	defer h.Close()
	s := h.Subscribe()

	h.Publish(event(1))
	h.Publish(event(2))
	h.Publish(event(3)) // dropped

	got := drain(t, s, 2)
	if got[0].Snapshot.Version != 1 || got[1].Snapshot.Version != 2 {
		t.Errorf("queue after drop_new: versions %d,%d, want 1,2",
			got[0].Snapshot.Version, got[1].Snapshot.Version)
	}
	if n := h.Count(); n != 1 {
		t.Errorf("Count: got %d, want 1", n)
	}
}

func TestHub_OverflowDisconnect(t *testing.T) {
	h := New(1, PolicyDisconnect, nil)
	defer h.Close()
	s := h.Subscribe()

	h.Publish(event(1))
	h.Publish(event(2)) // queue full: subscriber is removed

	if n := h.Count(); n != 0 {
		t.Fatalf("Count after overflow: got %d, want 0", n)
	}

	// The queued event is still readable, then the queue reports closed.
	got := drain(t, s, 1)
	if got[0].Snapshot.Version != 1 {
		t.Errorf("queued event version: got %d, want 1", got[0].Snapshot.Version)
	}
	if _, ok := <-s.Events(); ok {
		t.Error("queue should be closed after disconnect")
	}
}

func TestHub_SlowConsumerDoesNotBlockPublish(t *testing.T) {
	h := New(1, PolicyDropNew, nil)
	defer h.Close()
	h.Subscribe() // never reads

	done := make(chan struct{})
	go func() {
		for v := int64(1); v <= 100; v++ {
			h.Publish(event(v))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked on a slow consumer")
	}
}

func TestHub_Count(t *testing.T) {
	h := New(4, PolicyDropNew, nil)
	defer h.Close()

	if n := h.Count(); n != 0 {
		t.Fatalf("empty hub Count: got %d, want 0", n)
	}
	a := h.Subscribe()
	h.Subscribe()
	if n := h.Count(); n != 2 {
		t.Errorf("Count: got %d, want 2", n)
	}
	h.Unsubscribe(a)
	if n := h.Count(); n != 1 {
		t.Errorf("Count after Unsubscribe: got %d, want 1", n)
	}
}

func TestHub_CloseClosesAllQueues(t *testing.T) {
	h := New(4, PolicyDropNew, nil)
	a := h.Subscribe()
	b := h.Subscribe()

	h.Close()

	for i, s := range []*Subscriber{a, b} {
		if _, ok := <-s.Events(); ok {
			t.Errorf("subscriber %d: queue still open after Close", i)
		}
	}
	if n := h.Count(); n != 0 {
		t.Errorf("Count after Close: got %d, want 0", n)
	}
}
