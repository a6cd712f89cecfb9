package hub

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/runah1996/api.runah.pt/internal/cache"
	"github.com/runah1996/api.runah.pt/internal/metrics"
)

// Policy is what Publish does when a subscriber's queue is full.
type Policy string

const (
	// PolicyDropOldest evicts the oldest queued event to make room.
	PolicyDropOldest Policy = "drop_oldest"

	// PolicyDropNew discards the incoming event for that subscriber.
	PolicyDropNew Policy = "drop_new"

	// PolicyDisconnect removes the subscriber; on reconnect it receives the
	// current snapshot, so it is never left without state.
	PolicyDisconnect Policy = "disconnect"
)

// Subscriber is one live subscription handle. It is owned by the Hub; no
// other component may hold a reference that outlives the connection.
type Subscriber struct {
	ID          string
	ConnectedAt time.Time

	events chan cache.Event
}

// Events is the subscriber's bounded outbound queue. It is closed when the
// subscriber is removed, whether by Unsubscribe, overflow disconnection, or
// hub shutdown.
func (s *Subscriber) Events() <-chan cache.Event { return s.events }

// Hub fans change events out to every connected subscriber. Publishing never
// blocks on a slow consumer: each subscriber has its own bounded queue and
// the configured Policy decides what happens on overflow. Delivery order per
// subscriber follows publish order; no ordering holds across subscribers.
type Hub struct {
	capacity int
	policy   Policy
	meter    *metrics.Metrics // nil-safe

	mu   sync.Mutex
	subs map[*Subscriber]struct{}
}

// New creates a Hub with the given per-subscriber queue capacity and
// overflow policy.
func New(capacity int, policy Policy, meter *metrics.Metrics) *Hub {
	return &Hub{
		capacity: capacity,
		policy:   policy,
		meter:    meter,
		subs:     make(map[*Subscriber]struct{}),
	}
}

// Subscribe registers a new subscriber and returns its handle.
func (h *Hub) Subscribe() *Subscriber {
	s := &Subscriber{
		ID:          uuid.NewString(),
		ConnectedAt: time.Now(),
		events:      make(chan cache.Event, h.capacity),
	}

	h.mu.Lock()
	h.subs[s] = struct{}{}
	n := len(h.subs)
	h.mu.Unlock()

	h.meter.SetSubscribers(n)
	return s
}

// Unsubscribe removes s and closes its queue. It is idempotent and safe to
// call concurrently with Publish: publishes are serialised under the same
// lock, so once Unsubscribe returns, no further delivery to s is possible.
func (h *Hub) Unsubscribe(s *Subscriber) {
	h.mu.Lock()
	h.remove(s)
	n := len(h.subs)
	h.mu.Unlock()

	h.meter.SetSubscribers(n)
}

// Publish delivers ev to every subscriber's queue without blocking. Full
// queues are handled per the hub's overflow policy; the publisher never sees
// an error.
func (h *Hub) Publish(ev cache.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for s := range h.subs {
		select {
		case s.events <- ev:
			continue
		default:
		}

		// Queue full.
		h.meter.IncDroppedEvent(string(h.policy))
		switch h.policy {
		case PolicyDropOldest:
			select {
			case <-s.events:
			default:
			}
			select {
			case s.events <- ev:
			default:
			}
		case PolicyDisconnect:
			h.remove(s)
		default: // PolicyDropNew: skip this event for this subscriber.
		}
	}

	h.meter.SetSubscribers(len(h.subs))
}

// Count returns the number of currently connected subscribers.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Close removes all subscribers and closes their queues. Used on shutdown.
func (h *Hub) Close() {
	h.mu.Lock()
	for s := range h.subs {
		h.remove(s)
	}
	h.mu.Unlock()

	h.meter.SetSubscribers(0)
}

// remove deletes s and closes its queue exactly once. Callers hold h.mu.
func (h *Hub) remove(s *Subscriber) {
	if _, ok := h.subs[s]; !ok {
		return
	}
	delete(h.subs, s)
	close(s.events)
}
