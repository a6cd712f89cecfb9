package cache

import "time"

// Key identifies one cached resource. The service caches a single well-known
// key, but the store and refresher support any number.
type Key string

// Cause says why a change event was produced.
type Cause string

const (
	// CauseExpiry marks a refresh triggered by staleness during a read or
	// by the background warm-keeper.
	CauseExpiry Cause = "expiry"

	// CauseForcedUpdate marks a refresh triggered by an external change
	// signal (manual trigger or config-file write).
	CauseForcedUpdate Cause = "forced_update"
)

// Snapshot is an immutable, versioned copy of the cached resource at a point
// in time. It is replaced atomically by the store, never mutated in place.
// Callers must not modify Payload after construction.
type Snapshot struct {
	// Payload is the opaque JSON document served to clients.
	Payload []byte

	// Checksum is the xxh3 hash of Payload, used to detect payload changes
	// across refreshes.
	Checksum uint64

	// Version strictly increases across successive snapshots for the same key.
	Version int64

	FetchedAt time.Time
	ExpiresAt time.Time
}

// IsZero reports whether the snapshot is the zero value (no data).
func (s Snapshot) IsZero() bool { return s.Version == 0 }

// Age returns how long ago the snapshot was fetched.
func (s Snapshot) Age(now time.Time) time.Duration { return now.Sub(s.FetchedAt) }

// Event is a change notification produced by the refresher and fanned out to
// subscribers. Transient, never persisted.
type Event struct {
	Key      Key
	Snapshot Snapshot
	Cause    Cause
}

// Publisher receives change events. Publish must not block.
type Publisher interface {
	Publish(Event)
}
