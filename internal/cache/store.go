package cache

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// PersistBackend is an optional durable backing for the store, so a restart
// does not start from an empty cache. Absence of a persisted snapshot is
// equivalent to initial staleness.
type PersistBackend interface {
	Load(ctx context.Context, key Key) (Snapshot, bool, error)
	Save(ctx context.Context, key Key, snap Snapshot) error
	Close() error
}

// Store is a thread-safe in-memory snapshot store. It is the only place
// cached state is mutated; snapshots are replaced whole under the write lock
// so concurrent readers never observe a torn snapshot.
type Store struct {
	mu      sync.RWMutex
	data    map[Key]Snapshot
	persist PersistBackend // may be nil
}

// StoreOption customises a Store.
type StoreOption func(*Store)

// WithPersistence attaches a durable backend. Put writes through to it;
// persistence failures are logged and never fail the in-memory update.
func WithPersistence(p PersistBackend) StoreOption {
	return func(s *Store) { s.persist = p }
}

// NewStore creates an empty Store.
func NewStore(opts ...StoreOption) *Store {
	s := &Store{
		data: make(map[Key]Snapshot),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Restore loads persisted snapshots for the given keys into memory. An
// already-expired snapshot is still loaded: it is stale (the first request
// triggers a refresh) but remains available for stale-serving if that
// refresh fails.
func (s *Store) Restore(ctx context.Context, keys ...Key) error {
	if s.persist == nil {
		return nil
	}
	for _, key := range keys {
		snap, ok, err := s.persist.Load(ctx, key)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		s.mu.Lock()
		s.data[key] = snap
		s.mu.Unlock()
		log.Info().
			Str("key", string(key)).
			Int64("version", snap.Version).
			Time("expires_at", snap.ExpiresAt).
			Msg("store: restored persisted snapshot")
	}
	return nil
}

// Get returns the current snapshot for key, which may be stale.
func (s *Store) Get(key Key) (Snapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.data[key]
	return snap, ok
}

// Put atomically replaces the snapshot for key and writes it through to the
// persistence backend when one is configured.
func (s *Store) Put(ctx context.Context, key Key, snap Snapshot) {
	s.mu.Lock()
	s.data[key] = snap
	s.mu.Unlock()

	if s.persist != nil {
		if err := s.persist.Save(ctx, key, snap); err != nil {
			log.Warn().Err(err).Str("key", string(key)).Msg("store: persist failed")
		}
	}
}

// IsStale reports whether key has no snapshot or its expiry has passed.
func (s *Store) IsStale(key Key, now time.Time) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.data[key]
	if !ok {
		return true
	}
	return !now.Before(snap.ExpiresAt)
}
