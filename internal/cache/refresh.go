package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/zeebo/xxh3"
	"golang.org/x/sync/singleflight"

	"github.com/runah1996/api.runah.pt/internal/metrics"
	"github.com/runah1996/api.runah.pt/internal/source"
)

// ErrRefreshTimeout is returned to a waiter whose own context expires while
// an in-flight fetch is still running. The shared fetch is not aborted; other
// waiters may still receive its result.
var ErrRefreshTimeout = errors.New("refresh did not complete in time")

// Refresher guards all mutation of the store: it guarantees at most one
// in-flight fetch per key no matter how many callers request a refresh
// concurrently, assigns versions, and publishes change events.
type Refresher struct {
	store   *Store
	fetcher source.Fetcher

	ttl          time.Duration
	fetchTimeout time.Duration

	pub     Publisher        // may be nil
	meter   *metrics.Metrics // nil-safe
	now     func() time.Time
	group   singleflight.Group
}

// RefresherOption customises a Refresher.
type RefresherOption func(*Refresher)

// WithPublisher wires the destination for change events.
func WithPublisher(p Publisher) RefresherOption {
	return func(r *Refresher) { r.pub = p }
}

// WithMetrics wires prometheus instrumentation.
func WithMetrics(m *metrics.Metrics) RefresherOption {
	return func(r *Refresher) { r.meter = m }
}

// WithClock overrides the refresher's clock.
func WithClock(now func() time.Time) RefresherOption {
	return func(r *Refresher) { r.now = now }
}

// NewRefresher creates a Refresher that keeps snapshots fresh for ttl and
// bounds each upstream fetch by fetchTimeout.
func NewRefresher(store *Store, fetcher source.Fetcher, ttl, fetchTimeout time.Duration, opts ...RefresherOption) *Refresher {
	r := &Refresher{
		store:        store,
		fetcher:      fetcher,
		ttl:          ttl,
		fetchTimeout: fetchTimeout,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// EnsureFresh returns the current snapshot for key, fetching from upstream
// when it is stale, absent, or force is true. Concurrent callers for the same
// key collapse onto a single fetch. On fetch failure a previous snapshot is
// served if one exists; otherwise the *source.UpstreamError is returned.
//
// A caller whose ctx expires while waiting gets ErrRefreshTimeout, leaving
// the shared fetch running for the remaining waiters.
func (r *Refresher) EnsureFresh(ctx context.Context, key Key, force bool) (Snapshot, error) {
	if !force {
		if snap, ok := r.store.Get(key); ok && !r.store.IsStale(key, r.now()) {
			r.meter.IncCacheHit()
			return snap, nil
		}
	}

	ch := r.group.DoChan(string(key), func() (interface{}, error) {
		return r.refresh(key, force)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return Snapshot{}, res.Err
		}
		return res.Val.(Snapshot), nil
	case <-ctx.Done():
		return Snapshot{}, fmt.Errorf("%w: %v", ErrRefreshTimeout, ctx.Err())
	}
}

// refresh runs inside the single-flight gate: exactly one execution per
// actual fetch, so it is also where change events are published.
func (r *Refresher) refresh(key Key, force bool) (Snapshot, error) {
	// A forced refresh that finished while we queued may have already
	// produced a fresh snapshot; don't fetch twice for an opportunistic caller.
	if !force {
		if snap, ok := r.store.Get(key); ok && !r.store.IsStale(key, r.now()) {
			return snap, nil
		}
	}
	r.meter.IncCacheMiss()

	// The fetch deadline is its own budget, detached from any single
	// caller's context: a disconnecting caller must not cancel a fetch
	// other waiters depend on.
	ctx, cancel := context.WithTimeout(context.Background(), r.fetchTimeout)
	defer cancel()

	payload, err := r.fetcher.Fetch(ctx, string(key))
	if err != nil {
		r.meter.IncFetchError()
		if prev, ok := r.store.Get(key); ok {
			// Availability over strict freshness: serve what we have and
			// surface the failure as a diagnostic only.
			r.meter.IncStaleServe()
			log.Warn().Err(err).Str("key", string(key)).Int64("version", prev.Version).
				Msg("refresh: fetch failed, serving previous snapshot")
			return prev, nil
		}
		return Snapshot{}, err
	}

	now := r.now()
	prev, had := r.store.Get(key)
	snap := Snapshot{
		Payload:   payload,
		Checksum:  xxh3.Hash(payload),
		Version:   1,
		FetchedAt: now,
		ExpiresAt: now.Add(r.ttl),
	}
	if had {
		snap.Version = prev.Version + 1
	}
	r.store.Put(ctx, key, snap)

	cause := CauseExpiry
	if force {
		cause = CauseForcedUpdate
	}
	r.meter.IncRefresh(string(cause))
	log.Info().Str("key", string(key)).Int64("version", snap.Version).
		Str("cause", string(cause)).Msg("refresh: snapshot updated")

	// A forced refresh broadcasts unconditionally: the event represents the
	// decision to update, not a payload delta. An expiry refresh broadcasts
	// only when the payload actually changed.
	changed := !had || prev.Checksum != snap.Checksum
	if r.pub != nil && (force || changed) {
		r.pub.Publish(Event{Key: key, Snapshot: snap, Cause: cause})
	}

	return snap, nil
}
