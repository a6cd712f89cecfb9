// Package giveaway exposes the two public entry points of the service:
// Query (read path) and NotifyChange (trusted write/trigger path).
package giveaway

import (
	"context"
	"errors"
	"time"

	"golang.org/x/time/rate"

	"github.com/runah1996/api.runah.pt/internal/cache"
)

// ErrRateLimited is returned when forced refreshes are triggered faster than
// the configured budget allows.
var ErrRateLimited = errors.New("update trigger rate limit exceeded")

// Result is a snapshot wrapped with response metadata for the read path.
type Result struct {
	Snapshot cache.Snapshot

	// Cached reports whether the snapshot predates the query, i.e. the
	// request was answered without waiting for a fetch.
	Cached bool

	// CacheAge is how long ago the snapshot was fetched.
	CacheAge time.Duration
}

// Service is the public entry point over the refresher for one cache key.
type Service struct {
	key           cache.Key
	refresher     *cache.Refresher
	cacheDuration time.Duration
	limiter       *rate.Limiter // nil disables throttling
	now           func() time.Time
}

// ServiceOption customises a Service.
type ServiceOption func(*Service)

// WithUpdateRate caps forced refreshes at perMinute triggers per minute,
// with a burst of one. Zero or negative disables the cap.
func WithUpdateRate(perMinute int) ServiceOption {
	return func(s *Service) {
		if perMinute > 0 {
			s.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), 1)
		}
	}
}

// WithServiceClock overrides the service's clock.
func WithServiceClock(now func() time.Time) ServiceOption {
	return func(s *Service) { s.now = now }
}

// NewService creates the service for key.
func NewService(key cache.Key, refresher *cache.Refresher, cacheDuration time.Duration, opts ...ServiceOption) *Service {
	s := &Service{
		key:           key,
		refresher:     refresher,
		cacheDuration: cacheDuration,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Query returns the current snapshot, refreshing it first when stale. It
// fails only when no cached value exists and the refresh fails too.
func (s *Service) Query(ctx context.Context) (Result, error) {
	start := s.now()
	snap, err := s.refresher.EnsureFresh(ctx, s.key, false)
	if err != nil {
		return Result{}, err
	}
	return Result{
		Snapshot: snap,
		Cached:   snap.FetchedAt.Before(start),
		CacheAge: s.now().Sub(snap.FetchedAt),
	}, nil
}

// NotifyChange forces a refresh in response to an external change signal.
// The resulting change event is broadcast to all subscribers by the
// refresher. Authorization is the caller's responsibility.
func (s *Service) NotifyChange(ctx context.Context) (cache.Snapshot, error) {
	if s.limiter != nil && !s.limiter.Allow() {
		return cache.Snapshot{}, ErrRateLimited
	}
	return s.refresher.EnsureFresh(ctx, s.key, true)
}

// Warm refreshes the snapshot if it is stale, without broadcasting unless
// the payload changed. Used at startup and by the background scheduler.
func (s *Service) Warm(ctx context.Context) error {
	_, err := s.refresher.EnsureFresh(ctx, s.key, false)
	return err
}

// Key returns the cache key the service serves.
func (s *Service) Key() cache.Key { return s.key }

// CacheDuration returns the configured freshness window.
func (s *Service) CacheDuration() time.Duration { return s.cacheDuration }
