// Package cache is the core of the giveaway service: a versioned snapshot
// store plus the refresher that keeps it fresh.
//
// Store holds the current Snapshot per key under a read/write lock and is the
// only place cached state is mutated. Refresher.EnsureFresh is the sole
// writer path: concurrent refresh requests for one key collapse onto a single
// upstream fetch (singleflight), versions increase strictly, and a fetch
// failure falls back to the previous snapshot when one exists.
//
// Change events flow out through the Publisher the refresher is wired with:
// one publish per actual fetch, regardless of how many callers collapsed
// onto it.
package cache
