// Package persist stores snapshots in sqlite so a restart does not begin
// with an empty cache.
package persist

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/runah1996/api.runah.pt/internal/cache"
)

const schema = `
CREATE TABLE IF NOT EXISTS snapshots (
	key        TEXT PRIMARY KEY,
	payload    BLOB NOT NULL,
	checksum   INTEGER NOT NULL,
	version    INTEGER NOT NULL,
	fetched_at TEXT NOT NULL,
	expires_at TEXT NOT NULL
);`

// SQLite implements cache.PersistBackend on a local sqlite file.
type SQLite struct {
	db *sql.DB
}

// Open opens (creating if needed) the sqlite database at path.
func Open(path string) (*SQLite, error) {
	if path == "" {
		return nil, errors.New("persist: sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")
	_, _ = db.Exec("PRAGMA busy_timeout = 5000")

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("persist: migrate: %w", err)
	}
	return &SQLite{db: db}, nil
}

// Load returns the persisted snapshot for key, if any.
func (s *SQLite) Load(ctx context.Context, key cache.Key) (cache.Snapshot, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT payload, checksum, version, fetched_at, expires_at FROM snapshots WHERE key = ?`,
		string(key),
	)

	var (
		snap      cache.Snapshot
		checksum  int64
		fetchedAt string
		expiresAt string
	)
	err := row.Scan(&snap.Payload, &checksum, &snap.Version, &fetchedAt, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return cache.Snapshot{}, false, nil
	}
	if err != nil {
		return cache.Snapshot{}, false, fmt.Errorf("persist: load %q: %w", key, err)
	}

	snap.Checksum = uint64(checksum)
	if snap.FetchedAt, err = time.Parse(time.RFC3339Nano, fetchedAt); err != nil {
		return cache.Snapshot{}, false, fmt.Errorf("persist: load %q: fetched_at: %w", key, err)
	}
	if snap.ExpiresAt, err = time.Parse(time.RFC3339Nano, expiresAt); err != nil {
		return cache.Snapshot{}, false, fmt.Errorf("persist: load %q: expires_at: %w", key, err)
	}
	return snap, true, nil
}

// Save upserts the snapshot for key.
func (s *SQLite) Save(ctx context.Context, key cache.Key, snap cache.Snapshot) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO snapshots (key, payload, checksum, version, fetched_at, expires_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET
		   payload = excluded.payload,
		   checksum = excluded.checksum,
		   version = excluded.version,
		   fetched_at = excluded.fetched_at,
		   expires_at = excluded.expires_at`,
		string(key),
		snap.Payload,
		int64(snap.Checksum),
		snap.Version,
		snap.FetchedAt.UTC().Format(time.RFC3339Nano),
		snap.ExpiresAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("persist: save %q: %w", key, err)
	}
	return nil
}

// Close closes the database.
func (s *SQLite) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
