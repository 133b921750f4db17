// Package factstore caches stable probe output across requests in a
// local sqlite database. It is read-mostly: hardware identity changes
// rarely, so a revalidated cache entry can seed the evidence store
// without spawning the probe again. Entries keep the verbatim probe
// result, so answers served from cache stay grounded.
package factstore

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/jjgarcianorway/anna/pkg/models"
)

// DefaultTTL is how long a cached fact is trusted before it must be
// re-collected.
const DefaultTTL = 24 * time.Hour

const schema = `
CREATE TABLE IF NOT EXISTS facts (
	probe_id     TEXT PRIMARY KEY,
	command      TEXT NOT NULL,
	exit_code    INTEGER NOT NULL,
	stdout       TEXT NOT NULL,
	stderr       TEXT NOT NULL,
	duration_ms  INTEGER NOT NULL,
	collected_at INTEGER NOT NULL
);`

// Store is the sqlite-backed fact cache. Safe for concurrent use.
type Store struct {
	mu  sync.Mutex
	db  *sql.DB
	ttl time.Duration
	now func() time.Time
}

// Open creates or opens the fact store at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open fact store: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init fact store schema: %w", err)
	}
	slog.Info("Fact store opened", "path", path)
	return &Store{db: db, ttl: DefaultTTL, now: time.Now}, nil
}

// WithTTL overrides the freshness window (tests).
func (s *Store) WithTTL(ttl time.Duration) *Store {
	s.ttl = ttl
	return s
}

// WithClock injects a clock (tests).
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Lookup returns the cached result for a probe id when it is still
// fresh. Stale or missing entries report false.
func (s *Store) Lookup(id models.ProbeID) (models.ProbeResult, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row := s.db.QueryRow(
		`SELECT command, exit_code, stdout, stderr, duration_ms, collected_at
		 FROM facts WHERE probe_id = ?`, string(id))

	var res models.ProbeResult
	var collectedAt int64
	err := row.Scan(&res.Command, &res.ExitCode, &res.Stdout, &res.Stderr,
		&res.DurationMS, &collectedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.ProbeResult{}, false
	}
	if err != nil {
		slog.Warn("Fact store lookup failed", "probe_id", id, "error", err)
		return models.ProbeResult{}, false
	}
	if s.now().Sub(time.Unix(collectedAt, 0)) > s.ttl {
		return models.ProbeResult{}, false
	}

	res.ProbeID = id
	res.Status = models.ProbeStatusOK
	return res, true
}

// Record stores a successful probe result. Failures are not cached:
// they must be observed fresh every time.
func (s *Store) Record(res models.ProbeResult) {
	if res.Status != models.ProbeStatusOK {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(
		`INSERT INTO facts (probe_id, command, exit_code, stdout, stderr, duration_ms, collected_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(probe_id) DO UPDATE SET
			command = excluded.command,
			exit_code = excluded.exit_code,
			stdout = excluded.stdout,
			stderr = excluded.stderr,
			duration_ms = excluded.duration_ms,
			collected_at = excluded.collected_at`,
		string(res.ProbeID), res.Command, res.ExitCode, res.Stdout, res.Stderr,
		res.DurationMS, s.now().Unix())
	if err != nil {
		slog.Warn("Fact store record failed", "probe_id", res.ProbeID, "error", err)
	}
}
