// Package store provides a SQLite-backed journal of completed query runs.
// Each run the agent finishes is appended once; the journal is read back by
// the HTTP layer for auditing and for comparing answers across runs.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // register "sqlite" driver
)

// Run is one completed query run.
type Run struct {
	// ID is the run identifier assigned by the agent.
	ID string
	// Query is the user's original question.
	Query string
	// RephrasedQuery is the last rephrase used for retrieval. May be empty.
	RephrasedQuery string
	// Answer is the final answer text.
	Answer string
	// Confidence is the final confidence in [0,1].
	Confidence float64
	// Iterations is the number of completed evaluate steps.
	Iterations int
	// SourcesUsed is the number of chunks retrieved in the final iteration.
	SourcesUsed int
	// FileID is the document filter, if any.
	FileID string
	// SourceType is the source-type filter, if any.
	SourceType string
	// Duration is the wall-clock time of the run.
	Duration time.Duration
	// CreatedAt is when the run finished.
	CreatedAt time.Time
}

// RunJournal persists and lists completed runs. Implementations must be
// safe for concurrent use.
type RunJournal interface {
	// SaveRun appends a completed run.
	SaveRun(ctx context.Context, run Run) error
	// RecentRuns returns up to n runs, newest first.
	RecentRuns(ctx context.Context, n int) ([]Run, error)
	// Close releases any resources held by the journal.
	Close() error
}

// ErrDuplicateRun is returned when a run ID has already been journalled.
var ErrDuplicateRun = errors.New("store: duplicate run id")

// SQLiteStore is a RunJournal backed by a local SQLite database.
type SQLiteStore struct {
	// db is the underlying database connection pool.
	db *sql.DB
}

// DefaultDBPath returns the default path for the run journal.
// It resolves to ~/.docarag/runs.db, creating the directory if needed.
func DefaultDBPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("store: could not determine home directory: %w", err)
	}
	dir := filepath.Join(home, ".docarag")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("store: could not create %s: %w", dir, err)
	}
	return filepath.Join(dir, "runs.db"), nil
}

// Open opens (or creates) a SQLiteStore at the given path and runs the schema
// migration. Use ":memory:" for an in-memory database in tests.
func Open(path string) (*SQLiteStore, error) {
	// WAL mode improves concurrent read performance and is safe for single-host use.
	dsn := path + "?_journal_mode=WAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	// Limit to a single writer connection to avoid SQLITE_BUSY under concurrent writes.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// migrate creates the schema if it does not already exist.
func (s *SQLiteStore) migrate() error {
	const ddl = `
CREATE TABLE IF NOT EXISTS runs (
    id              TEXT    PRIMARY KEY,
    query           TEXT    NOT NULL,
    rephrased_query TEXT    NOT NULL DEFAULT '',
    answer          TEXT    NOT NULL,
    confidence      REAL    NOT NULL CHECK(confidence >= 0 AND confidence <= 1),
    iterations      INTEGER NOT NULL,
    sources_used    INTEGER NOT NULL,
    file_id         TEXT    NOT NULL DEFAULT '',
    source_type     TEXT    NOT NULL DEFAULT '',
    duration_ms     INTEGER NOT NULL,
    created_at      INTEGER NOT NULL  -- Unix timestamp (milliseconds)
);
CREATE INDEX IF NOT EXISTS idx_runs_created ON runs (created_at);
`
	if _, err := s.db.Exec(ddl); err != nil {
		return fmt.Errorf("store: migrate: %w", err)
	}
	return nil
}

// SaveRun appends a completed run. A zero CreatedAt is stamped with the
// current time.
func (s *SQLiteStore) SaveRun(ctx context.Context, run Run) error {
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now()
	}
	const q = `
INSERT INTO runs (id, query, rephrased_query, answer, confidence, iterations,
                  sources_used, file_id, source_type, duration_ms, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO NOTHING`
	res, err := s.db.ExecContext(ctx, q,
		run.ID, run.Query, run.RephrasedQuery, run.Answer, run.Confidence, run.Iterations,
		run.SourcesUsed, run.FileID, run.SourceType, run.Duration.Milliseconds(), run.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("store: save run: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrDuplicateRun, run.ID)
	}
	return nil
}

// RecentRuns returns up to n runs, newest first.
func (s *SQLiteStore) RecentRuns(ctx context.Context, n int) ([]Run, error) {
	const q = `
SELECT id, query, rephrased_query, answer, confidence, iterations,
       sources_used, file_id, source_type, duration_ms, created_at
FROM   runs
ORDER  BY created_at DESC, rowid DESC
LIMIT  ?`

	rows, err := s.db.QueryContext(ctx, q, n)
	if err != nil {
		return nil, fmt.Errorf("store: recent runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		var r Run
		var durMS, createdMS int64
		if err := rows.Scan(&r.ID, &r.Query, &r.RephrasedQuery, &r.Answer, &r.Confidence, &r.Iterations,
			&r.SourcesUsed, &r.FileID, &r.SourceType, &durMS, &createdMS); err != nil {
			return nil, fmt.Errorf("store: recent runs scan: %w", err)
		}
		r.Duration = time.Duration(durMS) * time.Millisecond
		r.CreatedAt = time.UnixMilli(createdMS)
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: recent runs rows: %w", err)
	}
	return runs, nil
}

// Close releases the database connection pool.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("store: close: %w", err)
	}
	return nil
}
