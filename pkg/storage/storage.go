// Package storage persists baselines and session outcomes in a local
// SQLite database so routing history and optimizer evidence survive
// process restarts. It implements baseline.Store and outcome.Log over
// one shared connection.
package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const timeFormat = time.RFC3339Nano

const schemaSQL = `
CREATE TABLE IF NOT EXISTS baselines (
    version    TEXT PRIMARY KEY,
    checksum   TEXT NOT NULL,
    applied    INTEGER NOT NULL DEFAULT 0,
    parameters TEXT NOT NULL,
    lineage    TEXT NOT NULL DEFAULT '[]',
    created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_baselines_applied ON baselines(applied);

CREATE TABLE IF NOT EXISTS outcomes (
    session_id        TEXT PRIMARY KEY,
    query             TEXT NOT NULL,
    tier              TEXT NOT NULL,
    topology          TEXT NOT NULL DEFAULT '',
    complexity        REAL NOT NULL,
    dq_score          REAL NOT NULL,
    expected_subtasks INTEGER NOT NULL,
    cost_usd          REAL NOT NULL DEFAULT 0,
    duration_ms       INTEGER NOT NULL DEFAULT 0,
    partial           INTEGER NOT NULL DEFAULT 0,
    succeeded         INTEGER NOT NULL DEFAULT 0,
    subtasks          TEXT NOT NULL DEFAULT '[]',
    started_at_ns     INTEGER NOT NULL,
    finished_at_ns    INTEGER NOT NULL,
    created_at        TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_outcomes_finished ON outcomes(finished_at_ns);
CREATE INDEX IF NOT EXISTS idx_outcomes_tier ON outcomes(tier, complexity);

CREATE TABLE IF NOT EXISTS consensus (
    session_id          TEXT PRIMARY KEY,
    score_outcome       REAL NOT NULL,
    score_quality       REAL NOT NULL,
    score_recalibration REAL NOT NULL,
    score_cost          REAL NOT NULL,
    score_productivity  REAL NOT NULL,
    score_routing       REAL NOT NULL,
    overall             REAL NOT NULL,
    confidence          REAL NOT NULL,
    degraded            INTEGER NOT NULL DEFAULT 0,
    analyzed_at         TEXT NOT NULL
);
`

// Storage is a SQLite-backed persistence layer. One Storage owns the
// database handle; the baseline store and outcome log views share it.
type Storage struct {
	db        *sql.DB
	logf      func(format string, args ...any)
	baselines *BaselineStore
	outcomes  *OutcomeLog
}

// Option configures a Storage.
type Option func(*Storage)

// WithLogger routes storage warnings through logf.
func WithLogger(logf func(format string, args ...any)) Option {
	return func(s *Storage) { s.logf = logf }
}

// Open opens (or creates) the database at path, enables WAL mode, and
// ensures the schema exists. The parent directory is created if missing.
func Open(path string, opts ...Option) (*Storage, error) {
	if path == "" {
		return nil, fmt.Errorf("database path is required")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// Pragmas apply per connection, so the pool is pinned to one.
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	s := &Storage{db: db, logf: func(string, ...any) {}}
	for _, opt := range opts {
		opt(s)
	}
	s.baselines = &BaselineStore{db: db}
	s.outcomes = &OutcomeLog{db: db, logf: s.logf}
	return s, nil
}

// Baselines returns the baseline store view.
func (s *Storage) Baselines() *BaselineStore { return s.baselines }

// Outcomes returns the outcome log view.
func (s *Storage) Outcomes() *OutcomeLog { return s.outcomes }

// Close closes the underlying database.
func (s *Storage) Close() error { return s.db.Close() }
