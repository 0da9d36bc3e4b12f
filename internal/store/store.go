// Package store persists sessions, log segments, events, and workout
// session resources in SQLite. Appends are the only mutation of the
// event tables; workout rows change only through the conditional-update
// path the command applier drives.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite"
)

// PersistenceError wraps any store failure. It is fatal to the current
// turn: downstream context reconstruction assumes a gap-free log, so a
// failed append must surface, never be dropped.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence failure in %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

func persistErr(op string, err error) error {
	return &PersistenceError{Op: op, Err: err}
}

// Store is the SQLite-backed persistence layer. The mutex serializes
// writers; sequence numbers are assigned inside transactions so the
// per-segment log stays gap-free even across processes.
type Store struct {
	db     *sql.DB
	mu     sync.RWMutex
	dbPath string
}

// Open initializes the database at path, creating directories and
// tables as needed. Use ":memory:" for tests.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single connection keeps modernc/sqlite transactions serialized.
	db.SetMaxOpenConns(1)

	s := &Store{db: db, dbPath: path}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate() error {
	sessionTables := `
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL,
		current_segment_id TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE TABLE IF NOT EXISTS segments (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		seq INTEGER NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		sealed_at DATETIME,
		UNIQUE(session_id, seq)
	);
	CREATE INDEX IF NOT EXISTS idx_segments_session ON segments(session_id);
	`

	eventTable := `
	CREATE TABLE IF NOT EXISTS events (
		id TEXT NOT NULL,
		segment_id TEXT NOT NULL,
		seq INTEGER NOT NULL,
		kind TEXT NOT NULL,
		payload TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY(segment_id, seq)
	);
	`

	// session_resources is the durable session -> workout lookup; it
	// replaces any process-local tracking so any instance can resume.
	resourceTables := `
	CREATE TABLE IF NOT EXISTS session_resources (
		session_id TEXT PRIMARY KEY,
		resource_id TEXT NOT NULL
	);
	CREATE TABLE IF NOT EXISTS workout_sessions (
		id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'active',
		payload TEXT NOT NULL,
		payload_version INTEGER NOT NULL DEFAULT 1,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		completed_at DATETIME
	);
	CREATE INDEX IF NOT EXISTS idx_workout_owner ON workout_sessions(owner_id);
	CREATE TABLE IF NOT EXISTS command_results (
		resource_id TEXT NOT NULL,
		command_id TEXT NOT NULL,
		outcome TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY(resource_id, command_id)
	);
	`

	for _, stmt := range []string{sessionTables, eventTable, resourceTables} {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to create tables: %w", err)
		}
	}
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}
