// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package journal keeps an index of finished recording sessions in SQLite.
package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // SQLite driver (pure Go, no CGO)

	"github.com/ManuGH/xrcap/internal/session"
)

// ErrNotFound is returned by Get for unknown session ids.
var ErrNotFound = errors.New("journal: session not found")

// Store is the SQLite-backed session journal.
type Store struct {
	db *sql.DB
}

// Open opens or creates the journal at path and migrates the schema.
// ":memory:" is accepted for tests.
func Open(path string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(%d)&_pragma=synchronous(NORMAL)",
		path, (5 * time.Second).Milliseconds())

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("journal: open: %w", err)
	}
	// One writer; sessions are recorded at most once per stop.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("journal: ping: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("journal: migrate: %w", err)
	}
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		dir TEXT NOT NULL,
		status TEXT NOT NULL CHECK(status IN ('complete', 'failed')),
		started_at TEXT NOT NULL,
		stopped_at TEXT NOT NULL,
		duration_ms INTEGER NOT NULL,
		counts TEXT NOT NULL DEFAULT '{}',
		errors TEXT NOT NULL DEFAULT '[]'
	);

	CREATE INDEX IF NOT EXISTS idx_sessions_started_at ON sessions(started_at);
	CREATE INDEX IF NOT EXISTS idx_sessions_name ON sessions(name);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Record implements session.Journal.
func (s *Store) Record(ctx context.Context, sum session.Summary) error {
	counts, err := json.Marshal(sum.Counts)
	if err != nil {
		return fmt.Errorf("journal: encode counts: %w", err)
	}
	errs := sum.Errors
	if errs == nil {
		errs = []string{}
	}
	errsJSON, err := json.Marshal(errs)
	if err != nil {
		return fmt.Errorf("journal: encode errors: %w", err)
	}

	query := `
	INSERT INTO sessions (id, name, dir, status, started_at, stopped_at, duration_ms, counts, errors)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		status = excluded.status,
		stopped_at = excluded.stopped_at,
		duration_ms = excluded.duration_ms,
		counts = excluded.counts,
		errors = excluded.errors
	`
	_, err = s.db.ExecContext(ctx, query,
		sum.ID, sum.Name, sum.Dir, sum.Status,
		sum.StartedAt.UTC().Format(time.RFC3339Nano),
		sum.StoppedAt.UTC().Format(time.RFC3339Nano),
		sum.Duration().Milliseconds(),
		string(counts), string(errsJSON),
	)
	if err != nil {
		return fmt.Errorf("journal: record %s: %w", sum.ID, err)
	}
	return nil
}

// List returns the most recent sessions first. limit <= 0 returns all.
func (s *Store) List(ctx context.Context, limit int) ([]session.Summary, error) {
	query := `
	SELECT id, name, dir, status, started_at, stopped_at, counts, errors
	FROM sessions
	ORDER BY started_at DESC, id
	`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []session.Summary
	for rows.Next() {
		sum, err := scanSummary(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sum)
	}
	return out, rows.Err()
}

// Get returns one session by id.
func (s *Store) Get(ctx context.Context, id string) (session.Summary, error) {
	query := `
	SELECT id, name, dir, status, started_at, stopped_at, counts, errors
	FROM sessions
	WHERE id = ?
	`
	sum, err := scanSummary(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return session.Summary{}, ErrNotFound
	}
	return sum, err
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSummary(sc scanner) (session.Summary, error) {
	var (
		sum                 session.Summary
		started, stopped    string
		countsJSON, errJSON string
	)
	if err := sc.Scan(&sum.ID, &sum.Name, &sum.Dir, &sum.Status, &started, &stopped, &countsJSON, &errJSON); err != nil {
		return sum, err
	}

	var err error
	if sum.StartedAt, err = time.Parse(time.RFC3339Nano, started); err != nil {
		return sum, fmt.Errorf("journal: started_at: %w", err)
	}
	if sum.StoppedAt, err = time.Parse(time.RFC3339Nano, stopped); err != nil {
		return sum, fmt.Errorf("journal: stopped_at: %w", err)
	}
	if err := json.Unmarshal([]byte(countsJSON), &sum.Counts); err != nil {
		return sum, fmt.Errorf("journal: counts: %w", err)
	}
	if err := json.Unmarshal([]byte(errJSON), &sum.Errors); err != nil {
		return sum, fmt.Errorf("journal: errors: %w", err)
	}
	if len(sum.Errors) == 0 {
		sum.Errors = nil
	}
	return sum, nil
}
