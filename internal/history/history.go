// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package history keeps a ledger of build attempts in SQLite.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ManuGH/pupistry/internal/persistence/sqlite"
)

// Status of a recorded build.
const (
	StatusOK     = "ok"
	StatusFailed = "failed"
)

// Entry is one build attempt.
type Entry struct {
	BuildID   string        `json:"build_id"`
	Version   string        `json:"version,omitempty"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
	Status    string        `json:"status"`
	Stage     string        `json:"stage,omitempty"`
	Checksum  string        `json:"checksum,omitempty"`
	Size      int64         `json:"size,omitempty"`
	Error     string        `json:"error,omitempty"`
}

// Store is the build ledger.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens (and creates) the ledger at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("create history dir: %w", err)
	}
	db, err := sqlite.Open(path, sqlite.DefaultConfig())
	if err != nil {
		return nil, err
	}
	s := &Store{db: db, path: path}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate history: %w", err)
	}
	return s, nil
}

// Close releases the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS builds (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		build_id TEXT NOT NULL UNIQUE,
		version TEXT NOT NULL DEFAULT '',
		started_at INTEGER NOT NULL,
		duration_ms INTEGER NOT NULL,
		status TEXT NOT NULL CHECK (status IN ('ok', 'failed')),
		stage TEXT NOT NULL DEFAULT '',
		checksum TEXT NOT NULL DEFAULT '',
		size INTEGER NOT NULL DEFAULT 0,
		error TEXT NOT NULL DEFAULT ''
	);
	CREATE INDEX IF NOT EXISTS idx_builds_started_at ON builds(started_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Record appends e to the ledger.
func (s *Store) Record(ctx context.Context, e Entry) error {
	if e.BuildID == "" {
		return errors.New("history: entry has no build id")
	}
	if e.Status != StatusOK && e.Status != StatusFailed {
		return fmt.Errorf("history: invalid status %q", e.Status)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO builds (build_id, version, started_at, duration_ms, status, stage, checksum, size, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.BuildID, e.Version, e.StartedAt.UnixMilli(), e.Duration.Milliseconds(),
		e.Status, e.Stage, e.Checksum, e.Size, e.Error,
	)
	if err != nil {
		return fmt.Errorf("record build %s: %w", e.BuildID, err)
	}
	return nil
}

// Recent returns up to limit entries, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT build_id, version, started_at, duration_ms, status, stage, checksum, size, error
		FROM builds ORDER BY started_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []Entry
	for rows.Next() {
		var (
			e         Entry
			startedMS int64
			durMS     int64
		)
		if err := rows.Scan(&e.BuildID, &e.Version, &startedMS, &durMS, &e.Status, &e.Stage, &e.Checksum, &e.Size, &e.Error); err != nil {
			return nil, err
		}
		e.StartedAt = time.UnixMilli(startedMS).UTC()
		e.Duration = time.Duration(durMS) * time.Millisecond
		out = append(out, e)
	}
	return out, rows.Err()
}

// Check runs an integrity check on the ledger file.
func (s *Store) Check(ctx context.Context) ([]string, error) {
	return sqlite.VerifyIntegrity(ctx, s.path, false)
}
