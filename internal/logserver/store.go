// ============================================================================
// kflogs - Kubefill Job Log Viewer
// ============================================================================
//
// Package:     logserver
// Description: SQLite job store of the reference log server
// Author:      Mike Stoffels
// Created:     2026-10-14
// License:     MIT
// ============================================================================

package logserver

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/msto63/kflogs/internal/api"
)

// ErrJobNotFound is returned when no job has the requested id
var ErrJobNotFound = errors.New("job not found")

// JobStore persists jobs in SQLite
type JobStore struct {
	db *sql.DB
}

// NewJobStore opens or creates the database at path. ":memory:" opens a
// private in-memory database.
func NewJobStore(path string) (*JobStore, error) {
	dsn := ":memory:"
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
		dsn = path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// one connection keeps an in-memory database alive and serializes writers
	db.SetMaxOpenConns(1)

	store := &JobStore{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

func (s *JobStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS jobs (
		id INTEGER PRIMARY KEY,
		application_id INTEGER NOT NULL DEFAULT 0,
		name TEXT NOT NULL,
		phase TEXT NOT NULL DEFAULT '',
		namespace TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_jobs_phase ON jobs(phase);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Put inserts or replaces job. CreatedAt is kept from an existing row.
func (s *JobStore) Put(ctx context.Context, job *api.Job) error {
	now := time.Now().UTC()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	job.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO jobs (id, application_id, name, phase, namespace, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			application_id = excluded.application_id,
			name = excluded.name,
			phase = excluded.phase,
			namespace = excluded.namespace,
			updated_at = excluded.updated_at
	`, job.ID, job.ApplicationID, job.Name, string(job.Phase), job.Meta.Namespace, job.CreatedAt, job.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to store job %d: %w", job.ID, err)
	}
	return nil
}

// Get returns the job with id
func (s *JobStore) Get(ctx context.Context, id int) (*api.Job, error) {
	var job api.Job
	var phase string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, application_id, name, phase, namespace, created_at, updated_at
		FROM jobs WHERE id = ?
	`, id).Scan(&job.ID, &job.ApplicationID, &job.Name, &phase, &job.Meta.Namespace, &job.CreatedAt, &job.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load job %d: %w", id, err)
	}
	job.Phase = api.Phase(phase)
	return &job, nil
}

// SetPhase updates the phase of job id
func (s *JobStore) SetPhase(ctx context.Context, id int, phase api.Phase) error {
	res, err := s.db.ExecContext(ctx, `UPDATE jobs SET phase = ?, updated_at = ? WHERE id = ?`,
		string(phase), time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to update job %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrJobNotFound
	}
	return nil
}

// Ping checks the database connection
func (s *JobStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database
func (s *JobStore) Close() error {
	return s.db.Close()
}
