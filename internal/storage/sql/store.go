// Package sql persists deployed-state records and cycle history to a SQL
// database. It exists for observability across restarts: the reconciler's
// control decisions come from the in-memory cache, never from here.
package sql

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/bcnelson/gitops-stack-manager/internal/domain"
	"github.com/bcnelson/gitops-stack-manager/internal/storage"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

// Store implements the storage.Store interface using SQL.
type Store struct {
	db     *sqlx.DB
	driver string
}

var _ storage.Store = (*Store)(nil)

// New creates a new SQL store and runs pending migrations.
func New(driver, dsn string) (*Store, error) {
	db, err := sqlx.Connect(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	goose.SetBaseFS(embedMigrations)
	if err := goose.SetDialect(driver); err != nil {
		return nil, fmt.Errorf("setting goose dialect: %w", err)
	}
	if err := goose.Up(db.DB, "migrations"); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return &Store{db: db, driver: driver}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) GetRecord(ctx context.Context, name string) (*domain.DeployedStackRecord, error) {
	var rec domain.DeployedStackRecord
	err := s.db.GetContext(ctx, &rec,
		s.db.Rebind(`SELECT name, fingerprint, status, intended_action, last_error,
		        created_at, updated_at, last_checked_at
		 FROM stack_records WHERE name = ?`), name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *Store) SetRecord(ctx context.Context, rec *domain.DeployedStackRecord) error {
	// Position is assigned on first insert and never changes, so ListRecords
	// reflects cache-insertion order. A write resets the removal staleness
	// counter used by PruneRemoved.
	_, err := s.db.ExecContext(ctx, s.db.Rebind(
		`INSERT INTO stack_records
		    (name, fingerprint, status, intended_action, last_error, position,
		     removed_cycles, created_at, updated_at, last_checked_at)
		 VALUES (?, ?, ?, ?, ?,
		    (SELECT COALESCE(MAX(r.position), 0) + 1 FROM stack_records r),
		    0, ?, ?, ?)
		 ON CONFLICT (name) DO UPDATE SET
		    fingerprint = EXCLUDED.fingerprint,
		    status = EXCLUDED.status,
		    intended_action = EXCLUDED.intended_action,
		    last_error = EXCLUDED.last_error,
		    removed_cycles = 0,
		    updated_at = EXCLUDED.updated_at,
		    last_checked_at = EXCLUDED.last_checked_at`),
		rec.Name, rec.Fingerprint, rec.Status, rec.IntendedAction, rec.LastError,
		rec.CreatedAt, rec.UpdatedAt, rec.LastCheckedAt)
	return err
}

func (s *Store) ListRecords(ctx context.Context) ([]*domain.DeployedStackRecord, error) {
	var recs []*domain.DeployedStackRecord
	err := s.db.SelectContext(ctx, &recs,
		`SELECT name, fingerprint, status, intended_action, last_error,
		        created_at, updated_at, last_checked_at
		 FROM stack_records ORDER BY position`)
	if err != nil {
		return nil, err
	}
	return recs, nil
}

func (s *Store) PruneRemoved(ctx context.Context, keepCycles int) (int, error) {
	if keepCycles <= 0 {
		return 0, nil
	}

	if _, err := s.db.ExecContext(ctx, s.db.Rebind(
		`UPDATE stack_records SET removed_cycles = removed_cycles + 1 WHERE status = ?`),
		domain.StatusRemoved); err != nil {
		return 0, err
	}

	res, err := s.db.ExecContext(ctx, s.db.Rebind(
		`DELETE FROM stack_records WHERE status = ? AND removed_cycles > ?`),
		domain.StatusRemoved, keepCycles)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (s *Store) AppendCycle(ctx context.Context, cycle *domain.CycleRecord) error {
	_, err := s.db.ExecContext(ctx, s.db.Rebind(
		`INSERT INTO cycles
		    (id, revision, triggered_by, started_at, finished_at,
		     deployed, updated, removed, skipped, failed)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		cycle.ID, cycle.Revision, cycle.Trigger, cycle.StartedAt, cycle.FinishedAt,
		cycle.Deployed, cycle.Updated, cycle.Removed, cycle.Skipped, cycle.Failed)
	return err
}

func (s *Store) ListCycles(ctx context.Context, limit int) ([]*domain.CycleRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	var cycles []*domain.CycleRecord
	err := s.db.SelectContext(ctx, &cycles, s.db.Rebind(
		`SELECT id, revision, triggered_by, started_at, finished_at,
		        deployed, updated, removed, skipped, failed
		 FROM cycles ORDER BY started_at DESC LIMIT ?`), limit)
	if err != nil {
		return nil, err
	}
	return cycles, nil
}
