// Package postgres persists job run history in Postgres.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/asyncjob/internal/store"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Schema creates the default job_runs table.
const Schema = `
CREATE TABLE IF NOT EXISTS job_runs (
	id            uuid PRIMARY KEY,
	title         text NOT NULL DEFAULT '',
	started_at    timestamptz NOT NULL,
	finished_at   timestamptz,
	status        text NOT NULL,
	canceled      boolean NOT NULL DEFAULT false,
	fraction      double precision NOT NULL DEFAULT -1,
	bytes_done    bigint NOT NULL DEFAULT 0,
	stage_text    text NOT NULL DEFAULT '',
	updated_at    timestamptz NOT NULL,
	error_message text
);`

// Config controls the connection pool behind a RunStore.
type Config struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// RunStore implements store.RunRepository on a job_runs table.
type RunStore struct {
	pool  pool
	table string
}

// NewRunStore opens a pgx pool for cfg.
func NewRunStore(ctx context.Context, cfg Config) (*RunStore, error) {
	if cfg.DSN == "" {
		return nil, errors.New("db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create postgres pool: %w", err)
	}
	s, err := NewRunStoreWithPool(p, cfg.Table)
	if err != nil {
		p.Close()
		return nil, err
	}
	return s, nil
}

// NewRunStoreWithPool builds a RunStore on an existing pool. An empty table
// selects job_runs.
func NewRunStoreWithPool(p pool, table string) (*RunStore, error) {
	if p == nil {
		return nil, errors.New("postgres pool is required")
	}
	if table == "" {
		table = "job_runs"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &RunStore{pool: p, table: table}, nil
}

// Close releases the pool.
func (s *RunStore) Close() {
	s.pool.Close()
}

// UpsertRunStart inserts the run or resets a rerun to running.
func (s *RunStore) UpsertRunStart(ctx context.Context, id uuid.UUID, title string, startedAt time.Time) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (id, title, started_at, status, updated_at)
		VALUES ($1, $2, $3, $4, $3)
		ON CONFLICT (id) DO UPDATE
		SET title = EXCLUDED.title,
			started_at = EXCLUDED.started_at,
			status = EXCLUDED.status,
			updated_at = EXCLUDED.updated_at`, s.table)
	if _, err := s.pool.Exec(ctx, query, id, title, startedAt, store.RunRunning); err != nil {
		return fmt.Errorf("upsert run start: %w", err)
	}
	return nil
}

// UpdateRunProgress stores the latest meter position of a running run.
func (s *RunStore) UpdateRunProgress(
	ctx context.Context,
	id uuid.UUID,
	fraction float64,
	bytesDone int64,
	stage string,
	at time.Time,
) error {
	query := fmt.Sprintf(`
		UPDATE %s
		SET fraction = $1, bytes_done = $2, stage_text = $3, updated_at = $4
		WHERE id = $5 AND updated_at <= $4`, s.table)
	if _, err := s.pool.Exec(ctx, query, fraction, bytesDone, stage, at, id); err != nil {
		return fmt.Errorf("update run progress: %w", err)
	}
	return nil
}

// MarkRunCanceled flags the run as canceled.
func (s *RunStore) MarkRunCanceled(ctx context.Context, id uuid.UUID, at time.Time) error {
	query := fmt.Sprintf(`UPDATE %s SET canceled = true, updated_at = $1 WHERE id = $2`, s.table)
	tag, err := s.pool.Exec(ctx, query, at, id)
	if err != nil {
		return fmt.Errorf("mark run canceled: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// CompleteRun stores the terminal status.
func (s *RunStore) CompleteRun(
	ctx context.Context,
	id uuid.UUID,
	finishedAt time.Time,
	status store.RunStatus,
	errMsg *string,
) error {
	query := fmt.Sprintf(`
		UPDATE %s
		SET finished_at = $1, status = $2, error_message = $3, updated_at = $1
		WHERE id = $4`, s.table)
	tag, err := s.pool.Exec(ctx, query, finishedAt, status, errMsg, id)
	if err != nil {
		return fmt.Errorf("complete run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

const runColumns = `id, title, started_at, finished_at, status, canceled,
	fraction, bytes_done, stage_text, updated_at, error_message`

// GetRun loads one run.
func (s *RunStore) GetRun(ctx context.Context, id uuid.UUID) (store.JobRun, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1`, runColumns, s.table)
	run, err := scanRun(s.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return store.JobRun{}, store.ErrNotFound
	}
	if err != nil {
		return store.JobRun{}, fmt.Errorf("get run: %w", err)
	}
	return run, nil
}

// ListRuns returns runs newest first.
func (s *RunStore) ListRuns(ctx context.Context, status *store.RunStatus, limit, offset int) ([]store.JobRun, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM %s
		WHERE ($1::text IS NULL OR status = $1)
		ORDER BY started_at DESC
		LIMIT $2 OFFSET $3`, runColumns, s.table)
	var filter *string
	if status != nil {
		v := string(*status)
		filter = &v
	}
	rows, err := s.pool.Query(ctx, query, filter, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []store.JobRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run row: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate run rows: %w", err)
	}
	return runs, nil
}

func scanRun(row pgx.Row) (store.JobRun, error) {
	var (
		run    store.JobRun
		status string
	)
	err := row.Scan(
		&run.ID,
		&run.Title,
		&run.StartedAt,
		&run.FinishedAt,
		&status,
		&run.Canceled,
		&run.Fraction,
		&run.BytesDone,
		&run.StageText,
		&run.UpdatedAt,
		&run.ErrorMessage,
	)
	run.Status = store.RunStatus(status)
	return run, err
}
