package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound signals that the requested run does not exist.
var ErrNotFound = errors.New("job run not found")

// RunStatus mirrors the job_runs.status column.
type RunStatus string

// Statuses persisted in job_runs.status.
const (
	RunRunning RunStatus = "running"
	RunSuccess RunStatus = "success"
	RunError   RunStatus = "error"
)

// Valid reports whether s is a known status.
func (s RunStatus) Valid() bool {
	switch s {
	case RunRunning, RunSuccess, RunError:
		return true
	}
	return false
}

// JobRun is one controller run as seen by the API.
type JobRun struct {
	ID        uuid.UUID
	Title     string
	StartedAt time.Time
	// FinishedAt is nil while the run is active.
	FinishedAt *time.Time
	Status     RunStatus
	// Canceled is set once a cancel request was accepted by the job.
	Canceled bool
	// Fraction is the last reported fraction, or -1 when indeterminate.
	Fraction  float64
	BytesDone int64
	StageText string
	UpdatedAt time.Time
	// ErrorMessage holds the failure summary for RunError.
	ErrorMessage *string
}

// RunRepository persists the lifecycle of job runs.
type RunRepository interface {
	// UpsertRunStart inserts the run or resets it to running.
	UpsertRunStart(ctx context.Context, id uuid.UUID, title string, startedAt time.Time) error
	// UpdateRunProgress records the latest meter position.
	UpdateRunProgress(ctx context.Context, id uuid.UUID, fraction float64, bytesDone int64, stage string, at time.Time) error
	// MarkRunCanceled flags an accepted cancel request.
	MarkRunCanceled(ctx context.Context, id uuid.UUID, at time.Time) error
	// CompleteRun stores the terminal status and optional error summary.
	CompleteRun(ctx context.Context, id uuid.UUID, finishedAt time.Time, status RunStatus, errMsg *string) error

	// GetRun loads one run or returns ErrNotFound.
	GetRun(ctx context.Context, id uuid.UUID) (JobRun, error)
	// ListRuns returns runs newest first, optionally filtered by status.
	ListRuns(ctx context.Context, status *RunStatus, limit, offset int) ([]JobRun, error)
}
