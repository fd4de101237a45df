// Package memory keeps job runs and uploaded objects in process memory for
// tests and single-process deployments.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/JakeFAU/asyncjob/internal/store"
)

// RunStore implements store.RunRepository with a map.
type RunStore struct {
	mu   sync.RWMutex
	runs map[uuid.UUID]store.JobRun
}

// NewRunStore constructs an empty RunStore.
func NewRunStore() *RunStore {
	return &RunStore{runs: make(map[uuid.UUID]store.JobRun)}
}

// UpsertRunStart inserts the run or resets it to running.
func (s *RunStore) UpsertRunStart(_ context.Context, id uuid.UUID, title string, startedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[id] = store.JobRun{
		ID:        id,
		Title:     title,
		StartedAt: startedAt,
		Status:    store.RunRunning,
		Fraction:  -1,
		UpdatedAt: startedAt,
	}
	return nil
}

// UpdateRunProgress records the latest meter position. Older updates are
// ignored.
func (s *RunStore) UpdateRunProgress(
	_ context.Context,
	id uuid.UUID,
	fraction float64,
	bytesDone int64,
	stage string,
	at time.Time,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[id]
	if !ok {
		return store.ErrNotFound
	}
	if at.Before(run.UpdatedAt) {
		return nil
	}
	run.Fraction = fraction
	run.BytesDone = bytesDone
	run.StageText = stage
	run.UpdatedAt = at
	s.runs[id] = run
	return nil
}

// MarkRunCanceled flags the run.
func (s *RunStore) MarkRunCanceled(_ context.Context, id uuid.UUID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[id]
	if !ok {
		return store.ErrNotFound
	}
	run.Canceled = true
	run.UpdatedAt = at
	s.runs[id] = run
	return nil
}

// CompleteRun stores the terminal status.
func (s *RunStore) CompleteRun(
	_ context.Context,
	id uuid.UUID,
	finishedAt time.Time,
	status store.RunStatus,
	errMsg *string,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[id]
	if !ok {
		return store.ErrNotFound
	}
	finished := finishedAt
	run.FinishedAt = &finished
	run.Status = status
	run.UpdatedAt = finishedAt
	if errMsg != nil {
		msg := *errMsg
		run.ErrorMessage = &msg
	}
	s.runs[id] = run
	return nil
}

// GetRun loads one run.
func (s *RunStore) GetRun(_ context.Context, id uuid.UUID) (store.JobRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[id]
	if !ok {
		return store.JobRun{}, store.ErrNotFound
	}
	return run, nil
}

// ListRuns returns runs newest first.
func (s *RunStore) ListRuns(_ context.Context, status *store.RunStatus, limit, offset int) ([]store.JobRun, error) {
	s.mu.RLock()
	runs := make([]store.JobRun, 0, len(s.runs))
	for _, run := range s.runs {
		if status != nil && run.Status != *status {
			continue
		}
		runs = append(runs, run)
	}
	s.mu.RUnlock()

	sort.Slice(runs, func(i, j int) bool {
		return runs[i].StartedAt.After(runs[j].StartedAt)
	})
	if offset >= len(runs) {
		return []store.JobRun{}, nil
	}
	runs = runs[offset:]
	if limit > 0 && limit < len(runs) {
		runs = runs[:limit]
	}
	return runs, nil
}
