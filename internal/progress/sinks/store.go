package sinks

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/asyncjob/internal/progress"
	"github.com/JakeFAU/asyncjob/internal/store"
)

// StoreSink persists run lifecycle through a store.RunRepository. Progress
// events within one batch collapse to the latest per run.
type StoreSink struct {
	repo   store.RunRepository
	logger *zap.Logger
}

// NewStoreSink constructs a StoreSink for repo.
func NewStoreSink(repo store.RunRepository, logger *zap.Logger) *StoreSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StoreSink{repo: repo, logger: logger}
}

// Consume writes the batch in order. Repository errors abort the batch.
func (s *StoreSink) Consume(ctx context.Context, batch []progress.Event) error {
	if s == nil || s.repo == nil {
		return nil
	}
	latest := make(map[uuid.UUID]progress.Event)
	var order []uuid.UUID

	flushProgress := func(id uuid.UUID) error {
		evt, ok := latest[id]
		if !ok {
			return nil
		}
		delete(latest, id)
		if err := s.repo.UpdateRunProgress(ctx, id, evt.Fraction, evt.Bytes, evt.Text, evt.TS); err != nil {
			return fmt.Errorf("update run progress: %w", err)
		}
		return nil
	}

	for _, evt := range batch {
		id := evt.JobUUID()
		if evt.Stage == progress.StageJobProgress {
			if _, seen := latest[id]; !seen {
				order = append(order, id)
			}
			latest[id] = evt
			continue
		}
		// Pending progress must land before a terminal status.
		if err := flushProgress(id); err != nil {
			return err
		}
		if err := s.handleLifecycle(ctx, id, evt); err != nil {
			return err
		}
	}
	for _, id := range order {
		if err := flushProgress(id); err != nil {
			return err
		}
	}
	return nil
}

func (s *StoreSink) handleLifecycle(ctx context.Context, id uuid.UUID, evt progress.Event) error {
	switch evt.Stage {
	case progress.StageJobStart:
		if err := s.repo.UpsertRunStart(ctx, id, evt.Title, evt.TS); err != nil {
			return fmt.Errorf("upsert run start: %w", err)
		}
	case progress.StageJobCancel:
		if err := s.repo.MarkRunCanceled(ctx, id, evt.TS); err != nil {
			return fmt.Errorf("mark run canceled: %w", err)
		}
	case progress.StageJobDone:
		if err := s.repo.CompleteRun(ctx, id, evt.TS, store.RunSuccess, nil); err != nil {
			return fmt.Errorf("complete run: %w", err)
		}
	case progress.StageJobError:
		var note *string
		if evt.Note != "" {
			note = &evt.Note
		}
		if err := s.repo.CompleteRun(ctx, id, evt.TS, store.RunError, note); err != nil {
			return fmt.Errorf("complete run: %w", err)
		}
	default:
		s.logger.Debug("store sink ignoring stage", zap.String("stage", string(evt.Stage)))
	}
	return nil
}

// Close implements progress.Sink.
func (s *StoreSink) Close(context.Context) error {
	return nil
}
