package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/asyncjob/internal/progress"
)

// LogSink writes each job event as a structured log line.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink wraps logger; nil selects a no-op logger.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Consume logs the batch. Progress events go to debug level.
func (s *LogSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		fields := []zap.Field{
			zap.Stringer("job_id", evt.JobUUID()),
			zap.String("stage", string(evt.Stage)),
		}
		switch evt.Stage {
		case progress.StageJobStart:
			fields = append(fields, zap.String("title", evt.Title))
		case progress.StageJobProgress:
			fields = append(fields,
				zap.Float64("fraction", evt.Fraction),
				zap.Int64("bytes", evt.Bytes),
				zap.String("text", evt.Text),
			)
			s.logger.Debug("job event", fields...)
			continue
		case progress.StageJobDone, progress.StageJobError:
			fields = append(fields, zap.Duration("dur", evt.Dur))
		}
		if evt.Note != "" {
			fields = append(fields, zap.String("note", evt.Note))
		}
		s.logger.Info("job event", fields...)
	}
	return nil
}

// Close implements progress.Sink.
func (s *LogSink) Close(context.Context) error {
	return nil
}
