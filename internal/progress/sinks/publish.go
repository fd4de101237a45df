package sinks

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/asyncjob/internal/progress"
)

// Publisher sends a payload to a named topic and returns the message ID.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// EventMessage is the JSON body published for each job event.
type EventMessage struct {
	JobID      string    `json:"job_id"`
	Stage      string    `json:"stage"`
	Timestamp  time.Time `json:"ts"`
	Title      string    `json:"title,omitempty"`
	Fraction   *float64  `json:"fraction,omitempty"`
	Bytes      int64     `json:"bytes,omitempty"`
	Text       string    `json:"text,omitempty"`
	DurationMS int64     `json:"duration_ms,omitempty"`
	Error      string    `json:"error,omitempty"`
}

// PublishSink forwards lifecycle events to a topic. Progress events are
// skipped unless IncludeProgress is set.
type PublishSink struct {
	pub             Publisher
	topic           string
	IncludeProgress bool
	logger          *zap.Logger
}

// NewPublishSink constructs a PublishSink for topic.
func NewPublishSink(pub Publisher, topic string, logger *zap.Logger) *PublishSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PublishSink{pub: pub, topic: topic, logger: logger}
}

// Consume publishes each event in order and stops at the first failure.
func (s *PublishSink) Consume(ctx context.Context, batch []progress.Event) error {
	if s == nil || s.pub == nil {
		return nil
	}
	for _, evt := range batch {
		if evt.Stage == progress.StageJobProgress && !s.IncludeProgress {
			continue
		}
		id, err := s.pub.Publish(ctx, s.topic, NewEventMessage(evt))
		if err != nil {
			return fmt.Errorf("publish %s event: %w", evt.Stage, err)
		}
		s.logger.Debug("job event published",
			zap.String("message_id", id),
			zap.String("stage", string(evt.Stage)),
		)
	}
	return nil
}

// Close implements progress.Sink.
func (s *PublishSink) Close(context.Context) error {
	return nil
}

// NewEventMessage converts evt to its published form.
func NewEventMessage(evt progress.Event) EventMessage {
	msg := EventMessage{
		JobID:      evt.JobUUID().String(),
		Stage:      string(evt.Stage),
		Timestamp:  evt.TS.UTC(),
		Title:      evt.Title,
		Bytes:      evt.Bytes,
		Text:       evt.Text,
		DurationMS: evt.Dur.Milliseconds(),
	}
	if evt.Stage == progress.StageJobProgress && evt.Fraction != progress.Indeterminate {
		frac := evt.Fraction
		msg.Fraction = &frac
	}
	if evt.Stage == progress.StageJobError {
		msg.Error = evt.Note
	}
	return msg
}
