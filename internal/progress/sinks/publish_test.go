package sinks

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/asyncjob/internal/progress"
	"github.com/JakeFAU/asyncjob/internal/publisher/memory"
)

func TestPublishSinkSkipsProgressByDefault(t *testing.T) {
	t.Parallel()

	pub := memory.New()
	sink := NewPublishSink(pub, "job-events", nil)
	id := uuid.New()
	jobID := progress.UUIDToBytes(id)
	now := time.Now()

	require.NoError(t, sink.Consume(context.Background(), []progress.Event{
		{JobID: jobID, TS: now, Stage: progress.StageJobStart, Title: "Sleeping"},
		{JobID: jobID, TS: now, Stage: progress.StageJobProgress, Fraction: 0.5},
		{JobID: jobID, TS: now, Stage: progress.StageJobError, Note: "boom", Dur: 1500 * time.Millisecond},
	}))

	msgs := pub.Messages()
	require.Len(t, msgs, 2)
	require.Equal(t, "job-events", msgs[0].Topic)

	start, ok := msgs[0].Payload.(EventMessage)
	require.True(t, ok)
	require.Equal(t, id.String(), start.JobID)
	require.Equal(t, "Sleeping", start.Title)

	failed, ok := msgs[1].Payload.(EventMessage)
	require.True(t, ok)
	require.Equal(t, "boom", failed.Error)
	require.Equal(t, int64(1500), failed.DurationMS)
}

func TestPublishSinkIncludesProgressWhenAsked(t *testing.T) {
	t.Parallel()

	pub := memory.New()
	sink := NewPublishSink(pub, "job-events", nil)
	sink.IncludeProgress = true
	jobID := progress.UUIDToBytes(uuid.New())

	require.NoError(t, sink.Consume(context.Background(), []progress.Event{
		{JobID: jobID, TS: time.Now(), Stage: progress.StageJobProgress, Fraction: 0.25, Bytes: 10},
		{JobID: jobID, TS: time.Now(), Stage: progress.StageJobProgress, Fraction: progress.Indeterminate, Bytes: 20},
	}))

	msgs := pub.Messages()
	require.Len(t, msgs, 2)
	first := msgs[0].Payload.(EventMessage)
	require.NotNil(t, first.Fraction)
	require.InDelta(t, 0.25, *first.Fraction, 1e-9)
	second := msgs[1].Payload.(EventMessage)
	require.Nil(t, second.Fraction)
}

func TestPublishSinkStopsOnError(t *testing.T) {
	t.Parallel()

	sink := NewPublishSink(failingPublisher{}, "job-events", nil)
	err := sink.Consume(context.Background(), []progress.Event{
		{JobID: progress.UUIDToBytes(uuid.New()), TS: time.Now(), Stage: progress.StageJobDone},
	})
	require.ErrorContains(t, err, "publish JOB_DONE event")
}

type failingPublisher struct{}

func (failingPublisher) Publish(context.Context, string, any) (string, error) {
	return "", errors.New("topic unavailable")
}
