package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Stage denotes the lifecycle milestone represented by an Event.
type Stage string

// Supported job stages.
const (
	StageJobStart    Stage = "JOB_START"
	StageJobProgress Stage = "JOB_PROGRESS"
	StageJobCancel   Stage = "JOB_CANCEL"
	StageJobDone     Stage = "JOB_DONE"
	StageJobError    Stage = "JOB_ERROR"
)

// Indeterminate is the Fraction value for progress of unknown size.
const Indeterminate = -1.0

// Event captures a single milestone of an async job run.
type Event struct {
	// JobID identifies the controller run using the 16-byte UUID form.
	JobID [16]byte
	// TS is the UTC timestamp recorded by the emitter.
	TS time.Time
	Stage Stage
	// Title is the human readable job title, set on start events.
	Title string
	// Fraction is the completed share in [0,1], or Indeterminate.
	Fraction float64
	// Bytes is the running amount processed as reported by the meter.
	Bytes int64
	// Text is the stage text shown to the user, e.g. "Processing...".
	Text string
	// Dur is the wall time of the run; set on terminal events.
	Dur time.Duration
	// Note carries low-volume context such as an error message.
	Note string
}

// Terminal reports whether the stage ends a run.
func (s Stage) Terminal() bool {
	return s == StageJobDone || s == StageJobError
}

// Droppable reports whether the hub may shed the event under backpressure.
// Only progress ticks qualify; lifecycle milestones must reach the sinks.
func (s Stage) Droppable() bool {
	return s == StageJobProgress
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.JobID == [16]byte{} {
		return errors.New("job id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageJobStart, StageJobCancel, StageJobDone, StageJobError:
	case StageJobProgress:
		if e.Fraction != Indeterminate && (e.Fraction < 0 || e.Fraction > 1) {
			return fmt.Errorf("fraction %v out of range", e.Fraction)
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}

// JobUUID converts the binary job ID to uuid.UUID for repositories.
func (e Event) JobUUID() uuid.UUID {
	return uuid.UUID(e.JobID)
}

// UUIDToBytes encodes a uuid.UUID into the Event form.
func UUIDToBytes(id uuid.UUID) [16]byte {
	var dest [16]byte
	copy(dest[:], id[:])
	return dest
}
