package asyncjob

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/asyncjob/internal/progress"
)

// SimpleFunc is a job that does not report progress.
type SimpleFunc func(args ...any) error

// Simple adapts fn to JobFunc by dropping the controller argument.
func Simple(fn SimpleFunc) JobFunc {
	return func(_ *Controller, args ...any) error {
		return fn(args...)
	}
}

// ErrorDisplay shows a failed run to the user.
type ErrorDisplay interface {
	ShowError(summary, details string)
}

// LogErrorDisplay reports failures through zap.
type LogErrorDisplay struct {
	Logger *zap.Logger
}

// ShowError logs summary at error level with details attached.
func (d LogErrorDisplay) ShowError(summary, details string) {
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger.Error(summary, zap.String("details", details))
}

// SimpleOptions configures RunSimple and RunSimpleNoDialog.
type SimpleOptions struct {
	Mode Mode
	// OnError receives the failure instead of the error display.
	OnError func(message, details string)
	// Errors shows failures when OnError is nil. When both are nil the owner
	// surface is used if it implements ErrorDisplay, else LogErrorDisplay.
	Errors  ErrorDisplay
	Logger  *zap.Logger
	Emitter progress.Emitter
	Tick    time.Duration
}

// RunSimple runs fn with a visible progress surface and routes a failure to
// opts.OnError or an ErrorDisplay, with errorIntro prefixed to the message.
// It returns the run's *JobError, or nil.
func RunSimple(
	ctx context.Context,
	fn JobFunc,
	args []any,
	title, label string,
	owner Surface,
	errorIntro string,
	opts SimpleOptions,
) error {
	return runSimple(ctx, fn, args, title, label, owner, errorIntro, true, opts)
}

// RunSimpleNoDialog is RunSimple without presenting progress. owner is only
// consulted as an ErrorDisplay.
func RunSimpleNoDialog(
	ctx context.Context,
	fn JobFunc,
	args []any,
	owner Surface,
	errorIntro string,
	opts SimpleOptions,
) error {
	return runSimple(ctx, fn, args, "", "", owner, errorIntro, false, opts)
}

func runSimple(
	ctx context.Context,
	fn JobFunc,
	args []any,
	title, label string,
	owner Surface,
	errorIntro string,
	show bool,
	opts SimpleOptions,
) error {
	job := New(fn, args, title, label, owner, Options{
		Mode:         opts.Mode,
		HideProgress: !show,
		Tick:         opts.Tick,
		Logger:       opts.Logger,
		Emitter:      opts.Emitter,
	})
	err := job.Run(ctx)
	if err == nil {
		return nil
	}
	var jobErr *JobError
	if !errors.As(err, &jobErr) {
		return err
	}
	if opts.OnError != nil {
		opts.OnError(jobErr.Message, jobErr.Details)
		return err
	}
	display := opts.Errors
	if display == nil {
		if d, ok := owner.(ErrorDisplay); ok {
			display = d
		} else {
			display = LogErrorDisplay{Logger: opts.Logger}
		}
	}
	summary := jobErr.Message
	if errorIntro != "" {
		summary = errorIntro + ": " + summary
	}
	display.ShowError(summary, jobErr.Details)
	return err
}
