package cmd

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/asyncjob/internal/asyncjob"
	"github.com/JakeFAU/asyncjob/internal/metrics"
	"github.com/JakeFAU/asyncjob/internal/ui/terminal"
)

// errJobFailed is returned after a job failure was already shown.
var errJobFailed = errors.New("job failed")

// jobSpec describes one CLI job.
type jobSpec struct {
	title      string
	label      string
	errorIntro string
	// cancelable jobs get a cancel handler; SIGINT and ctrl+c cancel them.
	// Other jobs are abandoned on SIGINT.
	cancelable bool
	// op and target label the transfer metrics; an empty op skips them.
	op     string
	target string
	run    func(ctx context.Context, job *asyncjob.Controller) (int64, error)
	// summary formats the success line from the amount moved.
	summary func(n int64) string
}

func runJob(cmd *cobra.Command, spec jobSpec) error {
	s, err := sessionFrom(cmd.Context())
	if err != nil {
		return err
	}
	a := s.app
	cfg := a.Config()
	mode, err := asyncjob.ParseMode(cfg.Job.Mode)
	if err != nil {
		return err
	}
	logger := a.Logger().Named("job")

	jobCtx, cancelJob := context.WithCancel(context.WithoutCancel(cmd.Context()))
	defer cancelJob()

	var moved atomic.Int64
	fn := func(job *asyncjob.Controller, _ ...any) error {
		n, runErr := spec.run(jobCtx, job)
		moved.Store(n)
		if runErr != nil && jobCtx.Err() != nil {
			return asyncjob.NewOperationError(spec.op, runErr)
		}
		return runErr
	}

	var surface asyncjob.Surface
	switch {
	case s.quiet:
	case cfg.Job.ShowProgress:
		surface = terminal.New(terminal.WithOutput(cmd.OutOrStdout()))
	default:
		surface = asyncjob.NewLogSurface(logger)
	}
	show := surface != nil
	display, ok := surface.(asyncjob.ErrorDisplay)
	if !ok {
		display = asyncjob.LogErrorDisplay{Logger: logger}
	}

	var (
		runErr   error
		canceled bool
	)
	if spec.cancelable {
		job := asyncjob.New(fn, nil, spec.title, spec.label, surface, asyncjob.Options{
			Mode:         mode,
			HideProgress: !show,
			Tick:         cfg.Job.Tick,
			Logger:       logger,
			Emitter:      a.Emitter(),
			Cancel: &asyncjob.CancelHandler{Func: func(job *asyncjob.Controller, _ ...any) {
				cancelJob()
				job.SetCanceled()
			}},
		})
		stop := cancelOnInterrupt(cmd.Context(), job)
		runErr = job.Run(context.WithoutCancel(cmd.Context()))
		stop()
		canceled = job.Canceled()
		runErr = showFailure(runErr, display, spec.errorIntro)
	} else {
		opts := asyncjob.SimpleOptions{
			Mode:    mode,
			Errors:  display,
			Logger:  logger,
			Emitter: a.Emitter(),
			Tick:    cfg.Job.Tick,
		}
		if show {
			runErr = asyncjob.RunSimple(cmd.Context(), fn, nil, spec.title, spec.label, surface, spec.errorIntro, opts)
		} else {
			runErr = asyncjob.RunSimpleNoDialog(cmd.Context(), fn, nil, nil, spec.errorIntro, opts)
		}
		if runErr != nil {
			runErr = errJobFailed
		}
	}

	if spec.op != "" {
		metrics.ObserveTransfer(spec.op, spec.target, moved.Load(), runErr)
	}
	switch {
	case runErr != nil:
		return runErr
	case canceled:
		fmt.Fprintln(cmd.ErrOrStderr(), spec.title+": canceled")
	case spec.summary != nil && !s.quiet:
		fmt.Fprintln(cmd.OutOrStdout(), spec.summary(moved.Load()))
	}
	return nil
}

// showFailure routes a *JobError to display and reports errJobFailed.
func showFailure(err error, display asyncjob.ErrorDisplay, intro string) error {
	if err == nil {
		return nil
	}
	var jobErr *asyncjob.JobError
	if !errors.As(err, &jobErr) {
		return err
	}
	summary := jobErr.Message
	if intro != "" {
		summary = fmt.Sprintf("%s: %s", intro, summary)
	}
	display.ShowError(summary, jobErr.Details)
	return errJobFailed
}

// cancelOnInterrupt forwards the end of ctx (SIGINT or SIGTERM) to the job
// as a cancel request. The returned func stops watching.
func cancelOnInterrupt(ctx context.Context, job asyncjob.Requester) func() {
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			job.RequestCancel()
		case <-done:
		}
	}()
	return func() { close(done) }
}
