package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/asyncjob/internal/asyncjob"
)

const sleepStep = 250 * time.Millisecond

func newSleepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sleep <duration>",
		Short: "Wait for a duration as a cancelable job",
		Long: `Runs a job that waits for the given duration (for example 10s or 1m30s)
while the progress view pulses. Useful for trying out cancellation.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := time.ParseDuration(args[0])
			if err != nil {
				return fmt.Errorf("parse duration: %w", err)
			}
			if d <= 0 {
				return fmt.Errorf("duration must be > 0")
			}
			return runJob(cmd, jobSpec{
				title:      "Sleep",
				label:      "Waiting " + d.String(),
				errorIntro: "Sleep failed",
				cancelable: true,
				run: func(ctx context.Context, job *asyncjob.Controller) (int64, error) {
					return 0, sleepJob(ctx, job, d)
				},
			})
		},
	}
}

func sleepJob(ctx context.Context, job *asyncjob.Controller, d time.Duration) error {
	deadline := time.Now().Add(d)
	ticker := time.NewTicker(sleepStep)
	defer ticker.Stop()
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil
		}
		job.SetStageText(fmt.Sprintf("%s remaining", remaining.Round(time.Second)))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
