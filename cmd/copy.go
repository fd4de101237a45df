package cmd

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/JakeFAU/asyncjob/internal/asyncjob"
	"github.com/JakeFAU/asyncjob/internal/transfer"
)

func newCopyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "copy <src> <dst>",
		Short: "Copy a local file with a progress view",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			src, dst := args[0], args[1]
			return runJob(cmd, jobSpec{
				title:      "Copy",
				label:      fmt.Sprintf("%s to %s", filepath.Base(src), dst),
				errorIntro: "Copy failed",
				op:         "copy",
				run: func(ctx context.Context, job *asyncjob.Controller) (int64, error) {
					return transfer.CopyFile(ctx, src, dst, job.Meter())
				},
				summary: func(n int64) string {
					return fmt.Sprintf("copied %s to %s", humanize.IBytes(uint64(n)), dst)
				},
			})
		},
	}
}
