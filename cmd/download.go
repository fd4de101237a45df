package cmd

import (
	"context"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/JakeFAU/asyncjob/internal/asyncjob"
)

func newDownloadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "download <url> <dest>",
		Short: "Download a URL to a file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			rawURL, dest := args[0], args[1]
			s, err := sessionFrom(cmd.Context())
			if err != nil {
				return err
			}
			downloader := s.app.Downloader()
			return runJob(cmd, jobSpec{
				title:      "Download",
				label:      rawURL,
				errorIntro: "Download failed",
				cancelable: true,
				op:         "download",
				target:     rawURL,
				run: func(ctx context.Context, job *asyncjob.Controller) (int64, error) {
					return downloader.DownloadFile(ctx, rawURL, dest, job.Meter())
				},
				summary: func(n int64) string {
					return fmt.Sprintf("downloaded %s to %s", humanize.IBytes(uint64(n)), dest)
				},
			})
		},
	}
}
