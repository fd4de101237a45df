package cmd

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/asyncjob/internal/asyncjob"
	"github.com/JakeFAU/asyncjob/internal/transfer"
)

func newUploadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "upload <file> [object]",
		Short: "Upload a file to the configured object store",
		Long: `Uploads a file to the backend selected by storage.backend (gcs, local or
memory). The object name defaults to the file's base name.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			file := args[0]
			object := filepath.Base(file)
			if len(args) == 2 {
				object = args[1]
			}
			s, err := sessionFrom(cmd.Context())
			if err != nil {
				return err
			}
			objects := s.app.Objects()
			var uri string
			return runJob(cmd, jobSpec{
				title:      "Upload",
				label:      fmt.Sprintf("%s to %s", filepath.Base(file), object),
				errorIntro: "Upload failed",
				cancelable: true,
				op:         "upload",
				target:     s.app.Config().Storage.Backend,
				run: func(ctx context.Context, job *asyncjob.Controller) (int64, error) {
					var err error
					uri, err = transfer.UploadFile(ctx, objects, file, object, job.Meter())
					if err != nil {
						return 0, err
					}
					return job.Meter().AmountRead(), nil
				},
				summary: func(int64) string {
					return "uploaded " + uri
				},
			})
		},
	}
}
