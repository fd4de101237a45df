package cmd

import (
	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the job status API and metrics",
		Long: `Serves /healthz, /readyz, /metrics and the read-only run history under
/api/jobs. With db.dsn set the history is shared with CLI runs that use the
same database.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := sessionFrom(cmd.Context())
			if err != nil {
				return err
			}
			return s.app.Serve(cmd.Context())
		},
	}
}
