// Package cmd defines the asyncjob CLI commands.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/JakeFAU/asyncjob/internal/app"
	"github.com/JakeFAU/asyncjob/internal/config"
	"github.com/JakeFAU/asyncjob/internal/logging"
)

type appKeyType string

const appKey appKeyType = "app"

const closeTimeout = 10 * time.Second

// rootFlags are the persistent flags shared by every subcommand.
type rootFlags struct {
	configFile string
	logFile    string
	quiet      bool
	sync       bool
}

// newApp is the application factory. Tests replace it to avoid global
// registries.
var newApp = func(ctx context.Context, cfg config.Config, logger *zap.Logger) (*app.App, error) {
	return app.Build(ctx, cfg, logger)
}

// rootState carries what the pre-run hook builds so Execute can release it
// whether or not the subcommand failed.
type rootState struct {
	session *session
}

func (st *rootState) close(ctx context.Context) error {
	if st.session == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), closeTimeout)
	defer cancel()
	err := st.session.app.Close(ctx)
	_ = st.session.app.Logger().Sync()
	st.session = nil
	return err
}

func newRootCmd() (*cobra.Command, *rootState) {
	flags := &rootFlags{}
	state := &rootState{}
	cmd := &cobra.Command{
		Use:   "asyncjob",
		Short: "Run long operations with progress, cancellation and run history.",
		Long: `asyncjob runs long operations (copies, downloads, uploads) on a worker
goroutine while a progress view follows them. Every run is recorded as
lifecycle events that feed logs, Prometheus metrics, run history and
optional Pub/Sub notifications.`,
		SilenceUsage:  true,
		SilenceErrors: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(flags.configFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if flags.sync {
				cfg.Job.Mode = "sync"
			}
			logger, err := buildLogger(cmd, cfg, flags)
			if err != nil {
				return err
			}
			zap.ReplaceGlobals(logger)

			a, err := newApp(cmd.Context(), cfg, logger)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			state.session = &session{app: a, quiet: flags.quiet}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, state.session))
			return nil
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&flags.configFile, "config", "", "config file (YAML, TOML or JSON)")
	pf.StringVar(&flags.logFile, "log-file", "", "write logs to this file instead of stderr")
	pf.BoolVarP(&flags.quiet, "quiet", "q", false, "do not show the progress view")
	pf.BoolVar(&flags.sync, "sync", false, "run jobs on the calling goroutine")

	cmd.AddCommand(
		newSleepCmd(),
		newCopyCmd(),
		newDownloadCmd(),
		newUploadCmd(),
		newServeCmd(),
	)
	return cmd, state
}

// run executes the command tree and then closes the application services.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	root, state := newRootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	err := root.ExecuteContext(ctx)
	return errors.Join(err, state.close(ctx))
}

// buildLogger keeps info logs off the terminal while the progress view owns
// it.
func buildLogger(cmd *cobra.Command, cfg config.Config, flags *rootFlags) (*zap.Logger, error) {
	var opts []logging.Option
	if flags.logFile != "" {
		opts = append(opts, logging.WithOutput(flags.logFile))
	} else if !flags.quiet && cfg.Job.ShowProgress && cmd.Name() != "serve" {
		opts = append(opts, logging.WithLevel(zapcore.WarnLevel))
	}
	logger, err := logging.New(cfg.Logging.Development, opts...)
	if err != nil {
		return nil, fmt.Errorf("logger init failed: %w", err)
	}
	return logger, nil
}

type session struct {
	app   *app.App
	quiet bool
}

func sessionFrom(ctx context.Context) (*session, error) {
	s, ok := ctx.Value(appKey).(*session)
	if !ok || s == nil {
		return nil, errors.New("application services not initialized")
	}
	return s, nil
}

// Execute runs the root command with SIGINT and SIGTERM bound to the
// command context.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	if err == nil {
		return
	}
	if !errors.Is(err, errJobFailed) {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	os.Exit(1)
}
