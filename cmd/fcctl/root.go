package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/onkernel/fcctl/cmd/fcctl/config"
	"github.com/spf13/cobra"
)

type rootOptions struct {
	socket   string
	timeout  time.Duration
	retries  int
	logLevel string
}

// overrides copies the flags the user actually set onto cfg.
func (o *rootOptions) overrides(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("socket") {
		cfg.Socket = o.socket
	}
	if flags.Changed("timeout") {
		cfg.Timeout = o.timeout
	}
	if flags.Changed("retries") {
		cfg.RetryMaxTries = o.retries
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = o.logLevel
	}
}

type runFunc func(ctx context.Context, app *application, out io.Writer, args []string) error

// runE builds the application for one command invocation. prepare may adjust
// the loaded configuration before any flag overrides are applied.
func (o *rootOptions) runE(fn runFunc, prepare ...func(*config.Config, []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		cfg := config.Load()
		for _, p := range prepare {
			if err := p(cfg, args); err != nil {
				return err
			}
		}
		o.overrides(cmd, cfg)

		app, cleanup, err := initializeApp(cfg)
		if err != nil {
			return fmt.Errorf("initialize application: %w", err)
		}
		defer cleanup()

		ctx, cancel := context.WithCancel(app.Ctx)
		defer cancel()
		stopAfter := context.AfterFunc(cmd.Context(), cancel)
		defer stopAfter()

		ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
		defer stop()

		return fn(ctx, app, cmd.OutOrStdout(), args)
	}
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:   "fcctl",
		Short: "Configure and drive Firecracker microVMs through the control-plane API",
		Long: `fcctl talks to a Firecracker API socket. Defaults come from FCCTL_* environment
variables (and a .env file in the working directory); flags override them.`,
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	root.PersistentFlags().StringVar(&opts.socket, "socket", "", "API socket path, unix:// URL or loopback http URL (default $FCCTL_SOCKET)")
	root.PersistentFlags().DurationVar(&opts.timeout, "timeout", 0, "per-request timeout (default $FCCTL_TIMEOUT)")
	root.PersistentFlags().IntVar(&opts.retries, "retries", 0, "maximum attempts for retryable failures (default $FCCTL_RETRY_MAX_TRIES)")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "debug, info, warn or error (default $LOG_LEVEL)")

	root.AddCommand(
		newApplyCmd(opts),
		newStartCmd(opts),
		newDescribeCmd(opts),
		newActionCmd(opts),
		newPauseCmd(opts),
		newResumeCmd(opts),
		newVersionCmd(opts),
		newSnapshotCmd(opts),
		newBalloonCmd(opts),
		newMMDSCmd(opts),
		newFakeCmd(opts),
	)
	return root
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
