package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/c2h5oh/datasize"
	"github.com/onkernel/fcctl/lib/firecracker"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
)

// parseMiB parses a size such as "256MB" into whole MiB.
func parseMiB(s string) (int, error) {
	var ds datasize.ByteSize
	if err := ds.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("invalid size %q: %w", s, err)
	}
	if ds.Bytes()%datasize.MB.Bytes() != 0 {
		return 0, fmt.Errorf("size %q is not a whole number of MiB", s)
	}
	return int(ds.Bytes() / datasize.MB.Bytes()), nil
}

func newBalloonCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "balloon",
		Short: "Manage the memory balloon device",
	}
	cmd.AddCommand(
		newBalloonSetCmd(opts),
		newBalloonUpdateCmd(opts),
		newBalloonGetCmd(opts),
		newBalloonStatsCmd(opts),
	)
	return cmd
}

func newBalloonSetCmd(opts *rootOptions) *cobra.Command {
	var (
		deflateOnOOM  bool
		statsInterval time.Duration
	)
	cmd := &cobra.Command{
		Use:   "set SIZE",
		Short: "Install the balloon device before boot",
		Args:  cobra.ExactArgs(1),
	}
	cmd.RunE = opts.runE(func(ctx context.Context, app *application, _ io.Writer, args []string) error {
		mib, err := parseMiB(args[0])
		if err != nil {
			return err
		}
		b := firecracker.Balloon{AmountMib: mib, DeflateOnOOM: lo.ToPtr(deflateOnOOM)}
		if statsInterval > 0 {
			b.StatsPollingIntervalS = lo.ToPtr(int(statsInterval / time.Second))
		}
		return firecracker.Retry(ctx, app.Retry, firecracker.Idempotent, func(ctx context.Context) error {
			return app.Client.PutBalloon(ctx, b)
		})
	})
	cmd.Flags().BoolVar(&deflateOnOOM, "deflate-on-oom", false, "deflate when the guest runs out of memory")
	cmd.Flags().DurationVar(&statsInterval, "stats-interval", 0, "statistics polling interval, whole seconds")
	return cmd
}

func newBalloonUpdateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "update SIZE",
		Short: "Change the balloon target of a running VM",
		Args:  cobra.ExactArgs(1),
		RunE: opts.runE(func(ctx context.Context, app *application, _ io.Writer, args []string) error {
			mib, err := parseMiB(args[0])
			if err != nil {
				return err
			}
			return firecracker.Retry(ctx, app.Retry, firecracker.Idempotent, func(ctx context.Context) error {
				return app.Client.PatchBalloon(ctx, firecracker.BalloonUpdate{AmountMib: mib})
			})
		}),
	}
}

func newBalloonGetCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "get",
		Short: "Print the balloon configuration",
		Args:  cobra.NoArgs,
		RunE: opts.runE(func(ctx context.Context, app *application, out io.Writer, _ []string) error {
			b, err := firecracker.RetryValue(ctx, app.Retry, firecracker.Idempotent, app.Client.GetBalloon)
			if err != nil {
				return err
			}
			return printJSON(out, b)
		}),
	}
}

func newBalloonStatsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print balloon memory statistics",
		Args:  cobra.NoArgs,
		RunE: opts.runE(func(ctx context.Context, app *application, out io.Writer, _ []string) error {
			stats, err := firecracker.RetryValue(ctx, app.Retry, firecracker.Idempotent, app.Client.GetBalloonStats)
			if err != nil {
				return err
			}
			return printJSON(out, stats)
		}),
	}
}
