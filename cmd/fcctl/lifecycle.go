package main

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/onkernel/fcctl/cmd/fcctl/config"
	"github.com/onkernel/fcctl/lib/firecracker"
	"github.com/onkernel/fcctl/lib/otel"
	"github.com/onkernel/fcctl/lib/vmfile"
	"github.com/spf13/cobra"
)

func newApplyCmd(opts *rootOptions) *cobra.Command {
	var (
		start bool
		file  *vmfile.File
	)
	cmd := &cobra.Command{
		Use:   "apply FILE",
		Short: "Configure a VM that has not started yet from a YAML description",
		Args:  cobra.ExactArgs(1),
	}
	load := func(cfg *config.Config, args []string) error {
		f, err := vmfile.Load(args[0])
		if err != nil {
			return err
		}
		if f.APISocket != "" {
			cfg.Socket = f.APISocket
		}
		file = f
		return nil
	}
	cmd.RunE = opts.runE(func(ctx context.Context, app *application, out io.Writer, args []string) error {
		plan, err := file.VMConfig()
		if err != nil {
			return err
		}
		// Every request of the plan is a PUT, so the whole plan can be replayed.
		err = firecracker.Retry(ctx, app.Retry, firecracker.Idempotent, func(ctx context.Context) error {
			return app.Client.Configure(ctx, plan)
		})
		if err != nil {
			return err
		}
		if start {
			if err := startVM(ctx, app); err != nil {
				return err
			}
		}
		return describe(ctx, app, out)
	}, load)
	cmd.Flags().BoolVar(&start, "start", false, "start the VM once it is configured")
	return cmd
}

func startVM(ctx context.Context, app *application) error {
	class := firecracker.IdempotencyOf(http.MethodPut, "/actions")
	return firecracker.Retry(ctx, app.Retry, class, app.Client.Start)
}

func describe(ctx context.Context, app *application, out io.Writer) error {
	info, err := firecracker.RetryValue(ctx, app.Retry, firecracker.Idempotent, app.Client.GetInstanceInfo)
	if err != nil {
		return err
	}
	return printJSON(out, info)
}

func newStartCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Boot the configured VM",
		Args:  cobra.NoArgs,
		RunE: opts.runE(func(ctx context.Context, app *application, out io.Writer, _ []string) error {
			if err := startVM(ctx, app); err != nil {
				return err
			}
			return describe(ctx, app, out)
		}),
	}
}

func newDescribeCmd(opts *rootOptions) *cobra.Command {
	var machine bool
	cmd := &cobra.Command{
		Use:   "describe",
		Short: "Print instance information",
		Args:  cobra.NoArgs,
	}
	cmd.RunE = opts.runE(func(ctx context.Context, app *application, out io.Writer, _ []string) error {
		if !machine {
			return describe(ctx, app, out)
		}
		mc, err := firecracker.RetryValue(ctx, app.Retry, firecracker.Idempotent, app.Client.GetMachineConfig)
		if err != nil {
			return err
		}
		return printJSON(out, mc)
	})
	cmd.Flags().BoolVar(&machine, "machine-config", false, "print the machine configuration instead")
	return cmd
}

func newActionCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "action TYPE",
		Short: "Send an instance action (InstanceStart, SendCtrlAltDel, FlushMetrics)",
		Args:  cobra.ExactArgs(1),
		RunE: opts.runE(func(ctx context.Context, app *application, _ io.Writer, args []string) error {
			action := firecracker.InstanceActionInfo{ActionType: firecracker.ActionType(args[0])}
			class := firecracker.IdempotencyOf(http.MethodPut, "/actions")
			err := firecracker.Retry(ctx, app.Retry, class, func(ctx context.Context) error {
				return app.Client.CreateInstanceAction(ctx, action)
			})
			if err != nil {
				return err
			}
			app.Logger.InfoContext(ctx, "action sent", "action", args[0])
			return nil
		}),
	}
}

func newPauseCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "pause",
		Short: "Pause a running VM",
		Args:  cobra.NoArgs,
		RunE: opts.runE(func(ctx context.Context, app *application, out io.Writer, _ []string) error {
			if err := firecracker.Retry(ctx, app.Retry, firecracker.Idempotent, app.Client.Pause); err != nil {
				return err
			}
			return describe(ctx, app, out)
		}),
	}
}

func newResumeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "resume",
		Short: "Resume a paused VM",
		Args:  cobra.NoArgs,
		RunE: opts.runE(func(ctx context.Context, app *application, out io.Writer, _ []string) error {
			if err := firecracker.Retry(ctx, app.Retry, firecracker.Idempotent, app.Client.Resume); err != nil {
				return err
			}
			return describe(ctx, app, out)
		}),
	}
}

type versionInfo struct {
	Fcctl       string `json:"fcctl"`
	Go          string `json:"go"`
	Firecracker string `json:"firecracker"`
}

func newVersionCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print fcctl and hypervisor versions",
		Args:  cobra.NoArgs,
		RunE: opts.runE(func(ctx context.Context, app *application, out io.Writer, _ []string) error {
			v, err := firecracker.RetryValue(ctx, app.Retry, firecracker.Idempotent, app.Client.GetVersion)
			if err != nil {
				return fmt.Errorf("get hypervisor version: %w", err)
			}
			return printJSON(out, versionInfo{
				Fcctl:       app.Config.Version,
				Go:          otel.GoVersion(),
				Firecracker: v.FirecrackerVersion,
			})
		}),
	}
}
