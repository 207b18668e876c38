package main

import (
	"context"
	"io"
	"net/http"

	"github.com/onkernel/fcctl/lib/firecracker"
	"github.com/spf13/cobra"
)

func newSnapshotCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Create or load VM snapshots",
	}
	cmd.AddCommand(newSnapshotCreateCmd(opts), newSnapshotLoadCmd(opts))
	return cmd
}

func newSnapshotCreateCmd(opts *rootOptions) *cobra.Command {
	var (
		snapshotPath string
		memPath      string
		snapType     string
		version      string
		pause        bool
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Snapshot a paused VM",
		Args:  cobra.NoArgs,
	}
	cmd.RunE = opts.runE(func(ctx context.Context, app *application, out io.Writer, _ []string) error {
		params := firecracker.NewSnapshotCreateParams(snapshotPath, memPath)
		if snapType != "" {
			params = params.WithType(firecracker.SnapshotType(snapType))
		}
		if version != "" {
			params = params.WithVersion(version)
		}
		if err := params.Validate(); err != nil {
			return err
		}
		if pause {
			if err := firecracker.Retry(ctx, app.Retry, firecracker.Idempotent, app.Client.Pause); err != nil {
				return err
			}
		}
		err := firecracker.Retry(ctx, app.Retry, firecracker.IdempotencyOf(http.MethodPut, "/snapshot/create"), func(ctx context.Context) error {
			return app.Client.CreateSnapshot(ctx, params)
		})
		if err != nil {
			return err
		}
		app.Logger.InfoContext(ctx, "snapshot created", "snapshot_path", snapshotPath, "mem_file_path", memPath)
		return describe(ctx, app, out)
	})
	cmd.Flags().StringVar(&snapshotPath, "snapshot-path", "", "where to write the VM state")
	cmd.Flags().StringVar(&memPath, "mem-path", "", "where to write guest memory")
	cmd.Flags().StringVar(&snapType, "type", "", "Full or Diff")
	cmd.Flags().StringVar(&version, "version", "", "snapshot format version")
	cmd.Flags().BoolVar(&pause, "pause", false, "pause the VM first")
	return cmd
}

func newSnapshotLoadCmd(opts *rootOptions) *cobra.Command {
	var (
		snapshotPath string
		memPath      string
		backendPath  string
		backendType  string
		diff         bool
		resume       bool
	)
	cmd := &cobra.Command{
		Use:   "load",
		Short: "Restore a VM from a snapshot into a fresh hypervisor process",
		Args:  cobra.NoArgs,
	}
	cmd.RunE = opts.runE(func(ctx context.Context, app *application, out io.Writer, _ []string) error {
		params := firecracker.NewSnapshotLoadParams(snapshotPath, memPath)
		if backendPath != "" {
			params = params.WithMemBackend(firecracker.MemBackend{
				BackendPath: backendPath,
				BackendType: firecracker.MemBackendType(backendType),
			})
		}
		if cmd.Flags().Changed("diff") {
			params = params.WithDiffSnapshots(diff)
		}
		if cmd.Flags().Changed("resume") {
			params = params.WithResume(resume)
		}
		err := firecracker.Retry(ctx, app.Retry, firecracker.IdempotencyOf(http.MethodPut, "/snapshot/load"), func(ctx context.Context) error {
			return app.Client.LoadSnapshot(ctx, params)
		})
		if err != nil {
			return err
		}
		return describe(ctx, app, out)
	})
	cmd.Flags().StringVar(&snapshotPath, "snapshot-path", "", "VM state file")
	cmd.Flags().StringVar(&memPath, "mem-path", "", "guest memory file")
	cmd.Flags().StringVar(&backendPath, "mem-backend", "", "memory backend path, replaces --mem-path")
	cmd.Flags().StringVar(&backendType, "mem-backend-type", string(firecracker.MemBackendFile), "File or Uffd")
	cmd.Flags().BoolVar(&diff, "diff", false, "enable diff snapshots after loading")
	cmd.Flags().BoolVar(&resume, "resume", false, "resume the VM once loaded")
	return cmd
}
