package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/onkernel/fcctl/lib/fakevmm"
	"github.com/spf13/cobra"
)

func newFakeCmd(opts *rootOptions) *cobra.Command {
	var vmmVersion string
	cmd := &cobra.Command{
		Use:   "fake",
		Short: "Serve an in-memory fake control plane on the API socket",
		Long: `fake serves the Firecracker API on --socket without booting anything. Requests are
validated against the API schema and lifecycle rules are enforced, which makes it
useful for dry runs of apply and for tests.`,
		Args: cobra.NoArgs,
	}
	cmd.RunE = opts.runE(func(ctx context.Context, app *application, _ io.Writer, _ []string) error {
		path := strings.TrimPrefix(app.Config.Socket, "unix://")
		if !strings.HasPrefix(path, "/") {
			return fmt.Errorf("fake needs an absolute unix socket path, got %q", app.Config.Socket)
		}

		cfg := fakevmm.Config{
			VMMVersion: vmmVersion,
			Logger:     app.Logger,
			Meter:      app.Otel.MeterFor("fakevmm"),
		}
		if app.Config.OtelEnabled {
			cfg.ServiceName = app.Config.OtelServiceName
		}
		srv, err := fakevmm.New(cfg)
		if err != nil {
			return fmt.Errorf("create fake server: %w", err)
		}
		ln, err := fakevmm.ListenUnix(path)
		if err != nil {
			return err
		}
		defer os.Remove(path)

		app.Logger.InfoContext(ctx, "fake control plane listening", "socket", path, "id", srv.ID())
		if err := srv.Serve(ctx, ln); err != nil {
			return fmt.Errorf("serve: %w", err)
		}
		app.Logger.InfoContext(ctx, "fake control plane stopped")
		return nil
	})
	cmd.Flags().StringVar(&vmmVersion, "vmm-version", fakevmm.DefaultVMMVersion, "version reported by GET / and GET /version")
	return cmd
}
