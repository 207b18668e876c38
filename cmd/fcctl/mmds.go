package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/ghodss/yaml"
	"github.com/onkernel/fcctl/lib/firecracker"
	"github.com/spf13/cobra"
)

// readDocument reads a YAML or JSON document from path, or stdin for "-".
func readDocument(stdin io.Reader, path string) (any, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return doc, nil
}

func newMMDSCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mmds",
		Short: "Read and write the metadata store",
	}
	cmd.AddCommand(
		newMMDSGetCmd(opts),
		newMMDSWriteCmd(opts, "put", "Replace the metadata store with FILE"),
		newMMDSWriteCmd(opts, "patch", "Merge FILE into the metadata store"),
	)
	return cmd
}

func newMMDSGetCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "get",
		Short: "Print the metadata store",
		Args:  cobra.NoArgs,
		RunE: opts.runE(func(ctx context.Context, app *application, out io.Writer, _ []string) error {
			var doc any
			err := firecracker.Retry(ctx, app.Retry, firecracker.Idempotent, func(ctx context.Context) error {
				return app.Client.GetMMDS(ctx, &doc)
			})
			if err != nil {
				return err
			}
			return printJSON(out, doc)
		}),
	}
}

func newMMDSWriteCmd(opts *rootOptions, verb, short string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   verb + " FILE",
		Short: short + " (YAML or JSON, - for stdin)",
		Args:  cobra.ExactArgs(1),
	}
	cmd.RunE = opts.runE(func(ctx context.Context, app *application, _ io.Writer, args []string) error {
		doc, err := readDocument(cmd.InOrStdin(), args[0])
		if err != nil {
			return err
		}
		write := app.Client.PutMMDS
		if verb == "patch" {
			write = app.Client.PatchMMDS
		}
		return firecracker.Retry(ctx, app.Retry, firecracker.Idempotent, func(ctx context.Context) error {
			return write(ctx, doc)
		})
	})
	return cmd
}
