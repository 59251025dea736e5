package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/edenschool/examparse/internal/app"
	"github.com/edenschool/examparse/internal/pipeline"
	"github.com/edenschool/examparse/pkg/metrics"
)

func newRunCmd(root *rootOptions) *cobra.Command {
	var (
		input, output, sink string
		workers             int
		dryRun, writeText   bool
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Process every exam file under the input directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := root.cfg
			flags := cmd.Flags()
			if flags.Changed("input") {
				cfg.Pipeline.InputDir = input
			}
			if flags.Changed("output") {
				cfg.Pipeline.OutputDir = output
			}
			if flags.Changed("workers") {
				cfg.Pipeline.Workers = workers
			}
			if flags.Changed("sink") {
				cfg.Sink.Driver = sink
			}
			if flags.Changed("dry-run") {
				cfg.Pipeline.DryRun = dryRun
			}
			if flags.Changed("write-text") {
				cfg.Pipeline.WriteText = writeText
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			inputs, err := pipeline.Discover(cfg.Pipeline.InputDir)
			if err != nil {
				return err
			}

			var reg prometheus.Registerer = prometheus.NewRegistry()
			if cfg.Metrics.Enabled {
				reg = prometheus.DefaultRegisterer
			}
			rt, err := app.Build(ctx, cfg, reg)
			if err != nil {
				return fmt.Errorf("starting pipeline: %w", err)
			}
			defer rt.Close()
			if cfg.Metrics.Enabled {
				shutdown := metrics.StartServer(cfg.Metrics.Port, rt.Health)
				defer shutdown(context.Background())
			}
			rt.Start(ctx)

			summary, runErr := rt.Pipeline.Run(ctx, inputs)
			manifestPath := filepath.Join(cfg.Pipeline.OutputDir, "manifest.json")
			if err := rt.Pipeline.Manifest().WriteFile(manifestPath); err != nil {
				slog.Error("failed to write manifest", "error", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "=== Summary ===")
			fmt.Fprintf(out, "Total:    %d\n", summary.Total)
			fmt.Fprintf(out, "Success:  %d\n", summary.Success)
			fmt.Fprintf(out, "Skipped:  %d\n", summary.Skip)
			fmt.Fprintf(out, "Errors:   %d\n", summary.Error)
			fmt.Fprintf(out, "Manifest: %s\n", manifestPath)
			return runErr
		},
	}
	f := cmd.Flags()
	f.StringVarP(&input, "input", "i", "", "directory of exam files")
	f.StringVarP(&output, "output", "o", "", "directory for analysis JSON and the manifest")
	f.IntVarP(&workers, "workers", "w", 0, "concurrent files")
	f.StringVar(&sink, "sink", "", "sink driver: postgres, sqlite or none")
	f.BoolVar(&dryRun, "dry-run", false, "parse and write JSON without touching the sink or ledger")
	f.BoolVar(&writeText, "write-text", false, "also write the extracted text of each file")
	return cmd
}
