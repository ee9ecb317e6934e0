package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Log-Tools/commerce-events-export/internal/export"
	"github.com/Log-Tools/commerce-events-export/internal/source"
)

func newReplayCmd(a *app) *cobra.Command {
	var (
		file      string
		batchSize int
	)

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Export raw events from a newline-delimited JSON file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := a.load()
			if err != nil {
				return err
			}
			if batchSize <= 0 {
				batchSize = cfg.Source.BatchSize
			}

			f, err := os.Open(file)
			if err != nil {
				return fmt.Errorf("failed to open %s: %w", file, err)
			}
			defer f.Close()

			ctx, cancel := signalContext()
			defer cancel()

			handle, err := a.provision(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer func() {
				if err := handle.Close(); err != nil {
					logger.WithError(err).Warn("⚠️ Failed to close topic client")
				}
			}()

			stats, err := source.Replay(ctx, f, batchSize, export.NewExporter(logger), handle, retryPolicy(cfg), logger)
			fmt.Fprintf(cmd.OutOrStdout(), "📊 Replayed %d lines in %d batches to %s (%d skipped)\n",
				stats.Lines, stats.Batches, handle.Name(), stats.Skipped)
			return err
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "newline-delimited JSON file with raw events")
	cmd.Flags().IntVar(&batchSize, "batch-size", 0, "events per batch (default: source.batch_size)")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}
