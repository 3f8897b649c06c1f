package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newIngestCmd() *cobra.Command {
	var (
		watch bool
		every time.Duration
	)
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Poll every configured feed and resolve new links",
		Long: `Runs one polling cycle over all configured feeds and prints the run summary.
With --watch the cycle repeats at pipeline.poll_interval; --every overrides the
interval and implies --watch.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := runtimeFrom(cmd.Context())
			if err != nil {
				return err
			}
			if every > 0 || watch {
				interval := every
				if interval <= 0 {
					interval = rt.cfg.Pipeline.PollInterval
				}
				if err := rt.app.IngestEvery(cmd.Context(), interval); err != nil {
					return fmt.Errorf("ingest loop: %w", err)
				}
				return nil
			}

			summary, err := rt.app.Ingest(cmd.Context())
			if err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("ingest: %w", err)
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(summary); err != nil {
				return fmt.Errorf("write summary: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&watch, "watch", false, "repeat the cycle at pipeline.poll_interval")
	cmd.Flags().DurationVar(&every, "every", 0, "repeat the cycle at this interval")
	return cmd
}
