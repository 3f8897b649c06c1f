package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func newServeCmd() *cobra.Command {
	var ingest bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP query API and /metrics",
		Long: `Serves the graph query API until interrupted. With --ingest the polling
cycle also runs in the background at pipeline.poll_interval.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := runtimeFrom(cmd.Context())
			if err != nil {
				return err
			}
			g, ctx := errgroup.WithContext(cmd.Context())
			g.Go(func() error { return rt.app.Serve(ctx) })
			if ingest {
				g.Go(func() error { return rt.app.IngestEvery(ctx, rt.cfg.Pipeline.PollInterval) })
			}
			if err := g.Wait(); err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&ingest, "ingest", false, "run the polling cycle alongside the server")
	return cmd
}
