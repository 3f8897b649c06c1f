// Package cmd defines the CLI commands for the newsgraph executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/newsgraph/internal/app"
	"github.com/JakeFAU/newsgraph/internal/config"
	"github.com/JakeFAU/newsgraph/internal/content"
	"github.com/JakeFAU/newsgraph/internal/dispatcher"
	"github.com/JakeFAU/newsgraph/internal/logging"
)

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

// App is the surface commands use. Tests swap in a mock through newApp.
type App interface {
	Ingest(ctx context.Context) (dispatcher.Summary, error)
	IngestEvery(ctx context.Context, interval time.Duration) error
	Resolve(ctx context.Context, rawURL string) (content.ResolvedContent, error)
	Serve(ctx context.Context) error
	Close() error
}

type runtime struct {
	app    App
	cfg    config.Config
	logger *zap.Logger
}

// newApp is the application factory.
var newApp = func(ctx context.Context, cfg config.Config, logger *zap.Logger) (App, error) {
	return app.Build(ctx, cfg, logger)
}

func newRootCmd() *cobra.Command {
	var cfgFile string
	cmd := &cobra.Command{
		Use:   "newsgraph",
		Short: "Regional news link resolution and content graph",
		Long: `newsgraph polls configured RSS/Atom feeds, downloads every linked article,
extracts and normalizes its content, and projects the result into a graph
that can be queried over HTTP.`,
		SilenceUsage: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger, err := logging.New(logging.Config{
				Development: cfg.Logging.Development,
				Level:       cfg.Logging.Level,
			})
			if err != nil {
				return fmt.Errorf("logger init failed: %w", err)
			}
			zap.ReplaceGlobals(logger)

			appInstance, err := newApp(cmd.Context(), cfg, logger)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, &runtime{
				app:    appInstance,
				cfg:    cfg,
				logger: logger,
			}))
			return nil
		},

		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			rt, ok := cmd.Context().Value(appKey).(*runtime)
			if !ok || rt == nil {
				return
			}
			if err := rt.app.Close(); err != nil {
				rt.logger.Warn("application close failed", zap.Error(err))
			}
			_ = rt.logger.Sync()
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to config file (YAML)")
	cmd.AddCommand(newIngestCmd(), newResolveCmd(), newServeCmd())
	return cmd
}

func runtimeFrom(ctx context.Context) (*runtime, error) {
	rt, ok := ctx.Value(appKey).(*runtime)
	if !ok || rt == nil {
		return nil, errors.New("application not initialized")
	}
	return rt, nil
}

// Execute runs the root command with a context canceled on SIGINT/SIGTERM.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}
