// Package app builds the long-lived services from configuration and runs the
// ingest cycle and the HTTP query server.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/newsgraph/internal/api"
	"github.com/JakeFAU/newsgraph/internal/clock/system"
	"github.com/JakeFAU/newsgraph/internal/config"
	"github.com/JakeFAU/newsgraph/internal/content"
	"github.com/JakeFAU/newsgraph/internal/dedup"
	"github.com/JakeFAU/newsgraph/internal/dispatcher"
	"github.com/JakeFAU/newsgraph/internal/download"
	"github.com/JakeFAU/newsgraph/internal/extract"
	"github.com/JakeFAU/newsgraph/internal/feed"
	collyfetcher "github.com/JakeFAU/newsgraph/internal/fetcher/colly"
	restyfetcher "github.com/JakeFAU/newsgraph/internal/fetcher/resty"
	"github.com/JakeFAU/newsgraph/internal/graph"
	graphmemory "github.com/JakeFAU/newsgraph/internal/graph/memory"
	graphpostgres "github.com/JakeFAU/newsgraph/internal/graph/postgres"
	"github.com/JakeFAU/newsgraph/internal/hash/sha256"
	"github.com/JakeFAU/newsgraph/internal/id/uuid"
	"github.com/JakeFAU/newsgraph/internal/logging"
	"github.com/JakeFAU/newsgraph/internal/nlp"
	"github.com/JakeFAU/newsgraph/internal/normalize"
	"github.com/JakeFAU/newsgraph/internal/pipeline"
	"github.com/JakeFAU/newsgraph/internal/policy/ratelimit"
	memorypublisher "github.com/JakeFAU/newsgraph/internal/publisher/memory"
	gcppublisher "github.com/JakeFAU/newsgraph/internal/publisher/pubsub"
	queuememory "github.com/JakeFAU/newsgraph/internal/queue/memory"
	"github.com/JakeFAU/newsgraph/internal/storage"
	gcsstorage "github.com/JakeFAU/newsgraph/internal/storage/gcs"
	localstorage "github.com/JakeFAU/newsgraph/internal/storage/local"
	memorystorage "github.com/JakeFAU/newsgraph/internal/storage/memory"
	pgstore "github.com/JakeFAU/newsgraph/internal/storage/postgres"
	"github.com/JakeFAU/newsgraph/internal/worker"
)

// ManualSourceID tags records resolved outside a feed.
const ManualSourceID = "manual"

// App contains the application's dependencies.
type App struct {
	cfg        config.Config
	logger     *zap.Logger
	clock      content.Clock
	ids        content.IDGenerator
	downloader *download.Downloader
	secondary  *download.Downloader
	poller     *feed.Poller
	pipeline   *pipeline.Pipeline
	records    content.RecordStore
	graph      *graph.Engine
	apiServer  *api.Server

	pgRecords *pgstore.RecordStore
	pgGraph   *graphpostgres.Store
	gcsStore  *gcsstorage.BlobStore
	pubsub    *gcppublisher.Publisher
}

// Build creates the application's dependencies. logger may be nil.
func Build(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	a := &App{
		cfg:    cfg,
		logger: logging.OrNop(logger),
		clock:  system.New(),
		ids:    uuid.New(),
	}
	a.logger.Info("building application dependencies",
		zap.Int("feeds", len(cfg.Feeds)),
		zap.Int("workers", cfg.Pipeline.Workers),
	)

	if err := a.build(ctx); err != nil {
		if cerr := a.Close(); cerr != nil {
			a.logger.Warn("cleanup after failed build", zap.Error(cerr))
		}
		return nil, err
	}
	return a, nil
}

func (a *App) build(ctx context.Context) error {
	a.downloader, a.secondary = setupDownloaders(a.cfg, a.logger)
	a.poller = feed.NewPoller(a.downloader, a.logger).
		WithBlocklist(feed.NewHostBlocklist(a.cfg.Pipeline.BlockedHosts))

	if err := a.setupRecords(ctx); err != nil {
		return err
	}
	store, err := a.setupGraph(ctx)
	if err != nil {
		return err
	}
	a.graph = graph.NewEngine(store, a.clock, a.logger)

	archiver, err := a.setupArchive(ctx)
	if err != nil {
		return err
	}
	publisher, err := a.setupPublisher(ctx)
	if err != nil {
		return err
	}

	tables, err := normalize.LoadTables(a.cfg.Normalize.TablesPath)
	if err != nil {
		return fmt.Errorf("normalize tables init failed: %w", err)
	}

	summarizer := nlp.NewFrequencySummarizer(a.cfg.Pipeline.SummarySentences)
	extractor := extract.NewEngine(a.logger,
		extract.NewStructural(a.downloader, a.logger),
		extract.NewReadability(a.secondary, summarizer, a.logger),
	)

	deps := pipeline.Deps{
		Dedup:      dedup.New(a.records, a.logger),
		Extractor:  extractor,
		Normalizer: normalize.New(tables, a.clock),
		NLP:        setupNLP(a.cfg, a.logger),
		Records:    a.records,
		Graph:      a.graph,
		Clock:      a.clock,
	}
	if archiver != nil {
		deps.Archiver = archiver
	}
	if publisher != nil {
		deps.Publisher = publisher
	}
	a.pipeline, err = pipeline.New(deps, pipeline.Config{Topic: a.cfg.Publisher.Topic}, a.logger)
	if err != nil {
		return fmt.Errorf("pipeline init failed: %w", err)
	}

	a.apiServer = api.NewServer(a.graph, a.records, a.cfg.Feeds, api.Config{
		RequestTimeout: a.cfg.RequestTimeout(),
		APIKey:         a.cfg.Server.APIKey,
	}, a.logger)
	return nil
}

// setupDownloaders returns the primary downloader on the configured transport and
// an independent resty-backed downloader for the secondary strategy. Both share one host gate.
func setupDownloaders(cfg config.Config, logger *zap.Logger) (*download.Downloader, *download.Downloader) {
	gate := ratelimit.New(ratelimit.Config{
		DefaultRPS:   cfg.HTTP.PerHostRPS,
		DefaultBurst: 1,
		MaxPerHost:   cfg.HTTP.PerHostMax,
	})
	dlCfg := download.Config{
		Timeout:     cfg.DownloadTimeout(),
		MaxRetries:  cfg.HTTP.MaxRetries,
		BackoffBase: cfg.BackoffBase(),
		UserAgent:   cfg.HTTP.UserAgent,
	}
	restyCfg := restyfetcher.Config{UserAgent: cfg.HTTP.UserAgent, Timeout: cfg.DownloadTimeout()}

	var primary content.Fetcher
	switch cfg.HTTP.Transport {
	case "resty":
		logger.Info("using resty fetcher", zap.String("user_agent", cfg.HTTP.UserAgent))
		primary = restyfetcher.New(restyCfg)
	default:
		logger.Info("using colly fetcher", zap.String("user_agent", cfg.HTTP.UserAgent))
		primary = collyfetcher.New(collyfetcher.Config{
			UserAgent: cfg.HTTP.UserAgent,
			Timeout:   cfg.DownloadTimeout(),
		})
	}
	return download.New(primary, gate, dlCfg, logger),
		download.New(restyfetcher.New(restyCfg), gate, dlCfg, logger.Named("secondary"))
}

func setupNLP(cfg config.Config, logger *zap.Logger) nlp.Extractor {
	if cfg.NLP.Provider == "noop" {
		logger.Info("keyword and topic extraction disabled")
		return nlp.Noop{}
	}
	return nlp.NewProse(cfg.NLP.MaxKeywords, logger)
}

func (a *App) setupRecords(ctx context.Context) error {
	if a.cfg.Records.Provider != "postgres" {
		a.logger.Info("using in-memory record store")
		a.records = memorystorage.NewRecordStore()
		return nil
	}
	var err error
	a.pgRecords, err = pgstore.NewRecordStore(ctx, pgstore.RecordStoreConfig{
		DSN:             a.cfg.Records.DSN,
		Table:           a.cfg.Records.Table,
		MaxConns:        a.cfg.Records.MaxConns,
		MinConns:        a.cfg.Records.MinConns,
		MaxConnLifetime: a.cfg.Records.MaxConnLifetime,
	})
	if err != nil {
		return fmt.Errorf("record store init failed: %w", err)
	}
	if err := a.pgRecords.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("record store init failed: %w", err)
	}
	a.records = a.pgRecords
	a.logger.Info("record store initialized", zap.String("table", a.cfg.Records.Table))
	return nil
}

func (a *App) setupGraph(ctx context.Context) (graph.Store, error) {
	if a.cfg.Graph.Provider != "postgres" {
		a.logger.Info("using in-memory graph store")
		return graphmemory.NewStore(), nil
	}
	var err error
	a.pgGraph, err = graphpostgres.New(ctx, a.cfg.Graph.DSN)
	if err != nil {
		return nil, fmt.Errorf("graph store init failed: %w", err)
	}
	if err := a.pgGraph.EnsureSchema(ctx); err != nil {
		return nil, fmt.Errorf("graph store init failed: %w", err)
	}
	a.logger.Info("postgres graph store initialized")
	return a.pgGraph, nil
}

func (a *App) setupArchive(ctx context.Context) (*storage.Archiver, error) {
	var blobs content.BlobStore
	switch a.cfg.Archive.Provider {
	case "gcs":
		var err error
		a.gcsStore, err = gcsstorage.Connect(ctx, gcsstorage.Config{Bucket: a.cfg.Archive.GCSBucket}, a.logger)
		if err != nil {
			return nil, fmt.Errorf("gcs blob store init failed: %w", err)
		}
		blobs = a.gcsStore
		a.logger.Info("using GCS archive", zap.String("bucket", a.cfg.Archive.GCSBucket))
	case "local":
		store, err := localstorage.New(localstorage.Config{BaseDir: a.cfg.Archive.BaseDir})
		if err != nil {
			return nil, fmt.Errorf("local blob store init failed: %w", err)
		}
		blobs = store
		a.logger.Info("using local archive", zap.String("path", a.cfg.Archive.BaseDir))
	case "memory":
		blobs = memorystorage.NewBlobStore()
		a.logger.Info("using in-memory archive")
	default:
		a.logger.Info("markup archiving disabled")
		return nil, nil
	}
	return storage.NewArchiver(blobs, sha256.New().Key, a.cfg.Archive.Prefix, a.logger), nil
}

func (a *App) setupPublisher(ctx context.Context) (content.Publisher, error) {
	switch a.cfg.Publisher.Provider {
	case "pubsub":
		var err error
		a.pubsub, err = gcppublisher.Connect(ctx, a.cfg.Publisher.ProjectID, a.logger)
		if err != nil {
			return nil, fmt.Errorf("pubsub publisher init failed: %w", err)
		}
		a.logger.Info("Pub/Sub publisher initialized",
			zap.String("project", a.cfg.Publisher.ProjectID),
			zap.String("topic", a.cfg.Publisher.Topic),
		)
		return a.pubsub, nil
	case "memory":
		a.logger.Info("using in-memory publisher")
		return memorypublisher.New(), nil
	default:
		a.logger.Info("event publishing disabled")
		return nil, nil
	}
}

// Ingest runs one polling cycle over every configured feed and blocks until all of
// them have been processed or ctx ends.
func (a *App) Ingest(ctx context.Context) (dispatcher.Summary, error) {
	runID, err := a.ids.NewID()
	if err != nil {
		return dispatcher.Summary{}, fmt.Errorf("new run id: %w", err)
	}
	logger := a.logger.With(zap.String("run_id", runID))
	logger.Info("ingest cycle started", zap.Int("feeds", len(a.cfg.Feeds)))
	start := a.clock.Now()

	queue := queuememory.NewQueue(a.cfg.Pipeline.QueueDepth)
	tally := dispatcher.NewTally()
	runners := make([]dispatcher.Runner, 0, a.cfg.Pipeline.Workers)
	for i := 0; i < a.cfg.Pipeline.Workers; i++ {
		runners = append(runners, worker.New(queue, a.poller, a.pipeline, tally, a.clock, logger))
	}
	d := dispatcher.New(queue, runners)

	done := make(chan struct{})
	go func() {
		defer close(done)
		d.Run(ctx)
	}()

	var enqueueErr error
	for _, src := range sortedFeeds(a.cfg.Feeds) {
		if err := d.Enqueue(ctx, content.FeedTask{RunID: runID, Source: src}); err != nil {
			enqueueErr = err
			break
		}
	}
	queue.Close()
	<-done

	summary := tally.Summary(runID)
	logger.Info("ingest cycle finished",
		zap.Int("feeds", summary.Feeds),
		zap.Int("failed_feeds", len(summary.FailedFeeds)),
		zap.Int("resolved", summary.Counters.Resolved),
		zap.Int("failed", summary.Counters.Failed),
		zap.Int("skipped", summary.Counters.Skipped),
		zap.Int("errored", summary.Counters.Errored),
		zap.Duration("duration", a.clock.Now().Sub(start)),
	)
	if enqueueErr != nil {
		return summary, enqueueErr
	}
	return summary, ctx.Err()
}

// IngestEvery runs Ingest immediately and then once per interval until ctx ends.
// A failed cycle is logged and does not stop the loop.
func (a *App) IngestEvery(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("ingest interval must be > 0")
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if _, err := a.Ingest(ctx); err != nil && ctx.Err() == nil {
			a.logger.Error("ingest cycle failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// Resolve runs a single link through the pipeline, ignoring any existing record.
func (a *App) Resolve(ctx context.Context, rawURL string) (content.ResolvedContent, error) {
	rec, _, err := a.pipeline.Resolve(ctx, content.Source{ID: ManualSourceID}, content.Entry{
		SourceID: ManualSourceID,
		Link:     rawURL,
	})
	if err != nil {
		return rec, fmt.Errorf("resolve %s: %w", rawURL, err)
	}
	return rec, nil
}

// Handler exposes the HTTP query API.
func (a *App) Handler() http.Handler {
	return a.apiServer.Handler()
}

// Serve runs the HTTP server until ctx ends, then shuts it down gracefully.
func (a *App) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}
	a.logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	return nil
}

// Close releases external clients and pools.
func (a *App) Close() error {
	var errs []error
	if a.pubsub != nil {
		if err := a.pubsub.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if a.gcsStore != nil {
		if err := a.gcsStore.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if a.pgGraph != nil {
		a.pgGraph.Close()
	}
	if a.pgRecords != nil {
		a.pgRecords.Close()
	}
	return errors.Join(errs...)
}

func sortedFeeds(feeds map[string]content.Source) []content.Source {
	out := make([]content.Source, 0, len(feeds))
	for _, src := range feeds {
		out = append(out, src)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
