package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/newsgraph/internal/content"
	"github.com/JakeFAU/newsgraph/internal/graph"
	"github.com/JakeFAU/newsgraph/internal/logging"
	"github.com/JakeFAU/newsgraph/internal/metrics"
	"github.com/JakeFAU/newsgraph/internal/middleware"
)

const defaultRequestTimeout = 30 * time.Second

// Graph answers discovery queries; *graph.Engine satisfies it.
type Graph interface {
	RelatedFeeds(ctx context.Context, url string, limit int) []graph.RelatedFeed
	TrendingTopics(ctx context.Context, days, limit int) []graph.TopicCount
	SearchFeeds(ctx context.Context, query string, filters graph.Filters) []graph.FeedSummary
	FeedStats(ctx context.Context) graph.Stats
}

// RecordReader loads, lists and counts resolution records.
type RecordReader interface {
	Get(ctx context.Context, url string) (content.ResolvedContent, error)
	List(ctx context.Context, filter content.RecordFilter) ([]content.ResolvedContent, error)
	Stats(ctx context.Context) (content.RecordStats, error)
}

// Config controls server behavior.
type Config struct {
	RequestTimeout time.Duration
	APIKey         string
}

// Server wires HTTP handlers to the graph and record store.
type Server struct {
	router  chi.Router
	queries *QueryHandler
	sources []content.Source
}

// NewServer constructs a Server with middleware and routes.
func NewServer(
	g Graph,
	records RecordReader,
	sources map[string]content.Source,
	cfg Config,
	logger *zap.Logger,
) *Server {
	logger = logging.OrNop(logger).Named("api")
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}
	s := &Server{
		queries: NewQueryHandler(g, records, logger),
		sources: sortedSources(sources),
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logging(logger))
	r.Use(middleware.Recover(logger))
	r.Use(middleware.Metrics)
	r.Use(timeoutMiddleware(cfg.RequestTimeout))
	if cfg.APIKey != "" {
		r.Use(middleware.APIKey(cfg.APIKey))
	}

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Get("/feeds/related", s.queries.Related)
		r.Get("/feeds/search", s.queries.Search)
		r.Get("/topics/trending", s.queries.Trending)
		r.Get("/stats", s.queries.Stats)
		r.Get("/records", s.queries.Records)
		r.Get("/sources", s.listSources)
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	if s.queries.graph == nil {
		writeError(w, http.StatusServiceUnavailable, "graph unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) listSources(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"sources": s.sources})
}

func sortedSources(in map[string]content.Source) []content.Source {
	out := make([]content.Source, 0, len(in))
	for _, src := range in {
		out = append(out, src)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, `{"error":"request timed out"}`)
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
