package graph

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/newsgraph/internal/content"
	"github.com/JakeFAU/newsgraph/internal/metrics"
)

// Engine is the best-effort facade over a Store: failures become empty results.
type Engine struct {
	store  Store
	clock  content.Clock
	logger *zap.Logger
}

// NewEngine builds an Engine.
func NewEngine(store Store, clock content.Clock, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{store: store, clock: clock, logger: logger.Named("graph")}
}

// Project upserts rec. It reports whether the write succeeded; failures are logged only.
func (e *Engine) Project(ctx context.Context, rec content.ResolvedContent) bool {
	if err := e.store.Upsert(ctx, FromRecord(rec)); err != nil {
		metrics.ObserveGraphWriteFailure()
		e.logger.Warn("graph upsert failed", zap.String("url", rec.URL), zap.Error(err))
		return false
	}
	return true
}

// RelatedFeeds returns feeds sharing topics or keywords with url.
func (e *Engine) RelatedFeeds(ctx context.Context, url string, limit int) []RelatedFeed {
	if limit <= 0 {
		return []RelatedFeed{}
	}
	rows, err := e.store.Related(ctx, RelatedQuery{URL: url, Limit: limit})
	if err != nil {
		e.logger.Warn("related query failed", zap.String("url", url), zap.Error(err))
		return []RelatedFeed{}
	}
	return rows
}

// TrendingTopics counts topics of feeds published in the last `days` days.
func (e *Engine) TrendingTopics(ctx context.Context, days, limit int) []TopicCount {
	if days <= 0 || limit <= 0 {
		return []TopicCount{}
	}
	since := e.clock.Now().UTC().Add(-time.Duration(days) * 24 * time.Hour)
	rows, err := e.store.Trending(ctx, TrendingQuery{Since: since, Limit: limit})
	if err != nil {
		e.logger.Warn("trending query failed", zap.Int("days", days), zap.Error(err))
		return []TopicCount{}
	}
	return rows
}

// SearchFeeds matches query against title or content with all filters ANDed.
func (e *Engine) SearchFeeds(ctx context.Context, query string, filters Filters) []FeedSummary {
	rows, err := e.store.Search(ctx, SearchQuery{Text: query, Filters: filters, Limit: SearchLimit})
	if err != nil {
		e.logger.Warn("search query failed", zap.String("query", query), zap.Error(err))
		return []FeedSummary{}
	}
	return rows
}

// FeedStats aggregates the graph; on failure it returns zero stats.
func (e *Engine) FeedStats(ctx context.Context) Stats {
	stats, err := e.store.Stats(ctx)
	if err != nil {
		e.logger.Warn("stats query failed", zap.Error(err))
		return Stats{}
	}
	return stats
}
