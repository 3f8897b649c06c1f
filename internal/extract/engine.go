// Package extract turns downloaded pages into article text through an ordered strategy fallback.
package extract

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/newsgraph/internal/content"
	"github.com/JakeFAU/newsgraph/internal/metrics"
)

// Strategy is one extraction algorithm. It fetches the page itself.
type Strategy interface {
	Name() string
	Extract(ctx context.Context, rawURL string) content.Outcome
}

// Source downloads page markup; *download.Downloader satisfies it.
type Source interface {
	Fetch(ctx context.Context, rawURL string) (content.RawContent, error)
}

// Summarizer condenses article text.
type Summarizer interface {
	Summarize(text string) (string, error)
}

// Engine runs strategies in order and keeps the first usable result.
type Engine struct {
	strategies []Strategy
	logger     *zap.Logger
}

// NewEngine builds an Engine over the given strategies, tried in order.
func NewEngine(logger *zap.Logger, strategies ...Strategy) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{strategies: strategies, logger: logger.Named("extract")}
}

// Extract returns the first successful extraction with Strategy set to the winner's name.
// When every strategy fails it returns content.ErrBothStrategiesFailed joined with each reason.
func (e *Engine) Extract(ctx context.Context, rawURL string) (content.Extraction, error) {
	reasons := make([]error, 0, len(e.strategies))
	for _, strategy := range e.strategies {
		if err := ctx.Err(); err != nil {
			reasons = append(reasons, err)
			break
		}
		outcome := strategy.Extract(ctx, rawURL)
		metrics.ObserveExtraction(strategy.Name(), outcome.Kind.String())
		if outcome.OK() {
			extraction := outcome.Extraction
			extraction.Strategy = strategy.Name()
			return extraction, nil
		}
		e.logger.Info("extraction strategy yielded nothing",
			zap.String("url", rawURL),
			zap.String("strategy", strategy.Name()),
			zap.Stringer("outcome", outcome.Kind),
			zap.Error(outcome.Reason),
		)
		reasons = append(reasons, fmt.Errorf("%s: %w", strategy.Name(), outcome.Reason))
	}
	return content.Extraction{}, fmt.Errorf("%w: %w", content.ErrBothStrategiesFailed, errors.Join(reasons...))
}
