// Package pipeline resolves feed entries into records and projects them into the graph.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/newsgraph/internal/content"
	"github.com/JakeFAU/newsgraph/internal/download"
	"github.com/JakeFAU/newsgraph/internal/extract"
	"github.com/JakeFAU/newsgraph/internal/logging"
	"github.com/JakeFAU/newsgraph/internal/metrics"
	"github.com/JakeFAU/newsgraph/internal/nlp"
	"github.com/JakeFAU/newsgraph/internal/normalize"
)

// Entry results, also used as metric labels.
const (
	ResultResolved = "resolved"
	ResultFailed   = "failed"
	ResultSkipped  = "skipped"
	ResultErrored  = "errored"
)

// Deduplicator reports links that already have a record.
type Deduplicator interface {
	AlreadyResolved(ctx context.Context, url string) bool
}

// Extractor runs the strategy fallback for one link.
type Extractor interface {
	Extract(ctx context.Context, url string) (content.Extraction, error)
}

// Normalizer resolves source, state, date and language.
type Normalizer interface {
	Normalize(url string, ext content.Extraction) normalize.Result
}

// Projector merges a record into the content graph.
type Projector interface {
	Project(ctx context.Context, rec content.ResolvedContent) bool
}

// Archiver stores raw markup and returns its URI.
type Archiver interface {
	Archive(ctx context.Context, url, html string) (string, error)
}

// Config controls optional pipeline outputs.
type Config struct {
	// Topic receives one event per saved record. Empty disables publishing.
	Topic string
}

// Deps are the pipeline's collaborators. Archiver and Publisher are optional.
type Deps struct {
	Dedup      Deduplicator
	Extractor  Extractor
	Normalizer Normalizer
	NLP        nlp.Extractor
	Records    content.RecordStore
	Graph      Projector
	Archiver   Archiver
	Publisher  content.Publisher
	Clock      content.Clock
}

// Pipeline processes entries one at a time. It is safe for concurrent use when its
// collaborators are.
type Pipeline struct {
	deps   Deps
	cfg    Config
	logger *zap.Logger
}

// New validates deps and builds a Pipeline.
func New(deps Deps, cfg Config, logger *zap.Logger) (*Pipeline, error) {
	switch {
	case deps.Dedup == nil:
		return nil, errors.New("pipeline: deduplicator is required")
	case deps.Extractor == nil:
		return nil, errors.New("pipeline: extractor is required")
	case deps.Normalizer == nil:
		return nil, errors.New("pipeline: normalizer is required")
	case deps.Records == nil:
		return nil, errors.New("pipeline: record store is required")
	case deps.Graph == nil:
		return nil, errors.New("pipeline: graph projector is required")
	case deps.Clock == nil:
		return nil, errors.New("pipeline: clock is required")
	}
	if deps.NLP == nil {
		deps.NLP = nlp.Noop{}
	}
	return &Pipeline{deps: deps, cfg: cfg, logger: logging.OrNop(logger).Named("pipeline")}, nil
}

// ProcessFeed resolves entries in order. A failing entry never stops the rest.
func (p *Pipeline) ProcessFeed(ctx context.Context, src content.Source, entries []content.Entry) content.RunCounters {
	var counters content.RunCounters
	for _, entry := range entries {
		if ctx.Err() != nil {
			break
		}
		_, result, err := p.Process(ctx, src, entry)
		switch result {
		case ResultResolved:
			counters.Resolved++
		case ResultFailed:
			counters.Failed++
		case ResultSkipped:
			counters.Skipped++
		default:
			counters.Errored++
			p.logger.Error("entry processing errored",
				zap.String("feed", src.ID),
				zap.String("url", entry.Link),
				zap.Error(err),
			)
		}
	}
	return counters
}

// Process resolves one entry unless its link already has a record.
func (p *Pipeline) Process(
	ctx context.Context,
	src content.Source,
	entry content.Entry,
) (content.ResolvedContent, string, error) {
	if p.deps.Dedup.AlreadyResolved(ctx, entry.Link) {
		metrics.ObserveEntry(ResultSkipped)
		p.logger.Debug("link already resolved", zap.String("url", entry.Link))
		return content.ResolvedContent{}, ResultSkipped, nil
	}
	return p.Resolve(ctx, src, entry)
}

// Resolve runs extraction for entry regardless of existing records and saves the outcome.
// It reports ResultErrored only when the record could not be saved.
func (p *Pipeline) Resolve(
	ctx context.Context,
	src content.Source,
	entry content.Entry,
) (content.ResolvedContent, string, error) {
	start := p.deps.Clock.Now()
	rec, cause := p.build(ctx, src, entry)
	rec.ProcessingTimeSeconds = roundSeconds(p.deps.Clock.Now().Sub(start))

	result := ResultResolved
	if !rec.ExtractionSuccess {
		result = ResultFailed
		p.logger.Warn("entry recorded without extracted content",
			zap.String("url", rec.URL),
			zap.String("feed", src.ID),
			zap.Error(cause),
		)
	}

	if err := p.deps.Records.Save(ctx, rec); err != nil {
		metrics.ObserveEntry(ResultErrored)
		return rec, ResultErrored, fmt.Errorf("save record: %w", err)
	}
	if !errors.Is(cause, content.ErrInvalidURL) {
		p.deps.Graph.Project(ctx, rec)
	}
	archiveURI := p.archive(ctx, rec)
	p.publish(ctx, rec, archiveURI)

	metrics.ObserveEntry(result)
	p.logger.Info("entry processed",
		zap.String("url", rec.URL),
		zap.String("result", result),
		zap.String("extracted_by", rec.ExtractedBy),
		zap.Float64("processing_time_seconds", rec.ProcessingTimeSeconds),
	)
	return rec, result, nil
}

func (p *Pipeline) build(ctx context.Context, src content.Source, entry content.Entry) (content.ResolvedContent, error) {
	if err := download.ValidateURL(entry.Link); err != nil {
		return p.failed(src, entry, err), err
	}
	ext, err := p.deps.Extractor.Extract(ctx, entry.Link)
	if err != nil {
		return p.failed(src, entry, err), err
	}

	norm := p.deps.Normalizer.Normalize(entry.Link, ext)
	summary := ext.Summary
	if summary == "" {
		summary = extract.FallbackSummary(ext.Text)
	}
	return content.ResolvedContent{
		URL:               entry.Link,
		SourceID:          src.ID,
		Title:             firstNonEmpty(ext.Title, entry.Title),
		Text:              ext.Text,
		HTML:              ext.HTML,
		Author:            ext.Author,
		PublishedAt:       norm.PublishedAt,
		Source:            norm.Source,
		State:             norm.State,
		Region:            src.Region,
		Language:          norm.Language,
		Summary:           summary,
		Keywords:          nonNil(p.deps.NLP.Keywords(ext.Text, norm.Language)),
		Topics:            nonNil(p.deps.NLP.Topics(ext.Text, norm.Language)),
		ImageURLs:         nonNil(ext.ImageURLs),
		ExtractedBy:       ext.Strategy,
		ExtractionSuccess: true,
	}, nil
}

// failed builds the record kept when no content could be extracted. It carries the
// feed-supplied title, link and summary through the same normalization chains.
func (p *Pipeline) failed(src content.Source, entry content.Entry, cause error) content.ResolvedContent {
	summary := extract.StripMarkup(entry.Summary)
	meta := content.Extraction{
		Title:    entry.Title,
		Text:     summary,
		Language: src.Language,
	}
	if !entry.Published.IsZero() {
		meta.Date = entry.Published.UTC().Format(time.RFC3339)
	}
	norm := p.deps.Normalizer.Normalize(entry.Link, meta)
	return content.ResolvedContent{
		URL:               entry.Link,
		SourceID:          src.ID,
		Title:             entry.Title,
		PublishedAt:       norm.PublishedAt,
		Source:            norm.Source,
		State:             norm.State,
		Region:            src.Region,
		Language:          norm.Language,
		Summary:           summary,
		Keywords:          []string{},
		Topics:            []string{},
		ImageURLs:         []string{},
		ExtractionSuccess: false,
		Error:             cause.Error(),
	}
}

func (p *Pipeline) archive(ctx context.Context, rec content.ResolvedContent) string {
	if p.deps.Archiver == nil || rec.HTML == "" {
		return ""
	}
	uri, err := p.deps.Archiver.Archive(ctx, rec.URL, rec.HTML)
	if err != nil {
		p.logger.Warn("archive markup failed", zap.String("url", rec.URL), zap.Error(err))
		return ""
	}
	return uri
}

func (p *Pipeline) publish(ctx context.Context, rec content.ResolvedContent, archiveURI string) {
	if p.cfg.Topic == "" || p.deps.Publisher == nil {
		return
	}
	id, err := p.deps.Publisher.Publish(ctx, p.cfg.Topic, NewEvent(rec, archiveURI))
	if err != nil {
		p.logger.Warn("publish event failed", zap.String("url", rec.URL), zap.Error(err))
		return
	}
	p.logger.Debug("event published", zap.String("url", rec.URL), zap.String("message_id", id))
}

func roundSeconds(d time.Duration) float64 {
	if d < 0 {
		d = 0
	}
	return math.Round(d.Seconds()*100) / 100
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
