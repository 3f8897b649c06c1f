package extract

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	readability "codeberg.org/readeck/go-readability/v2"
	"go.uber.org/zap"

	"github.com/JakeFAU/newsgraph/internal/content"
)

// ReadabilityName tags records produced by the readability strategy.
const ReadabilityName = "readability"

// Readability scores candidate nodes with the Mozilla Readability algorithm.
type Readability struct {
	source     Source
	summarizer Summarizer
	logger     *zap.Logger
}

// NewReadability builds the secondary strategy. summarizer may be nil.
func NewReadability(source Source, summarizer Summarizer, logger *zap.Logger) *Readability {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Readability{source: source, summarizer: summarizer, logger: logger.Named("readability")}
}

// Name implements Strategy.
func (r *Readability) Name() string { return ReadabilityName }

// Extract implements Strategy.
func (r *Readability) Extract(ctx context.Context, rawURL string) content.Outcome {
	raw, err := r.source.Fetch(ctx, rawURL)
	if err != nil {
		return content.Failed(err)
	}
	r.logger.Debug("page downloaded",
		zap.String("url", rawURL),
		zap.Int("attempts", raw.Attempts),
		zap.String("content_type", raw.ContentType),
	)
	if !IsHTML(raw.ContentType) {
		return content.Empty(fmt.Sprintf("unsupported content type %q", raw.ContentType))
	}
	pageURL := raw.FinalURL
	if pageURL == "" {
		pageURL = rawURL
	}
	extraction, err := ParseReadability(raw.Body, pageURL)
	if err != nil {
		return content.Failed(err)
	}
	if extraction.Text == "" {
		return content.Empty("readability found no article body")
	}
	extraction.Summary = r.summarize(rawURL, extraction.Text)
	return content.Success(extraction)
}

// summarize falls back to the leading text when summarization fails.
func (r *Readability) summarize(rawURL, text string) string {
	if r.summarizer == nil {
		return FallbackSummary(text)
	}
	summary, err := r.summarizer.Summarize(text)
	if err != nil || strings.TrimSpace(summary) == "" {
		r.logger.Warn("summarization failed", zap.String("url", rawURL), zap.Error(err))
		return FallbackSummary(text)
	}
	return summary
}

// ParseReadability extracts the main article from markup.
func ParseReadability(body []byte, pageURL string) (content.Extraction, error) {
	base, err := url.Parse(pageURL)
	if err != nil {
		return content.Extraction{}, fmt.Errorf("parse page url: %w", err)
	}
	article, err := readability.FromReader(bytes.NewReader(body), base)
	if err != nil {
		return content.Extraction{}, fmt.Errorf("readability parse: %w", err)
	}
	if article.Node == nil {
		return content.Extraction{HTML: string(body)}, nil
	}

	var text bytes.Buffer
	if err := article.RenderText(&text); err != nil {
		return content.Extraction{}, fmt.Errorf("render text: %w", err)
	}

	extraction := content.Extraction{
		Title:    CleanText(article.Title()),
		Text:     CleanText(text.String()),
		HTML:     string(body),
		Author:   CleanText(article.Byline()),
		Language: article.Language(),
		Summary:  StripMarkup(article.Excerpt()),
	}
	if published, err := article.PublishedTime(); err == nil && !published.IsZero() {
		extraction.Date = published.Format(time.RFC3339)
	}
	if img := strings.TrimSpace(article.ImageURL()); img != "" {
		extraction.ImageURLs = []string{img}
	}
	return extraction, nil
}
