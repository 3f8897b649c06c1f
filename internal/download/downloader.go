// Package download fetches page markup with bounded retries, linear backoff and per-host politeness.
package download

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/newsgraph/internal/content"
	"github.com/JakeFAU/newsgraph/internal/metrics"
)

// Default retry and timeout settings.
const (
	DefaultTimeout     = 10 * time.Second
	DefaultMaxRetries  = 3
	DefaultBackoffBase = 2 * time.Second
)

// Gate hands out per-host request slots.
type Gate interface {
	Acquire(ctx context.Context, rawURL string) (func(), error)
}

// Config controls a Downloader.
type Config struct {
	Timeout     time.Duration
	MaxRetries  int
	BackoffBase time.Duration
	UserAgent   string
	Headers     http.Header
}

// DefaultHeaders returns the browser-like accept headers sent with every request.
func DefaultHeaders() http.Header {
	return http.Header{
		"Accept":          {"text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8"},
		"Accept-Language": {"en-US,en;q=0.5"},
		"Connection":      {"keep-alive"},
	}
}

// Downloader wraps a content.Fetcher with retries.
type Downloader struct {
	fetcher content.Fetcher
	gate    Gate
	cfg     Config
	policy  *LinearRetryPolicy
	logger  *zap.Logger
	sleep   func(context.Context, time.Duration) error
}

// New builds a Downloader. gate may be nil.
func New(fetcher content.Fetcher, gate Gate, cfg Config, logger *zap.Logger) *Downloader {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.BackoffBase < 0 {
		cfg.BackoffBase = DefaultBackoffBase
	}
	if cfg.Headers == nil {
		cfg.Headers = DefaultHeaders()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Downloader{
		fetcher: fetcher,
		gate:    gate,
		cfg:     cfg,
		policy:  NewLinearRetryPolicy(cfg.MaxRetries, cfg.BackoffBase),
		logger:  logger.Named("download"),
		sleep:   sleepCtx,
	}
}

// ValidateURL rejects schemeless, non-http(s) or hostless links.
func ValidateURL(rawURL string) error {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return fmt.Errorf("%w: %v", content.ErrInvalidURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: unsupported scheme %q", content.ErrInvalidURL, u.Scheme)
	}
	if u.Hostname() == "" {
		return fmt.Errorf("%w: missing host", content.ErrInvalidURL)
	}
	return nil
}

// Fetch downloads rawURL. After the last failed attempt it returns *content.DownloadFailure.
func (d *Downloader) Fetch(ctx context.Context, rawURL string) (content.RawContent, error) {
	if err := ValidateURL(rawURL); err != nil {
		return content.RawContent{}, err
	}

	var (
		lastErr    error
		lastStatus int
	)
	for attempt := 1; ; attempt++ {
		raw, err := d.attempt(ctx, rawURL)
		if err == nil {
			raw.Attempts = attempt
			metrics.ObserveDownload(rawURL, "success", len(raw.Body))
			return raw, nil
		}
		lastErr = err
		var statusErr *content.StatusError
		if errors.As(err, &statusErr) {
			lastStatus = statusErr.StatusCode
		} else {
			lastStatus = 0
		}

		if !d.policy.ShouldRetry(ctx, err, attempt) {
			metrics.ObserveDownload(rawURL, "failure", 0)
			d.logger.Warn("download failed",
				zap.String("url", rawURL),
				zap.Int("attempts", attempt),
				zap.Error(err),
			)
			return content.RawContent{}, &content.DownloadFailure{
				URL:        rawURL,
				Attempts:   attempt,
				StatusCode: lastStatus,
				Err:        lastErr,
			}
		}

		wait := d.policy.Backoff(attempt)
		d.logger.Debug("retrying download",
			zap.String("url", rawURL),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", d.policy.MaxAttempts()),
			zap.Duration("backoff", wait),
			zap.Error(err),
		)
		metrics.ObserveDownloadRetry(rawURL)
		if err := d.sleep(ctx, wait); err != nil {
			metrics.ObserveDownload(rawURL, "canceled", 0)
			return content.RawContent{}, &content.DownloadFailure{
				URL:        rawURL,
				Attempts:   attempt,
				StatusCode: lastStatus,
				Err:        fmt.Errorf("backoff interrupted: %w", err),
			}
		}
	}
}

// attempt runs one request while holding a host slot; the slot is released before any backoff.
func (d *Downloader) attempt(ctx context.Context, rawURL string) (content.RawContent, error) {
	if d.gate != nil {
		release, err := d.gate.Acquire(ctx, rawURL)
		if err != nil {
			return content.RawContent{}, err
		}
		defer release()
	}

	attemptCtx, cancel := context.WithTimeout(ctx, d.cfg.Timeout)
	defer cancel()

	headers := d.cfg.Headers.Clone()
	if d.cfg.UserAgent != "" {
		headers.Set("User-Agent", d.cfg.UserAgent)
	}
	resp, err := d.fetcher.Fetch(attemptCtx, content.FetchRequest{
		URL:     rawURL,
		Headers: headers,
		Timeout: d.cfg.Timeout,
	})
	if err != nil {
		return content.RawContent{}, fmt.Errorf("fetch %s: %w", rawURL, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return content.RawContent{}, &content.StatusError{StatusCode: resp.StatusCode}
	}

	finalURL := resp.URL
	if finalURL == "" {
		finalURL = rawURL
	}
	return content.RawContent{
		URL:         rawURL,
		FinalURL:    finalURL,
		StatusCode:  resp.StatusCode,
		ContentType: resp.Headers.Get("Content-Type"),
		Body:        resp.Body,
	}, nil
}
