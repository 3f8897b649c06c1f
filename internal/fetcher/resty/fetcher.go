// Package restyfetcher implements content.Fetcher using go-resty.
package restyfetcher

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/JakeFAU/newsgraph/internal/content"
)

const maxRedirects = 10

// Config controls client behavior.
type Config struct {
	UserAgent string
	Timeout   time.Duration
}

// Fetcher issues GET requests through a shared resty client.
type Fetcher struct {
	cfg    Config
	client *resty.Client
}

// New builds a Fetcher.
func New(cfg Config) *Fetcher {
	client := resty.New().
		SetRedirectPolicy(resty.FlexibleRedirectPolicy(maxRedirects))
	if cfg.UserAgent != "" {
		client.SetHeader("User-Agent", cfg.UserAgent)
	}
	return &Fetcher{cfg: cfg, client: client}
}

// Fetch performs the request. Non-2xx statuses are returned as responses, not errors.
func (f *Fetcher) Fetch(ctx context.Context, request content.FetchRequest) (content.FetchResponse, error) {
	timeout := request.Timeout
	if timeout == 0 {
		timeout = f.cfg.Timeout
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	req := f.client.R().SetContext(ctx)
	for key, values := range request.Headers {
		req.Header.Del(key)
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}

	start := time.Now()
	resp, err := req.Get(request.URL)
	if err != nil {
		return content.FetchResponse{}, fmt.Errorf("resty get: %w", err)
	}

	finalURL := request.URL
	var headers http.Header
	if raw := resp.RawResponse; raw != nil {
		headers = raw.Header.Clone()
		if raw.Request != nil && raw.Request.URL != nil {
			finalURL = raw.Request.URL.String()
		}
	}
	return content.FetchResponse{
		URL:        finalURL,
		StatusCode: resp.StatusCode(),
		Headers:    headers,
		Body:       resp.Body(),
		Duration:   time.Since(start),
	}, nil
}
