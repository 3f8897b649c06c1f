// Package feed polls RSS and Atom feeds and turns their items into pipeline entries.
package feed

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
	"go.uber.org/zap"

	"github.com/JakeFAU/newsgraph/internal/content"
	"github.com/JakeFAU/newsgraph/internal/logging"
)

// Downloader fetches the raw feed document.
type Downloader interface {
	Fetch(ctx context.Context, url string) (content.RawContent, error)
}

// Poller downloads and parses one feed at a time.
type Poller struct {
	downloader Downloader
	blocked    *HostBlocklist
	logger     *zap.Logger
}

// NewPoller constructs a Poller.
func NewPoller(downloader Downloader, logger *zap.Logger) *Poller {
	return &Poller{
		downloader: downloader,
		logger:     logging.OrNop(logger).Named("feed"),
	}
}

// WithBlocklist drops entries whose link host matches b.
func (p *Poller) WithBlocklist(b *HostBlocklist) *Poller {
	p.blocked = b
	return p
}

// Poll fetches src.URL and returns its entries in document order.
func (p *Poller) Poll(ctx context.Context, src content.Source) ([]content.Entry, error) {
	raw, err := p.downloader.Fetch(ctx, src.URL)
	if err != nil {
		return nil, fmt.Errorf("fetch feed %s: %w", src.ID, err)
	}
	parsed, err := gofeed.NewParser().Parse(bytes.NewReader(raw.Body))
	if err != nil {
		return nil, fmt.Errorf("parse feed %s: %w", src.ID, err)
	}
	entries := Entries(src, parsed)
	kept := entries[:0]
	for _, e := range entries {
		if p.blocked.BlocksLink(e.Link) {
			continue
		}
		kept = append(kept, e)
	}
	p.logger.Info("feed polled",
		zap.String("feed", src.ID),
		zap.String("title", parsed.Title),
		zap.Int("items", len(parsed.Items)),
		zap.Int("entries", len(kept)),
		zap.Int("blocked", len(entries)-len(kept)),
	)
	return kept, nil
}

// Entries maps feed items to entries. Items without a link are dropped.
func Entries(src content.Source, parsed *gofeed.Feed) []content.Entry {
	if parsed == nil {
		return nil
	}
	entries := make([]content.Entry, 0, len(parsed.Items))
	for _, item := range parsed.Items {
		if item == nil {
			continue
		}
		link := strings.TrimSpace(item.Link)
		if link == "" {
			continue
		}
		entries = append(entries, content.Entry{
			SourceID:  src.ID,
			Link:      link,
			Title:     strings.TrimSpace(item.Title),
			Summary:   item.Description,
			Published: published(item),
		})
	}
	return entries
}

func published(item *gofeed.Item) time.Time {
	switch {
	case item.PublishedParsed != nil:
		return item.PublishedParsed.UTC()
	case item.UpdatedParsed != nil:
		return item.UpdatedParsed.UTC()
	default:
		return time.Time{}
	}
}
