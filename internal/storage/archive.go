// Package storage archives raw page markup in a blob store.
package storage

import (
	"context"
	"fmt"
	"path"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/newsgraph/internal/content"
	"github.com/JakeFAU/newsgraph/internal/logging"
)

// HTMLContentType is the content type of archived markup.
const HTMLContentType = "text/html; charset=utf-8"

// KeyFunc maps a URL to its object name.
type KeyFunc func(url string) string

// Archiver writes resolved markup to a content.BlobStore under a stable key.
type Archiver struct {
	store  content.BlobStore
	key    KeyFunc
	prefix string
	logger *zap.Logger
}

// NewArchiver builds an Archiver. A nil store disables archiving.
func NewArchiver(store content.BlobStore, key KeyFunc, prefix string, logger *zap.Logger) *Archiver {
	return &Archiver{
		store:  store,
		key:    key,
		prefix: strings.Trim(prefix, "/"),
		logger: logging.OrNop(logger).Named("archive"),
	}
}

// ObjectPath returns "<prefix>/<key>.html".
func (a *Archiver) ObjectPath(url string) string {
	name := a.key(url) + ".html"
	if a.prefix == "" {
		return name
	}
	return path.Join(a.prefix, name)
}

// Archive stores html for url and returns the object URI. Empty markup is skipped.
func (a *Archiver) Archive(ctx context.Context, url, html string) (string, error) {
	if a == nil || a.store == nil || strings.TrimSpace(html) == "" {
		return "", nil
	}
	objectPath := a.ObjectPath(url)
	uri, err := a.store.PutObject(ctx, objectPath, HTMLContentType, strings.NewReader(html))
	if err != nil {
		return "", fmt.Errorf("archive %s: %w", objectPath, err)
	}
	a.logger.Debug("archived markup", zap.String("url", url), zap.String("uri", uri))
	return uri, nil
}
