// Package dedup gates resolution on whether a URL already has a record.
package dedup

import (
	"context"

	"go.uber.org/zap"
)

// ExistenceChecker reports whether a record for url exists.
type ExistenceChecker interface {
	Exists(ctx context.Context, url string) (bool, error)
}

// Deduplicator consults the record store before any download happens.
type Deduplicator struct {
	store  ExistenceChecker
	logger *zap.Logger
}

// New builds a Deduplicator.
func New(store ExistenceChecker, logger *zap.Logger) *Deduplicator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Deduplicator{store: store, logger: logger.Named("dedup")}
}

// AlreadyResolved reports whether url was resolved before. A failing store check
// counts as not resolved so new content is never dropped.
func (d *Deduplicator) AlreadyResolved(ctx context.Context, url string) bool {
	exists, err := d.store.Exists(ctx, url)
	if err != nil {
		d.logger.Warn("existence check failed; treating link as new",
			zap.String("url", url),
			zap.Error(err),
		)
		return false
	}
	return exists
}
