package content

import (
	"context"
	"io"
	"time"
)

// Fetcher fetches a URL and returns the body plus metadata.
type Fetcher interface {
	Fetch(ctx context.Context, request FetchRequest) (FetchResponse, error)
}

// RecordStore persists resolved records. It is the authority for deduplication.
type RecordStore interface {
	Exists(ctx context.Context, url string) (bool, error)
	Save(ctx context.Context, record ResolvedContent) error
	Get(ctx context.Context, url string) (ResolvedContent, error)
	// List returns matching records, newest first.
	List(ctx context.Context, filter RecordFilter) ([]ResolvedContent, error)
	Stats(ctx context.Context) (RecordStats, error)
}

// BlobStore writes raw artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// Publisher pushes resolution events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Queue provides enqueue/dequeue semantics for feed tasks.
type Queue interface {
	Enqueue(ctx context.Context, task FeedTask) error
	Dequeue(ctx context.Context) (FeedTask, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run IDs.
type IDGenerator interface {
	NewID() (string, error)
}
