package content

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidURL marks a malformed or schemeless link. It is never retried.
	ErrInvalidURL = errors.New("invalid url")
	// ErrBothStrategiesFailed is returned when no extraction strategy produced text.
	ErrBothStrategiesFailed = errors.New("content extraction failed with all strategies")
	// ErrQueueClosed is returned by queues after Close once drained.
	ErrQueueClosed = errors.New("queue closed")
	// ErrNotFound is returned by stores when a record does not exist.
	ErrNotFound = errors.New("not found")
)

// DownloadFailure is returned by the Downloader once every attempt has failed.
type DownloadFailure struct {
	URL        string
	Attempts   int
	StatusCode int
	Err        error
}

func (e *DownloadFailure) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("download %s failed after %d attempt(s): status %d", e.URL, e.Attempts, e.StatusCode)
	}
	return fmt.Sprintf("download %s failed after %d attempt(s): %v", e.URL, e.Attempts, e.Err)
}

func (e *DownloadFailure) Unwrap() error {
	return e.Err
}

// StatusError reports a non-2xx HTTP response.
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d", e.StatusCode)
}
