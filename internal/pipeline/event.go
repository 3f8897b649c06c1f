package pipeline

import (
	"time"

	"github.com/JakeFAU/newsgraph/internal/content"
)

// Event is the message published for every saved record.
type Event struct {
	URL               string    `json:"url"`
	SourceID          string    `json:"source_id,omitempty"`
	Title             string    `json:"title"`
	Source            string    `json:"source"`
	State             string    `json:"state"`
	Language          string    `json:"language"`
	PublishedAt       time.Time `json:"published_at"`
	Topics            []string  `json:"topics"`
	Keywords          []string  `json:"keywords"`
	ExtractedBy       string    `json:"extracted_by,omitempty"`
	ExtractionSuccess bool      `json:"extraction_success"`
	ArchiveURI        string    `json:"archive_uri,omitempty"`
	Error             string    `json:"error,omitempty"`
}

// NewEvent summarizes rec for subscribers.
func NewEvent(rec content.ResolvedContent, archiveURI string) Event {
	return Event{
		URL:               rec.URL,
		SourceID:          rec.SourceID,
		Title:             rec.Title,
		Source:            rec.Source,
		State:             rec.State,
		Language:          rec.Language,
		PublishedAt:       rec.PublishedAt,
		Topics:            rec.Topics,
		Keywords:          rec.Keywords,
		ExtractedBy:       rec.ExtractedBy,
		ExtractionSuccess: rec.ExtractionSuccess,
		ArchiveURI:        archiveURI,
		Error:             rec.Error,
	}
}
