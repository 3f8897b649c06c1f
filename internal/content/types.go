// Package content defines core types shared across the resolution pipeline.
package content

import (
	"net/http"
	"time"
)

// Default attribution values used when no heuristic matches.
const (
	DefaultState    = "All"
	DefaultLanguage = "en"
)

// Source is the per-feed configuration record handed to the pipeline.
type Source struct {
	ID       string `json:"id" mapstructure:"id"`
	URL      string `json:"url" mapstructure:"url"`
	Language string `json:"language" mapstructure:"language"`
	Region   string `json:"region" mapstructure:"region"`
	State    string `json:"state" mapstructure:"state"`
}

// Entry is a single item discovered while polling a feed.
type Entry struct {
	SourceID  string
	Link      string
	Title     string
	Summary   string
	Published time.Time
}

// ResolvedContent is the pipeline's output unit, keyed by URL.
type ResolvedContent struct {
	URL                   string    `json:"url"`
	SourceID              string    `json:"source_id,omitempty"`
	Title                 string    `json:"title"`
	Text                  string    `json:"text"`
	HTML                  string    `json:"html,omitempty"`
	Author                string    `json:"author"`
	PublishedAt           time.Time `json:"published_at"`
	Source                string    `json:"source"`
	State                 string    `json:"state"`
	Region                string    `json:"region,omitempty"`
	Language              string    `json:"language"`
	Summary               string    `json:"summary"`
	Keywords              []string  `json:"keywords"`
	Topics                []string  `json:"topics"`
	ImageURLs             []string  `json:"image_urls"`
	ExtractedBy           string    `json:"extracted_by,omitempty"`
	ExtractionSuccess     bool      `json:"extraction_success"`
	ProcessingTimeSeconds float64   `json:"processing_time_seconds"`
	Error                 string    `json:"error,omitempty"`
}

// RecordFilter selects stored records. Empty fields match every record; Limit <= 0
// means no limit.
type RecordFilter struct {
	SourceID string
	Language string
	Region   string
	State    string
	Limit    int
	Offset   int
}

// Matches reports whether rec satisfies every set field of f.
func (f RecordFilter) Matches(rec ResolvedContent) bool {
	return (f.SourceID == "" || rec.SourceID == f.SourceID) &&
		(f.Language == "" || rec.Language == f.Language) &&
		(f.Region == "" || rec.Region == f.Region) &&
		(f.State == "" || rec.State == f.State)
}

// RecordStats counts stored records overall and per attribution value.
// Records without a value for a dimension are left out of its breakdown.
type RecordStats struct {
	TotalRecords int            `json:"total_records"`
	Resolved     int            `json:"resolved"`
	Failed       int            `json:"failed"`
	ByLanguage   map[string]int `json:"by_language"`
	ByRegion     map[string]int `json:"by_region"`
	ByState      map[string]int `json:"by_state"`
}

// NewRecordStats returns zeroed stats with non-nil breakdowns.
func NewRecordStats() RecordStats {
	return RecordStats{
		ByLanguage: map[string]int{},
		ByRegion:   map[string]int{},
		ByState:    map[string]int{},
	}
}

// Extraction is the raw output of one extraction strategy, before normalization.
type Extraction struct {
	Title     string
	Text      string
	HTML      string
	Author    string
	Date      string
	Language  string
	Summary   string
	ImageURLs []string
	Strategy  string
}

// FetchRequest captures everything a transport needs to fetch a URL.
type FetchRequest struct {
	URL     string
	Headers http.Header
	Timeout time.Duration
}

// FetchResponse is the result returned by a Fetcher implementation.
type FetchResponse struct {
	URL        string
	StatusCode int
	Headers    http.Header
	Body       []byte
	Duration   time.Duration
}

// RawContent is the downloaded markup of a page.
type RawContent struct {
	URL         string
	FinalURL    string
	StatusCode  int
	ContentType string
	Body        []byte
	Attempts    int
}

// FeedTask is one unit of work for the worker pool: poll a feed and resolve its entries.
type FeedTask struct {
	RunID  string
	Source Source
}

// RunCounters tracks per-feed entry outcomes.
type RunCounters struct {
	Resolved int `json:"resolved"`
	Failed   int `json:"failed"`
	Skipped  int `json:"skipped"`
	Errored  int `json:"errored"`
}

// Add merges other into c.
func (c *RunCounters) Add(other RunCounters) {
	c.Resolved += other.Resolved
	c.Failed += other.Failed
	c.Skipped += other.Skipped
	c.Errored += other.Errored
}
