// Package graph projects resolved records into a node/relationship graph and answers
// discovery queries over it.
package graph

import (
	"context"
	"time"

	"github.com/JakeFAU/newsgraph/internal/content"
)

// SearchLimit caps search results.
const SearchLimit = 100

// Relationship names between a Feed node and its neighbors.
const (
	RelPublishedBy = "PUBLISHED_BY"
	RelBelongsTo   = "BELONGS_TO"
	RelWrittenIn   = "WRITTEN_IN"
	RelCovers      = "COVERS"
	RelTaggedWith  = "TAGGED_WITH"
)

// FeedNode is the upsert payload: the Feed node's attributes and its neighbor keys.
type FeedNode struct {
	URL         string
	Title       string
	Summary     string
	Content     string
	Author      string
	PublishedAt time.Time
	Source      string
	State       string
	Language    string
	Topics      []string
	Keywords    []string
}

// FromRecord maps a resolved record to its graph projection.
func FromRecord(rec content.ResolvedContent) FeedNode {
	return FeedNode{
		URL:         rec.URL,
		Title:       rec.Title,
		Summary:     rec.Summary,
		Content:     rec.Text,
		Author:      rec.Author,
		PublishedAt: rec.PublishedAt,
		Source:      rec.Source,
		State:       rec.State,
		Language:    rec.Language,
		Topics:      rec.Topics,
		Keywords:    rec.Keywords,
	}
}

// RelatedQuery asks for feeds sharing topics or keywords with URL.
type RelatedQuery struct {
	URL   string
	Limit int
}

// RelatedFeed is one row of a related query.
type RelatedFeed struct {
	URL              string    `json:"url"`
	Title            string    `json:"title"`
	Summary          string    `json:"summary"`
	PublishedAt      time.Time `json:"published_at"`
	Source           string    `json:"source"`
	SharedTopicCount int       `json:"shared_topic_count"`
}

// TrendingQuery counts topic mentions by feeds published at or after Since.
type TrendingQuery struct {
	Since time.Time
	Limit int
}

// TopicCount is one row of a trending query.
type TopicCount struct {
	Topic     string `json:"topic"`
	Frequency int    `json:"frequency"`
}

// Filters narrow a search. Empty fields do not filter.
type Filters struct {
	Source   string     `json:"source,omitempty"`
	State    string     `json:"state,omitempty"`
	Language string     `json:"language,omitempty"`
	DateFrom *time.Time `json:"date_from,omitempty"`
	DateTo   *time.Time `json:"date_to,omitempty"`
}

// SearchQuery is a case-insensitive substring search over title and content.
type SearchQuery struct {
	Text    string
	Filters Filters
	Limit   int
}

// FeedSummary is one row of a search query.
type FeedSummary struct {
	URL         string    `json:"url"`
	Title       string    `json:"title"`
	Summary     string    `json:"summary"`
	PublishedAt time.Time `json:"published_at"`
	Source      string    `json:"source"`
}

// Stats aggregates the whole graph.
type Stats struct {
	TotalFeeds        int        `json:"total_feeds"`
	TotalSources      int        `json:"total_sources"`
	TotalStates       int        `json:"total_states"`
	TotalLanguages    int        `json:"total_languages"`
	LatestPublishedAt *time.Time `json:"latest_published_at"`
}

// Store persists the graph. Upsert must be idempotent per URL.
type Store interface {
	Upsert(ctx context.Context, node FeedNode) error
	Related(ctx context.Context, q RelatedQuery) ([]RelatedFeed, error)
	Trending(ctx context.Context, q TrendingQuery) ([]TopicCount, error)
	Search(ctx context.Context, q SearchQuery) ([]FeedSummary, error)
	Stats(ctx context.Context) (Stats, error)
}
