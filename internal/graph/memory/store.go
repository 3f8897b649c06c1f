// Package memory provides an in-process graph.Store.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/JakeFAU/newsgraph/internal/graph"
)

// Store keeps nodes and edges in maps guarded by a RWMutex.
type Store struct {
	mu        sync.RWMutex
	feeds     map[string]*feed
	sources   map[string]struct{}
	states    map[string]struct{}
	languages map[string]struct{}
	topics    map[string]struct{}
	keywords  map[string]struct{}
}

type feed struct {
	node graph.FeedNode
	// edges holds relationship name -> neighbor key set.
	edges map[string]map[string]struct{}
}

// NewStore builds an empty Store.
func NewStore() *Store {
	return &Store{
		feeds:     make(map[string]*feed),
		sources:   make(map[string]struct{}),
		states:    make(map[string]struct{}),
		languages: make(map[string]struct{}),
		topics:    make(map[string]struct{}),
		keywords:  make(map[string]struct{}),
	}
}

// Upsert merges the feed node, its neighbor nodes and edges.
func (s *Store) Upsert(_ context.Context, node graph.FeedNode) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, ok := s.feeds[node.URL]
	if !ok {
		f = &feed{edges: make(map[string]map[string]struct{})}
		s.feeds[node.URL] = f
	}
	f.node = node
	f.node.Topics, f.node.Keywords = nil, nil

	s.link(f, graph.RelPublishedBy, s.sources, node.Source)
	s.link(f, graph.RelBelongsTo, s.states, node.State)
	s.link(f, graph.RelWrittenIn, s.languages, node.Language)
	for _, t := range node.Topics {
		s.link(f, graph.RelCovers, s.topics, t)
	}
	for _, k := range node.Keywords {
		s.link(f, graph.RelTaggedWith, s.keywords, k)
	}
	return nil
}

func (s *Store) link(f *feed, rel string, nodes map[string]struct{}, key string) {
	if key == "" {
		return
	}
	nodes[key] = struct{}{}
	if f.edges[rel] == nil {
		f.edges[rel] = make(map[string]struct{})
	}
	f.edges[rel][key] = struct{}{}
}

// Related counts distinct shared Topic and Keyword nodes per other feed.
func (s *Store) Related(_ context.Context, q graph.RelatedQuery) ([]graph.RelatedFeed, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	origin, ok := s.feeds[q.URL]
	if !ok || q.Limit <= 0 {
		return []graph.RelatedFeed{}, nil
	}
	var rows []graph.RelatedFeed
	for url, candidate := range s.feeds {
		if url == q.URL {
			continue
		}
		shared := overlap(origin.edges[graph.RelCovers], candidate.edges[graph.RelCovers]) +
			overlap(origin.edges[graph.RelTaggedWith], candidate.edges[graph.RelTaggedWith])
		if shared == 0 {
			continue
		}
		rows = append(rows, graph.RelatedFeed{
			URL:              url,
			Title:            candidate.node.Title,
			Summary:          candidate.node.Summary,
			PublishedAt:      candidate.node.PublishedAt,
			Source:           candidate.node.Source,
			SharedTopicCount: shared,
		})
	}
	sort.Slice(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if a.SharedTopicCount != b.SharedTopicCount {
			return a.SharedTopicCount > b.SharedTopicCount
		}
		if !a.PublishedAt.Equal(b.PublishedAt) {
			return a.PublishedAt.After(b.PublishedAt)
		}
		return a.URL < b.URL
	})
	if len(rows) > q.Limit {
		rows = rows[:q.Limit]
	}
	if rows == nil {
		rows = []graph.RelatedFeed{}
	}
	return rows, nil
}

func overlap(a, b map[string]struct{}) int {
	if len(a) > len(b) {
		a, b = b, a
	}
	n := 0
	for k := range a {
		if _, ok := b[k]; ok {
			n++
		}
	}
	return n
}

// Trending counts Feed->Topic edges of feeds published at or after q.Since.
func (s *Store) Trending(_ context.Context, q graph.TrendingQuery) ([]graph.TopicCount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[string]int)
	for _, f := range s.feeds {
		if f.node.PublishedAt.Before(q.Since) {
			continue
		}
		for topic := range f.edges[graph.RelCovers] {
			counts[topic]++
		}
	}
	rows := make([]graph.TopicCount, 0, len(counts))
	for topic, n := range counts {
		rows = append(rows, graph.TopicCount{Topic: topic, Frequency: n})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Frequency != rows[j].Frequency {
			return rows[i].Frequency > rows[j].Frequency
		}
		return rows[i].Topic < rows[j].Topic
	})
	if q.Limit > 0 && len(rows) > q.Limit {
		rows = rows[:q.Limit]
	}
	return rows, nil
}

// Search matches title or content case-insensitively with all filters ANDed.
func (s *Store) Search(_ context.Context, q graph.SearchQuery) ([]graph.FeedSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	needle := strings.ToLower(q.Text)
	rows := []graph.FeedSummary{}
	for _, f := range s.feeds {
		if !strings.Contains(strings.ToLower(f.node.Title), needle) &&
			!strings.Contains(strings.ToLower(f.node.Content), needle) {
			continue
		}
		if !matches(f, q.Filters) {
			continue
		}
		rows = append(rows, graph.FeedSummary{
			URL:         f.node.URL,
			Title:       f.node.Title,
			Summary:     f.node.Summary,
			PublishedAt: f.node.PublishedAt,
			Source:      f.node.Source,
		})
	}
	sort.Slice(rows, func(i, j int) bool {
		if !rows[i].PublishedAt.Equal(rows[j].PublishedAt) {
			return rows[i].PublishedAt.After(rows[j].PublishedAt)
		}
		return rows[i].URL < rows[j].URL
	})
	limit := q.Limit
	if limit <= 0 || limit > graph.SearchLimit {
		limit = graph.SearchLimit
	}
	if len(rows) > limit {
		rows = rows[:limit]
	}
	return rows, nil
}

func matches(f *feed, filters graph.Filters) bool {
	if !hasEdge(f, graph.RelPublishedBy, filters.Source) ||
		!hasEdge(f, graph.RelBelongsTo, filters.State) ||
		!hasEdge(f, graph.RelWrittenIn, filters.Language) {
		return false
	}
	if filters.DateFrom != nil && f.node.PublishedAt.Before(*filters.DateFrom) {
		return false
	}
	if filters.DateTo != nil && f.node.PublishedAt.After(*filters.DateTo) {
		return false
	}
	return true
}

func hasEdge(f *feed, rel, key string) bool {
	if key == "" {
		return true
	}
	_, ok := f.edges[rel][key]
	return ok
}

// Stats counts distinct nodes and the latest publish date.
func (s *Store) Stats(_ context.Context) (graph.Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := graph.Stats{
		TotalFeeds:     len(s.feeds),
		TotalSources:   len(s.sources),
		TotalStates:    len(s.states),
		TotalLanguages: len(s.languages),
	}
	var latest time.Time
	for _, f := range s.feeds {
		if f.node.PublishedAt.After(latest) {
			latest = f.node.PublishedAt
		}
	}
	if !latest.IsZero() {
		stats.LatestPublishedAt = &latest
	}
	return stats, nil
}
