package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/JakeFAU/newsgraph/internal/content"
)

// RecordStore keeps resolved records keyed by URL.
type RecordStore struct {
	mu      sync.RWMutex
	records map[string]content.ResolvedContent
}

// NewRecordStore constructs an empty RecordStore.
func NewRecordStore() *RecordStore {
	return &RecordStore{records: make(map[string]content.ResolvedContent)}
}

// Exists reports whether url has a stored record.
func (s *RecordStore) Exists(_ context.Context, url string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.records[url]
	return ok, nil
}

// Save upserts record.
func (s *RecordStore) Save(_ context.Context, record content.ResolvedContent) error {
	if record.URL == "" {
		return fmt.Errorf("record url is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[record.URL] = cloneRecord(record)
	return nil
}

// Get returns the record for url or content.ErrNotFound.
func (s *RecordStore) Get(_ context.Context, url string) (content.ResolvedContent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[url]
	if !ok {
		return content.ResolvedContent{}, content.ErrNotFound
	}
	return cloneRecord(rec), nil
}

// List returns records matching filter ordered by publication time, newest first,
// with URL as the tiebreak.
func (s *RecordStore) List(_ context.Context, filter content.RecordFilter) ([]content.ResolvedContent, error) {
	s.mu.RLock()
	out := make([]content.ResolvedContent, 0)
	for _, rec := range s.records {
		if filter.Matches(rec) {
			out = append(out, cloneRecord(rec))
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].PublishedAt.Equal(out[j].PublishedAt) {
			return out[i].PublishedAt.After(out[j].PublishedAt)
		}
		return out[i].URL < out[j].URL
	})
	if filter.Offset > 0 {
		if filter.Offset >= len(out) {
			return []content.ResolvedContent{}, nil
		}
		out = out[filter.Offset:]
	}
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// Stats counts stored records by outcome, language, region and state.
func (s *RecordStore) Stats(context.Context) (content.RecordStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stats := content.NewRecordStats()
	for _, rec := range s.records {
		stats.TotalRecords++
		if rec.ExtractionSuccess {
			stats.Resolved++
		} else {
			stats.Failed++
		}
		countNonEmpty(stats.ByLanguage, rec.Language)
		countNonEmpty(stats.ByRegion, rec.Region)
		countNonEmpty(stats.ByState, rec.State)
	}
	return stats, nil
}

func countNonEmpty(counts map[string]int, key string) {
	if key != "" {
		counts[key]++
	}
}

// Len reports the number of stored records.
func (s *RecordStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

func cloneRecord(r content.ResolvedContent) content.ResolvedContent {
	r.Keywords = cloneStrings(r.Keywords)
	r.Topics = cloneStrings(r.Topics)
	r.ImageURLs = cloneStrings(r.ImageURLs)
	return r
}

// cloneStrings keeps nil and empty slices distinct.
func cloneStrings(values []string) []string {
	if values == nil {
		return nil
	}
	out := make([]string, len(values))
	copy(out, values)
	return out
}
