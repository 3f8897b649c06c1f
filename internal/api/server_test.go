package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/newsgraph/internal/content"
	"github.com/JakeFAU/newsgraph/internal/graph"
	graphmemory "github.com/JakeFAU/newsgraph/internal/graph/memory"
	storememory "github.com/JakeFAU/newsgraph/internal/storage/memory"
)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

// recordingGraph captures the arguments each query received.
type recordingGraph struct {
	mu       sync.Mutex
	url      string
	limit    int
	days     int
	query    string
	filters  graph.Filters
	related  []graph.RelatedFeed
	trending []graph.TopicCount
	stats    graph.Stats
}

func (g *recordingGraph) RelatedFeeds(_ context.Context, url string, limit int) []graph.RelatedFeed {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.url, g.limit = url, limit
	return g.related
}

func (g *recordingGraph) TrendingTopics(_ context.Context, days, limit int) []graph.TopicCount {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.days, g.limit = days, limit
	return g.trending
}

func (g *recordingGraph) SearchFeeds(_ context.Context, query string, filters graph.Filters) []graph.FeedSummary {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.query, g.filters = query, filters
	return nil
}

func (g *recordingGraph) FeedStats(context.Context) graph.Stats { return g.stats }

type brokenRecords struct{}

func (brokenRecords) Get(context.Context, string) (content.ResolvedContent, error) {
	return content.ResolvedContent{}, errors.New("connection reset")
}

func (brokenRecords) List(context.Context, content.RecordFilter) ([]content.ResolvedContent, error) {
	return nil, errors.New("connection reset")
}

func (brokenRecords) Stats(context.Context) (content.RecordStats, error) {
	return content.RecordStats{}, errors.New("connection reset")
}

func serve(t *testing.T, s *Server, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestServer_Probes(t *testing.T) {
	t.Parallel()

	s := NewServer(&recordingGraph{}, storememory.NewRecordStore(), nil, Config{}, zap.NewNop())

	rec := serve(t, s, "/healthz")
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	rec = serve(t, s, "/readyz")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = serve(t, s, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestServer_RelatedDefaultsAndValidation(t *testing.T) {
	t.Parallel()

	g := &recordingGraph{related: []graph.RelatedFeed{{URL: "https://b", SharedTopicCount: 2}}}
	s := NewServer(g, nil, nil, Config{}, nil)

	rec := serve(t, s, "/v1/feeds/related?url=https://a")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "https://a", g.url)
	require.Equal(t, 5, g.limit)

	var body struct {
		Feeds []graph.RelatedFeed `json:"feeds"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Feeds, 1)
	require.Equal(t, 2, body.Feeds[0].SharedTopicCount)

	rec = serve(t, s, "/v1/feeds/related?url=https://a&limit=1000")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, graph.SearchLimit, g.limit)

	require.Equal(t, http.StatusBadRequest, serve(t, s, "/v1/feeds/related").Code)
	require.Equal(t, http.StatusBadRequest, serve(t, s, "/v1/feeds/related?url=x&limit=0").Code)
	require.Equal(t, http.StatusBadRequest, serve(t, s, "/v1/feeds/related?url=x&limit=abc").Code)
}

func TestServer_TrendingDefaults(t *testing.T) {
	t.Parallel()

	g := &recordingGraph{}
	s := NewServer(g, nil, nil, Config{}, nil)

	rec := serve(t, s, "/v1/topics/trending")
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"topics":[]}`, rec.Body.String())
	require.Equal(t, 7, g.days)
	require.Equal(t, 10, g.limit)

	rec = serve(t, s, "/v1/topics/trending?days=1&limit=3")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, 1, g.days)
	require.Equal(t, 3, g.limit)

	require.Equal(t, http.StatusBadRequest, serve(t, s, "/v1/topics/trending?days=-2").Code)
}

func TestServer_SearchFilters(t *testing.T) {
	t.Parallel()

	g := &recordingGraph{}
	s := NewServer(g, nil, nil, Config{}, nil)

	rec := serve(t, s, "/v1/feeds/search?q=flood&source=The+Hindu&state=Kerala&language=ml"+
		"&date_from=2024-05-01&date_to=2024-05-31T23:59:59Z")
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"feeds":[]}`, rec.Body.String())
	require.Equal(t, "flood", g.query)
	require.Equal(t, "The Hindu", g.filters.Source)
	require.Equal(t, "Kerala", g.filters.State)
	require.Equal(t, "ml", g.filters.Language)
	require.NotNil(t, g.filters.DateFrom)
	require.Equal(t, time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC), *g.filters.DateFrom)
	require.NotNil(t, g.filters.DateTo)
	require.Equal(t, time.Date(2024, 5, 31, 23, 59, 59, 0, time.UTC), *g.filters.DateTo)

	rec = serve(t, s, "/v1/feeds/search?date_from=not-a-date")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "invalid date_from")
}

func TestServer_StatsOverMemoryGraph(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	engine := graph.NewEngine(graphmemory.NewStore(), fixedClock{now: now}, nil)
	ctx := context.Background()
	require.True(t, engine.Project(ctx, content.ResolvedContent{
		URL: "https://www.thehindu.com/a", Title: "Floods", Source: "The Hindu", State: "Kerala",
		Language: "en", Topics: []string{"Kochi"}, PublishedAt: now.Add(-time.Hour),
	}))
	require.True(t, engine.Project(ctx, content.ResolvedContent{
		URL: "https://www.dinamalar.com/b", Title: "Rain", Source: "Dinamalar", State: "Tamil Nadu",
		Language: "ta", Topics: []string{"Chennai"}, PublishedAt: now.Add(-2 * time.Hour),
	}))

	s := NewServer(engine, nil, nil, Config{}, nil)
	rec := serve(t, s, "/v1/stats")
	require.Equal(t, http.StatusOK, rec.Code)

	var stats graph.Stats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	require.Equal(t, 2, stats.TotalFeeds)
	require.Equal(t, 2, stats.TotalSources)
	require.Equal(t, 2, stats.TotalStates)
	require.Equal(t, 2, stats.TotalLanguages)
	require.NotNil(t, stats.LatestPublishedAt)
	require.True(t, now.Add(-time.Hour).Equal(*stats.LatestPublishedAt))
	require.NotContains(t, rec.Body.String(), `"records"`)
}

func TestServer_StatsIncludesRecordBreakdown(t *testing.T) {
	t.Parallel()

	records := storememory.NewRecordStore()
	ctx := context.Background()
	for _, r := range []content.ResolvedContent{
		{URL: "https://thehindu.com/a", Language: "en", Region: "south", State: "Kerala", ExtractionSuccess: true},
		{URL: "https://dinamalar.com/b", Language: "ta", Region: "south", State: "Tamil Nadu"},
	} {
		require.NoError(t, records.Save(ctx, r))
	}
	s := NewServer(&recordingGraph{stats: graph.Stats{TotalFeeds: 2}}, records, nil, Config{}, nil)

	rec := serve(t, s, "/v1/stats")
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		TotalFeeds int                  `json:"total_feeds"`
		Records    *content.RecordStats `json:"records"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, 2, body.TotalFeeds)
	require.NotNil(t, body.Records)
	require.Equal(t, 2, body.Records.TotalRecords)
	require.Equal(t, 1, body.Records.Failed)
	require.Equal(t, map[string]int{"en": 1, "ta": 1}, body.Records.ByLanguage)
	require.Equal(t, map[string]int{"south": 2}, body.Records.ByRegion)
	require.Equal(t, map[string]int{"Kerala": 1, "Tamil Nadu": 1}, body.Records.ByState)

	broken := NewServer(&recordingGraph{stats: graph.Stats{TotalFeeds: 2}}, brokenRecords{}, nil, Config{}, nil)
	rec = serve(t, broken, "/v1/stats")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotContains(t, rec.Body.String(), `"records"`)
}

func TestServer_RecordListing(t *testing.T) {
	t.Parallel()

	records := storememory.NewRecordStore()
	ctx := context.Background()
	day := func(d int) time.Time { return time.Date(2024, 5, d, 0, 0, 0, 0, time.UTC) }
	for _, r := range []content.ResolvedContent{
		{URL: "https://thehindu.com/a", SourceID: "thehindu", Language: "en", Region: "south", State: "Kerala", PublishedAt: day(1), HTML: "<p>a</p>"},
		{URL: "https://thehindu.com/b", SourceID: "thehindu", Language: "en", Region: "south", State: "Kerala", PublishedAt: day(3), HTML: "<p>b</p>"},
		{URL: "https://dinamalar.com/c", SourceID: "dinamalar", Language: "ta", Region: "south", State: "Tamil Nadu", PublishedAt: day(2)},
	} {
		require.NoError(t, records.Save(ctx, r))
	}
	s := NewServer(&recordingGraph{}, records, nil, Config{}, nil)

	list := func(target string) []content.ResolvedContent {
		t.Helper()
		rec := serve(t, s, target)
		require.Equal(t, http.StatusOK, rec.Code)
		require.NotContains(t, rec.Body.String(), "<p>")
		var body struct {
			Records []content.ResolvedContent `json:"records"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		require.NotNil(t, body.Records)
		return body.Records
	}

	all := list("/v1/records")
	require.Len(t, all, 3)
	require.Equal(t, "https://thehindu.com/b", all[0].URL)

	hindu := list("/v1/records?source_id=thehindu&state=Kerala")
	require.Len(t, hindu, 2)

	tamil := list("/v1/records?language=ta&region=south")
	require.Len(t, tamil, 1)
	require.Equal(t, "https://dinamalar.com/c", tamil[0].URL)

	paged := list("/v1/records?limit=1&offset=1")
	require.Len(t, paged, 1)
	require.Equal(t, "https://dinamalar.com/c", paged[0].URL)

	require.Empty(t, list("/v1/records?state=Goa"))

	require.Equal(t, http.StatusBadRequest, serve(t, s, "/v1/records?limit=0").Code)
	require.Equal(t, http.StatusBadRequest, serve(t, s, "/v1/records?offset=-1").Code)

	broken := NewServer(&recordingGraph{}, brokenRecords{}, nil, Config{}, nil)
	require.Equal(t, http.StatusInternalServerError, serve(t, broken, "/v1/records").Code)
}

func TestServer_Records(t *testing.T) {
	t.Parallel()

	records := storememory.NewRecordStore()
	require.NoError(t, records.Save(context.Background(), content.ResolvedContent{
		URL:   "https://example.com/bad",
		Title: "Broken",
		HTML:  "<html></html>",
		Error: "content extraction failed with all strategies",
	}))
	s := NewServer(&recordingGraph{}, records, nil, Config{}, nil)

	rec := serve(t, s, "/v1/records?url=https://example.com/bad")
	require.Equal(t, http.StatusOK, rec.Code)
	var got content.ResolvedContent
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.False(t, got.ExtractionSuccess)
	require.Equal(t, "content extraction failed with all strategies", got.Error)
	require.Empty(t, got.HTML)

	require.Equal(t, http.StatusNotFound, serve(t, s, "/v1/records?url=https://example.com/missing").Code)

	broken := NewServer(&recordingGraph{}, brokenRecords{}, nil, Config{}, nil)
	require.Equal(t, http.StatusInternalServerError, serve(t, broken, "/v1/records?url=x").Code)

	missing := NewServer(&recordingGraph{}, nil, nil, Config{}, nil)
	require.Equal(t, http.StatusServiceUnavailable, serve(t, missing, "/v1/records?url=x").Code)
}

func TestServer_SourcesSortedByID(t *testing.T) {
	t.Parallel()

	sources := map[string]content.Source{
		"thehindu":  {ID: "thehindu", URL: "https://www.thehindu.com/feeder/default.rss", Language: "en"},
		"dinamalar": {ID: "dinamalar", URL: "https://www.dinamalar.com/rss", Language: "ta", State: "Tamil Nadu"},
	}
	s := NewServer(&recordingGraph{}, nil, sources, Config{}, nil)

	rec := serve(t, s, "/v1/sources")
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Sources []content.Source `json:"sources"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Sources, 2)
	require.Equal(t, "dinamalar", body.Sources[0].ID)
	require.Equal(t, "thehindu", body.Sources[1].ID)
}

func TestServer_APIKey(t *testing.T) {
	t.Parallel()

	s := NewServer(&recordingGraph{}, nil, nil, Config{APIKey: "k"}, nil)
	require.Equal(t, http.StatusForbidden, serve(t, s, "/v1/stats").Code)
	require.Equal(t, http.StatusOK, serve(t, s, "/v1/stats?api_key=k").Code)
	require.Equal(t, http.StatusOK, serve(t, s, "/healthz").Code)
}
