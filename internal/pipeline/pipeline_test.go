package pipeline_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/newsgraph/internal/content"
	"github.com/JakeFAU/newsgraph/internal/dedup"
	"github.com/JakeFAU/newsgraph/internal/graph"
	graphmemory "github.com/JakeFAU/newsgraph/internal/graph/memory"
	"github.com/JakeFAU/newsgraph/internal/normalize"
	"github.com/JakeFAU/newsgraph/internal/pipeline"
	pubmemory "github.com/JakeFAU/newsgraph/internal/publisher/memory"
	"github.com/JakeFAU/newsgraph/internal/storage"
	storememory "github.com/JakeFAU/newsgraph/internal/storage/memory"
)

var baseTime = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

// stepClock advances by step on every call.
type stepClock struct {
	mu   sync.Mutex
	now  time.Time
	step time.Duration
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now
	c.now = c.now.Add(c.step)
	return now
}

type fakeExtractor struct {
	mu      sync.Mutex
	results map[string]content.Extraction
	calls   []string
}

func (f *fakeExtractor) Extract(_ context.Context, url string) (content.Extraction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, url)
	ext, ok := f.results[url]
	if !ok {
		return content.Extraction{}, fmt.Errorf("%w: structural: empty", content.ErrBothStrategiesFailed)
	}
	return ext, nil
}

type fakeNLP struct{}

func (fakeNLP) Keywords(text, _ string) []string {
	if text == "" {
		return nil
	}
	return []string{"monsoon", "rain"}
}

func (fakeNLP) Topics(text, _ string) []string {
	if text == "" {
		return nil
	}
	return []string{"Kerala"}
}

type failingRecords struct {
	*storememory.RecordStore
}

func (failingRecords) Save(context.Context, content.ResolvedContent) error {
	return errors.New("disk full")
}

type harness struct {
	pipeline  *pipeline.Pipeline
	extractor *fakeExtractor
	records   *storememory.RecordStore
	graph     *graph.Engine
	blobs     *storememory.BlobStore
	publisher *pubmemory.Publisher
}

func newHarness(t *testing.T, records content.RecordStore) *harness {
	t.Helper()

	tables, err := normalize.DefaultTables()
	require.NoError(t, err)
	clock := &stepClock{now: baseTime, step: 1234 * time.Millisecond}

	mem := storememory.NewRecordStore()
	if records == nil {
		records = mem
	}
	extractor := &fakeExtractor{results: map[string]content.Extraction{}}
	engine := graph.NewEngine(graphmemory.NewStore(), clock, nil)
	blobs := storememory.NewBlobStore()
	pub := pubmemory.New()

	p, err := pipeline.New(pipeline.Deps{
		Dedup:      dedup.New(records, nil),
		Extractor:  extractor,
		Normalizer: normalize.New(tables, clock),
		NLP:        fakeNLP{},
		Records:    records,
		Graph:      engine,
		Archiver:   storage.NewArchiver(blobs, func(string) string { return "key" }, "raw", nil),
		Publisher:  pub,
		Clock:      clock,
	}, pipeline.Config{Topic: "resolved"}, nil)
	require.NoError(t, err)

	return &harness{
		pipeline:  p,
		extractor: extractor,
		records:   mem,
		graph:     engine,
		blobs:     blobs,
		publisher: pub,
	}
}

func TestProcessResolvesAndProjects(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	link := "https://www.dinamalar.com/news/story-1"
	h.extractor.results[link] = content.Extraction{
		Title:    "Extracted title",
		Text:     "Heavy rain lashed the coast.",
		HTML:     `<html><head><meta property="article:published_time" content="2024-04-30T08:00:00Z"></head></html>`,
		Author:   "Staff",
		Language: "ta-IN",
		Strategy: "structural",
	}

	src := content.Source{ID: "dinamalar", Language: "ta", Region: "south"}
	rec, result, err := h.pipeline.Process(context.Background(), src, content.Entry{
		SourceID: "dinamalar",
		Link:     link,
		Title:    "Feed title",
	})
	require.NoError(t, err)
	require.Equal(t, pipeline.ResultResolved, result)

	require.True(t, rec.ExtractionSuccess)
	require.Equal(t, "Extracted title", rec.Title)
	require.Equal(t, "Dinamalar", rec.Source)
	require.Equal(t, "Tamil Nadu", rec.State)
	require.Equal(t, "south", rec.Region)
	require.Equal(t, "ta", rec.Language)
	require.Equal(t, time.Date(2024, 4, 30, 8, 0, 0, 0, time.UTC), rec.PublishedAt)
	require.Equal(t, "structural", rec.ExtractedBy)
	require.Equal(t, "Heavy rain lashed the coast....", rec.Summary)
	require.Equal(t, []string{"monsoon", "rain"}, rec.Keywords)
	require.Equal(t, []string{"Kerala"}, rec.Topics)
	require.InDelta(t, 1.23, rec.ProcessingTimeSeconds, 1e-9)

	stored, err := h.records.Get(context.Background(), link)
	require.NoError(t, err)
	require.Equal(t, rec.Title, stored.Title)

	stats := h.graph.FeedStats(context.Background())
	require.Equal(t, 1, stats.TotalFeeds)

	_, _, ok := h.blobs.Object("raw/key.html")
	require.True(t, ok)

	msgs := h.publisher.Messages()
	require.Len(t, msgs, 1)
	event, ok := msgs[0].Payload.(pipeline.Event)
	require.True(t, ok)
	require.Equal(t, link, event.URL)
	require.Equal(t, "memory://raw/key.html", event.ArchiveURI)
}

func TestProcessSkipsKnownLinks(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	link := "https://example.com/news/a"
	h.extractor.results[link] = content.Extraction{Text: "body", Strategy: "readability"}

	_, first, err := h.pipeline.Process(context.Background(), content.Source{}, content.Entry{Link: link})
	require.NoError(t, err)
	require.Equal(t, pipeline.ResultResolved, first)

	_, second, err := h.pipeline.Process(context.Background(), content.Source{}, content.Entry{Link: link})
	require.NoError(t, err)
	require.Equal(t, pipeline.ResultSkipped, second)
	require.Len(t, h.extractor.calls, 1)
	require.Equal(t, 1, h.records.Len())
}

func TestProcessRecordsTotalExtractionFailure(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	link := "https://example.com/news/kerala/flood"
	published := time.Date(2024, 4, 29, 6, 0, 0, 0, time.UTC)

	rec, result, err := h.pipeline.Process(context.Background(), content.Source{ID: "example", Language: "en", Region: "south"}, content.Entry{
		Link:      link,
		Title:     "Flood warning",
		Summary:   "<p>Rivers <b>rising</b> fast</p>",
		Published: published,
	})
	require.NoError(t, err)
	require.Equal(t, pipeline.ResultFailed, result)

	require.False(t, rec.ExtractionSuccess)
	require.Contains(t, rec.Error, content.ErrBothStrategiesFailed.Error())
	require.Equal(t, "Flood warning", rec.Title)
	require.Equal(t, "Rivers rising fast", rec.Summary)
	require.Equal(t, "Kerala", rec.State)
	require.Equal(t, published, rec.PublishedAt)
	require.Equal(t, "en", rec.Language)
	require.Equal(t, "south", rec.Region)
	require.Empty(t, rec.Keywords)
	require.NotNil(t, rec.Keywords)

	stored, err := h.records.Get(context.Background(), link)
	require.NoError(t, err)
	require.False(t, stored.ExtractionSuccess)

	require.Equal(t, 1, h.graph.FeedStats(context.Background()).TotalFeeds)
	require.Zero(t, h.blobs.Len())
}

func TestProcessInvalidURLFailsFast(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	rec, result, err := h.pipeline.Process(context.Background(), content.Source{}, content.Entry{
		Link:  "example.com/no-scheme",
		Title: "Broken",
	})
	require.NoError(t, err)
	require.Equal(t, pipeline.ResultFailed, result)
	require.False(t, rec.ExtractionSuccess)
	require.Contains(t, rec.Error, content.ErrInvalidURL.Error())
	require.Empty(t, h.extractor.calls)
	require.Zero(t, h.graph.FeedStats(context.Background()).TotalFeeds)
	require.Equal(t, 1, h.records.Len())
}

func TestProcessFeedIsolatesEntries(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	good := "https://example.com/news/good"
	h.extractor.results[good] = content.Extraction{Text: "fine", Strategy: "structural"}

	counters := h.pipeline.ProcessFeed(context.Background(), content.Source{ID: "example"}, []content.Entry{
		{Link: "https://example.com/news/bad"},
		{Link: good},
		{Link: good},
	})
	require.Equal(t, content.RunCounters{Resolved: 1, Failed: 1, Skipped: 1}, counters)
}

func TestProcessSaveFailureIsErrored(t *testing.T) {
	t.Parallel()

	h := newHarness(t, failingRecords{storememory.NewRecordStore()})
	link := "https://example.com/news/a"
	h.extractor.results[link] = content.Extraction{Text: "body"}

	_, result, err := h.pipeline.Process(context.Background(), content.Source{}, content.Entry{Link: link})
	require.ErrorContains(t, err, "save record: disk full")
	require.Equal(t, pipeline.ResultErrored, result)
	require.Empty(t, h.publisher.Messages())

	counters := h.pipeline.ProcessFeed(context.Background(), content.Source{}, []content.Entry{{Link: link}})
	require.Equal(t, 1, counters.Errored)
}

func TestPublishFailureDoesNotFailEntry(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	h.publisher.FailWith(errors.New("broker down"))
	link := "https://example.com/news/a"
	h.extractor.results[link] = content.Extraction{Text: "body"}

	_, result, err := h.pipeline.Process(context.Background(), content.Source{}, content.Entry{Link: link})
	require.NoError(t, err)
	require.Equal(t, pipeline.ResultResolved, result)
}

func TestNewRequiresCollaborators(t *testing.T) {
	t.Parallel()

	_, err := pipeline.New(pipeline.Deps{}, pipeline.Config{}, nil)
	require.Error(t, err)
}
