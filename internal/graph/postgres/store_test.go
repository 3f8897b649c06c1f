package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/newsgraph/internal/graph"
)

func newMockStore(t *testing.T) (*Store, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	store := NewWithPool(mock)
	store.now = func() time.Time { return time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC) }
	return store, mock
}

func TestUpsertWritesNodesAndEdgesInOneTransaction(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	published := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	node := graph.FeedNode{
		URL:         "https://example.com/a",
		Title:       "Title",
		Summary:     "Summary",
		Content:     "Body",
		Author:      "Reporter",
		PublishedAt: published,
		Source:      "Example",
		State:       "Kerala",
		Language:    "en",
		Topics:      []string{"Kochi", "Kochi"},
	}

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO feed_nodes (url,title,summary,content,author,source,published_at,updated_at) VALUES ($1,$2,$3,$4,$5,$6,$7,$8) ON CONFLICT (url) DO UPDATE SET
	title = EXCLUDED.title,
	summary = EXCLUDED.summary,
	content = EXCLUDED.content,
	author = EXCLUDED.author,
	source = EXCLUDED.source,
	published_at = EXCLUDED.published_at,
	updated_at = EXCLUDED.updated_at`).
		WithArgs(node.URL, "Title", "Summary", "Body", "Reporter", "Example", published, store.now()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	expectLink(mock, "source_nodes", "name", "published_by", "source_name", node.URL, "Example")
	expectLink(mock, "state_nodes", "name", "belongs_to", "state_name", node.URL, "Kerala")
	expectLink(mock, "language_nodes", "code", "written_in", "language_code", node.URL, "en")
	expectLink(mock, "topic_nodes", "name", "covers", "topic_name", node.URL, "Kochi")
	mock.ExpectCommit()

	require.NoError(t, store.Upsert(context.Background(), node))
	require.NoError(t, mock.ExpectationsWereMet())
}

func expectLink(mock pgxmock.PgxPoolIface, nodeTable, nodeKey, edgeTable, edgeKey, url, key string) {
	mock.ExpectExec("INSERT INTO " + nodeTable + " (" + nodeKey + ") VALUES ($1) ON CONFLICT DO NOTHING").
		WithArgs(key).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO " + edgeTable + " (feed_url," + edgeKey + ") VALUES ($1,$2) ON CONFLICT DO NOTHING").
		WithArgs(url, key).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
}

func TestUpsertRollsBackOnFailure(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	store := NewWithPool(mock)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO feed_nodes").WillReturnError(errors.New("boom"))
	mock.ExpectRollback()

	err = store.Upsert(context.Background(), graph.FeedNode{URL: "https://example.com/a"})
	require.ErrorContains(t, err, "upsert feed node")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertRequiresURL(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	require.Error(t, store.Upsert(context.Background(), graph.FeedNode{}))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRelatedScansRows(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	q := graph.RelatedQuery{URL: "https://example.com/a", Limit: 5}
	query, args, err := RelatedSQL(q)
	require.NoError(t, err)
	require.Contains(t, query, "LIMIT 5")
	require.Len(t, args, 4)

	published := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	rows := pgxmock.NewRows([]string{"url", "title", "summary", "published_at", "source", "shared"}).
		AddRow("https://example.com/b", "B", "b summary", published, "Example", int64(3)).
		AddRow("https://example.com/c", "C", "c summary", published, "Example", int64(1))
	mock.ExpectQuery(query).WithArgs(args...).WillReturnRows(rows)

	got, err := store.Related(context.Background(), q)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, "https://example.com/b", got[0].URL)
	require.Equal(t, 3, got[0].SharedTopicCount)
	require.Equal(t, published, got[1].PublishedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRelatedZeroLimitSkipsQuery(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	got, err := store.Related(context.Background(), graph.RelatedQuery{URL: "x", Limit: 0})
	require.NoError(t, err)
	require.Empty(t, got)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTrendingFiltersBySince(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	since := time.Date(2024, 4, 24, 0, 0, 0, 0, time.UTC)
	q := graph.TrendingQuery{Since: since, Limit: 10}
	query, args, err := TrendingSQL(q)
	require.NoError(t, err)
	require.Contains(t, query, "f.published_at >= $1")
	require.Equal(t, []any{since}, args)

	rows := pgxmock.NewRows([]string{"topic_name", "frequency"}).
		AddRow("Kerala", int64(4)).
		AddRow("Delhi", int64(2))
	mock.ExpectQuery(query).WithArgs(since).WillReturnRows(rows)

	got, err := store.Trending(context.Background(), q)
	require.NoError(t, err)
	require.Equal(t, []graph.TopicCount{{Topic: "Kerala", Frequency: 4}, {Topic: "Delhi", Frequency: 2}}, got)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSearchSQLAppliesFilters(t *testing.T) {
	t.Parallel()

	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	query, args, err := SearchSQL(graph.SearchQuery{
		Text: "50%_off",
		Filters: graph.Filters{
			Source:   "Example",
			Language: "hi",
			DateFrom: &from,
		},
		Limit: 500,
	})
	require.NoError(t, err)
	require.Contains(t, query, "f.title ILIKE $1 OR f.content ILIKE $2")
	require.Contains(t, query, "published_by e WHERE e.feed_url = f.url AND e.source_name = $3")
	require.Contains(t, query, "written_in e WHERE e.feed_url = f.url AND e.language_code = $4")
	require.NotContains(t, query, "belongs_to")
	require.Contains(t, query, "f.published_at >= $5")
	require.Contains(t, query, "LIMIT 100")
	require.Equal(t, []any{`%50\%\_off%`, `%50\%\_off%`, "Example", "hi", from}, args)
}

func TestSearchScansSummaries(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	q := graph.SearchQuery{Text: "flood"}
	query, args, err := SearchSQL(q)
	require.NoError(t, err)

	published := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	rows := pgxmock.NewRows([]string{"url", "title", "summary", "published_at", "source"}).
		AddRow("https://example.com/a", "Flood", "s", published, "Example")
	mock.ExpectQuery(query).WithArgs(args...).WillReturnRows(rows)

	got, err := store.Search(context.Background(), q)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "Flood", got[0].Title)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStatsScansCounts(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	query, _, err := StatsSQL()
	require.NoError(t, err)

	latest := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	rows := pgxmock.NewRows([]string{"total_feeds", "total_sources", "total_states", "total_languages", "latest_published_at"}).
		AddRow(int64(7), int64(2), int64(3), int64(2), &latest)
	mock.ExpectQuery(query).WillReturnRows(rows)

	got, err := store.Stats(context.Background())
	require.NoError(t, err)
	require.Equal(t, 7, got.TotalFeeds)
	require.Equal(t, 2, got.TotalSources)
	require.Equal(t, 3, got.TotalStates)
	require.Equal(t, 2, got.TotalLanguages)
	require.NotNil(t, got.LatestPublishedAt)
	require.Equal(t, latest, *got.LatestPublishedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStatsEmptyGraph(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	query, _, err := StatsSQL()
	require.NoError(t, err)

	var latest *time.Time
	rows := pgxmock.NewRows([]string{"total_feeds", "total_sources", "total_states", "total_languages", "latest_published_at"}).
		AddRow(int64(0), int64(0), int64(0), int64(0), latest)
	mock.ExpectQuery(query).WillReturnRows(rows)

	got, err := store.Stats(context.Background())
	require.NoError(t, err)
	require.Zero(t, got.TotalFeeds)
	require.Nil(t, got.LatestPublishedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}
