// Package postgres stores the content graph in node and edge tables.
package postgres

import (
	"context"
	_ "embed"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/newsgraph/internal/graph"
)

//go:embed schema.sql
var schemaSQL string

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

type pool interface {
	Begin(context.Context) (pgx.Tx, error)
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Close()
}

// relation describes one neighbor node kind and the edge table linking it to feeds.
type relation struct {
	nodeTable string
	nodeKey   string
	edgeTable string
	edgeKey   string
}

var (
	sources   = relation{"source_nodes", "name", "published_by", "source_name"}
	states    = relation{"state_nodes", "name", "belongs_to", "state_name"}
	languages = relation{"language_nodes", "code", "written_in", "language_code"}
	topics    = relation{"topic_nodes", "name", "covers", "topic_name"}
	keywords  = relation{"keyword_nodes", "name", "tagged_with", "keyword_name"}
)

// Store implements graph.Store on Postgres.
type Store struct {
	pool pool
	now  func() time.Time
}

// New connects to dsn.
func New(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("graph.dsn is required")
	}
	p, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return NewWithPool(p), nil
}

// NewWithPool constructs a store from an existing pool (primarily for testing).
func NewWithPool(p pool) *Store {
	return &Store{pool: p, now: time.Now}
}

// EnsureSchema creates the node and edge tables if they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create graph schema: %w", err)
	}
	return nil
}

// Close releases the pool.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Upsert merges the feed row, neighbor nodes and edges in one transaction.
func (s *Store) Upsert(ctx context.Context, node graph.FeedNode) error {
	if node.URL == "" {
		return fmt.Errorf("feed url is required")
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin upsert: %w", err)
	}
	if err := s.upsertTx(ctx, tx, node); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit upsert: %w", err)
	}
	return nil
}

func (s *Store) upsertTx(ctx context.Context, tx pgx.Tx, node graph.FeedNode) error {
	query, args, err := psql.Insert("feed_nodes").
		Columns("url", "title", "summary", "content", "author", "source", "published_at", "updated_at").
		Values(node.URL, node.Title, node.Summary, node.Content, node.Author, node.Source,
			node.PublishedAt.UTC(), s.now().UTC()).
		Suffix(`ON CONFLICT (url) DO UPDATE SET
	title = EXCLUDED.title,
	summary = EXCLUDED.summary,
	content = EXCLUDED.content,
	author = EXCLUDED.author,
	source = EXCLUDED.source,
	published_at = EXCLUDED.published_at,
	updated_at = EXCLUDED.updated_at`).
		ToSql()
	if err != nil {
		return fmt.Errorf("build feed upsert: %w", err)
	}
	if _, err := tx.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert feed node: %w", err)
	}

	links := []struct {
		rel  relation
		keys []string
	}{
		{sources, []string{node.Source}},
		{states, []string{node.State}},
		{languages, []string{node.Language}},
		{topics, node.Topics},
		{keywords, node.Keywords},
	}
	for _, l := range links {
		for _, key := range uniqueNonEmpty(l.keys) {
			if err := link(ctx, tx, l.rel, node.URL, key); err != nil {
				return err
			}
		}
	}
	return nil
}

func link(ctx context.Context, tx pgx.Tx, rel relation, feedURL, key string) error {
	nodeSQL, nodeArgs, err := psql.Insert(rel.nodeTable).Columns(rel.nodeKey).Values(key).
		Suffix("ON CONFLICT DO NOTHING").ToSql()
	if err != nil {
		return fmt.Errorf("build %s merge: %w", rel.nodeTable, err)
	}
	if _, err := tx.Exec(ctx, nodeSQL, nodeArgs...); err != nil {
		return fmt.Errorf("merge %s: %w", rel.nodeTable, err)
	}
	edgeSQL, edgeArgs, err := psql.Insert(rel.edgeTable).Columns("feed_url", rel.edgeKey).Values(feedURL, key).
		Suffix("ON CONFLICT DO NOTHING").ToSql()
	if err != nil {
		return fmt.Errorf("build %s merge: %w", rel.edgeTable, err)
	}
	if _, err := tx.Exec(ctx, edgeSQL, edgeArgs...); err != nil {
		return fmt.Errorf("merge %s: %w", rel.edgeTable, err)
	}
	return nil
}

const sharedNodesCTE = `WITH shared AS (
	SELECT c2.feed_url AS url, 'topic:' || c2.topic_name AS node
	FROM covers c1 JOIN covers c2 ON c2.topic_name = c1.topic_name
	WHERE c1.feed_url = ? AND c2.feed_url <> ?
	UNION ALL
	SELECT t2.feed_url AS url, 'keyword:' || t2.keyword_name AS node
	FROM tagged_with t1 JOIN tagged_with t2 ON t2.keyword_name = t1.keyword_name
	WHERE t1.feed_url = ? AND t2.feed_url <> ?
)`

// RelatedSQL builds the related-by-topic query.
func RelatedSQL(q graph.RelatedQuery) (string, []any, error) {
	return psql.Select("f.url", "f.title", "f.summary", "f.published_at", "f.source",
		"COUNT(DISTINCT s.node) AS shared").
		Prefix(sharedNodesCTE, q.URL, q.URL, q.URL, q.URL).
		From("shared s").
		Join("feed_nodes f ON f.url = s.url").
		GroupBy("f.url", "f.title", "f.summary", "f.published_at", "f.source").
		OrderBy("shared DESC", "f.published_at DESC", "f.url ASC").
		Limit(uint64(q.Limit)).
		ToSql()
}

// Related implements graph.Store.
func (s *Store) Related(ctx context.Context, q graph.RelatedQuery) ([]graph.RelatedFeed, error) {
	if q.Limit <= 0 {
		return []graph.RelatedFeed{}, nil
	}
	query, args, err := RelatedSQL(q)
	if err != nil {
		return nil, fmt.Errorf("build related query: %w", err)
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query related: %w", err)
	}
	defer rows.Close()

	out := []graph.RelatedFeed{}
	for rows.Next() {
		var (
			r      graph.RelatedFeed
			shared int64
		)
		if err := rows.Scan(&r.URL, &r.Title, &r.Summary, &r.PublishedAt, &r.Source, &shared); err != nil {
			return nil, fmt.Errorf("scan related: %w", err)
		}
		r.SharedTopicCount = int(shared)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate related: %w", err)
	}
	return out, nil
}

// TrendingSQL builds the trending-topics query.
func TrendingSQL(q graph.TrendingQuery) (string, []any, error) {
	b := psql.Select("c.topic_name", "COUNT(*) AS frequency").
		From("covers c").
		Join("feed_nodes f ON f.url = c.feed_url").
		Where(sq.GtOrEq{"f.published_at": q.Since.UTC()}).
		GroupBy("c.topic_name").
		OrderBy("frequency DESC", "c.topic_name ASC")
	if q.Limit > 0 {
		b = b.Limit(uint64(q.Limit))
	}
	return b.ToSql()
}

// Trending implements graph.Store.
func (s *Store) Trending(ctx context.Context, q graph.TrendingQuery) ([]graph.TopicCount, error) {
	query, args, err := TrendingSQL(q)
	if err != nil {
		return nil, fmt.Errorf("build trending query: %w", err)
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query trending: %w", err)
	}
	defer rows.Close()

	out := []graph.TopicCount{}
	for rows.Next() {
		var (
			topic string
			freq  int64
		)
		if err := rows.Scan(&topic, &freq); err != nil {
			return nil, fmt.Errorf("scan trending: %w", err)
		}
		out = append(out, graph.TopicCount{Topic: topic, Frequency: int(freq)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate trending: %w", err)
	}
	return out, nil
}

// SearchSQL builds the filtered search query.
func SearchSQL(q graph.SearchQuery) (string, []any, error) {
	pattern := "%" + escapeLike(q.Text) + "%"
	b := psql.Select("f.url", "f.title", "f.summary", "f.published_at", "f.source").
		From("feed_nodes f").
		Where(sq.Or{sq.ILike{"f.title": pattern}, sq.ILike{"f.content": pattern}})

	f := q.Filters
	if f.Source != "" {
		b = b.Where(existsEdge(sources), f.Source)
	}
	if f.State != "" {
		b = b.Where(existsEdge(states), f.State)
	}
	if f.Language != "" {
		b = b.Where(existsEdge(languages), f.Language)
	}
	if f.DateFrom != nil {
		b = b.Where(sq.GtOrEq{"f.published_at": f.DateFrom.UTC()})
	}
	if f.DateTo != nil {
		b = b.Where(sq.LtOrEq{"f.published_at": f.DateTo.UTC()})
	}
	limit := q.Limit
	if limit <= 0 || limit > graph.SearchLimit {
		limit = graph.SearchLimit
	}
	return b.OrderBy("f.published_at DESC", "f.url ASC").Limit(uint64(limit)).ToSql()
}

func existsEdge(rel relation) string {
	return fmt.Sprintf("EXISTS (SELECT 1 FROM %s e WHERE e.feed_url = f.url AND e.%s = ?)", rel.edgeTable, rel.edgeKey)
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

// Search implements graph.Store.
func (s *Store) Search(ctx context.Context, q graph.SearchQuery) ([]graph.FeedSummary, error) {
	query, args, err := SearchSQL(q)
	if err != nil {
		return nil, fmt.Errorf("build search query: %w", err)
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query search: %w", err)
	}
	defer rows.Close()

	out := []graph.FeedSummary{}
	for rows.Next() {
		var r graph.FeedSummary
		if err := rows.Scan(&r.URL, &r.Title, &r.Summary, &r.PublishedAt, &r.Source); err != nil {
			return nil, fmt.Errorf("scan search: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate search: %w", err)
	}
	return out, nil
}

// StatsSQL builds the aggregate query.
func StatsSQL() (string, []any, error) {
	return psql.Select(
		"(SELECT COUNT(*) FROM feed_nodes) AS total_feeds",
		"(SELECT COUNT(*) FROM source_nodes) AS total_sources",
		"(SELECT COUNT(*) FROM state_nodes) AS total_states",
		"(SELECT COUNT(*) FROM language_nodes) AS total_languages",
		"(SELECT MAX(published_at) FROM feed_nodes) AS latest_published_at",
	).ToSql()
}

// Stats implements graph.Store.
func (s *Store) Stats(ctx context.Context) (graph.Stats, error) {
	query, args, err := StatsSQL()
	if err != nil {
		return graph.Stats{}, fmt.Errorf("build stats query: %w", err)
	}
	var (
		feeds, srcs, sts, langs int64
		latest                  *time.Time
	)
	if err := s.pool.QueryRow(ctx, query, args...).Scan(&feeds, &srcs, &sts, &langs, &latest); err != nil {
		return graph.Stats{}, fmt.Errorf("query stats: %w", err)
	}
	stats := graph.Stats{
		TotalFeeds:     int(feeds),
		TotalSources:   int(srcs),
		TotalStates:    int(sts),
		TotalLanguages: int(langs),
	}
	if latest != nil {
		utc := latest.UTC()
		stats.LatestPublishedAt = &utc
	}
	return stats, nil
}

func uniqueNonEmpty(keys []string) []string {
	seen := make(map[string]struct{}, len(keys))
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		if k == "" {
			continue
		}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}
