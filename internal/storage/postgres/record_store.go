// Package postgres provides Postgres-backed persistence implementations.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/newsgraph/internal/content"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// DefaultTable holds resolved records when no table is configured.
const DefaultTable = "resolved_content"

// RecordStoreConfig controls the Postgres connection pool used for resolved records.
type RecordStoreConfig struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Query(context.Context, string, ...any) (pgx.Rows, error)
	Close()
}

// RecordStore keeps one row per resolved URL.
type RecordStore struct {
	pool  pool
	table string
}

// NewRecordStore creates a Postgres-backed RecordStore using the provided config.
func NewRecordStore(ctx context.Context, cfg RecordStoreConfig) (*RecordStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("records.dsn is required")
	}
	table, err := tableName(cfg.Table)
	if err != nil {
		return nil, err
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &RecordStore{pool: p, table: table}, nil
}

// NewRecordStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewRecordStoreWithPool(p pool, table string) (*RecordStore, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	name, err := tableName(table)
	if err != nil {
		return nil, err
	}
	return &RecordStore{pool: p, table: name}, nil
}

func tableName(table string) (string, error) {
	if table == "" {
		table = DefaultTable
	}
	if !validTableName.MatchString(table) {
		return "", fmt.Errorf("invalid table name %q", table)
	}
	return table, nil
}

// Close releases the underlying pool resources.
func (s *RecordStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// EnsureSchema creates the records table when missing.
func (s *RecordStore) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %[1]s (
	url                 TEXT PRIMARY KEY,
	source_id           TEXT NOT NULL DEFAULT '',
	source              TEXT NOT NULL DEFAULT '',
	language            TEXT NOT NULL DEFAULT '',
	region              TEXT NOT NULL DEFAULT '',
	state               TEXT NOT NULL DEFAULT '',
	published_at        TIMESTAMPTZ NOT NULL,
	extraction_success  BOOLEAN NOT NULL,
	payload             JSONB NOT NULL,
	updated_at          TIMESTAMPTZ NOT NULL DEFAULT now()
)`, s.table)
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("create %s: %w", s.table, err)
	}
	return nil
}

// Exists reports whether a record for url has been saved.
func (s *RecordStore) Exists(ctx context.Context, url string) (bool, error) {
	query := fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM %s WHERE url = $1)`, s.table)
	var exists bool
	if err := s.pool.QueryRow(ctx, query, url).Scan(&exists); err != nil {
		return false, fmt.Errorf("check record: %w", err)
	}
	return exists, nil
}

// Save upserts the record keyed by URL.
func (s *RecordStore) Save(ctx context.Context, record content.ResolvedContent) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("record store is not configured")
	}
	if record.URL == "" {
		return fmt.Errorf("record url is required")
	}
	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	query := fmt.Sprintf(`
INSERT INTO %s (
	url,
	source_id,
	source,
	language,
	region,
	state,
	published_at,
	extraction_success,
	payload
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9
)
ON CONFLICT (url) DO UPDATE SET
	source_id = EXCLUDED.source_id,
	source = EXCLUDED.source,
	language = EXCLUDED.language,
	region = EXCLUDED.region,
	state = EXCLUDED.state,
	published_at = EXCLUDED.published_at,
	extraction_success = EXCLUDED.extraction_success,
	payload = EXCLUDED.payload,
	updated_at = now()`, s.table)

	args := []any{
		record.URL,
		record.SourceID,
		record.Source,
		record.Language,
		record.Region,
		record.State,
		record.PublishedAt.UTC(),
		record.ExtractionSuccess,
		payload,
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert record: %w", err)
	}
	return nil
}

// Get loads the record stored for url or content.ErrNotFound.
func (s *RecordStore) Get(ctx context.Context, url string) (content.ResolvedContent, error) {
	query := fmt.Sprintf(`SELECT payload FROM %s WHERE url = $1`, s.table)
	var payload []byte
	if err := s.pool.QueryRow(ctx, query, url).Scan(&payload); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return content.ResolvedContent{}, content.ErrNotFound
		}
		return content.ResolvedContent{}, fmt.Errorf("load record: %w", err)
	}
	var record content.ResolvedContent
	if err := json.Unmarshal(payload, &record); err != nil {
		return content.ResolvedContent{}, fmt.Errorf("decode record: %w", err)
	}
	return record, nil
}

// ListSQL builds the filtered listing query over table.
func ListSQL(table string, filter content.RecordFilter) (string, []any, error) {
	b := psql.Select("payload").From(table)
	eq := sq.Eq{}
	if filter.SourceID != "" {
		eq["source_id"] = filter.SourceID
	}
	if filter.Language != "" {
		eq["language"] = filter.Language
	}
	if filter.Region != "" {
		eq["region"] = filter.Region
	}
	if filter.State != "" {
		eq["state"] = filter.State
	}
	if len(eq) > 0 {
		b = b.Where(eq)
	}
	b = b.OrderBy("published_at DESC", "url ASC")
	if filter.Limit > 0 {
		b = b.Limit(uint64(filter.Limit))
	}
	if filter.Offset > 0 {
		b = b.Offset(uint64(filter.Offset))
	}
	return b.ToSql()
}

// List returns records matching filter, newest first.
func (s *RecordStore) List(ctx context.Context, filter content.RecordFilter) ([]content.ResolvedContent, error) {
	query, args, err := ListSQL(s.table, filter)
	if err != nil {
		return nil, fmt.Errorf("build list query: %w", err)
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	defer rows.Close()

	out := []content.ResolvedContent{}
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		var record content.ResolvedContent
		if err := json.Unmarshal(payload, &record); err != nil {
			return nil, fmt.Errorf("decode record: %w", err)
		}
		out = append(out, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return out, nil
}

// Stats counts records by outcome, language, region and state.
func (s *RecordStore) Stats(ctx context.Context) (content.RecordStats, error) {
	stats := content.NewRecordStats()
	totals := fmt.Sprintf(`SELECT COUNT(*), COUNT(*) FILTER (WHERE extraction_success) FROM %s`, s.table)
	var total, resolved int64
	if err := s.pool.QueryRow(ctx, totals).Scan(&total, &resolved); err != nil {
		return content.RecordStats{}, fmt.Errorf("count records: %w", err)
	}
	stats.TotalRecords = int(total)
	stats.Resolved = int(resolved)
	stats.Failed = int(total - resolved)

	rows, err := s.pool.Query(ctx, breakdownSQL(s.table))
	if err != nil {
		return content.RecordStats{}, fmt.Errorf("query record breakdown: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			dimension, value string
			count            int64
		)
		if err := rows.Scan(&dimension, &value, &count); err != nil {
			return content.RecordStats{}, fmt.Errorf("scan record breakdown: %w", err)
		}
		switch dimension {
		case "language":
			stats.ByLanguage[value] = int(count)
		case "region":
			stats.ByRegion[value] = int(count)
		case "state":
			stats.ByState[value] = int(count)
		}
	}
	if err := rows.Err(); err != nil {
		return content.RecordStats{}, fmt.Errorf("iterate record breakdown: %w", err)
	}
	return stats, nil
}

func breakdownSQL(table string) string {
	return fmt.Sprintf(`
SELECT 'language', language, COUNT(*) FROM %[1]s WHERE language <> '' GROUP BY language
UNION ALL
SELECT 'region', region, COUNT(*) FROM %[1]s WHERE region <> '' GROUP BY region
UNION ALL
SELECT 'state', state, COUNT(*) FROM %[1]s WHERE state <> '' GROUP BY state`, table)
}
