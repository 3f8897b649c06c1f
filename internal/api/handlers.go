package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"go.uber.org/zap"

	"github.com/JakeFAU/newsgraph/internal/content"
	"github.com/JakeFAU/newsgraph/internal/graph"
	"github.com/JakeFAU/newsgraph/internal/logging"
)

const (
	defaultRelatedLimit  = 5
	defaultTrendingDays  = 7
	defaultTrendingLimit = 10
	defaultRecordLimit   = 20
	maxLimit             = graph.SearchLimit
	maxTrendingDays      = 365
	queryTimeout         = 5 * time.Second
)

// QueryHandler exposes the read-only graph and record endpoints.
type QueryHandler struct {
	graph   Graph
	records RecordReader
	timeout time.Duration
	logger  *zap.Logger
}

// NewQueryHandler wires the graph, record store and logger.
func NewQueryHandler(g Graph, records RecordReader, logger *zap.Logger) *QueryHandler {
	return &QueryHandler{
		graph:   g,
		records: records,
		timeout: queryTimeout,
		logger:  logging.OrNop(logger).Named("queries"),
	}
}

// Related handles GET /v1/feeds/related?url=&limit=. It returns {"feeds": [...]}
// ordered by shared topic and keyword count, or 400 when url is missing.
func (h *QueryHandler) Related(w http.ResponseWriter, r *http.Request) {
	if h.graph == nil {
		writeError(w, http.StatusServiceUnavailable, "graph unavailable")
		return
	}
	target := strings.TrimSpace(r.URL.Query().Get("url"))
	if target == "" {
		writeError(w, http.StatusBadRequest, "url is required")
		return
	}
	limit, err := parsePositive(r, "limit", defaultRelatedLimit, maxLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	feeds := h.graph.RelatedFeeds(ctx, target, limit)
	writeJSON(w, http.StatusOK, map[string]any{"feeds": nonNil(feeds)})
}

// Trending handles GET /v1/topics/trending?days=&limit=.
func (h *QueryHandler) Trending(w http.ResponseWriter, r *http.Request) {
	if h.graph == nil {
		writeError(w, http.StatusServiceUnavailable, "graph unavailable")
		return
	}
	days, err := parsePositive(r, "days", defaultTrendingDays, maxTrendingDays)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	limit, err := parsePositive(r, "limit", defaultTrendingLimit, maxLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	topics := h.graph.TrendingTopics(ctx, days, limit)
	writeJSON(w, http.StatusOK, map[string]any{"topics": nonNil(topics)})
}

// Search handles GET /v1/feeds/search?q=&source=&state=&language=&date_from=&date_to=.
// Dates accept any layout dateparse understands; an unparseable date is a 400.
func (h *QueryHandler) Search(w http.ResponseWriter, r *http.Request) {
	if h.graph == nil {
		writeError(w, http.StatusServiceUnavailable, "graph unavailable")
		return
	}
	q := r.URL.Query()
	filters := graph.Filters{
		Source:   strings.TrimSpace(q.Get("source")),
		State:    strings.TrimSpace(q.Get("state")),
		Language: strings.TrimSpace(q.Get("language")),
	}
	var err error
	if filters.DateFrom, err = parseDate(q.Get("date_from")); err != nil {
		writeError(w, http.StatusBadRequest, "invalid date_from")
		return
	}
	if filters.DateTo, err = parseDate(q.Get("date_to")); err != nil {
		writeError(w, http.StatusBadRequest, "invalid date_to")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	feeds := h.graph.SearchFeeds(ctx, strings.TrimSpace(q.Get("q")), filters)
	writeJSON(w, http.StatusOK, map[string]any{"feeds": nonNil(feeds)})
}

// Stats handles GET /v1/stats.
func (h *QueryHandler) Stats(w http.ResponseWriter, r *http.Request) {
	if h.graph == nil {
		writeError(w, http.StatusServiceUnavailable, "graph unavailable")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()
	resp := statsResponse{Stats: h.graph.FeedStats(ctx)}
	if h.records != nil {
		counts, err := h.records.Stats(ctx)
		if err != nil {
			h.logger.Warn("record stats failed", zap.Error(err))
		} else {
			resp.Records = &counts
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// statsResponse adds record breakdowns to the graph totals. Records is omitted
// when the record store is unavailable.
type statsResponse struct {
	graph.Stats
	Records *content.RecordStats `json:"records,omitempty"`
}

// Records handles GET /v1/records. With url= it returns that link's record;
// otherwise it lists records filtered by source_id, language, region and state,
// paged with limit and offset. Markup is never returned.
func (h *QueryHandler) Records(w http.ResponseWriter, r *http.Request) {
	if h.records == nil {
		writeError(w, http.StatusServiceUnavailable, "record store unavailable")
		return
	}
	if target := strings.TrimSpace(r.URL.Query().Get("url")); target != "" {
		h.record(w, r, target)
		return
	}
	h.list(w, r)
}

func (h *QueryHandler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, err := parsePositive(r, "limit", defaultRecordLimit, maxLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	offset := 0
	if raw := q.Get("offset"); raw != "" {
		offset, err = strconv.Atoi(raw)
		if err != nil || offset < 0 {
			writeError(w, http.StatusBadRequest, "invalid offset")
			return
		}
	}
	filter := content.RecordFilter{
		SourceID: strings.TrimSpace(q.Get("source_id")),
		Language: strings.TrimSpace(q.Get("language")),
		Region:   strings.TrimSpace(q.Get("region")),
		State:    strings.TrimSpace(q.Get("state")),
		Limit:    limit,
		Offset:   offset,
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	recs, err := h.records.List(ctx, filter)
	if err != nil {
		h.logger.Error("list records failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list records")
		return
	}
	for i := range recs {
		recs[i].HTML = ""
	}
	writeJSON(w, http.StatusOK, map[string]any{"records": nonNil(recs)})
}

func (h *QueryHandler) record(w http.ResponseWriter, r *http.Request, target string) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	rec, err := h.records.Get(ctx, target)
	if err != nil {
		if errors.Is(err, content.ErrNotFound) {
			writeError(w, http.StatusNotFound, "record not found")
			return
		}
		h.logger.Error("get record failed", zap.String("url", target), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load record")
		return
	}
	rec.HTML = ""
	writeJSON(w, http.StatusOK, rec)
}

func parsePositive(r *http.Request, name string, def, maxVal int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	val, err := strconv.Atoi(raw)
	if err != nil || val <= 0 {
		return 0, errors.New("invalid " + name)
	}
	if val > maxVal {
		val = maxVal
	}
	return val, nil
}

func parseDate(raw string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	t, err := dateparse.ParseIn(raw, time.UTC)
	if err != nil {
		return nil, err
	}
	t = t.UTC()
	return &t, nil
}

func nonNil[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}
