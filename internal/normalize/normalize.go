// Package normalize resolves source, state, publish date and language for a page.
package normalize

import (
	"encoding/json"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/abadojack/whatlanggo"
	"github.com/araddon/dateparse"
	"golang.org/x/net/publicsuffix"
	"golang.org/x/text/language"

	"github.com/JakeFAU/newsgraph/internal/content"
)

// Result holds the four resolved attributes.
type Result struct {
	Source      string
	State       string
	PublishedAt time.Time
	Language    string
}

// Normalizer applies the resolution chains. It holds no mutable state.
type Normalizer struct {
	tables Tables
	clock  content.Clock
}

// New builds a Normalizer.
func New(tables Tables, clock content.Clock) *Normalizer {
	return &Normalizer{tables: tables, clock: clock}
}

// Normalize resolves every attribute for an extraction of rawURL.
func (n *Normalizer) Normalize(rawURL string, ext content.Extraction) Result {
	return Result{
		Source:      n.Source(rawURL),
		State:       n.State(rawURL),
		PublishedAt: n.Date(ext.Date, ext.HTML),
		Language:    n.Language(ext.Language, ext.Text),
	}
}

// Source maps the host to a display name, falling back to the registered domain.
func (n *Normalizer) Source(rawURL string) string {
	host, domain := hostAndDomain(rawURL)
	if name, ok := lookup(n.tables.Sources, host, domain); ok {
		return name
	}
	if domain != "" {
		return domain
	}
	return host
}

// State checks the domain table, then path keywords, then defaults to "All".
func (n *Normalizer) State(rawURL string) string {
	host, domain := hostAndDomain(rawURL)
	if state, ok := lookup(n.tables.DomainStates, host, domain); ok {
		return state
	}
	if u, err := url.Parse(rawURL); err == nil {
		path := strings.ToLower(u.Path)
		for _, ps := range n.tables.PathStates {
			if strings.Contains(path, ps.Keyword) {
				return ps.State
			}
		}
	}
	return content.DefaultState
}

// Date returns the explicit date, else the first parseable markup date, in UTC.
// When nothing parses it returns the current time.
func (n *Normalizer) Date(explicit, markup string) time.Time {
	if t, ok := parseDate(explicit); ok {
		return t
	}
	for _, candidate := range MarkupDates(markup) {
		if t, ok := parseDate(candidate); ok {
			return t
		}
	}
	return n.clock.Now().UTC()
}

func parseDate(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	t, err := dateparse.ParseIn(raw, time.UTC)
	if err != nil || t.IsZero() {
		return time.Time{}, false
	}
	return t.UTC(), true
}

// Language prefers strategy metadata, then reliable detection, then "en".
func (n *Normalizer) Language(meta, text string) string {
	if code := baseLanguage(meta); code != "" {
		return code
	}
	if strings.TrimSpace(text) != "" {
		info := whatlanggo.Detect(text)
		if info.IsReliable() {
			if code := info.Lang.Iso6391(); code != "" {
				return code
			}
		}
	}
	return content.DefaultLanguage
}

// baseLanguage returns the ISO 639-1 base of a declared tag, or "" when the tag is
// undetermined, unparseable or has no two-letter base.
func baseLanguage(meta string) string {
	meta = strings.TrimSpace(meta)
	if meta == "" {
		return ""
	}
	tag, err := language.Parse(meta)
	if err != nil {
		return ""
	}
	base, conf := tag.Base()
	if conf != language.Exact || len(base.String()) != 2 {
		return ""
	}
	return base.String()
}

var metaDateKeys = []string{"article:published_time", "og:published_time", "published_time"}

// MarkupDates lists publish-date strings found in meta tags, then in JSON-LD blocks.
func MarkupDates(markup string) []string {
	if strings.TrimSpace(markup) == "" {
		return nil
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return nil
	}
	var out []string
	for _, key := range metaDateKeys {
		doc.Find(`meta[property="` + key + `"], meta[name="` + key + `"]`).Each(func(_ int, s *goquery.Selection) {
			if v, ok := s.Attr("content"); ok && strings.TrimSpace(v) != "" {
				out = append(out, v)
			}
		})
	}
	doc.Find(`script[type="application/ld+json"]`).Each(func(_ int, s *goquery.Selection) {
		var payload any
		if err := json.Unmarshal([]byte(s.Text()), &payload); err != nil {
			return
		}
		out = append(out, jsonLDDates(payload)...)
	})
	return out
}

func jsonLDDates(node any) []string {
	switch v := node.(type) {
	case []any:
		var out []string
		for _, item := range v {
			out = append(out, jsonLDDates(item)...)
		}
		return out
	case map[string]any:
		var out []string
		if d, ok := v["datePublished"].(string); ok && d != "" {
			out = append(out, d)
		}
		if graph, ok := v["@graph"]; ok {
			out = append(out, jsonLDDates(graph)...)
		}
		return out
	default:
		return nil
	}
}

func hostAndDomain(rawURL string) (host, domain string) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", ""
	}
	host = strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	if host == "" {
		return "", ""
	}
	domain, err = publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		domain = host
	}
	return host, domain
}

func lookup(table map[string]string, keys ...string) (string, bool) {
	for _, k := range keys {
		if k == "" {
			continue
		}
		if v, ok := table[k]; ok {
			return v, true
		}
	}
	return "", false
}
