package extract

import (
	"bytes"
	"context"
	"fmt"
	"mime"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/JakeFAU/newsgraph/internal/content"
)

// StructuralName tags records produced by the structural strategy.
const StructuralName = "structural"

const maxImages = 10

// boilerplateSelector matches page chrome that never holds article text.
const boilerplateSelector = "script, style, noscript, template, svg, nav, header, footer, aside, form, iframe, " +
	"[role=navigation], [role=banner], [role=contentinfo]"

// boilerplateWords name class or id tokens of page chrome. A token matches when it
// equals a word or starts with the word followed by "-" or "_".
var boilerplateWords = []string{
	"share", "sharing", "social", "comment", "comments", "related",
	"advert", "ads", "newsletter", "breadcrumb", "breadcrumbs",
}

// protectedSelector matches content roots; they and their ancestors are never stripped.
const protectedSelector = "html, body, article, main, [role=main], [itemprop=articleBody]"

var contentRoots = []string{"[itemprop=articleBody]", "article", "main", "[role=main]", "body"}

const blockSelector = "p, h2, h3, h4, li, blockquote, pre"

// Structural extracts text from the markup tree after stripping boilerplate.
type Structural struct {
	source Source
	logger *zap.Logger
}

// NewStructural builds the primary strategy over source. logger may be nil.
func NewStructural(source Source, logger *zap.Logger) *Structural {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Structural{source: source, logger: logger.Named("structural")}
}

// Name implements Strategy.
func (s *Structural) Name() string { return StructuralName }

// Extract implements Strategy.
func (s *Structural) Extract(ctx context.Context, rawURL string) content.Outcome {
	raw, err := s.source.Fetch(ctx, rawURL)
	if err != nil {
		return content.Failed(err)
	}
	s.logger.Debug("page downloaded",
		zap.String("url", rawURL),
		zap.Int("attempts", raw.Attempts),
		zap.String("content_type", raw.ContentType),
	)
	if !IsHTML(raw.ContentType) {
		return content.Empty(fmt.Sprintf("unsupported content type %q", raw.ContentType))
	}
	pageURL := raw.FinalURL
	if pageURL == "" {
		pageURL = rawURL
	}
	extraction, err := ParseStructural(raw.Body, pageURL)
	if err != nil {
		return content.Failed(err)
	}
	return content.Success(extraction)
}

// ParseStructural extracts metadata and body text from markup.
func ParseStructural(body []byte, pageURL string) (content.Extraction, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return content.Extraction{}, fmt.Errorf("parse html: %w", err)
	}
	base, _ := url.Parse(pageURL)

	// Metadata lives in the head and in bylines that boilerplate removal would drop.
	title := firstNonEmpty(metaContent(doc, "og:title"), doc.Find("title").First().Text(), doc.Find("h1").First().Text())
	lang := firstNonEmpty(
		attr(doc.Find("html"), "lang"),
		attr(doc.Find(`meta[http-equiv="content-language"], meta[http-equiv="Content-Language"]`), "content"),
	)
	extraction := content.Extraction{
		Title:    title,
		Author:   findAuthor(doc),
		Date:     findDate(doc),
		Language: lang,
		Summary:  firstNonEmpty(metaContent(doc, "description"), metaContent(doc, "og:description")),
		HTML:     string(body),
	}
	images := newImageSet(base)
	images.add(metaContent(doc, "og:image"))

	stripBoilerplate(doc)
	root := contentRoot(doc)
	extraction.Text = collectBlocks(root)
	root.Find("img").Each(func(_ int, img *goquery.Selection) {
		images.add(firstNonEmpty(attr(img, "src"), attr(img, "data-src")))
	})
	extraction.ImageURLs = images.list

	extraction.Title = CleanText(extraction.Title)
	extraction.Author = CleanText(extraction.Author)
	extraction.Summary = StripMarkup(extraction.Summary)
	return extraction, nil
}

// IsHTML reports whether a Content-Type header names markup. An empty header is accepted.
func IsHTML(contentType string) bool {
	if strings.TrimSpace(contentType) == "" {
		return true
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mediaType == "text/html" || mediaType == "application/xhtml+xml"
}

func stripBoilerplate(doc *goquery.Document) {
	doc.Find(boilerplateSelector).FilterFunction(removable).Remove()
	doc.Find("[class], [id]").FilterFunction(func(i int, sel *goquery.Selection) bool {
		return hasBoilerplateToken(sel) && removable(i, sel)
	}).Remove()
}

func removable(_ int, sel *goquery.Selection) bool {
	return !sel.Is(protectedSelector) && sel.Find(protectedSelector).Length() == 0
}

func hasBoilerplateToken(sel *goquery.Selection) bool {
	class, _ := sel.Attr("class")
	id, _ := sel.Attr("id")
	for _, token := range strings.Fields(strings.ToLower(class + " " + id)) {
		for _, word := range boilerplateWords {
			if token == word || strings.HasPrefix(token, word+"-") || strings.HasPrefix(token, word+"_") {
				return true
			}
		}
	}
	return false
}

func contentRoot(doc *goquery.Document) *goquery.Selection {
	for _, selector := range contentRoots {
		candidates := doc.Find(selector)
		if candidates.Length() == 0 {
			continue
		}
		// Prefer the candidate holding the most paragraphs.
		best := candidates.First()
		bestCount := best.Find("p").Length()
		candidates.Each(func(_ int, sel *goquery.Selection) {
			if n := sel.Find("p").Length(); n > bestCount {
				best, bestCount = sel, n
			}
		})
		if bestCount > 0 || selector == "body" {
			return best
		}
	}
	return doc.Selection
}

func collectBlocks(root *goquery.Selection) string {
	var parts []string
	root.Find(blockSelector).Each(func(_ int, block *goquery.Selection) {
		// Nested blocks are covered by their outermost block.
		if block.ParentsFiltered(blockSelector).Length() > 0 {
			return
		}
		if text := CleanText(block.Text()); text != "" {
			parts = append(parts, text)
		}
	})
	return strings.Join(parts, " ")
}

func findAuthor(doc *goquery.Document) string {
	if author := firstNonEmpty(
		metaContent(doc, "author"),
		metaContent(doc, "article:author"),
		attr(doc.Find(`meta[itemprop=author]`), "content"),
	); author != "" && !strings.HasPrefix(author, "http") {
		return author
	}
	return firstNonEmpty(
		doc.Find(`[itemprop=author] [itemprop=name]`).First().Text(),
		doc.Find(`[itemprop=author]`).First().Text(),
		doc.Find(`a[rel=author]`).First().Text(),
	)
}

func findDate(doc *goquery.Document) string {
	return strings.TrimSpace(firstNonEmpty(
		metaContent(doc, "article:published_time"),
		attr(doc.Find(`meta[itemprop=datePublished]`), "content"),
		attr(doc.Find(`[itemprop=datePublished]`), "datetime"),
		attr(doc.Find(`time[datetime]`), "datetime"),
	))
}

// metaContent reads <meta name=key> or <meta property=key>.
func metaContent(doc *goquery.Document, key string) string {
	sel := doc.Find(fmt.Sprintf(`meta[name=%q], meta[property=%q]`, key, key))
	return attr(sel, "content")
}

func attr(sel *goquery.Selection, name string) string {
	value, _ := sel.First().Attr(name)
	return strings.TrimSpace(value)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if t := strings.TrimSpace(v); t != "" {
			return t
		}
	}
	return ""
}

type imageSet struct {
	base *url.URL
	seen map[string]struct{}
	list []string
}

func newImageSet(base *url.URL) *imageSet {
	return &imageSet{base: base, seen: make(map[string]struct{})}
}

func (s *imageSet) add(ref string) {
	ref = strings.TrimSpace(ref)
	if ref == "" || strings.HasPrefix(ref, "data:") || len(s.list) >= maxImages {
		return
	}
	u, err := url.Parse(ref)
	if err != nil {
		return
	}
	if s.base != nil {
		u = s.base.ResolveReference(u)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return
	}
	abs := u.String()
	if _, dup := s.seen[abs]; dup {
		return
	}
	s.seen[abs] = struct{}{}
	s.list = append(s.list, abs)
}
