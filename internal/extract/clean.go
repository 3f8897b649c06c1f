package extract

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var strictPolicy = bluemonday.StrictPolicy()

// CleanText collapses every whitespace run to a single space.
func CleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// StripMarkup removes all tags from s and returns cleaned plain text.
func StripMarkup(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return CleanText(s)
	}
	return CleanText(html.UnescapeString(strictPolicy.Sanitize(s)))
}

// FallbackSummaryLength is how many runes of text the fallback summary keeps.
const FallbackSummaryLength = 200

// FallbackSummary returns the leading text followed by "...", or "" for empty text.
func FallbackSummary(text string) string {
	if text == "" {
		return ""
	}
	runes := []rune(text)
	if len(runes) > FallbackSummaryLength {
		runes = runes[:FallbackSummaryLength]
	}
	return string(runes) + "..."
}
