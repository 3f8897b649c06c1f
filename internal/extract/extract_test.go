package extract

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/newsgraph/internal/content"
)

type fakeStrategy struct {
	name    string
	outcome content.Outcome
	calls   int
}

func (f *fakeStrategy) Name() string { return f.name }

func (f *fakeStrategy) Extract(context.Context, string) content.Outcome {
	f.calls++
	return f.outcome
}

type fakeSource struct {
	raw content.RawContent
	err error
}

func (f fakeSource) Fetch(context.Context, string) (content.RawContent, error) {
	return f.raw, f.err
}

type fakeSummarizer struct {
	summary string
	err     error
}

func (f fakeSummarizer) Summarize(string) (string, error) { return f.summary, f.err }

func TestEngineFallsBackToSecondaryOnEmptyPrimary(t *testing.T) {
	t.Parallel()

	primary := &fakeStrategy{name: "structural", outcome: content.Success(content.Extraction{Text: "   "})}
	secondary := &fakeStrategy{name: "readability", outcome: content.Success(content.Extraction{Text: "body"})}

	got, err := NewEngine(nil, primary, secondary).Extract(context.Background(), "https://example.com/a")
	require.NoError(t, err)
	require.Equal(t, "readability", got.Strategy)
	require.Equal(t, "body", got.Text)
	require.Equal(t, 1, primary.calls)
	require.Equal(t, 1, secondary.calls)
}

func TestEngineStopsAtFirstSuccess(t *testing.T) {
	t.Parallel()

	primary := &fakeStrategy{name: "structural", outcome: content.Success(content.Extraction{Text: "first"})}
	secondary := &fakeStrategy{name: "readability", outcome: content.Success(content.Extraction{Text: "second"})}

	got, err := NewEngine(nil, primary, secondary).Extract(context.Background(), "https://example.com/a")
	require.NoError(t, err)
	require.Equal(t, "structural", got.Strategy)
	require.Zero(t, secondary.calls)
}

func TestEngineReportsBothStrategiesFailed(t *testing.T) {
	t.Parallel()

	download := &content.DownloadFailure{URL: "https://example.com/a", Attempts: 3, Err: errors.New("reset")}
	primary := &fakeStrategy{name: "structural", outcome: content.Failed(download)}
	secondary := &fakeStrategy{name: "readability", outcome: content.Empty("no article body")}

	_, err := NewEngine(nil, primary, secondary).Extract(context.Background(), "https://example.com/a")
	require.ErrorIs(t, err, content.ErrBothStrategiesFailed)
	var failure *content.DownloadFailure
	require.ErrorAs(t, err, &failure)
	require.Contains(t, err.Error(), "readability: no article body")
}

func TestEngineHonorsCanceledContext(t *testing.T) {
	t.Parallel()

	primary := &fakeStrategy{name: "structural", outcome: content.Success(content.Extraction{Text: "x"})}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewEngine(nil, primary).Extract(ctx, "https://example.com/a")
	require.ErrorIs(t, err, content.ErrBothStrategiesFailed)
	require.ErrorIs(t, err, context.Canceled)
	require.Zero(t, primary.calls)
}

const articlePage = `<!doctype html>
<html lang="en-IN">
<head>
  <title>Fallback title</title>
  <meta property="og:title" content="Heavy rain lashes Chennai">
  <meta name="description" content="Schools <b>closed</b> across the city.">
  <meta name="author" content="Staff Reporter">
  <meta property="article:published_time" content="2024-11-12T08:30:00+05:30">
  <meta property="og:image" content="/static/lead.jpg">
  <script>var tracking = "ignore me";</script>
</head>
<body>
  <nav><ul><li>Home</li><li>News</li></ul></nav>
  <header><p>Subscribe now</p></header>
  <article>
    <h1>Heavy rain lashes Chennai</h1>
    <p>Heavy   rain lashed
       Chennai on Tuesday.</p>
    <p>Schools remained closed. <a href="/x">Read more</a></p>
    <blockquote><p>Stay indoors, said officials.</p></blockquote>
    <div class="share-buttons"><p>Share on X</p></div>
    <img src="/static/lead.jpg"><img src="https://cdn.example.com/map.png"><img src="data:image/png;base64,AAA">
  </article>
  <footer><p>Copyright</p></footer>
</body>
</html>`

func TestParseStructural(t *testing.T) {
	t.Parallel()

	got, err := ParseStructural([]byte(articlePage), "https://www.thehindu.com/news/cities/chennai/rain.ece")
	require.NoError(t, err)
	require.Equal(t, "Heavy rain lashes Chennai", got.Title)
	require.Equal(t, "Staff Reporter", got.Author)
	require.Equal(t, "2024-11-12T08:30:00+05:30", got.Date)
	require.Equal(t, "en-IN", got.Language)
	require.Equal(t, "Schools closed across the city.", got.Summary)
	require.Equal(t,
		"Heavy rain lashed Chennai on Tuesday. Schools remained closed. Read more Stay indoors, said officials.",
		got.Text,
	)
	require.Equal(t, []string{
		"https://www.thehindu.com/static/lead.jpg",
		"https://cdn.example.com/map.png",
	}, got.ImageURLs)
	require.Equal(t, articlePage, got.HTML)
	require.NotContains(t, got.Text, "Subscribe")
	require.NotContains(t, got.Text, "Share on X")
}

func TestParseStructuralWithoutBodyTextIsEmpty(t *testing.T) {
	t.Parallel()

	got, err := ParseStructural([]byte(`<html><head><title>T</title></head><body><nav><p>menu</p></nav></body></html>`), "https://example.com")
	require.NoError(t, err)
	require.Empty(t, got.Text)
	require.False(t, content.Success(got).OK())
}

func TestStructuralStrategyPropagatesDownloadFailure(t *testing.T) {
	t.Parallel()

	failure := &content.DownloadFailure{URL: "u", Attempts: 3, Err: errors.New("timeout")}
	outcome := NewStructural(fakeSource{err: failure}, nil).Extract(context.Background(), "https://example.com")
	require.Equal(t, content.OutcomeFailed, outcome.Kind)
	require.ErrorIs(t, outcome.Reason, failure)
}

func TestParseStructuralKeepsContentRootsWithChromeLikeClasses(t *testing.T) {
	t.Parallel()

	const para = "<p>The state budget raises spending on rural roads and schools.</p>"
	cases := []struct {
		name string
		page string
	}{
		{"article class", `<html><body><article class="story has-share-bar">` + para + `</article></body></html>`},
		{"body class", `<html><body class="single comments-open"><div>` + para + `</div></body></html>`},
		{"main class", `<html><body><main class="content with-related-rail">` + para + `</main></body></html>`},
		{"wrapper class", `<html><body><div class="wrap has-share-tools">` + para + para + para + `</div></body></html>`},
		{"wrapper holding article", `<html><body><div class="comments-enabled"><article>` + para + `</article></div></body></html>`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			got, err := ParseStructural([]byte(tc.page), "https://example.com/budget")
			require.NoError(t, err)
			require.Contains(t, got.Text, "state budget raises spending")
		})
	}
}

func TestParseStructuralStripsChromeByClassToken(t *testing.T) {
	t.Parallel()

	page := `<html><body><article>
		<p>Monsoon arrives early in Kerala.</p>
		<div class="social_links"><p>Follow us</p></div>
		<div id="comments"><p>Great post!</p></div>
		<ul class="related-stories"><li>Older story</li></ul>
	</article></body></html>`
	got, err := ParseStructural([]byte(page), "https://example.com/monsoon")
	require.NoError(t, err)
	require.Equal(t, "Monsoon arrives early in Kerala.", got.Text)
}

func TestStrategiesRejectNonHTMLContent(t *testing.T) {
	t.Parallel()

	src := fakeSource{raw: content.RawContent{
		Body:        []byte(longArticle()),
		ContentType: "application/pdf",
		Attempts:    1,
	}}
	structural := NewStructural(src, nil).Extract(context.Background(), "https://example.com/a.pdf")
	require.Equal(t, content.OutcomeEmpty, structural.Kind)
	require.ErrorContains(t, structural.Reason, "application/pdf")

	readable := NewReadability(src, nil, nil).Extract(context.Background(), "https://example.com/a.pdf")
	require.Equal(t, content.OutcomeEmpty, readable.Kind)
}

func TestIsHTML(t *testing.T) {
	t.Parallel()

	require.True(t, IsHTML(""))
	require.True(t, IsHTML("text/html; charset=utf-8"))
	require.True(t, IsHTML("application/xhtml+xml"))
	require.False(t, IsHTML("application/json"))
	require.False(t, IsHTML("image/png"))
}

func longArticle() string {
	para := "The state election commission announced on Monday that polling for the local body " +
		"elections will be held in three phases, with counting scheduled for the following week. " +
		"Officials said additional security personnel would be deployed in sensitive booths. "
	var b strings.Builder
	b.WriteString(`<html lang="en"><head><title>Local body polls in three phases</title>`)
	b.WriteString(`<meta name="author" content="Special Correspondent"></head><body>`)
	b.WriteString(`<div class="menu"><a href="/">Home</a> <a href="/india">India</a></div>`)
	b.WriteString(`<article><h1>Local body polls in three phases</h1>`)
	for i := 0; i < 6; i++ {
		b.WriteString("<p>" + para + "</p>")
	}
	b.WriteString(`</article></body></html>`)
	return b.String()
}

func TestParseReadability(t *testing.T) {
	t.Parallel()

	got, err := ParseReadability([]byte(longArticle()), "https://example.com/news/kerala/polls")
	require.NoError(t, err)
	require.Contains(t, got.Title, "Local body polls")
	require.Contains(t, got.Text, "state election commission announced")
	require.NotContains(t, got.Text, "  ")
	require.NotEmpty(t, got.HTML)
}

func TestReadabilityStrategySummaryFallback(t *testing.T) {
	t.Parallel()

	src := fakeSource{raw: content.RawContent{Body: []byte(longArticle()), FinalURL: "https://example.com/a"}}

	withSummary := NewReadability(src, fakeSummarizer{summary: "Polls in three phases."}, nil).
		Extract(context.Background(), "https://example.com/a")
	require.True(t, withSummary.OK())
	require.Equal(t, "Polls in three phases.", withSummary.Extraction.Summary)

	fallback := NewReadability(src, fakeSummarizer{err: errors.New("model missing")}, nil).
		Extract(context.Background(), "https://example.com/a")
	require.True(t, fallback.OK())
	require.True(t, strings.HasSuffix(fallback.Extraction.Summary, "..."))
	require.Equal(t, FallbackSummaryLength+3, len([]rune(fallback.Extraction.Summary)))
}

func TestCleanHelpers(t *testing.T) {
	t.Parallel()

	require.Equal(t, "a b c", CleanText("  a\n\tb   c "))
	require.Equal(t, "Tom & Jerry", StripMarkup("<p>Tom &amp; <i>Jerry</i></p>"))
	require.Equal(t, "", FallbackSummary(""))
	require.Equal(t, "short...", FallbackSummary("short"))
}
