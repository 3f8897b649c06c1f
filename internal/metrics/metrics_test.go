package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestSanitizeSite(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{"standard http", "http://example.com/path", "example.com"},
		{"standard https", "https://Dinamalar.com/news/1", "dinamalar.com"},
		{"no scheme", "example.com/path", "example.com"},
		{"host with port", "example.com:8080", "example.com"},
		{"invalid url", "http://%", "unknown"},
		{"empty string", "", "unknown"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := SanitizeSite(tc.input); got != tc.expected {
				t.Errorf("SanitizeSite(%q) = %q; want %q", tc.input, got, tc.expected)
			}
		})
	}
}

func TestObserveFunctionsInitializeCollectors(t *testing.T) {
	Init()
	Init()

	before := testutil.ToFloat64(entriesTotal.WithLabelValues("resolved"))
	ObserveEntry("resolved")
	if got := testutil.ToFloat64(entriesTotal.WithLabelValues("resolved")); got != before+1 {
		t.Errorf("expected entries counter to grow by 1, got %f -> %f", before, got)
	}

	ObserveDownload("https://example.com/a", "success", 512)
	if got := testutil.ToFloat64(downloadBytesTotal.WithLabelValues("example.com")); got < 512 {
		t.Errorf("expected at least 512 bytes recorded, got %f", got)
	}

	ObserveExtraction("structural", "empty")
	ObserveDownloadRetry("https://example.com/a")
	ObserveGraphWriteFailure()
	ObserveHostGateWait("example.com", 20*time.Millisecond)
	ObserveHTTPRequest("GET", "/v1/stats", 200, 5*time.Millisecond)
	IncActiveWorkers()
	DecActiveWorkers()
}

// Fuzz test for SanitizeSite.
func FuzzSanitizeSite(f *testing.F) {
	testcases := []string{"http://example.com", "https://thehindu.com", "ftp://example.com"}
	for _, tc := range testcases {
		f.Add(tc)
	}
	f.Fuzz(func(t *testing.T, orig string) {
		if SanitizeSite(orig) == "" {
			t.Errorf("SanitizeSite(%q) returned an empty string", orig)
		}
	})
}
