// Package api hosts the read-only HTTP query surface over the content graph.
// Routes:
//   - GET /healthz and /readyz for probes.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/feeds/related, /v1/feeds/search, /v1/topics/trending and /v1/stats
//     for graph discovery.
//   - GET /v1/records?url= for the resolution record of a single link, or
//     GET /v1/records?source_id=&language=&region=&state=&limit=&offset= for a listing.
//   - GET /v1/sources for the configured feeds.
package api
