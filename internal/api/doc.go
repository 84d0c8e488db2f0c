// Package api hosts the status HTTP server run alongside a crawl. Notable
// routes:
//   - GET /healthz and /readyz for probes.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/progress for the live run counters.
//   - GET /v1/ledger for paging through the progress ledger.
package api
