// Package api hosts the operator HTTP surface that runs alongside a crawl.
// Routes:
//   - GET /healthz and /readyz for liveness and readiness probes.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/status for a snapshot of crawl progress.
package api
