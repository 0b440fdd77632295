// Package api hosts the read-only status server that runs beside a crawl.
// Notable routes:
//   - GET /healthz and /readyz for Kubernetes health checks.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/progress for the live run summary.
//   - GET /v1/results and /v1/results/{username} for accepted entries.
package api
