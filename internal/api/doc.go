// Package api hosts the status listener that runs alongside a search run.
// Routes:
//   - GET /healthz and /readyz for probes.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/run for the progress of the current run.
package api
