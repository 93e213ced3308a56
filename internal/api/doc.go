// Package api hosts the HTTP server, middleware, and REST handlers for operator
// access. Notable routes:
//   - GET /healthz / readyz for Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/sources to inspect the registry.
//   - POST /v1/runs to queue an ingestion run, GET /v1/runs and
//     /v1/runs/{run_id} to read run reports.
package api
