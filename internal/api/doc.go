// Package api hosts the HTTP polling surface. Notable routes:
//   - GET /healthz and /readyz for probes.
//   - GET /metrics for Prometheus scraping.
//   - POST /v1/searches to start a run, GET /v1/searches/{task_id} to poll it.
//   - GET /v1/session/health, POST /v1/session/health/check and
//     GET /v1/session/info for the LinkedIn session.
package api
