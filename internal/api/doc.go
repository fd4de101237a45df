// Package api hosts the HTTP status server for job runs. Routes:
//   - GET /healthz and /readyz for probes.
//   - GET /metrics for Prometheus scraping.
//   - GET /api/jobs and /api/jobs/{job_id} for run history read through
//     store.RunRepository.
package api
