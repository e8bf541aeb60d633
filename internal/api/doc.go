// Package api hosts the HTTP trigger for crawl runs. Routes:
//   - GET|POST /crawl?mode=all|<source> runs the pipeline and returns the run summary.
//   - GET /healthz and /readyz for probes.
//   - GET /metrics for Prometheus scraping.
//
// Every route passes through the per-caller fixed-window limiter; /crawl also
// requires the bearer secret when auth is enforced.
package api
