// Package main hosts the campaign-crawler entrypoint.
//
// Architecture overview:
//   - Trigger: internal/api.Server exposes /crawl?mode= behind an optional bearer secret and a fixed-window
//     limiter keyed by caller and path. An external scheduler (or the built-in cron when schedule.enabled is
//     set) hits it; each invocation crawls sources sequentially with a pause between them.
//   - Fetch: sources that need client-side rendering go through a single chromedp browser opened lazily per
//     invocation, falling back to the Colly static fetcher when rendering fails or returns nothing.
//   - Pipeline: parse listing cards, resolve deadlines (list page text, then detail pages cached in Redis),
//     score batch quality, publish critical alerts to Pub/Sub, dedupe, and upsert into Postgres keyed by
//     (source_site, campaign_id). Raw listing HTML is archived to local disk or GCS when configured.
//   - Plumbing: Viper config with CAMPAIGN_ env overrides, zap logging, Prometheus metrics on /metrics, and
//     OpenTelemetry spans around each run and source.
//
// Quick checklist:
//   - Run once: go run ./cmd/campaign-crawler crawl --mode all --config config.yaml
//   - Serve: go run ./cmd/campaign-crawler serve; set CAMPAIGN_AUTH_CRON_SECRET in production.
//   - Persistence: CAMPAIGN_DB_DSN, otherwise rows are kept in memory for the life of the process.
package main
