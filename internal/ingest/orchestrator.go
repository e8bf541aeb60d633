// Package ingest runs source crawls end to end: fetch, parse, resolve
// deadlines, validate, dedupe and persist.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/JakeFAU/campaign-crawler/internal/campaign"
	"github.com/JakeFAU/campaign-crawler/internal/deadline"
	"github.com/JakeFAU/campaign-crawler/internal/dedupe"
	"github.com/JakeFAU/campaign-crawler/internal/fetcher/detector"
	"github.com/JakeFAU/campaign-crawler/internal/metrics"
	"github.com/JakeFAU/campaign-crawler/internal/quality"
	"github.com/JakeFAU/campaign-crawler/internal/sink"
	"github.com/JakeFAU/campaign-crawler/internal/storage"
)

// DefaultRunTimeout bounds one invocation when Config leaves it unset.
const DefaultRunTimeout = 8 * time.Minute

// Config holds orchestration knobs.
type Config struct {
	RunTimeout      time.Duration
	SourceDelays    map[campaign.Source]time.Duration
	DetailFetch     bool
	DetailMaxPerRun int
	AlertTopic      string
}

// Saver persists one source batch.
type Saver interface {
	Save(ctx context.Context, records []campaign.CandidateRecord) (sink.SaveResult, error)
}

// Orchestrator drives source crawls sequentially.
type Orchestrator struct {
	static    campaign.Fetcher
	launcher  campaign.BrowserLauncher
	saver     Saver
	archive   *storage.Archive
	publisher campaign.Publisher
	cache     campaign.DeadlineCache
	clock     campaign.Clock
	ids       campaign.IDGenerator
	detector  *detector.Heuristic
	tracer    trace.Tracer
	cfg       Config
	logger    *zap.Logger
	sleep     func(ctx context.Context, d time.Duration) error
}

// New creates an Orchestrator. launcher, archive, publisher and cache may be nil.
func New(
	static campaign.Fetcher,
	launcher campaign.BrowserLauncher,
	saver Saver,
	archive *storage.Archive,
	publisher campaign.Publisher,
	cache campaign.DeadlineCache,
	clock campaign.Clock,
	ids campaign.IDGenerator,
	tracer trace.Tracer,
	cfg Config,
	logger *zap.Logger,
) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("ingest")
	}
	if cfg.RunTimeout <= 0 {
		cfg.RunTimeout = DefaultRunTimeout
	}
	return &Orchestrator{
		static:    static,
		launcher:  launcher,
		saver:     saver,
		archive:   archive,
		publisher: publisher,
		cache:     cache,
		clock:     clock,
		ids:       ids,
		detector:  detector.NewHeuristic(0),
		tracer:    tracer,
		cfg:       cfg,
		logger:    logger.Named("ingest"),
		sleep:     sleepCtx,
	}
}

// RunAll crawls every known source in order, pausing between sources. A
// failing source never stops the ones after it; once the run timeout is
// reached the remaining sources fail with ErrTimeout.
func (o *Orchestrator) RunAll(ctx context.Context) []campaign.SourceResult {
	return o.run(ctx, campaign.Sources())
}

// RunOne crawls a single source under the run timeout.
func (o *Orchestrator) RunOne(ctx context.Context, source campaign.Source) campaign.SourceResult {
	return o.run(ctx, []campaign.Source{source})[0]
}

func (o *Orchestrator) run(ctx context.Context, sources []campaign.Source) []campaign.SourceResult {
	ctx, cancel := context.WithTimeout(ctx, o.cfg.RunTimeout)
	defer cancel()

	runID := o.newRunID()
	ctx, span := o.tracer.Start(ctx, "ingest.run", trace.WithAttributes(
		attribute.String("run_id", runID),
		attribute.Int("sources", len(sources)),
	))
	defer span.End()

	logger := o.logger.With(zap.String("run_id", runID))
	logger.Info("crawl run started", zap.Int("sources", len(sources)))

	browser := newBrowserScope(o.launcher)
	defer browser.close()

	results := make([]campaign.SourceResult, 0, len(sources))
	for i, source := range sources {
		if ctx.Err() != nil {
			results = append(results, o.timedOut(source))
			continue
		}
		results = append(results, o.crawlSource(ctx, browser, runID, source))
		if i < len(sources)-1 {
			if delay := o.cfg.SourceDelays[source]; delay > 0 {
				logger.Debug("pausing between sources", zap.String("source", string(source)), zap.Duration("delay", delay))
				if err := o.sleep(ctx, delay); err != nil {
					logger.Warn("run deadline reached during source delay", zap.Error(err))
				}
			}
		}
	}

	successful := 0
	for _, r := range results {
		if r.Success {
			successful++
		}
	}
	span.SetAttributes(attribute.Int("successful", successful))
	logger.Info("crawl run finished", zap.Int("successful", successful), zap.Int("failed", len(results)-successful))
	return results
}

func (o *Orchestrator) timedOut(source campaign.Source) campaign.SourceResult {
	o.logger.Warn("source skipped after run timeout", zap.String("source", string(source)))
	metrics.ObserveRun(string(source), false)
	return campaign.SourceResult{
		Source: source,
		Error:  fmt.Errorf("run deadline exceeded before crawl: %w", campaign.ErrTimeout).Error(),
	}
}

// crawlSource runs the pipeline for one source. Fetch and parse failures
// fail the source, and so does reaching the run deadline at any stage. Any
// other persistence failure is reported but the crawl itself still counts
// as successful.
func (o *Orchestrator) crawlSource(ctx context.Context, browser *browserScope, runID string, source campaign.Source) campaign.SourceResult {
	start := time.Now()
	ctx, span := o.tracer.Start(ctx, "ingest.source", trace.WithAttributes(attribute.String("source", string(source))))
	defer span.End()
	logger := o.logger.With(zap.String("run_id", runID), zap.String("source", string(source)))

	result := campaign.SourceResult{Source: source}
	finish := func() campaign.SourceResult {
		result.Duration = time.Since(start)
		result.DurationMS = result.Duration.Milliseconds()
		metrics.ObserveRun(string(source), result.Success)
		span.SetAttributes(attribute.Bool("success", result.Success), attribute.Int("count", result.Count), attribute.Int("saved", result.Saved))
		return result
	}

	cfg, ok := campaign.Lookup(source)
	if !ok {
		result.Error = fmt.Errorf("%w: %s", campaign.ErrUnknownSource, source).Error()
		span.SetStatus(codes.Error, result.Error)
		return finish()
	}

	fail := func(err error) campaign.SourceResult {
		logger.Error("source crawl failed", zap.Error(err))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		result.Success = false
		result.Error = err.Error()
		return finish()
	}

	records, err := o.fetchListing(ctx, browser, runID, cfg, logger)
	if err != nil {
		return fail(asTimeout(ctx, err))
	}
	metrics.ObserveItems(string(source), "parsed", len(records))

	o.resolveDeadlines(ctx, source, records, logger)
	if runExpired(ctx) {
		return fail(fmt.Errorf("%w: resolving deadlines: %v", campaign.ErrTimeout, ctx.Err()))
	}

	report := quality.Analyze(records, o.clock.Now())
	metrics.SetQualityScore(string(source), report.Score)
	o.reportAlerts(ctx, source, report, logger)

	unique := dedupe.Dedupe(records)
	metrics.ObserveItems(string(source), "deduped", len(unique))

	result.Success = true
	result.Count = len(unique)
	result.Validation = &report

	saved, err := o.saver.Save(ctx, unique)
	result.Saved = saved.Saved
	if err != nil && runExpired(ctx) {
		return fail(asTimeout(ctx, err))
	}
	if err != nil {
		logger.Error("persisting batch failed", zap.Error(err))
		span.RecordError(err)
		result.Error = err.Error()
	}
	logger.Info("source crawl finished",
		zap.Int("parsed", len(records)),
		zap.Int("unique", len(unique)),
		zap.Int("saved", saved.Saved),
		zap.Int("skipped", saved.Skipped),
		zap.Int("quality_score", report.Score),
	)
	return finish()
}

// resolveDeadlines attaches a resolution to every record. The detail-page
// budget is scoped to this source run.
func (o *Orchestrator) resolveDeadlines(ctx context.Context, source campaign.Source, records []campaign.CandidateRecord, logger *zap.Logger) {
	ctx, span := o.tracer.Start(ctx, "ingest.deadlines")
	defer span.End()

	strategies := []deadline.Strategy{deadline.ListPage{}}
	if o.cfg.DetailFetch && o.static != nil {
		opts := []deadline.DetailOption{deadline.WithMaxFetches(o.cfg.DetailMaxPerRun)}
		if o.cache != nil {
			opts = append(opts, deadline.WithCache(o.cache))
		}
		strategies = append(strategies, deadline.NewDetailPage(o.static, logger, opts...))
	}
	resolver := deadline.NewResolver(o.clock, logger, strategies...)
	for i := range records {
		res := resolver.Resolve(ctx, source, records[i].RawDeadlineText, records[i].DetailURL)
		records[i].Deadline = &res
	}
}

// reportAlerts logs every alert and publishes the critical ones.
func (o *Orchestrator) reportAlerts(ctx context.Context, source campaign.Source, report campaign.QualityReport, logger *zap.Logger) {
	for _, alert := range report.Alerts {
		fields := []zap.Field{zap.String("campaign", alert.Campaign), zap.String("message", alert.Message)}
		switch alert.Severity {
		case campaign.SeverityError:
			logger.Error("quality alert", fields...)
		case campaign.SeverityWarning:
			logger.Warn("quality alert", fields...)
		default:
			logger.Info("quality alert", fields...)
		}
	}
	if o.publisher == nil || o.cfg.AlertTopic == "" {
		return
	}
	for _, alert := range quality.CriticalAlerts(report) {
		if alert.Source == "" {
			alert.Source = source
		}
		if _, err := o.publisher.Publish(ctx, o.cfg.AlertTopic, alert); err != nil {
			logger.Warn("publishing critical alert failed", zap.String("message", alert.Message), zap.Error(err))
		}
	}
}

func (o *Orchestrator) newRunID() string {
	if o.ids != nil {
		if id, err := o.ids.NewID(); err == nil {
			return id
		}
	}
	return "run-" + strconv.FormatInt(o.clock.Now().UnixNano(), 10)
}

func runExpired(ctx context.Context) bool {
	return errors.Is(ctx.Err(), context.DeadlineExceeded)
}

// asTimeout prefixes err with ErrTimeout when a deadline caused it.
func asTimeout(ctx context.Context, err error) error {
	if errors.Is(err, campaign.ErrTimeout) || runExpired(ctx) {
		return fmt.Errorf("%w: %v", campaign.ErrTimeout, err)
	}
	return err
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("wait %s: %w", d, ctx.Err())
	case <-timer.C:
		return nil
	}
}
