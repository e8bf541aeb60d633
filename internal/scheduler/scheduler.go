// Package scheduler runs periodic crawls and limiter housekeeping on cron
// schedules when the service runs without an external trigger.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/JakeFAU/campaign-crawler/internal/campaign"
	"github.com/JakeFAU/campaign-crawler/internal/ingest"
)

// Runner executes a crawl mode.
type Runner interface {
	Run(ctx context.Context, mode string) (ingest.RunSummary, error)
}

// Sweeper drops idle rate limit state.
type Sweeper interface {
	Sweep(now time.Time) int
}

// Config holds cron specs. SweepSpec may be empty when no sweeper is given.
type Config struct {
	CrawlSpec string
	SweepSpec string
	Location  *time.Location
}

// Scheduler wraps robfig/cron.
type Scheduler struct {
	cron    *cron.Cron
	runner  Runner
	sweeper Sweeper
	clock   campaign.Clock
	cfg     Config
	logger  *zap.Logger
}

// New constructs a Scheduler. sweeper may be nil.
func New(runner Runner, sweeper Sweeper, clock campaign.Clock, cfg Config, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	logger = logger.Named("scheduler")
	cl := cronLogger{logger: logger}
	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(cfg.Location),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		runner:  runner,
		sweeper: sweeper,
		clock:   clock,
		cfg:     cfg,
		logger:  logger,
	}
}

// Start registers the jobs and starts the cron loop. ctx bounds every job.
func (s *Scheduler) Start(ctx context.Context) error {
	if _, err := s.cron.AddFunc(s.cfg.CrawlSpec, func() { s.runCrawl(ctx) }); err != nil {
		return fmt.Errorf("add crawl job: %w", err)
	}
	if s.sweeper != nil && s.cfg.SweepSpec != "" {
		if _, err := s.cron.AddFunc(s.cfg.SweepSpec, s.runSweep); err != nil {
			return fmt.Errorf("add sweep job: %w", err)
		}
	}
	s.cron.Start()
	s.logger.Info("scheduler started",
		zap.String("crawl_spec", s.cfg.CrawlSpec),
		zap.String("sweep_spec", s.cfg.SweepSpec),
		zap.String("location", s.cfg.Location.String()),
	)
	return nil
}

// Stop halts scheduling and waits for a running job to return or ctx to end.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		s.logger.Warn("scheduler stop timed out with a job still running")
	}
	s.logger.Info("scheduler stopped")
}

func (s *Scheduler) runCrawl(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	summary, err := s.runner.Run(ctx, ingest.ModeAll)
	if err != nil {
		s.logger.Error("scheduled crawl failed", zap.Error(err))
		return
	}
	s.logger.Info("scheduled crawl completed",
		zap.Bool("success", summary.Success),
		zap.Int("successful", summary.Summary.Successful),
		zap.Int("failed", summary.Summary.Failed),
		zap.Int("saved", summary.Summary.TotalSaved),
	)
}

func (s *Scheduler) runSweep() {
	if removed := s.sweeper.Sweep(s.clock.Now()); removed > 0 {
		s.logger.Debug("rate limit state swept", zap.Int("removed", removed))
	}
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	logger *zap.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Sugar().Debugw("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Sugar().Errorw("cron: "+msg, append(keysAndValues, "error", err)...)
}
