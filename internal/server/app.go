// Package server builds the application's dependency graph and runs it.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/campaign-crawler/internal/api"
	rediscache "github.com/JakeFAU/campaign-crawler/internal/cache/redis"
	"github.com/JakeFAU/campaign-crawler/internal/campaign"
	"github.com/JakeFAU/campaign-crawler/internal/clock/system"
	"github.com/JakeFAU/campaign-crawler/internal/config"
	collyfetcher "github.com/JakeFAU/campaign-crawler/internal/fetcher/colly"
	headlessfetcher "github.com/JakeFAU/campaign-crawler/internal/fetcher/headless"
	"github.com/JakeFAU/campaign-crawler/internal/id/uuid"
	"github.com/JakeFAU/campaign-crawler/internal/ingest"
	"github.com/JakeFAU/campaign-crawler/internal/logging"
	"github.com/JakeFAU/campaign-crawler/internal/metrics"
	"github.com/JakeFAU/campaign-crawler/internal/policy/window"
	memorypublisher "github.com/JakeFAU/campaign-crawler/internal/publisher/memory"
	gcppublisher "github.com/JakeFAU/campaign-crawler/internal/publisher/pubsub"
	"github.com/JakeFAU/campaign-crawler/internal/scheduler"
	"github.com/JakeFAU/campaign-crawler/internal/sink"
	"github.com/JakeFAU/campaign-crawler/internal/storage"
	memorystorage "github.com/JakeFAU/campaign-crawler/internal/storage/memory"
	pgstore "github.com/JakeFAU/campaign-crawler/internal/storage/postgres"
	"github.com/JakeFAU/campaign-crawler/internal/telemetry"
)

const shutdownTimeout = 10 * time.Second

// Store is the persistence surface the app needs.
type Store interface {
	campaign.Store
	api.Pinger
}

// App contains the application's dependencies.
type App struct {
	cfg          config.Config
	logger       *zap.Logger
	clock        *system.Clock
	store        Store
	orchestrator *ingest.Orchestrator
	limiter      *window.Limiter
	apiServer    *api.Server
	scheduler    *scheduler.Scheduler
	tracer       *sdktrace.TracerProvider
	closers      []namedCloser
}

type namedCloser struct {
	name  string
	close func() error
}

// Build creates the application's dependencies. Anything opened before a
// failure is released before returning.
func Build(ctx context.Context, cfg config.Config) (app *App, err error) {
	logger, err := logging.New(cfg.Logging.Development, cfg.Logging.Level)
	if err != nil {
		return nil, fmt.Errorf("logger init failed: %w", err)
	}
	zap.ReplaceGlobals(logger)
	metrics.Init()

	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	app = &App{cfg: cfg, logger: logger, clock: system.New(loc)}
	defer func() {
		if err != nil {
			app.closeInfrastructure()
		}
	}()

	logger.Info("building application dependencies",
		zap.String("environment", cfg.App.Environment),
		zap.String("timezone", loc.String()),
		zap.Int("server_port", cfg.Server.Port),
	)

	app.tracer, err = telemetry.InitTracerProvider(ctx, cfg.Telemetry.ServiceName)
	if err != nil {
		return nil, fmt.Errorf("tracer init failed: %w", err)
	}

	if err = app.setupStore(ctx); err != nil {
		return nil, err
	}
	archive, err := app.setupArchive(ctx)
	if err != nil {
		return nil, err
	}
	cache, err := app.setupCache(ctx)
	if err != nil {
		return nil, err
	}
	publisher, err := app.setupPublisher(ctx)
	if err != nil {
		return nil, err
	}

	static := collyfetcher.New(collyfetcher.Config{
		UserAgents:     cfg.Crawler.UserAgents,
		AcceptLanguage: cfg.Crawler.AcceptLanguage,
		Timeout:        cfg.Crawler.FetchTimeout,
		HostRPS:        cfg.Crawler.HostRPS,
		HostBurst:      cfg.Crawler.HostBurst,
	})
	logger.Info("using colly static fetcher",
		zap.Float64("host_rps", cfg.Crawler.HostRPS),
		zap.Duration("timeout", cfg.Crawler.FetchTimeout),
	)

	var launcher campaign.BrowserLauncher
	if cfg.Headless.Enabled {
		launcher = headlessfetcher.NewLauncher(headlessfetcher.Config{
			ExecPath:          cfg.Headless.ExecPath,
			UserAgent:         cfg.Headless.UserAgent,
			AcceptLanguage:    cfg.Crawler.AcceptLanguage,
			NavigationTimeout: cfg.Headless.NavTimeout,
			Settle:            cfg.Headless.Settle,
			MaxScrolls:        cfg.Headless.MaxScrolls,
			ScrollStep:        cfg.Headless.ScrollStep,
			ScrollInterval:    cfg.Headless.ScrollInterval,
			ViewportWidth:     cfg.Headless.ViewportWidth,
			ViewportHeight:    cfg.Headless.ViewportHeight,
		})
		logger.Info("using headless renderer", zap.Duration("nav_timeout", cfg.Headless.NavTimeout))
	} else {
		logger.Info("headless renderer disabled, static fetch only")
	}

	app.orchestrator = ingest.New(
		static,
		launcher,
		sink.New(app.store, app.clock, logger.Named("sink")),
		archive,
		publisher,
		cache,
		app.clock,
		uuid.New(),
		telemetry.Tracer(),
		ingest.Config{
			RunTimeout:      cfg.Crawler.RunTimeout,
			SourceDelays:    sourceDelays(cfg.Crawler.SourceDelays, logger),
			DetailFetch:     cfg.Crawler.DetailFetch,
			DetailMaxPerRun: cfg.Crawler.DetailMaxPerRun,
			AlertTopic:      cfg.PubSub.TopicName,
		},
		logger.Named("ingest"),
	)

	if cfg.RateLimit.Enabled {
		app.limiter = window.New(window.Config{
			Window:  cfg.RateLimit.Window,
			Limit:   cfg.RateLimit.MaxRequests,
			Paths:   cfg.RateLimit.Paths,
			IdleTTL: cfg.RateLimit.IdleTTL,
		})
		logger.Info("inbound rate limit enabled",
			zap.Duration("window", cfg.RateLimit.Window),
			zap.Int("max_requests", cfg.RateLimit.MaxRequests),
		)
	}

	app.apiServer = api.NewServer(app.orchestrator, app.store, app.limiter, app.clock, api.Config{
		AuthRequired:   cfg.AuthRequired(),
		CronSecret:     cfg.Auth.CronSecret,
		RequestTimeout: cfg.Server.RequestTimeout,
	}, logger)

	if cfg.Schedule.Enabled {
		var sweeper scheduler.Sweeper
		if app.limiter != nil {
			sweeper = app.limiter
		}
		app.scheduler = scheduler.New(app.orchestrator, sweeper, app.clock, scheduler.Config{
			CrawlSpec: cfg.Schedule.Spec,
			SweepSpec: cfg.Schedule.SweepSpec,
			Location:  loc,
		}, logger)
	}
	return app, nil
}

func (a *App) setupStore(ctx context.Context) error {
	if a.cfg.DB.DSN == "" {
		a.logger.Warn("no DSN specified for database, using in-memory campaign store")
		a.store = memorystorage.NewCampaignStore()
		return nil
	}
	pg, err := pgstore.NewCampaignStore(ctx, pgstore.Config{
		DSN:             a.cfg.DB.DSN,
		Table:           a.cfg.DB.Table,
		MaxConns:        a.cfg.DB.MaxConns,
		MinConns:        a.cfg.DB.MinConns,
		MaxConnLifetime: a.cfg.DB.MaxConnLifetime,
	})
	if err != nil {
		return fmt.Errorf("campaign store init failed: %w", err)
	}
	a.store = pg
	a.addCloser("campaign store", func() error {
		pg.Close()
		return nil
	})
	a.logger.Info("campaign store initialized", zap.String("table", a.cfg.DB.Table))
	return nil
}

func (a *App) setupArchive(ctx context.Context) (*storage.Archive, error) {
	archive, closeFn, err := storage.Open(ctx, a.cfg.Storage, a.logger)
	if err != nil {
		return nil, fmt.Errorf("snapshot archive init failed: %w", err)
	}
	a.addCloser("snapshot archive", closeFn)
	return archive, nil
}

func (a *App) setupCache(ctx context.Context) (campaign.DeadlineCache, error) {
	if a.cfg.Redis.Addr == "" {
		a.logger.Info("no redis address configured, detail deadlines are not cached")
		return nil, nil
	}
	cache, client, err := rediscache.New(ctx, rediscache.Config{
		Addr:     a.cfg.Redis.Addr,
		Password: a.cfg.Redis.Password,
		DB:       a.cfg.Redis.DB,
		TTL:      a.cfg.Redis.TTL,
		Prefix:   a.cfg.Redis.Prefix,
	})
	if err != nil {
		return nil, fmt.Errorf("deadline cache init failed: %w", err)
	}
	a.addCloser("redis client", client.Close)
	a.logger.Info("deadline cache initialized", zap.String("addr", a.cfg.Redis.Addr), zap.Duration("ttl", a.cfg.Redis.TTL))
	return cache, nil
}

func (a *App) setupPublisher(ctx context.Context) (campaign.Publisher, error) {
	if a.cfg.PubSub.TopicName == "" || a.cfg.PubSub.ProjectID == "" {
		a.logger.Warn("no Pub/Sub topic configured, using in-memory alert publisher")
		return memorypublisher.New(), nil
	}
	pub, err := gcppublisher.New(ctx, a.cfg.PubSub.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("pubsub client init failed: %w", err)
	}
	a.addCloser("pubsub publisher", pub.Close)
	if err := pub.CheckTopic(ctx, a.cfg.PubSub.TopicName); err != nil {
		return nil, fmt.Errorf("pubsub topic check failed: %w", err)
	}
	a.logger.Info("Pub/Sub alert publisher initialized",
		zap.String("project", a.cfg.PubSub.ProjectID),
		zap.String("topic", a.cfg.PubSub.TopicName),
	)
	return pub, nil
}

func (a *App) addCloser(name string, fn func() error) {
	if fn != nil {
		a.closers = append(a.closers, namedCloser{name: name, close: fn})
	}
}

// Crawl runs one invocation of mode without serving HTTP.
func (a *App) Crawl(ctx context.Context, mode string) (ingest.RunSummary, error) {
	summary, err := a.orchestrator.Run(ctx, mode)
	if err != nil {
		return summary, fmt.Errorf("crawl %q: %w", mode, err)
	}
	return summary, nil
}

// Handler exposes the HTTP surface.
func (a *App) Handler() http.Handler {
	return a.apiServer.Handler()
}

// Logger returns the application logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Run serves HTTP and the optional schedule until ctx is canceled or a
// termination signal arrives.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if a.scheduler != nil {
		if err := a.scheduler.Start(ctx); err != nil {
			return fmt.Errorf("start scheduler: %w", err)
		}
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			stop()
		}
	}()

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}
	if a.scheduler != nil {
		a.scheduler.Stop(shutdownCtx)
	}
	a.Close(shutdownCtx)

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	default:
		return nil
	}
}

// Close releases infrastructure and flushes observability.
func (a *App) Close(ctx context.Context) {
	a.closeInfrastructure()
	if a.tracer != nil {
		if err := a.tracer.Shutdown(ctx); err != nil {
			a.logger.Warn("tracer shutdown failed", zap.Error(err))
		}
	}
	a.logger.Info("shutdown complete")
	_ = a.logger.Sync()
}

// closeInfrastructure releases resources in reverse order of acquisition.
func (a *App) closeInfrastructure() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		c := a.closers[i]
		if err := c.close(); err != nil {
			a.logger.Warn("close failed", zap.String("resource", c.name), zap.Error(err))
		}
	}
	a.closers = nil
}

// sourceDelays keys configured delays by source; unknown names are dropped.
func sourceDelays(raw map[string]time.Duration, logger *zap.Logger) map[campaign.Source]time.Duration {
	out := make(map[campaign.Source]time.Duration, len(raw))
	for name, d := range raw {
		source, err := campaign.ParseSource(name)
		if err != nil {
			logger.Warn("ignoring delay for unknown source", zap.String("source", name))
			continue
		}
		out[source] = d
	}
	return out
}
