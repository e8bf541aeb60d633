package ingest

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/campaign-crawler/internal/campaign"
	"github.com/JakeFAU/campaign-crawler/internal/parser"
)

var errNoBrowser = errors.New("rendered fetch unavailable")

// browserScope opens at most one browser per invocation, on first use.
type browserScope struct {
	launcher campaign.BrowserLauncher
	session  campaign.RenderSession
	err      error
	opened   bool
}

func newBrowserScope(launcher campaign.BrowserLauncher) *browserScope {
	return &browserScope{launcher: launcher}
}

func (b *browserScope) get(ctx context.Context) (campaign.RenderSession, error) {
	if b.launcher == nil {
		return nil, errNoBrowser
	}
	if !b.opened {
		b.opened = true
		b.session, b.err = b.launcher.Open(ctx)
	}
	return b.session, b.err
}

func (b *browserScope) close() {
	if b.session != nil {
		b.session.Close()
	}
}

// fetchListing retrieves and parses the source listing following its fetch
// plan. A rendered attempt that errors or yields no candidates falls back to
// the static URL.
func (o *Orchestrator) fetchListing(
	ctx context.Context,
	browser *browserScope,
	runID string,
	cfg campaign.SourceConfig,
	logger *zap.Logger,
) ([]campaign.CandidateRecord, error) {
	snapshot := 0
	if cfg.Plan == campaign.PlanRenderedFirst && cfg.RenderedURL != "" {
		records, err := o.fetchRendered(ctx, browser, runID, cfg, &snapshot)
		if err == nil && len(records) > 0 {
			return records, nil
		}
		if err == nil {
			err = campaign.ErrEmptyResult
		}
		if ctx.Err() != nil {
			return nil, err
		}
		logger.Warn("rendered fetch failed, falling back to static",
			zap.String("url", cfg.RenderedURL),
			zap.String("static_url", cfg.StaticURL),
			zap.Error(err),
		)
	}
	if cfg.StaticURL == "" {
		return nil, fmt.Errorf("source %s has no static listing url", cfg.Source)
	}
	if o.static == nil {
		return nil, fmt.Errorf("static fetcher is not configured")
	}

	ctx, span := o.tracer.Start(ctx, "ingest.fetch.static")
	defer span.End()
	html, err := o.static.Fetch(ctx, cfg.StaticURL)
	if err != nil {
		return nil, fmt.Errorf("fetch static listing: %w", err)
	}
	o.archiveSnapshot(ctx, cfg.Source, runID, &snapshot, html, logger)

	records, err := parser.ParseHTML(html, cfg)
	if err != nil {
		return nil, fmt.Errorf("parse static listing: %w", err)
	}
	if len(records) == 0 {
		fields := []zap.Field{zap.String("url", cfg.StaticURL)}
		if shell, reason := o.detector.ClientRendered(html); shell {
			fields = append(fields, zap.String("hint", "listing looks client-rendered: "+reason))
		}
		logger.Warn("listing produced no candidates", fields...)
	}
	return records, nil
}

func (o *Orchestrator) fetchRendered(
	ctx context.Context,
	browser *browserScope,
	runID string,
	cfg campaign.SourceConfig,
	snapshot *int,
) ([]campaign.CandidateRecord, error) {
	ctx, span := o.tracer.Start(ctx, "ingest.fetch.rendered")
	defer span.End()

	session, err := browser.get(ctx)
	if err != nil {
		return nil, fmt.Errorf("open browser: %w", err)
	}
	html, err := session.Render(ctx, cfg.RenderedURL)
	if err != nil {
		return nil, fmt.Errorf("render listing: %w", err)
	}
	o.archiveSnapshot(ctx, cfg.Source, runID, snapshot, html, o.logger)

	records, err := parser.ParseHTML(html, cfg)
	if err != nil {
		return nil, fmt.Errorf("parse rendered listing: %w", err)
	}
	return records, nil
}

// archiveSnapshot stores html when an archive is configured. Failures are logged only.
func (o *Orchestrator) archiveSnapshot(ctx context.Context, source campaign.Source, runID string, n *int, html string, logger *zap.Logger) {
	if o.archive == nil {
		return
	}
	uri, err := o.archive.Put(ctx, source, runID, *n, html)
	*n++
	if err != nil {
		logger.Warn("archiving listing snapshot failed", zap.String("source", string(source)), zap.Error(err))
		return
	}
	logger.Debug("listing snapshot archived", zap.String("uri", uri))
}
