package deadline

import (
	"context"
	"strings"
	"sync/atomic"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/JakeFAU/campaign-crawler/internal/campaign"
)

var commonDetailSelectors = []string{
	".campaign-info", ".detail-info", ".info-section",
	".date-info", ".deadline", ".period",
	"p", "div", "span", "strong",
}

// DetailPage fetches the candidate's detail page and scans its sections.
// A DetailPage is scoped to one source run: MaxFetches caps the number of
// network fetches it performs, cache hits excluded.
type DetailPage struct {
	fetcher    campaign.Fetcher
	cache      campaign.DeadlineCache
	logger     *zap.Logger
	maxFetches int64
	fetches    atomic.Int64
}

// DetailOption customizes a DetailPage.
type DetailOption func(*DetailPage)

// WithCache memoizes resolved detail deadlines per URL.
func WithCache(cache campaign.DeadlineCache) DetailOption {
	return func(d *DetailPage) {
		d.cache = cache
	}
}

// WithMaxFetches bounds detail fetches; n <= 0 means unlimited.
func WithMaxFetches(n int) DetailOption {
	return func(d *DetailPage) {
		d.maxFetches = int64(n)
	}
}

// NewDetailPage builds the detail-page strategy.
func NewDetailPage(fetcher campaign.Fetcher, logger *zap.Logger, opts ...DetailOption) *DetailPage {
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &DetailPage{fetcher: fetcher, logger: logger}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Method implements Strategy.
func (d *DetailPage) Method() campaign.Method { return campaign.MethodDetailPage }

// Resolve implements Strategy. Fetch and parse failures decline quietly so
// the chain moves on to the fallback.
func (d *DetailPage) Resolve(ctx context.Context, in Input) (time.Time, bool) {
	if in.DetailURL == "" || d.fetcher == nil {
		return time.Time{}, false
	}
	logger := d.logger.With(zap.String("source", string(in.Source)), zap.String("detail_url", in.DetailURL))

	if d.cache != nil {
		cached, ok, err := d.cache.Get(ctx, in.DetailURL)
		switch {
		case err != nil:
			logger.Warn("deadline cache read failed", zap.Error(err))
		case ok && cached.Deadline.After(in.Now):
			return cached.Deadline, true
		}
	}

	if d.maxFetches > 0 && d.fetches.Add(1) > d.maxFetches {
		return time.Time{}, false
	}
	html, err := d.fetcher.Fetch(ctx, in.DetailURL)
	if err != nil {
		logger.Debug("detail fetch failed", zap.Error(err))
		return time.Time{}, false
	}
	deadline, ok := ScanDetail(html, in.Source, in.Now)
	if !ok {
		return time.Time{}, false
	}

	if d.cache != nil {
		res := campaign.DeadlineResolution{Deadline: deadline, Method: campaign.MethodDetailPage}
		if err := d.cache.Set(ctx, in.DetailURL, res); err != nil {
			logger.Warn("deadline cache write failed", zap.Error(err))
		}
	}
	return deadline, true
}

// ScanDetail looks for a deadline in the sections of a detail page. The
// source's own selectors are scanned before the common ones, and the whole
// page text comes last. A review-period start date is only used when no section
// carries any other marker.
func ScanDetail(html string, source campaign.Source, now time.Time) (time.Time, bool) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return time.Time{}, false
	}
	texts := sectionTexts(doc, detailSelectors(source))
	for _, text := range texts {
		if d, ok := matchPrimary(text, now); ok {
			return d, true
		}
	}
	for _, text := range texts {
		if d, ok := matchReviewPeriod(text, now); ok {
			return d, true
		}
	}
	return time.Time{}, false
}

func detailSelectors(source campaign.Source) []string {
	cfg, ok := campaign.Lookup(source)
	if !ok {
		return commonDetailSelectors
	}
	return append(cfg.DetailSelectors, commonDetailSelectors...)
}

func sectionTexts(doc *goquery.Document, selectors []string) []string {
	var texts []string
	for _, sel := range selectors {
		doc.Find(sel).Each(func(_ int, s *goquery.Selection) {
			if text := strings.TrimSpace(s.Text()); text != "" {
				texts = append(texts, text)
			}
		})
	}
	if body := strings.TrimSpace(doc.Text()); body != "" {
		texts = append(texts, body)
	}
	return texts
}
