// Package collyfetcher implements campaign.Fetcher using gocolly.
package collyfetcher

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/JakeFAU/campaign-crawler/internal/campaign"
	"github.com/JakeFAU/campaign-crawler/internal/metrics"
	"github.com/JakeFAU/campaign-crawler/internal/policy/ratelimit"
)

// DefaultTimeout bounds a single static fetch.
const DefaultTimeout = 8 * time.Second

const acceptHTML = "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8"

// Config controls collector behavior.
type Config struct {
	UserAgents     []string
	AcceptLanguage string
	Timeout        time.Duration
	HostRPS        float64
	HostBurst      int
}

// Fetcher implements campaign.Fetcher using the Colly collector.
// It never retries; callers pick an alternate strategy on failure.
type Fetcher struct {
	cfg           Config
	baseCollector *colly.Collector
	politeness    *ratelimit.Limiter
	next          atomic.Uint64
}

type collectorHooks interface {
	OnRequest(colly.RequestCallback)
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

type page struct {
	status int
	body   string
}

// New builds a Fetcher.
func New(cfg Config) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	c := colly.NewCollector(colly.Async(false), colly.AllowURLRevisit())
	c.ParseHTTPErrorResponse = true
	c.DetectCharset = true
	c.WithTransport(newHTTPTransport())
	c.SetRequestTimeout(cfg.Timeout)

	return &Fetcher{
		cfg:           cfg,
		baseCollector: c,
		politeness:    ratelimit.New(ratelimit.Config{RPS: cfg.HostRPS, Burst: cfg.HostBurst}),
	}
}

// Fetch executes a single HTTP GET and returns the body of a 2xx response.
func (f *Fetcher) Fetch(ctx context.Context, url string) (string, error) {
	html, err := f.fetch(ctx, url)
	metrics.ObserveFetch("static", err)
	return html, err
}

func (f *Fetcher) fetch(ctx context.Context, url string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, f.cfg.Timeout)
	defer cancel()

	if err := f.politeness.Wait(ctx, url); err != nil {
		return "", &campaign.NetworkError{URL: url, Err: classify(ctx, err)}
	}

	var (
		result   page
		fetchErr error
	)
	collector := f.buildCollector(f.nextUserAgent(), &result, &fetchErr)
	if err := f.runCollector(ctx, collector, url, &fetchErr); err != nil {
		return "", &campaign.NetworkError{URL: url, Err: err}
	}
	if result.status < http.StatusOK || result.status >= http.StatusMultipleChoices {
		return "", &campaign.NetworkError{URL: url, StatusCode: result.status}
	}
	return result.body, nil
}

func (f *Fetcher) buildCollector(userAgent string, result *page, fetchErr *error) *colly.Collector {
	collector := f.baseCollector.Clone()
	collector.ParseHTTPErrorResponse = true
	collector.DetectCharset = true
	if userAgent != "" {
		collector.UserAgent = userAgent
	}
	f.configureCollectorHooks(collector, result, fetchErr)
	return collector
}

func (f *Fetcher) configureCollectorHooks(hooks collectorHooks, result *page, fetchErr *error) {
	hooks.OnRequest(func(r *colly.Request) {
		r.Headers.Set("Accept", acceptHTML)
		if f.cfg.AcceptLanguage != "" {
			r.Headers.Set("Accept-Language", f.cfg.AcceptLanguage)
		}
	})

	hooks.OnResponse(func(r *colly.Response) {
		*result = page{
			status: r.StatusCode,
			body:   string(r.Body),
		}
	})

	hooks.OnError(func(_ *colly.Response, err error) {
		*fetchErr = err
	})
}

func (f *Fetcher) runCollector(ctx context.Context, collector *colly.Collector, url string, fetchErr *error) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return classify(ctx, fmt.Errorf("colly fetch canceled: %w", ctx.Err()))
	case err := <-done:
		if err != nil {
			return classify(ctx, fmt.Errorf("colly visit failed: %w", err))
		}
		if *fetchErr != nil {
			return classify(ctx, fmt.Errorf("colly response failed: %w", *fetchErr))
		}
		return nil
	}
}

func (f *Fetcher) nextUserAgent() string {
	if len(f.cfg.UserAgents) == 0 {
		return ""
	}
	n := f.next.Add(1) - 1
	return f.cfg.UserAgents[n%uint64(len(f.cfg.UserAgents))]
}

// classify tags deadline-driven failures with campaign.ErrTimeout.
func classify(ctx context.Context, err error) error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) ||
		(errors.As(err, &netErr) && netErr.Timeout()) {
		return fmt.Errorf("%w: %w", campaign.ErrTimeout, err)
	}
	return err
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   5 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          20,
		IdleConnTimeout:       90 * time.Second,
	}
}
