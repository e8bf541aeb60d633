// Package headless renders client-side listings with chromedp.
package headless

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"github.com/JakeFAU/campaign-crawler/internal/campaign"
	"github.com/JakeFAU/campaign-crawler/internal/metrics"
)

// Config controls browser launch and page rendering.
type Config struct {
	ExecPath          string
	UserAgent         string
	AcceptLanguage    string
	NavigationTimeout time.Duration
	Settle            time.Duration
	MaxScrolls        int
	ScrollStep        int
	ScrollInterval    time.Duration
	ViewportWidth     int64
	ViewportHeight    int64
}

func (c Config) withDefaults() Config {
	if c.NavigationTimeout <= 0 {
		c.NavigationTimeout = 20 * time.Second
	}
	if c.Settle < 0 {
		c.Settle = 0
	}
	if c.ScrollStep <= 0 {
		c.ScrollStep = 100
	}
	if c.ScrollInterval <= 0 {
		c.ScrollInterval = 200 * time.Millisecond
	}
	if c.ViewportWidth <= 0 || c.ViewportHeight <= 0 {
		c.ViewportWidth, c.ViewportHeight = 1200, 800
	}
	return c
}

// Launcher opens one browser per crawl invocation.
type Launcher struct {
	cfg Config
}

// NewLauncher creates a Launcher.
func NewLauncher(cfg Config) *Launcher {
	return &Launcher{cfg: cfg.withDefaults()}
}

// Open starts a browser process owned by the returned session.
// The caller must Close it; Close is safe to call more than once.
func (l *Launcher) Open(ctx context.Context) (campaign.RenderSession, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
		chromedp.WindowSize(int(l.cfg.ViewportWidth), int(l.cfg.ViewportHeight)),
	)
	if l.cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(l.cfg.ExecPath))
	}
	if l.cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(l.cfg.UserAgent))
	}
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	b := &Browser{
		cfg: l.cfg,
		ctx: browserCtx,
		cancel: func() {
			browserCancel()
			allocCancel()
		},
	}

	stop := context.AfterFunc(ctx, b.Close)
	defer stop()
	if err := chromedp.Run(browserCtx); err != nil {
		b.Close()
		return nil, fmt.Errorf("launch browser: %w", err)
	}
	return b, nil
}

// Browser is a running browser process. Each Render uses its own tab.
type Browser struct {
	cfg       Config
	ctx       context.Context
	cancel    func()
	closeOnce sync.Once
}

// Close terminates the browser process.
func (b *Browser) Close() {
	b.closeOnce.Do(b.cancel)
}

// Render navigates to url, waits for the page to settle, scrolls to trigger
// lazy loading and returns the serialized DOM.
func (b *Browser) Render(ctx context.Context, url string) (string, error) {
	html, err := b.render(ctx, url)
	metrics.ObserveFetch("rendered", err)
	return html, err
}

func (b *Browser) render(ctx context.Context, url string) (string, error) {
	tabCtx, tabCancel := chromedp.NewContext(b.ctx)
	defer tabCancel()
	stop := context.AfterFunc(ctx, tabCancel)
	defer stop()

	meta := newResponseMeta()
	chromedp.ListenTarget(tabCtx, meta.captureEvent)

	navCtx, cancel := context.WithTimeout(tabCtx, b.cfg.NavigationTimeout)
	defer cancel()
	if err := chromedp.Run(navCtx,
		b.networkSetupAction(),
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	); err != nil {
		return "", &campaign.NetworkError{URL: url, Err: classify(ctx, navCtx, err)}
	}
	if status := meta.snapshot(); status != 0 && (status < http.StatusOK || status >= http.StatusMultipleChoices) {
		return "", &campaign.NetworkError{URL: url, StatusCode: status}
	}

	var html string
	if err := chromedp.Run(tabCtx,
		chromedp.Sleep(b.cfg.Settle),
		b.autoScroll(),
		chromedp.Sleep(time.Second),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	); err != nil {
		return "", &campaign.NetworkError{URL: url, Err: classify(ctx, tabCtx, err)}
	}
	return html, nil
}

func (b *Browser) networkSetupAction() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if b.cfg.UserAgent != "" {
			override := emulation.SetUserAgentOverride(b.cfg.UserAgent)
			if b.cfg.AcceptLanguage != "" {
				override = override.WithAcceptLanguage(b.cfg.AcceptLanguage)
			}
			if err := override.Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		if b.cfg.AcceptLanguage != "" {
			headers := network.Headers{"Accept-Language": b.cfg.AcceptLanguage}
			if err := network.SetExtraHTTPHeaders(headers).Do(ctx); err != nil {
				return fmt.Errorf("set extra headers: %w", err)
			}
		}
		if err := emulation.SetDeviceMetricsOverride(b.cfg.ViewportWidth, b.cfg.ViewportHeight, 1, false).Do(ctx); err != nil {
			return fmt.Errorf("set viewport: %w", err)
		}
		return nil
	})
}

func (b *Browser) autoScroll() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		for i := 0; i < b.cfg.MaxScrolls; i++ {
			var atBottom bool
			if err := chromedp.Evaluate(scrollScript(b.cfg.ScrollStep), &atBottom).Do(ctx); err != nil {
				return fmt.Errorf("scroll: %w", err)
			}
			if atBottom {
				return nil
			}
			if err := chromedp.Sleep(b.cfg.ScrollInterval).Do(ctx); err != nil {
				return fmt.Errorf("scroll wait: %w", err)
			}
		}
		return nil
	})
}

func scrollScript(step int) string {
	return fmt.Sprintf(`(() => {
	window.scrollBy(0, %d);
	return window.innerHeight + window.scrollY >= document.body.scrollHeight;
})()`, step)
}

func classify(parent, runCtx context.Context, err error) error {
	if errors.Is(runCtx.Err(), context.DeadlineExceeded) || errors.Is(parent.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", campaign.ErrTimeout, err)
	}
	return fmt.Errorf("chromedp run: %w", err)
}

type responseMeta struct {
	mu     sync.RWMutex
	status int
}

func newResponseMeta() *responseMeta {
	return &responseMeta{}
}

func (m *responseMeta) capture(event *network.EventResponseReceived) {
	if event.Type != network.ResourceTypeDocument || event.Response == nil {
		return
	}
	m.mu.Lock()
	if m.status == 0 {
		m.status = int(event.Response.Status)
	}
	m.mu.Unlock()
}

func (m *responseMeta) captureEvent(ev any) {
	if resp, ok := ev.(*network.EventResponseReceived); ok {
		m.capture(resp)
	}
}

// snapshot returns the status of the first document response, 0 if none was seen.
func (m *responseMeta) snapshot() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}
