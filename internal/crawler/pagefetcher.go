package crawler

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/JakeFAU/sitesearch-crawler/internal/metrics"
)

// Default settle window applied before snapshotting a rendered page.
const (
	DefaultSettleMin = 3000 * time.Millisecond
	DefaultSettleMax = 3500 * time.Millisecond
)

// PageFetcherConfig controls the rendering fallback.
type PageFetcherConfig struct {
	// SettleMin and SettleMax bound the uniformly random wait between
	// opening a page in the browser and reading its DOM.
	SettleMin time.Duration
	SettleMax time.Duration
	// RenderTimeout bounds one render (open, settle, snapshot). Zero means
	// only the caller's context applies.
	RenderTimeout time.Duration
}

// PageFetcher turns URLs into parsed documents, statically or through a
// browser session.
type PageFetcher struct {
	static Fetcher
	driver BrowserDriver
	cfg    PageFetcherConfig
	logger *zap.Logger

	jitter func() float64
	sleep  func(ctx context.Context, d time.Duration) error
}

// NewPageFetcher wires the static fetcher and the rendering driver. driver may
// be nil, in which case every render attempt fails with a FetchError.
func NewPageFetcher(static Fetcher, driver BrowserDriver, cfg PageFetcherConfig, logger *zap.Logger) *PageFetcher {
	if cfg.SettleMax < cfg.SettleMin {
		cfg.SettleMax = cfg.SettleMin
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PageFetcher{
		static: static,
		driver: driver,
		cfg:    cfg,
		logger: logger,
		jitter: rand.Float64,
		sleep:  sleepContext,
	}
}

// Fetch performs the static GET and parses the body. Transport failures and
// non-2xx statuses come back as *FetchError.
func (f *PageFetcher) Fetch(ctx context.Context, url string) (*goquery.Document, error) {
	page, err := f.static.Fetch(ctx, url)
	if err != nil {
		metrics.ObserveFetch("static", "error")
		var fetchErr *FetchError
		if errors.As(err, &fetchErr) {
			return nil, err
		}
		return nil, &FetchError{Kind: FetchNetwork, URL: url, Err: err}
	}
	if page.StatusCode < 200 || page.StatusCode > 299 {
		metrics.ObserveFetch("static", "error")
		return nil, &FetchError{Kind: FetchNetwork, URL: url, StatusCode: page.StatusCode}
	}
	doc, err := parseDocument(page.Body)
	if err != nil {
		metrics.ObserveFetch("static", "error")
		return nil, &FetchError{Kind: FetchParse, URL: url, Err: err}
	}
	metrics.ObserveFetch("static", "ok")
	return doc, nil
}

// OpenSession acquires a browser session for the rendering fallback.
func (f *PageFetcher) OpenSession(ctx context.Context) (BrowserSession, error) {
	if f.driver == nil {
		return nil, &FetchError{Kind: FetchRender, Err: errors.New("no browser driver configured")}
	}
	session, err := f.driver.NewSession(ctx)
	if err != nil {
		return nil, &FetchError{Kind: FetchRender, Err: fmt.Errorf("start browser session: %w", err)}
	}
	return session, nil
}

// Render loads url in session, waits for the page to settle, and parses the
// rendered DOM snapshot.
func (f *PageFetcher) Render(ctx context.Context, session BrowserSession, url string) (*goquery.Document, error) {
	if f.cfg.RenderTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.cfg.RenderTimeout)
		defer cancel()
	}
	doc, err := f.render(ctx, session, url)
	if err != nil {
		metrics.ObserveFetch("render", "error")
		return nil, &FetchError{Kind: FetchRender, URL: url, Err: err}
	}
	metrics.ObserveFetch("render", "ok")
	return doc, nil
}

func (f *PageFetcher) render(ctx context.Context, session BrowserSession, url string) (*goquery.Document, error) {
	if err := session.Open(ctx, url); err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}
	delay := f.settleDelay()
	f.logger.Debug("waiting for rendered page to settle", zap.String("url", url), zap.Duration("delay", delay))
	if err := f.sleep(ctx, delay); err != nil {
		return nil, fmt.Errorf("settle: %w", err)
	}
	html, err := session.RenderedHTML(ctx)
	if err != nil {
		return nil, fmt.Errorf("snapshot: %w", err)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse rendered html: %w", err)
	}
	return doc, nil
}

func (f *PageFetcher) settleDelay() time.Duration {
	span := f.cfg.SettleMax - f.cfg.SettleMin
	if span <= 0 {
		return f.cfg.SettleMin
	}
	return f.cfg.SettleMin + time.Duration(f.jitter()*float64(span))
}

func parseDocument(body []byte) (*goquery.Document, error) {
	return goquery.NewDocumentFromReader(bytes.NewReader(body))
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
