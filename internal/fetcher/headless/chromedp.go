// Package headless contains browser drivers backing the rendering fallback.
package headless

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"github.com/JakeFAU/sitesearch-crawler/internal/crawler"
)

// DefaultNavigationTimeout bounds a session's lifetime when unset.
const DefaultNavigationTimeout = 45 * time.Second

// Config controls the behavior of the chromedp driver.
type Config struct {
	UserAgent         string
	NavigationTimeout time.Duration
	// ExecPath overrides browser discovery. Empty uses chromedp's lookup.
	ExecPath string
}

// Driver starts one headless Chrome per session.
type Driver struct {
	cfg Config
}

var _ crawler.BrowserDriver = (*Driver)(nil)

// NewChromedp creates a driver backed by chromedp.
func NewChromedp(cfg Config) (*Driver, error) {
	if cfg.NavigationTimeout < 0 {
		return nil, fmt.Errorf("navigation timeout must be >= 0")
	}
	if cfg.NavigationTimeout == 0 {
		cfg.NavigationTimeout = DefaultNavigationTimeout
	}
	return &Driver{cfg: cfg}, nil
}

// NewSession launches a browser whose lifetime is tied to the returned
// session. The browser process starts lazily on the first Open.
func (d *Driver) NewSession(ctx context.Context) (crawler.BrowserSession, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("new chromedp session: %w", err)
	}
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), d.allocatorOptions()...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)
	return &Session{
		cfg:         d.cfg,
		browserCtx:  browserCtx,
		cancel:      browserCancel,
		allocCancel: allocCancel,
	}, nil
}

func (d *Driver) allocatorOptions() []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
	)
	if d.cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(d.cfg.ExecPath))
	}
	return opts
}

// Session is a single browser tab. It is not safe for concurrent use.
type Session struct {
	cfg         Config
	browserCtx  context.Context
	cancel      context.CancelFunc
	allocCancel context.CancelFunc

	started   bool
	opened    bool
	closeOnce sync.Once
	closeErr  error
}

// Open navigates the tab to url and waits for the body to be ready.
func (s *Session) Open(ctx context.Context, url string) error {
	// The browser belongs to the first context Run sees; start it on the
	// session context so per-call timeouts only cancel their own actions.
	if !s.started {
		if err := chromedp.Run(s.browserCtx); err != nil {
			return fmt.Errorf("chromedp start browser: %w", err)
		}
		s.started = true
	}
	runCtx, stop := s.runContext(ctx)
	defer stop()

	actions := []chromedp.Action{
		s.networkSetupAction(),
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	}
	if err := chromedp.Run(runCtx, actions...); err != nil {
		return fmt.Errorf("chromedp navigate: %w", err)
	}
	s.opened = true
	return nil
}

// RenderedHTML returns the outer HTML of the current document.
func (s *Session) RenderedHTML(ctx context.Context) (string, error) {
	if !s.opened {
		return "", errors.New("chromedp session has no open page")
	}
	runCtx, stop := s.runContext(ctx)
	defer stop()

	var html string
	if err := chromedp.Run(runCtx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("chromedp outer html: %w", err)
	}
	return html, nil
}

// Close shuts the browser down. Repeated calls return the first result.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		if s.started {
			s.closeErr = chromedp.Cancel(s.browserCtx)
		}
		s.cancel()
		s.allocCancel()
		if errors.Is(s.closeErr, context.Canceled) {
			s.closeErr = nil
		}
	})
	return s.closeErr
}

// runContext derives a context from the browser context that is also
// canceled when ctx is done or the navigation timeout elapses.
func (s *Session) runContext(ctx context.Context) (context.Context, context.CancelFunc) {
	runCtx, cancel := context.WithTimeout(s.browserCtx, s.cfg.NavigationTimeout)
	stop := forwardCancel(ctx, cancel)
	return runCtx, func() {
		stop()
		cancel()
	}
}

func (s *Session) networkSetupAction() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if s.cfg.UserAgent != "" {
			if err := emulation.SetUserAgentOverride(s.cfg.UserAgent).Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		return nil
	})
}

// forwardCancel calls cancel once parent is done. The returned func stops
// the forwarding.
func forwardCancel(parent context.Context, cancel context.CancelFunc) func() {
	done := make(chan struct{})
	go func() {
		select {
		case <-parent.Done():
			cancel()
		case <-done:
		}
	}()
	var once sync.Once
	return func() { once.Do(func() { close(done) }) }
}
