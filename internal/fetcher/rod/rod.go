// Package rodfetcher provides a go-rod BrowserDriver for the rendering
// fallback.
package rodfetcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"

	"github.com/JakeFAU/sitesearch-crawler/internal/crawler"
)

// DefaultNavigationTimeout bounds a single Open or snapshot when unset.
const DefaultNavigationTimeout = 45 * time.Second

// Config controls the rod driver.
type Config struct {
	UserAgent         string
	NavigationTimeout time.Duration
	// BrowserBin overrides rod's browser lookup/download.
	BrowserBin string
	NoSandbox  bool
}

// Driver launches one browser process per session.
type Driver struct {
	cfg Config
}

var _ crawler.BrowserDriver = (*Driver)(nil)

// New returns a rod driver.
func New(cfg Config) *Driver {
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = DefaultNavigationTimeout
	}
	return &Driver{cfg: cfg}
}

func (d *Driver) launcher() *launcher.Launcher {
	l := launcher.New().
		Headless(true).
		NoSandbox(d.cfg.NoSandbox)
	if d.cfg.BrowserBin != "" {
		l = l.Bin(d.cfg.BrowserBin)
	}
	l.Delete(flags.Flag("enable-automation"))
	l.Set(flags.Flag("disable-dev-shm-usage"))
	l.Set(flags.Flag("no-first-run"))
	return l
}

// NewSession launches a browser and opens a blank tab.
func (d *Driver) NewSession(ctx context.Context) (crawler.BrowserSession, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("new rod session: %w", err)
	}
	l := d.launcher().Context(ctx)
	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("launch browser: %w", err)
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		l.Kill()
		l.Cleanup()
		return nil, fmt.Errorf("connect to browser: %w", err)
	}

	page, err := browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		_ = browser.Close()
		l.Kill()
		l.Cleanup()
		return nil, fmt.Errorf("open tab: %w", err)
	}
	if d.cfg.UserAgent != "" {
		if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: d.cfg.UserAgent}); err != nil {
			_ = browser.Close()
			l.Kill()
			l.Cleanup()
			return nil, fmt.Errorf("set user-agent: %w", err)
		}
	}
	return &Session{
		timeout:  d.cfg.NavigationTimeout,
		launcher: l,
		browser:  browser,
		page:     page,
	}, nil
}

// Session owns one browser process and tab.
type Session struct {
	timeout  time.Duration
	launcher *launcher.Launcher
	browser  *rod.Browser
	page     *rod.Page

	opened    bool
	closeOnce sync.Once
	closeErr  error
}

// Open navigates the tab and waits for the load event.
func (s *Session) Open(ctx context.Context, url string) error {
	p := s.page.Context(ctx).Timeout(s.timeout)
	if err := p.Navigate(url); err != nil {
		return fmt.Errorf("rod navigate: %w", err)
	}
	if err := p.WaitLoad(); err != nil {
		return fmt.Errorf("rod wait load: %w", err)
	}
	s.opened = true
	return nil
}

// RenderedHTML returns the current document's outer HTML.
func (s *Session) RenderedHTML(ctx context.Context) (string, error) {
	if !s.opened {
		return "", errors.New("rod session has no open page")
	}
	html, err := s.page.Context(ctx).Timeout(s.timeout).HTML()
	if err != nil {
		return "", fmt.Errorf("rod html: %w", err)
	}
	return html, nil
}

// Close closes the tab and browser and kills the browser process.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = errors.Join(s.page.Close(), s.browser.Close())
		s.launcher.Kill()
		s.launcher.Cleanup()
	})
	return s.closeErr
}
