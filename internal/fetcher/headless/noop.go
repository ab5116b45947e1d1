package headless

import (
	"context"
	"errors"

	"github.com/JakeFAU/sitesearch-crawler/internal/crawler"
)

// ErrDisabled is returned by Noop when rendering is turned off.
var ErrDisabled = errors.New("headless rendering not configured")

// Noop is a BrowserDriver that never starts a browser.
type Noop struct{}

// NewNoop creates a new Noop driver.
func NewNoop() *Noop {
	return &Noop{}
}

// NewSession always fails with ErrDisabled.
func (Noop) NewSession(_ context.Context) (crawler.BrowserSession, error) {
	return nil, ErrDisabled
}
