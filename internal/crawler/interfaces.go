package crawler

import (
	"context"
)

// Fetcher performs the plain network GET of the static path.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (Page, error)
}

// BrowserSession is one browser-automation session. Sessions are owned by a
// single search invocation and must be closed on every exit path.
type BrowserSession interface {
	Open(ctx context.Context, url string) error
	RenderedHTML(ctx context.Context) (string, error)
	Close() error
}

// BrowserDriver starts rendering sessions.
type BrowserDriver interface {
	NewSession(ctx context.Context) (BrowserSession, error)
}

// RecordSink persists the records of a run.
type RecordSink interface {
	Name() string
	Append(ctx context.Context, records []Content) error
}

// Publisher pushes per-record notifications to a message bus (or similar).
type Publisher interface {
	Publish(ctx context.Context, payload any) (string, error)
}
