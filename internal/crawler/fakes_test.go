package crawler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"
)

// MockFetcher is a mock implementation of the Fetcher interface.
type MockFetcher struct {
	mock.Mock
}

func (m *MockFetcher) Fetch(ctx context.Context, rawURL string) (Page, error) {
	args := m.Called(ctx, rawURL)
	return args.Get(0).(Page), args.Error(1)
}

type fakeResponse struct {
	status int
	body   string
	delay  time.Duration
	err    error
}

// fakeWeb serves canned pages by exact URL and counts requests.
type fakeWeb struct {
	mu       sync.Mutex
	pages    map[string]fakeResponse
	requests map[string]int
}

func newFakeWeb() *fakeWeb {
	return &fakeWeb{pages: map[string]fakeResponse{}, requests: map[string]int{}}
}

func (w *fakeWeb) page(url, body string) *fakeWeb {
	w.pages[url] = fakeResponse{status: http.StatusOK, body: body}
	return w
}

func (w *fakeWeb) set(url string, resp fakeResponse) *fakeWeb {
	w.pages[url] = resp
	return w
}

func (w *fakeWeb) hits(url string) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.requests[url]
}

func (w *fakeWeb) Fetch(ctx context.Context, url string) (Page, error) {
	w.mu.Lock()
	w.requests[url]++
	resp, ok := w.pages[url]
	w.mu.Unlock()

	if resp.delay > 0 {
		select {
		case <-time.After(resp.delay):
		case <-ctx.Done():
			return Page{}, ctx.Err()
		}
	}
	if err := ctx.Err(); err != nil {
		return Page{}, err
	}
	if !ok {
		return Page{URL: url, StatusCode: http.StatusNotFound}, nil
	}
	if resp.err != nil {
		return Page{}, resp.err
	}
	return Page{URL: url, StatusCode: resp.status, Body: []byte(resp.body)}, nil
}

// fakeDriver hands out fakeSessions that serve rendered HTML by URL.
type fakeDriver struct {
	mu        sync.Mutex
	rendered  map[string]string
	newErr    error
	openErr   error
	closeErr  error
	sessions  []*fakeSession
	newCalled int
}

func newFakeDriver() *fakeDriver {
	return &fakeDriver{rendered: map[string]string{}}
}

func (d *fakeDriver) NewSession(context.Context) (BrowserSession, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.newCalled++
	if d.newErr != nil {
		return nil, d.newErr
	}
	s := &fakeSession{driver: d}
	d.sessions = append(d.sessions, s)
	return s, nil
}

func (d *fakeDriver) sessionCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.sessions)
}

func (d *fakeDriver) allClosed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, s := range d.sessions {
		if s.closed != 1 {
			return false
		}
	}
	return true
}

type fakeSession struct {
	driver *fakeDriver
	opened []string
	closed int
}

func (s *fakeSession) Open(_ context.Context, url string) error {
	s.opened = append(s.opened, url)
	return s.driver.openErr
}

func (s *fakeSession) RenderedHTML(context.Context) (string, error) {
	if len(s.opened) == 0 {
		return "", errors.New("nothing open")
	}
	html, ok := s.driver.rendered[s.opened[len(s.opened)-1]]
	if !ok {
		return "", fmt.Errorf("no rendering for %s", s.opened[len(s.opened)-1])
	}
	return html, nil
}

func (s *fakeSession) Close() error {
	s.closed++
	return s.driver.closeErr
}

// memorySink collects appended records.
type memorySink struct {
	mu      sync.Mutex
	name    string
	err     error
	calls   int
	records []Content
}

func (s *memorySink) Name() string { return s.name }

func (s *memorySink) Append(_ context.Context, records []Content) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return s.err
	}
	s.records = append(s.records, records...)
	return nil
}

// newTestPageFetcher returns a PageFetcher whose settle wait is recorded
// instead of slept.
func newTestPageFetcher(static Fetcher, driver BrowserDriver) (*PageFetcher, *[]time.Duration) {
	pf := NewPageFetcher(static, driver, PageFetcherConfig{
		SettleMin: DefaultSettleMin,
		SettleMax: DefaultSettleMax,
	}, nil)
	var waits []time.Duration
	var mu sync.Mutex
	pf.sleep = func(ctx context.Context, d time.Duration) error {
		mu.Lock()
		waits = append(waits, d)
		mu.Unlock()
		return ctx.Err()
	}
	return pf, &waits
}

var fixedNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func newTestSearcher(static Fetcher, driver BrowserDriver) *Searcher {
	pf, _ := newTestPageFetcher(static, driver)
	s := NewSearcher(pf, nil)
	s.now = func() time.Time { return fixedNow }
	return s
}
