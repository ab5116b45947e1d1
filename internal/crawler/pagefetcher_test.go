package crawler

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPageFetcherFetch(t *testing.T) {
	t.Parallel()

	web := newFakeWeb().
		page("http://x.com/ok", `<html><body><h1>Hi</h1></body></html>`).
		set("http://x.com/down", fakeResponse{err: errors.New("connection refused")}).
		set("http://x.com/503", fakeResponse{status: http.StatusServiceUnavailable, body: "busy"})
	pf, _ := newTestPageFetcher(web, nil)

	doc, err := pf.Fetch(context.Background(), "http://x.com/ok")
	require.NoError(t, err)
	assert.Equal(t, "Hi", doc.Find("h1").Text())

	_, err = pf.Fetch(context.Background(), "http://x.com/down")
	var fetchErr *FetchError
	require.True(t, errors.As(err, &fetchErr))
	assert.Equal(t, FetchNetwork, fetchErr.Kind)
	assert.EqualError(t, errors.Unwrap(err), "connection refused")

	_, err = pf.Fetch(context.Background(), "http://x.com/503")
	require.True(t, errors.As(err, &fetchErr))
	assert.Equal(t, FetchNetwork, fetchErr.Kind)
	assert.Equal(t, http.StatusServiceUnavailable, fetchErr.StatusCode)
}

func TestPageFetcherKeepsTypedFetchError(t *testing.T) {
	t.Parallel()

	typed := &FetchError{Kind: FetchParse, URL: "http://x.com"}
	m := new(MockFetcher)
	m.On("Fetch", context.Background(), "http://x.com").Return(Page{}, typed)

	pf, _ := newTestPageFetcher(m, nil)
	_, err := pf.Fetch(context.Background(), "http://x.com")
	assert.Same(t, typed, err)
	m.AssertExpectations(t)
}

func TestPageFetcherMalformedMarkupParses(t *testing.T) {
	t.Parallel()

	web := newFakeWeb().page("http://x.com", `<div><p>unclosed <b>tags<li>x`)
	pf, _ := newTestPageFetcher(web, nil)
	doc, err := pf.Fetch(context.Background(), "http://x.com")
	require.NoError(t, err)
	assert.Equal(t, 1, doc.Find("li").Length())
}

func TestOpenSession(t *testing.T) {
	t.Parallel()

	pf, _ := newTestPageFetcher(newFakeWeb(), nil)
	_, err := pf.OpenSession(context.Background())
	assert.Equal(t, "fetch_render", ErrorKind(err))

	driver := newFakeDriver()
	driver.newErr = errors.New("chrome not found")
	pf, _ = newTestPageFetcher(newFakeWeb(), driver)
	_, err = pf.OpenSession(context.Background())
	assert.Equal(t, "fetch_render", ErrorKind(err))
	assert.ErrorContains(t, err, "chrome not found")
}

func TestRenderWaitsThenSnapshots(t *testing.T) {
	t.Parallel()

	driver := newFakeDriver()
	driver.rendered["http://x.com/s"] = `<ul><li class="r">dynamic</li></ul>`
	pf, waits := newTestPageFetcher(newFakeWeb(), driver)

	session, err := pf.OpenSession(context.Background())
	require.NoError(t, err)
	doc, err := pf.Render(context.Background(), session, "http://x.com/s")
	require.NoError(t, err)
	assert.Equal(t, "dynamic", doc.Find("li.r").Text())

	require.Len(t, *waits, 1)
	wait := (*waits)[0]
	assert.GreaterOrEqual(t, wait, DefaultSettleMin)
	assert.LessOrEqual(t, wait, DefaultSettleMax)
	assert.Equal(t, []string{"http://x.com/s"}, session.(*fakeSession).opened)
}

func TestRenderFailures(t *testing.T) {
	t.Parallel()

	driver := newFakeDriver()
	driver.openErr = errors.New("navigation failed")
	pf, waits := newTestPageFetcher(newFakeWeb(), driver)
	session, err := pf.OpenSession(context.Background())
	require.NoError(t, err)

	_, err = pf.Render(context.Background(), session, "http://x.com/s")
	var fetchErr *FetchError
	require.True(t, errors.As(err, &fetchErr))
	assert.Equal(t, FetchRender, fetchErr.Kind)
	assert.Empty(t, *waits)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	driver.openErr = nil
	_, err = pf.Render(ctx, session, "http://x.com/s")
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, "fetch_render", ErrorKind(err))
}

func TestRenderAppliesTimeout(t *testing.T) {
	t.Parallel()

	driver := newFakeDriver()
	driver.rendered["http://x.com/s"] = `<p>x</p>`
	pf := NewPageFetcher(newFakeWeb(), driver, PageFetcherConfig{RenderTimeout: time.Minute}, nil)
	var sawDeadline bool
	pf.sleep = func(ctx context.Context, _ time.Duration) error {
		_, sawDeadline = ctx.Deadline()
		return nil
	}
	session, err := pf.OpenSession(context.Background())
	require.NoError(t, err)
	_, err = pf.Render(context.Background(), session, "http://x.com/s")
	require.NoError(t, err)
	assert.True(t, sawDeadline)
}

func TestSettleDelayRange(t *testing.T) {
	t.Parallel()

	pf := NewPageFetcher(nil, nil, PageFetcherConfig{SettleMin: DefaultSettleMin, SettleMax: DefaultSettleMax}, nil)
	pf.jitter = func() float64 { return 0 }
	assert.Equal(t, DefaultSettleMin, pf.settleDelay())
	pf.jitter = func() float64 { return 0.5 }
	assert.Equal(t, 3250*time.Millisecond, pf.settleDelay())

	pf = NewPageFetcher(nil, nil, PageFetcherConfig{SettleMin: DefaultSettleMin, SettleMax: DefaultSettleMax}, nil)
	for range 100 {
		d := pf.settleDelay()
		require.GreaterOrEqual(t, d, DefaultSettleMin)
		require.Less(t, d, DefaultSettleMax)
	}

	inverted := NewPageFetcher(nil, nil, PageFetcherConfig{SettleMin: time.Second, SettleMax: time.Millisecond}, nil)
	assert.Equal(t, time.Second, inverted.settleDelay())
}

func TestSleepContext(t *testing.T) {
	t.Parallel()

	require.NoError(t, sleepContext(context.Background(), 0))
	require.NoError(t, sleepContext(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, sleepContext(ctx, time.Hour), context.Canceled)
}
