package crawler

import (
	"context"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/JakeFAU/sitesearch-crawler/internal/metrics"
)

// Searcher runs one (topic, site) search: query the site, harvest result
// links, and extract a Content record from every result page.
type Searcher struct {
	pages  *PageFetcher
	logger *zap.Logger
	now    func() time.Time
}

// NewSearcher builds a Searcher on top of a PageFetcher.
func NewSearcher(pages *PageFetcher, logger *zap.Logger) *Searcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Searcher{
		pages:  pages,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Search returns the records extracted for topic on site, in result-listing
// order. The only error it returns is the *FetchError of the search page
// itself; failures on individual results are logged and skipped.
func (s *Searcher) Search(ctx context.Context, topic string, site Descriptor) ([]Content, error) {
	return s.SearchQuery(ctx, topic, topic, site)
}

// SearchQuery is Search with the string appended to the search template
// given separately from the topic recorded on each Content. Callers use it
// to pass an escaped form of the topic.
func (s *Searcher) SearchQuery(ctx context.Context, topic, query string, site Descriptor) ([]Content, error) {
	logger := s.logger.With(zap.String("topic", topic), zap.String("site", site.Name))
	searchURL := site.SearchURL(query)

	// At most one browser session per invocation, released on every path.
	var session BrowserSession
	defer func() { s.release(logger, session) }()

	doc, err := s.pages.Fetch(ctx, searchURL)
	if err != nil {
		metrics.ObserveSearch(site.Name, "failed")
		return nil, err
	}

	listing := Select(doc.Selection, site.ResultListing)
	if listing.Length() == 0 {
		listing, session = s.fallback(ctx, logger, site, searchURL)
	}
	logger.Debug("search results listed", zap.String("url", searchURL), zap.Int("results", listing.Length()))

	var records []Content
	for i := range listing.Nodes {
		if ctx.Err() != nil {
			logger.Warn("search interrupted", zap.Error(ctx.Err()))
			break
		}
		content, ok := s.extractResult(ctx, logger, topic, site, listing.Eq(i))
		if !ok {
			continue
		}
		records = append(records, content)
		metrics.ObserveRecord(site.Name)
		logger.Info("content extracted",
			zap.String("url", content.URL),
			zap.String("title", content.Title),
			zap.String("body", content.Body),
		)
	}
	metrics.ObserveSearch(site.Name, "completed")
	return records, nil
}

// fallback re-requests the search page through a browser when the static
// listing came back empty. Any failure leaves the listing empty.
func (s *Searcher) fallback(
	ctx context.Context,
	logger *zap.Logger,
	site Descriptor,
	searchURL string,
) (*goquery.Selection, BrowserSession) {
	metrics.ObserveFallback(site.Name)
	logger.Info("no listing matches on static page, rendering", zap.String("url", searchURL))

	empty := &goquery.Selection{}
	session, err := s.pages.OpenSession(ctx)
	if err != nil {
		logger.Warn("render fallback unavailable",
			zap.String("url", searchURL),
			zap.String("error_kind", ErrorKind(err)),
			zap.Error(err),
		)
		return empty, nil
	}
	doc, err := s.pages.Render(ctx, session, searchURL)
	if err != nil {
		logger.Warn("render fallback failed",
			zap.String("url", searchURL),
			zap.String("error_kind", ErrorKind(err)),
			zap.Error(err),
		)
		return empty, session
	}
	return Select(doc.Selection, site.ResultListing), session
}

func (s *Searcher) extractResult(
	ctx context.Context,
	logger *zap.Logger,
	topic string,
	site Descriptor,
	result *goquery.Selection,
) (Content, bool) {
	link, err := Link(result, site.ResultLink)
	if err != nil {
		metrics.ObserveSkip(site.Name, ErrorKind(err))
		logger.Warn("skipping result without link",
			zap.String("error_kind", ErrorKind(err)),
			zap.Error(err),
		)
		return Content{}, false
	}

	target := site.ResolveLink(link)
	doc, err := s.pages.Fetch(ctx, target)
	if err != nil {
		metrics.ObserveSkip(site.Name, ErrorKind(err))
		logger.Warn("skipping result page",
			zap.String("url", target),
			zap.String("error_kind", ErrorKind(err)),
			zap.Error(err),
		)
		return Content{}, false
	}

	title := SelectText(doc.Selection, site.TitleSelector)
	body := SelectText(doc.Selection, site.BodySelector)
	content, ok := NewContent(topic, site.Name, title, body, target, s.now())
	if !ok {
		metrics.ObserveSkip(site.Name, "incomplete")
		logger.Debug("discarding incomplete extraction", zap.String("url", target))
	}
	return content, ok
}

func (s *Searcher) release(logger *zap.Logger, session BrowserSession) {
	if session == nil {
		return
	}
	if err := session.Close(); err != nil {
		logger.Warn("failed to close browser session", zap.Error(err))
	}
}
