package crawler

import (
	"net/http"
	"time"
)

// Descriptor describes how to query and parse one site. It is built once from
// configuration and shared read-only across every search for that site.
type Descriptor struct {
	Name              string
	BaseURL           string
	SearchURLTemplate string
	ResultListing     string
	ResultLink        string
	LinksAreAbsolute  bool
	TitleSelector     string
	BodySelector      string
}

// Content is one extracted (topic, title, body, url) tuple.
type Content struct {
	Topic string
	Title string
	Body  string
	URL   string
	// Site and FetchedAt are carried for secondary sinks; the CSV output
	// only uses the four fields above.
	Site      string
	FetchedAt time.Time
}

// NewContent builds a Content record. ok is false when either the title or
// the body is empty, in which case no record exists.
func NewContent(topic, site, title, body, url string, fetchedAt time.Time) (Content, bool) {
	if title == "" || body == "" {
		return Content{}, false
	}
	return Content{
		Topic:     topic,
		Title:     title,
		Body:      body,
		URL:       url,
		Site:      site,
		FetchedAt: fetchedAt,
	}, true
}

// Page is the raw result of a static fetch.
type Page struct {
	URL        string
	StatusCode int
	Headers    http.Header
	Body       []byte
	Duration   time.Duration
}
