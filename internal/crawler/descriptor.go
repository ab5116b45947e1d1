package crawler

import (
	"errors"
	"net/url"
	"strings"

	"github.com/andybalholm/cascadia"
)

// Validate checks that every field is set, that the URL fields are absolute
// http(s) URLs, and that every selector compiles.
func (d Descriptor) Validate() error {
	required := []struct {
		field string
		value string
	}{
		{"name", d.Name},
		{"base_url", d.BaseURL},
		{"search_url", d.SearchURLTemplate},
		{"result_listing", d.ResultListing},
		{"result_link", d.ResultLink},
		{"title_selector", d.TitleSelector},
		{"body_selector", d.BodySelector},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			return &ConfigError{Site: d.Name, Field: r.field, Reason: "must be set"}
		}
	}
	if err := validateURLPrefix(d.BaseURL); err != nil {
		return &ConfigError{Site: d.Name, Field: "base_url", Reason: "is not an absolute http(s) URL", Err: err}
	}
	// A placeholder topic stands in for whatever gets appended at search time.
	if err := validateURLPrefix(d.SearchURLTemplate + "topic"); err != nil {
		return &ConfigError{Site: d.Name, Field: "search_url", Reason: "is not a well-formed URL prefix", Err: err}
	}
	selectors := []struct {
		field string
		value string
	}{
		{"result_listing", d.ResultListing},
		{"result_link", d.ResultLink},
		{"title_selector", d.TitleSelector},
		{"body_selector", d.BodySelector},
	}
	for _, s := range selectors {
		if _, err := cascadia.ParseGroup(s.value); err != nil {
			return &ConfigError{Site: d.Name, Field: s.field, Reason: "is not a valid selector", Err: err}
		}
	}
	return nil
}

// SearchURL appends topic to the search template. The topic is not escaped.
func (d Descriptor) SearchURL(topic string) string {
	return d.SearchURLTemplate + topic
}

// ResolveLink turns an extracted link into the URL to fetch.
func (d Descriptor) ResolveLink(link string) string {
	if d.LinksAreAbsolute {
		return link
	}
	return d.BaseURL + link
}

var (
	errBadScheme   = errors.New("scheme must be http or https")
	errMissingHost = errors.New("missing host")
)

func validateURLPrefix(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return &url.Error{Op: "parse", URL: raw, Err: errBadScheme}
	}
	if u.Host == "" {
		return &url.Error{Op: "parse", URL: raw, Err: errMissingHost}
	}
	return nil
}
