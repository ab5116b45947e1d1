package crawler

import (
	"errors"
	"fmt"
	"io/fs"
)

// ConfigError reports a malformed site descriptor. It is fatal at load time.
type ConfigError struct {
	Site   string
	Field  string
	Reason string
	Err    error
}

func (e *ConfigError) Error() string {
	msg := fmt.Sprintf("site %q: %s %s", e.Site, e.Field, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ConfigError) Unwrap() error { return e.Err }

// FetchErrorKind classifies a failed page fetch.
type FetchErrorKind string

// Fetch failure kinds.
const (
	FetchNetwork FetchErrorKind = "network"
	FetchParse   FetchErrorKind = "parse"
	FetchRender  FetchErrorKind = "render"
)

// FetchError is returned when a page could not be turned into a document.
// It is recoverable: callers skip the page (or the pair, for search pages).
type FetchError struct {
	Kind       FetchErrorKind
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	switch {
	case e.StatusCode != 0:
		return fmt.Sprintf("fetch %s (%s): status %d", e.URL, e.Kind, e.StatusCode)
	case e.Err != nil:
		return fmt.Sprintf("fetch %s (%s): %v", e.URL, e.Kind, e.Err)
	default:
		return fmt.Sprintf("fetch %s (%s)", e.URL, e.Kind)
	}
}

func (e *FetchError) Unwrap() error { return e.Err }

// ExtractErrorKind classifies a failed link extraction.
type ExtractErrorKind string

// Extraction failure kinds.
const (
	ExtractNoMatch         ExtractErrorKind = "no_match"
	ExtractNoLinkAttribute ExtractErrorKind = "no_link_attribute"
)

// ExtractError is returned by Link when a result entry has no usable link.
type ExtractError struct {
	Kind     ExtractErrorKind
	Selector string
}

func (e *ExtractError) Error() string {
	return fmt.Sprintf("extract %q: %s", e.Selector, e.Kind)
}

// IOError reports a write fault in a record sink.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	// *fs.PathError already names the path.
	var pathErr *fs.PathError
	if errors.As(e.Err, &pathErr) {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// InvalidFormatError is returned when a sink destination does not carry the
// expected tabular format.
type InvalidFormatError struct {
	Path string
	Want string
}

func (e *InvalidFormatError) Error() string {
	return fmt.Sprintf("%s: output must be a %s file", e.Path, e.Want)
}

// ErrorKind returns a short label for err suitable for an error_kind log
// field or a metric label.
func ErrorKind(err error) string {
	var (
		cfgErr     *ConfigError
		fetchErr   *FetchError
		extractErr *ExtractError
		ioErr      *IOError
		formatErr  *InvalidFormatError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &fetchErr):
		return "fetch_" + string(fetchErr.Kind)
	case errors.As(err, &extractErr):
		return "extract_" + string(extractErr.Kind)
	case errors.As(err, &cfgErr):
		return "config"
	case errors.As(err, &formatErr):
		return "invalid_format"
	case errors.As(err, &ioErr):
		return "io"
	default:
		return "unknown"
	}
}
