// Package csvsink appends extracted records to a CSV file.
package csvsink

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/JakeFAU/sitesearch-crawler/internal/crawler"
	"github.com/JakeFAU/sitesearch-crawler/internal/metrics"
)

// Header is the first row of every file this sink creates.
var Header = []string{"Topic", "Title", "Description", "URL"}

const sinkName = "csv"

var errInvalidUTF8 = errors.New("field is not valid UTF-8")

// Sink appends records to a fixed CSV path.
type Sink struct {
	path   string
	logger *zap.Logger
}

var _ crawler.RecordSink = (*Sink)(nil)

// New returns a Sink for path. The extension is checked up front so a bad
// output path fails before any crawling happens.
func New(path string, logger *zap.Logger) (*Sink, error) {
	if err := checkFormat(path); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sink{path: path, logger: logger}, nil
}

// Name implements crawler.RecordSink.
func (s *Sink) Name() string { return sinkName }

// Path returns the destination file.
func (s *Sink) Path() string { return s.path }

// Append implements crawler.RecordSink.
func (s *Sink) Append(ctx context.Context, records []crawler.Content) error {
	return Append(ctx, s.path, records, s.logger)
}

// Append writes records to path in order, creating the file with a header
// row when it is missing or empty. A record that cannot be encoded or written
// is logged and skipped. Only format, open, header and close faults are
// returned.
func Append(ctx context.Context, path string, records []crawler.Content, logger *zap.Logger) error {
	if err := checkFormat(path); err != nil {
		return err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context canceled: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return &crawler.IOError{Op: "mkdir", Path: dir, Err: err}
		}
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600) // #nosec G304 -- operator-chosen output path
	if err != nil {
		return &crawler.IOError{Op: "open", Path: path, Err: err}
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return &crawler.IOError{Op: "stat", Path: path, Err: err}
	}

	size := info.Size()
	if size == 0 {
		row, err := encodeRow(Header)
		if err != nil {
			_ = f.Close()
			return &crawler.IOError{Op: "encode header", Path: path, Err: err}
		}
		n, err := f.Write(row)
		if err != nil {
			_ = f.Close()
			return &crawler.IOError{Op: "write header", Path: path, Err: err}
		}
		size += int64(n)
	}

	written := appendRows(f, size, path, records, logger)

	if err := f.Close(); err != nil {
		return &crawler.IOError{Op: "close", Path: path, Err: err}
	}
	logger.Debug("csv rows appended", zap.String("path", path), zap.Int("rows", written))
	return nil
}

// rowFile is the part of *os.File the row loop uses.
type rowFile interface {
	io.Writer
	Truncate(size int64) error
}

// appendRows writes one row per record to f, which currently holds size
// bytes, and returns how many rows landed. A failed write is cut back to the
// last complete row so the following rows stay well-formed.
func appendRows(f rowFile, size int64, path string, records []crawler.Content, logger *zap.Logger) int {
	written := 0
	for _, rec := range records {
		row, err := encodeRow([]string{rec.Topic, rec.Title, rec.Body, rec.URL})
		if err != nil {
			metrics.ObserveSinkRow(sinkName, "skipped")
			logger.Warn("skipping record that cannot be encoded",
				zap.String("path", path),
				zap.String("url", rec.URL),
				zap.Error(err),
			)
			continue
		}
		n, err := f.Write(row)
		if err != nil {
			metrics.ObserveSinkRow(sinkName, "skipped")
			logger.Warn("skipping record that could not be written",
				zap.String("path", path),
				zap.String("url", rec.URL),
				zap.Int("partial_bytes", n),
				zap.Error(err),
			)
			if n > 0 {
				if terr := f.Truncate(size); terr != nil {
					size += int64(n)
					logger.Error("failed to remove partial row",
						zap.String("path", path),
						zap.Error(terr),
					)
				}
			}
			continue
		}
		size += int64(n)
		metrics.ObserveSinkRow(sinkName, "written")
		written++
	}
	return written
}

// encodeRow renders one RFC 4180 row so a bad record never leaves a partial
// line in the file.
func encodeRow(fields []string) ([]byte, error) {
	for _, field := range fields {
		if !utf8.ValidString(field) {
			return nil, errInvalidUTF8
		}
	}
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(fields); err != nil {
		return nil, fmt.Errorf("encode row: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("encode row: %w", err)
	}
	return buf.Bytes(), nil
}

func checkFormat(path string) error {
	if !strings.EqualFold(filepath.Ext(path), ".csv") {
		return &crawler.InvalidFormatError{Path: path, Want: "csv"}
	}
	return nil
}
