package csvsink

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/sitesearch-crawler/internal/crawler"
)

func record(topic, title, body, url string) crawler.Content {
	return crawler.Content{Topic: topic, Title: title, Body: body, URL: url, Site: "test", FetchedAt: time.Unix(0, 0)}
}

func readRows(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return rows
}

func TestAppendRoundTrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "out.csv")
	records := []crawler.Content{
		record("python", `Say "hi", friend`, "line one\nline two", "https://x.com/a?b=1,2"),
		record("data science", "Plain", "Body", "https://x.com/b"),
	}
	require.NoError(t, Append(context.Background(), path, records, zap.NewNop()))

	rows := readRows(t, path)
	require.Len(t, rows, 3)
	assert.Equal(t, Header, rows[0])
	assert.Equal(t, []string{"python", `Say "hi", friend`, "line one\nline two", "https://x.com/a?b=1,2"}, rows[1])
	assert.Equal(t, []string{"data science", "Plain", "Body", "https://x.com/b"}, rows[2])
}

func TestAppendWritesHeaderOnce(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "nested", "out.csv")
	sink, err := New(path, nil)
	require.NoError(t, err)

	require.NoError(t, sink.Append(context.Background(), []crawler.Content{record("a", "t1", "b1", "u1")}))
	require.NoError(t, sink.Append(context.Background(), []crawler.Content{record("a", "t2", "b2", "u2")}))

	rows := readRows(t, path)
	require.Len(t, rows, 3)
	assert.Equal(t, Header, rows[0])
	assert.Equal(t, "t1", rows[1][1])
	assert.Equal(t, "t2", rows[2][1])
}

func TestAppendHeaderOnEmptyExistingFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "out.csv")
	require.NoError(t, os.WriteFile(path, nil, 0o600))
	require.NoError(t, Append(context.Background(), path, nil, nil))

	rows := readRows(t, path)
	assert.Equal(t, [][]string{Header}, rows)
}

func TestAppendRejectsNonCSVPath(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "out.json")
	err := Append(context.Background(), path, []crawler.Content{record("a", "b", "c", "d")}, nil)

	var formatErr *crawler.InvalidFormatError
	require.True(t, errors.As(err, &formatErr))
	assert.Equal(t, path, formatErr.Path)
	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))

	_, err = New("out.txt", nil)
	require.True(t, errors.As(err, &formatErr))
}

func TestAppendAcceptsUpperCaseExtension(t *testing.T) {
	t.Parallel()

	_, err := New(filepath.Join(t.TempDir(), "OUT.CSV"), nil)
	require.NoError(t, err)
}

func TestAppendSkipsUnencodableRecord(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "out.csv")
	records := []crawler.Content{
		record("a", "good one", "b", "u1"),
		record("a", "bad \xff title", "b", "u2"),
		record("a", "good two", "b", "u3"),
	}
	require.NoError(t, Append(context.Background(), path, records, zap.NewNop()))

	rows := readRows(t, path)
	require.Len(t, rows, 3)
	assert.Equal(t, "u1", rows[1][3])
	assert.Equal(t, "u3", rows[2][3])
}

// flakyFile fails the write numbered failOn (1-based) after letting partial
// bytes through, like a disk that fills up mid-row.
type flakyFile struct {
	buf         bytes.Buffer
	writes      int
	failOn      int
	partial     int
	truncateErr error
}

func (f *flakyFile) Write(p []byte) (int, error) {
	f.writes++
	if f.writes == f.failOn {
		n := min(f.partial, len(p))
		f.buf.Write(p[:n])
		return n, errors.New("file too large")
	}
	return f.buf.Write(p)
}

func (f *flakyFile) Truncate(size int64) error {
	if f.truncateErr != nil {
		return f.truncateErr
	}
	f.buf.Truncate(int(size))
	return nil
}

func TestAppendRowsContinuesPastWriteFault(t *testing.T) {
	t.Parallel()

	f := &flakyFile{failOn: 2, partial: 10}
	records := []crawler.Content{
		record("go", "first", "small", "u1"),
		record("go", "second", strings.Repeat("x", 3000), "u2"),
		record("go", "third", "small", "u3"),
	}

	written := appendRows(f, 0, "out.csv", records, zap.NewNop())
	assert.Equal(t, 2, written)

	rows, err := csv.NewReader(&f.buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "u1", rows[0][3])
	assert.Equal(t, "u3", rows[1][3])
}

func TestAppendRowsKeepsCountingWhenTruncateFails(t *testing.T) {
	t.Parallel()

	f := &flakyFile{failOn: 1, partial: 4, truncateErr: errors.New("not a regular file")}
	records := []crawler.Content{
		record("go", "first", "body", "u1"),
		record("go", "second", "body", "u2"),
	}

	written := appendRows(f, 0, "out.csv", records, zap.NewNop())
	assert.Equal(t, 1, written)
	assert.True(t, strings.HasSuffix(f.buf.String(), "go,second,body,u2\n"))
}

func TestAppendOpenFailure(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "taken.csv")
	require.NoError(t, os.Mkdir(path, 0o750))

	err := Append(context.Background(), path, nil, nil)
	var ioErr *crawler.IOError
	require.True(t, errors.As(err, &ioErr))
	assert.Equal(t, "open", ioErr.Op)
}

func TestAppendCanceledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Append(ctx, filepath.Join(t.TempDir(), "out.csv"), nil, nil)
	require.ErrorIs(t, err, context.Canceled)
}

func TestSinkName(t *testing.T) {
	t.Parallel()

	sink, err := New("articles_data.csv", nil)
	require.NoError(t, err)
	assert.Equal(t, "csv", sink.Name())
	assert.Equal(t, "articles_data.csv", sink.Path())
}
