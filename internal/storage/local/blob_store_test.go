package local_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/sitesearch-crawler/internal/storage/local"
)

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("disk gone") }

func TestNew(t *testing.T) {
	t.Parallel()

	t.Run("CreatesMissingDir", func(t *testing.T) {
		t.Parallel()
		dir := filepath.Join(t.TempDir(), "a", "b")
		store, err := local.New(local.Config{BaseDir: dir})
		require.NoError(t, err)
		assert.NotNil(t, store)
		assert.DirExists(t, dir)
	})

	t.Run("MissingBaseDir", func(t *testing.T) {
		t.Parallel()
		_, err := local.New(local.Config{BaseDir: "  "})
		assert.Error(t, err)
	})

	t.Run("BaseDirIsAFile", func(t *testing.T) {
		t.Parallel()
		file := filepath.Join(t.TempDir(), "file")
		require.NoError(t, os.WriteFile(file, []byte("x"), 0o600))
		_, err := local.New(local.Config{BaseDir: file})
		assert.Error(t, err)
	})
}

func TestPutObject(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	store, err := local.New(local.Config{BaseDir: root})
	require.NoError(t, err)
	ctx := context.Background()

	t.Run("NestedPath", func(t *testing.T) {
		name := "sitesearch/run-1/articles_data.csv"
		uri, err := store.PutObject(ctx, name, "text/csv", strings.NewReader("Topic,Title,Description,URL\n"))
		require.NoError(t, err)
		target := filepath.Join(root, name)
		assert.Equal(t, "file://"+filepath.ToSlash(target), uri)

		data, err := os.ReadFile(target) // #nosec G304 -- test temp dir
		require.NoError(t, err)
		assert.Equal(t, "Topic,Title,Description,URL\n", string(data))
	})

	t.Run("Rejected", func(t *testing.T) {
		for _, name := range []string{"", "../escape.csv", "a/../../escape.csv", "."} {
			_, err := store.PutObject(ctx, name, "", strings.NewReader("x"))
			assert.Error(t, err, name)
		}
	})

	t.Run("FailedCopyLeavesNothing", func(t *testing.T) {
		_, err := store.PutObject(ctx, "broken/out.csv", "", failingReader{})
		require.ErrorContains(t, err, "disk gone")
		entries, err := os.ReadDir(filepath.Join(root, "broken"))
		require.NoError(t, err)
		assert.Empty(t, entries)
	})

	t.Run("CanceledContext", func(t *testing.T) {
		canceled, cancel := context.WithCancel(ctx)
		cancel()
		_, err := store.PutObject(canceled, "late.csv", "", strings.NewReader("x"))
		assert.ErrorIs(t, err, context.Canceled)
	})
}
