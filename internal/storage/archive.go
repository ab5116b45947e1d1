// Package storage archives finished run outputs to blob storage.
package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// BlobStore is a destination for archived objects.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, r io.Reader) (string, error)
}

// ObjectPath builds the archive key for a run output: prefix/runID/base(file).
func ObjectPath(prefix, runID, localPath string) string {
	parts := make([]string, 0, 3)
	if p := strings.Trim(prefix, "/"); p != "" {
		parts = append(parts, p)
	}
	if runID != "" {
		parts = append(parts, runID)
	}
	parts = append(parts, filepath.Base(localPath))
	return path.Join(parts...)
}

// ArchiveFile streams the file at localPath to store under objectPath and
// returns the resulting URI.
func ArchiveFile(ctx context.Context, store BlobStore, localPath, objectPath, contentType string) (string, error) {
	f, err := os.Open(localPath) // #nosec G304 -- path is the run's own output file
	if err != nil {
		return "", fmt.Errorf("open %s: %w", localPath, err)
	}
	defer f.Close()

	uri, err := store.PutObject(ctx, objectPath, contentType, f)
	if err != nil {
		return "", fmt.Errorf("archive %s: %w", localPath, err)
	}
	return uri, nil
}
