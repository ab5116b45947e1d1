// Package gcs archives run outputs to a Google Cloud Storage bucket.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"strings"

	"cloud.google.com/go/storage"
)

// Config selects the bucket and the metadata stamped on every archived object.
type Config struct {
	Bucket string
	// Metadata is copied onto each object, e.g. the run ID.
	Metadata map[string]string
}

// objectSpec is what the writer factory needs to start an upload.
type objectSpec struct {
	Name        string
	ContentType string
	Metadata    map[string]string
}

type writerFactory func(ctx context.Context, spec objectSpec) io.WriteCloser

// BlobStore uploads run outputs to one bucket.
type BlobStore struct {
	bucket   string
	metadata map[string]string
	writer   writerFactory
}

// New returns a BlobStore that uploads through client.
func New(client *storage.Client, cfg Config) (*BlobStore, error) {
	if client == nil {
		return nil, errors.New("gcs: storage client is required")
	}
	bucket := client.Bucket(cfg.Bucket)
	return newBlobStore(cfg, func(ctx context.Context, spec objectSpec) io.WriteCloser {
		w := bucket.Object(spec.Name).NewWriter(ctx)
		w.ContentType = spec.ContentType
		w.Metadata = spec.Metadata
		return w
	})
}

func newBlobStore(cfg Config, writer writerFactory) (*BlobStore, error) {
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, errors.New("gcs: bucket name is required")
	}
	return &BlobStore{bucket: cfg.Bucket, metadata: maps.Clone(cfg.Metadata), writer: writer}, nil
}

// PutObject streams r into the bucket under name. The upload is only
// committed when the writer closes cleanly; the gs:// URI is returned then.
func (s *BlobStore) PutObject(ctx context.Context, name string, contentType string, r io.Reader) (string, error) {
	name = strings.TrimLeft(strings.TrimSpace(name), "/")
	if name == "" {
		return "", errors.New("gcs: object name is required")
	}
	w := s.writer(ctx, objectSpec{Name: name, ContentType: contentType, Metadata: s.metadata})
	if _, err := io.Copy(w, r); err != nil {
		return "", errors.Join(fmt.Errorf("gcs: copy object %s: %w", name, err), w.Close())
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("gcs: finalize object %s: %w", name, err)
	}
	return "gs://" + s.bucket + "/" + name, nil
}
