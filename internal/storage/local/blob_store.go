// Package local archives run outputs into a directory on disk.
package local

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Config captures the parameters for the local filesystem blob store.
type Config struct {
	// BaseDir is the root directory archived objects are written under.
	BaseDir string `mapstructure:"base_dir"`
}

// BlobStore writes archived objects below a base directory.
type BlobStore struct {
	root string
}

// New returns a store rooted at cfg.BaseDir, creating the directory when it
// does not exist yet.
func New(cfg Config) (*BlobStore, error) {
	root := strings.TrimSpace(cfg.BaseDir)
	if root == "" {
		return nil, errors.New("local archive: base directory is required")
	}
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("local archive: create %s: %w", root, err)
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("local archive: resolve %s: %w", root, err)
	}
	return &BlobStore{root: abs}, nil
}

// PutObject copies r to root/name and returns a file:// URI. The copy goes to
// a temp file in the target directory first, so a failed archive never leaves
// a truncated object behind. Names resolving outside root are rejected.
func (s *BlobStore) PutObject(ctx context.Context, name string, _ string, r io.Reader) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", errors.New("local archive: object name is required")
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	target := filepath.Join(s.root, filepath.FromSlash(name))
	rel, err := filepath.Rel(s.root, target)
	if err != nil || rel == "." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || rel == ".." {
		return "", fmt.Errorf("local archive: object %q escapes %s", name, s.root)
	}

	dir := filepath.Dir(target)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("local archive: create %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".archive-*")
	if err != nil {
		return "", fmt.Errorf("local archive: temp file: %w", err)
	}
	defer os.Remove(tmp.Name()) // no-op after a successful rename

	if _, err := io.Copy(tmp, r); err != nil {
		_ = tmp.Close()
		return "", fmt.Errorf("local archive: write %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("local archive: close %s: %w", name, err)
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		return "", fmt.Errorf("local archive: commit %s: %w", name, err)
	}
	return "file://" + filepath.ToSlash(target), nil
}
