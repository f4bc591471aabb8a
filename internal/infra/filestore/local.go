package filestore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/tanvi-vanity/vanity-agent/internal/core/port"
)

// Local stores objects below a root directory. Writes go to a temporary file
// that is renamed into place, so readers never observe a partial export.
type Local struct {
	root string
}

// NewLocal creates root when missing.
func NewLocal(root string) (*Local, error) {
	if strings.TrimSpace(root) == "" {
		return nil, fmt.Errorf("filestore: local dir is required")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("filestore: resolve %s: %w", root, err)
	}
	if err := os.MkdirAll(abs, 0o750); err != nil {
		return nil, fmt.Errorf("filestore: create %s: %w", abs, err)
	}
	return &Local{root: abs}, nil
}

func (s *Local) path(key string) (string, error) {
	cleaned := filepath.Clean(filepath.FromSlash(strings.TrimPrefix(key, "/")))
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return filepath.Join(s.root, cleaned), nil
}

// Put writes body under key and returns key as the location.
func (s *Local) Put(ctx context.Context, key string, body []byte, _ string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	target, err := s.path(key)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o750); err != nil {
		return "", fmt.Errorf("filestore: create dir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(target), ".upload-*")
	if err != nil {
		return "", fmt.Errorf("filestore: create temp: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(body); err != nil {
		_ = tmp.Close()
		return "", fmt.Errorf("filestore: write %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("filestore: close %s: %w", key, err)
	}
	if err := os.Rename(tmpName, target); err != nil {
		return "", fmt.Errorf("filestore: commit %s: %w", key, err)
	}
	return key, nil
}

// Open returns a reader for location.
func (s *Local) Open(_ context.Context, location string) (io.ReadCloser, error) {
	target, err := s.path(location)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(target)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("filestore: open %s: %w", location, err)
	}
	return f, nil
}

// Delete removes location; a missing object is not an error.
func (s *Local) Delete(_ context.Context, location string) error {
	target, err := s.path(location)
	if err != nil {
		return err
	}
	if err := os.Remove(target); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("filestore: delete %s: %w", location, err)
	}
	return nil
}

var _ port.FileStore = (*Local)(nil)
