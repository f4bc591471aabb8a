package port

import (
	"context"
	"io"
)

// FileStore keeps generated export files.
type FileStore interface {
	Put(ctx context.Context, key string, body []byte, contentType string) (string, error)
	Open(ctx context.Context, location string) (io.ReadCloser, error)
	Delete(ctx context.Context, location string) error
}

