// Package filestore keeps generated export files on local disk or in S3.
package filestore

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/tanvi-vanity/vanity-agent/internal/core/port"
	"github.com/tanvi-vanity/vanity-agent/internal/infra/config"
)

// ErrNotFound reports a missing object.
var ErrNotFound = errors.New("filestore: object not found")

// ErrInvalidKey reports a key that would escape the store's root.
var ErrInvalidKey = errors.New("filestore: invalid key")

// New builds the store selected by export.storage.
func New(ctx context.Context, cfg config.ExportSettings, logger *zap.Logger) (port.FileStore, error) {
	switch cfg.Storage {
	case "", "local":
		store, err := NewLocal(cfg.Dir)
		if err != nil {
			return nil, err
		}
		logger.Info("export storage ready", zap.String("backend", "local"), zap.String("dir", store.root))
		return store, nil
	case "s3":
		store, err := NewS3(ctx, cfg.S3)
		if err != nil {
			return nil, err
		}
		logger.Info("export storage ready",
			zap.String("backend", "s3"),
			zap.String("bucket", cfg.S3.Bucket),
			zap.String("region", cfg.S3.Region),
		)
		return store, nil
	default:
		return nil, fmt.Errorf("filestore: unknown storage %q", cfg.Storage)
	}
}
