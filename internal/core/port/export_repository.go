package port

import (
	"context"
	"time"

	"github.com/tanvi-vanity/vanity-agent/internal/core/domain"
)

// ExportRepository persists export requests and coordinates workers.
type ExportRepository interface {
	Create(ctx context.Context, req domain.ExportRequest) error
	GetByID(ctx context.Context, userID, id string) (*domain.ExportRequest, error)
	GetByToken(ctx context.Context, token string) (*domain.ExportRequest, error)
	FindOpenByUser(ctx context.Context, userID string) (*domain.ExportRequest, error)
	// ClaimNext moves the oldest pending request, or a processing request whose
	// heartbeat is older than staleBefore, to processing and returns it.
	ClaimNext(ctx context.Context, at time.Time, staleBefore time.Time) (*domain.ExportRequest, error)
	Heartbeat(ctx context.Context, id string, progress int, at time.Time) error
	Finish(ctx context.Context, req domain.ExportRequest) error
	// RegisterDownload increments the download count when the request is still
	// available at the supplied moment and returns the updated row.
	RegisterDownload(ctx context.Context, token string, at time.Time) (*domain.ExportRequest, error)
}
