package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/tanvi-vanity/vanity-agent/internal/core/domain"
	"github.com/tanvi-vanity/vanity-agent/internal/repository"
)

const exportsTable = "identity.export_requests"

var exportColumns = []string{
	"id",
	"user_id",
	"request_type",
	"data_types",
	"format",
	"status",
	"progress",
	"file_path",
	"file_size_bytes",
	"download_token",
	"expires_at",
	"download_count",
	"max_downloads",
	"error_message",
	"heartbeat_at",
	"created_at",
	"started_at",
	"completed_at",
}

// ExportRepository implements port.ExportRepository.
type ExportRepository struct {
	base
}

// NewExportRepository wires the export request repository.
func NewExportRepository(exec pgExecutor) *ExportRepository {
	return &ExportRepository{base: newBase(exec)}
}

// Create inserts a new export request. The partial unique index on open
// requests per user turns a concurrent duplicate into repository.ErrConflict.
func (r *ExportRepository) Create(ctx context.Context, req domain.ExportRequest) error {
	dataTypes, err := json.Marshal(nonNilStrings(req.DataTypes))
	if err != nil {
		return fmt.Errorf("marshal data types: %w", err)
	}
	stmt, args, err := r.builder.Insert(exportsTable).
		Columns(exportColumns...).
		Values(
			req.ID,
			req.UserID,
			req.RequestType,
			dataTypes,
			req.Format,
			req.Status,
			req.Progress,
			req.FilePath,
			req.FileSizeBytes,
			req.DownloadToken,
			req.ExpiresAt,
			req.DownloadCount,
			req.MaxDownloads,
			req.ErrorMessage,
			req.HeartbeatAt,
			req.CreatedAt,
			req.StartedAt,
			req.CompletedAt,
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert export sql: %w", err)
	}

	if _, err := r.execCount(ctx, stmt, args, "insert export request"); err != nil {
		if isConstraint(err, "export_requests_open_per_user") {
			return fmt.Errorf("open export request exists: %w", repository.ErrConflict)
		}
		return err
	}
	return nil
}

// GetByID loads a request owned by userID.
func (r *ExportRepository) GetByID(ctx context.Context, userID, id string) (*domain.ExportRequest, error) {
	return r.selectOne(ctx, squirrel.Eq{"id": id, "user_id": userID}, "")
}

// GetByToken loads a request by its download token.
func (r *ExportRepository) GetByToken(ctx context.Context, token string) (*domain.ExportRequest, error) {
	return r.selectOne(ctx, squirrel.Eq{"download_token": token}, "")
}

// FindOpenByUser returns the user's pending or processing request, if any.
func (r *ExportRepository) FindOpenByUser(ctx context.Context, userID string) (*domain.ExportRequest, error) {
	return r.selectOne(ctx, squirrel.Eq{
		"user_id": userID,
		"status":  []string{string(domain.ExportPending), string(domain.ExportProcessing)},
	}, "created_at DESC")
}

func (r *ExportRepository) selectOne(ctx context.Context, where squirrel.Sqlizer, orderBy string) (*domain.ExportRequest, error) {
	query := r.builder.
		Select(exportColumns...).
		From(exportsTable).
		Where(where).
		Limit(1)
	if orderBy != "" {
		query = query.OrderBy(orderBy)
	}
	stmt, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select export sql: %w", err)
	}
	return r.queryOne(ctx, stmt, args)
}

func (r *ExportRepository) queryOne(ctx context.Context, stmt string, args []any) (*domain.ExportRequest, error) {
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	req, err := scanExport(r.executor(ctx).QueryRow(ctx, stmt, args...))
	if err != nil {
		if isNoRows(err) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan export request: %w", err)
	}
	return req, nil
}

// ClaimNext atomically moves one claimable request to processing.
func (r *ExportRepository) ClaimNext(ctx context.Context, at time.Time, staleBefore time.Time) (*domain.ExportRequest, error) {
	stmt := `UPDATE ` + exportsTable + `
SET status = 'processing', progress = 10, started_at = COALESCE(started_at, $1), heartbeat_at = $1
WHERE id = (
	SELECT id FROM ` + exportsTable + `
	WHERE status = 'pending'
	   OR (status = 'processing' AND (heartbeat_at IS NULL OR heartbeat_at < $2))
	ORDER BY created_at
	LIMIT 1
	FOR UPDATE SKIP LOCKED
)
RETURNING ` + joinColumns(exportColumns)

	return r.queryOne(ctx, stmt, []any{at, staleBefore})
}

// Heartbeat records progress and liveness for a processing request.
func (r *ExportRepository) Heartbeat(ctx context.Context, id string, progress int, at time.Time) error {
	stmt, args, err := r.builder.Update(exportsTable).
		Set("progress", progress).
		Set("heartbeat_at", at).
		Where(squirrel.Eq{"id": id, "status": domain.ExportProcessing}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build export heartbeat sql: %w", err)
	}
	return r.execAffecting(ctx, stmt, args, "export heartbeat")
}

// Finish stores the terminal state of a processed request.
func (r *ExportRepository) Finish(ctx context.Context, req domain.ExportRequest) error {
	stmt, args, err := r.builder.Update(exportsTable).
		SetMap(map[string]any{
			"status":          req.Status,
			"progress":        req.Progress,
			"file_path":       req.FilePath,
			"file_size_bytes": req.FileSizeBytes,
			"download_token":  req.DownloadToken,
			"expires_at":      req.ExpiresAt,
			"error_message":   req.ErrorMessage,
			"completed_at":    req.CompletedAt,
		}).
		Where(squirrel.Eq{"id": req.ID, "status": domain.ExportProcessing}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build finish export sql: %w", err)
	}
	return r.execAffecting(ctx, stmt, args, "finish export")
}

// RegisterDownload increments download_count only while the download is available.
func (r *ExportRepository) RegisterDownload(ctx context.Context, token string, at time.Time) (*domain.ExportRequest, error) {
	stmt, args, err := r.builder.Update(exportsTable).
		Set("download_count", squirrel.Expr("download_count + 1")).
		Where(squirrel.Eq{"download_token": token, "status": domain.ExportCompleted}).
		Where(squirrel.Gt{"expires_at": at}).
		Where("download_count < max_downloads").
		Suffix("RETURNING " + joinColumns(exportColumns)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build register download sql: %w", err)
	}
	return r.queryOne(ctx, stmt, args)
}

func scanExport(row pgx.Row) (*domain.ExportRequest, error) {
	var (
		req       domain.ExportRequest
		dataTypes []byte
	)
	if err := row.Scan(
		&req.ID,
		&req.UserID,
		&req.RequestType,
		&dataTypes,
		&req.Format,
		&req.Status,
		&req.Progress,
		&req.FilePath,
		&req.FileSizeBytes,
		&req.DownloadToken,
		&req.ExpiresAt,
		&req.DownloadCount,
		&req.MaxDownloads,
		&req.ErrorMessage,
		&req.HeartbeatAt,
		&req.CreatedAt,
		&req.StartedAt,
		&req.CompletedAt,
	); err != nil {
		return nil, err
	}
	if err := unmarshalJSON(dataTypes, &req.DataTypes); err != nil {
		return nil, fmt.Errorf("decode data types: %w", err)
	}
	return &req, nil
}
