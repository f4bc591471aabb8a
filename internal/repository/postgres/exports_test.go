package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v2"

	"github.com/tanvi-vanity/vanity-agent/internal/core/domain"
	"github.com/tanvi-vanity/vanity-agent/internal/repository"
)

func TestExportRepository_CreateMapsOpenRequestViolation(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewExportRepository(mock)

	mock.ExpectExec(`INSERT INTO identity\.export_requests`).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "export_requests_open_per_user"})

	err = repo.Create(context.Background(), domain.ExportRequest{ID: "exp-1", UserID: "user-1", Status: domain.ExportPending})
	if !errors.Is(err, repository.ErrConflict) {
		t.Fatalf("expected repository.ErrConflict, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestExportRepository_RegisterDownloadUnavailable(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewExportRepository(mock)
	at := time.Now().UTC()

	mock.ExpectQuery(`UPDATE identity\.export_requests SET download_count = download_count \+ 1 WHERE download_token = \$1 AND status = \$2 AND expires_at > \$3 AND download_count < max_downloads RETURNING`).
		WithArgs("token-1", domain.ExportCompleted, at).
		WillReturnRows(pgxmock.NewRows(exportColumns))

	if _, err := repo.RegisterDownload(context.Background(), "token-1", at); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound when the guard rejects the download, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestExportRepository_ClaimNext(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewExportRepository(mock)
	now := time.Now().UTC()
	stale := now.Add(-domain.ExportReclaimAfter)
	startedAt := now

	rows := pgxmock.NewRows(exportColumns).AddRow(
		"exp-1", "user-1", domain.ExportTypeFull, []byte(`["profile","wardrobe"]`), domain.ExportFormatJSON, domain.ExportProcessing, 10,
		"", int64(0), nil, nil, 0, 3, "", &now, now.Add(-time.Minute), &startedAt, nil,
	)

	mock.ExpectQuery(`(?s)UPDATE identity\.export_requests\s+SET status = 'processing'.*FOR UPDATE SKIP LOCKED`).
		WithArgs(now, stale).
		WillReturnRows(rows)

	req, err := repo.ClaimNext(context.Background(), now, stale)
	if err != nil {
		t.Fatalf("ClaimNext returned error: %v", err)
	}
	if req.Status != domain.ExportProcessing || len(req.DataTypes) != 2 {
		t.Fatalf("unexpected claimed request: %+v", req)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
