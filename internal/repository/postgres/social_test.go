package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v2"

	"github.com/tanvi-vanity/vanity-agent/internal/core/domain"
)

func TestEngagementRepository_AddLikeDuplicate(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewEngagementRepository(mock)
	at := time.Now().UTC()

	mock.ExpectExec(`INSERT INTO social\.likes \(user_id,post_id,created_at\) VALUES \(\$1,\$2,\$3\)`).
		WithArgs("user-1", "post-7", at).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`INSERT INTO social\.likes`).
		WithArgs("user-1", "post-7", at).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "likes_user_post_key"})

	if err := repo.AddLike(context.Background(), "user-1", "post-7", at); err != nil {
		t.Fatalf("first AddLike returned error: %v", err)
	}
	err = repo.AddLike(context.Background(), "user-1", "post-7", at)
	if !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	var de *domain.Error
	if !errors.As(err, &de) || de.Code != "already_liked" {
		t.Fatalf("expected already_liked code, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPostRepository_AdjustCounterRejectsUnknownColumn(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewPostRepository(mock)

	if err := repo.AdjustCounter(context.Background(), "post-1", domain.Counter("id; DROP TABLE x"), 1); err == nil {
		t.Fatalf("expected unknown counter error")
	}

	mock.ExpectExec(`UPDATE social\.posts SET likes_count = GREATEST\(likes_count \+ \$1, 0\) WHERE id = \$2`).
		WithArgs(-1, "post-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	if err := repo.AdjustCounter(context.Background(), "post-1", domain.CounterLikes, -1); err != nil {
		t.Fatalf("AdjustCounter returned error: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPostRepository_Reconcile(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewPostRepository(mock)

	rows := pgxmock.NewRows([]string{
		"id", "likes_count", "likes_actual", "comments_count", "comments_actual",
		"shares_count", "shares_actual", "saves_count", "saves_actual",
	}).
		AddRow("post-1", 1, 1, 2, 2, 0, 0, 0, 0).
		AddRow("post-2", 3, 2, 0, 0, 1, 1, 0, 0)

	mock.ExpectQuery(`(?s)SELECT p\.id.*FROM social\.posts p.*LIMIT \$1`).
		WithArgs(500).
		WillReturnRows(rows)

	report, err := repo.Reconcile(context.Background(), 500)
	if err != nil {
		t.Fatalf("Reconcile returned error: %v", err)
	}
	if report.CountersChecked != 8 {
		t.Fatalf("expected 8 counters checked, got %d", report.CountersChecked)
	}
	if len(report.Drifts) != 1 {
		t.Fatalf("expected one drift, got %+v", report.Drifts)
	}
	drift := report.Drifts[0]
	if drift.PostID != "post-2" || drift.Counter != domain.CounterLikes || drift.Stored != 3 || drift.Actual != 2 {
		t.Fatalf("unexpected drift: %+v", drift)
	}

	mock.ExpectExec(`UPDATE social\.posts SET likes_count = \$1 WHERE id = \$2`).
		WithArgs(2, "post-2").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	if err := repo.RepairCounters(context.Background(), report.Drifts); err != nil {
		t.Fatalf("RepairCounters returned error: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
