package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	pgxmock "github.com/pashagolub/pgxmock/v2"

	"github.com/tanvi-vanity/vanity-agent/internal/core/domain"
	"github.com/tanvi-vanity/vanity-agent/internal/repository"
)

func TestSessionRepository_Create(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewSessionRepository(mock)

	issuedAt := time.Now().UTC()
	session := domain.Session{
		ID:                "session-123",
		UserID:            "user-123",
		TokenHash:         "hash-123",
		DeviceFingerprint: "0123456789abcdef",
		IPAddress:         "198.51.100.10",
		UserAgent:         "GoTest/1.0",
		IssuedAt:          issuedAt,
		ExpiresAt:         issuedAt.Add(24 * time.Hour),
		LastSeenAt:        issuedAt,
	}

	mock.ExpectExec(`INSERT INTO identity\.sessions`).
		WithArgs(
			session.ID,
			session.UserID,
			session.TokenHash,
			session.DeviceFingerprint,
			session.IPAddress,
			session.UserAgent,
			session.IssuedAt,
			session.ExpiresAt,
			session.LastSeenAt,
			nil,
			"",
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	if err := repo.Create(context.Background(), session); err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestSessionRepository_GetByTokenHash(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewSessionRepository(mock)

	issuedAt := time.Now().UTC()
	rows := pgxmock.NewRows(sessionColumns).AddRow(
		"session-1", "user-1", "hash-1", "fp", "203.0.113.5", "UA", issuedAt, issuedAt.Add(time.Hour), issuedAt, nil, "",
	)

	mock.ExpectQuery(`SELECT .*FROM identity\.sessions WHERE token_hash = \$1`).
		WithArgs("hash-1").
		WillReturnRows(rows)

	session, err := repo.GetByTokenHash(context.Background(), "hash-1")
	if err != nil {
		t.Fatalf("GetByTokenHash returned error: %v", err)
	}
	if session.ID != "session-1" || session.UserID != "user-1" {
		t.Fatalf("unexpected session: %+v", session)
	}
	if session.RevokedAt != nil {
		t.Fatalf("expected revoked_at to be nil")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestSessionRepository_GetByTokenHashNotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewSessionRepository(mock)

	mock.ExpectQuery(`SELECT .*FROM identity\.sessions`).
		WithArgs("missing").
		WillReturnRows(pgxmock.NewRows(sessionColumns))

	if _, err := repo.GetByTokenHash(context.Background(), "missing"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestSessionRepository_ListActiveByUser(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewSessionRepository(mock)

	now := time.Now().UTC()
	rows := pgxmock.NewRows(sessionColumns).
		AddRow("session-1", "user-1", "h1", "", "", "", now.Add(-2*time.Hour), now.Add(time.Hour), now, nil, "").
		AddRow("session-2", "user-1", "h2", "", "", "", now.Add(-time.Hour), now.Add(2*time.Hour), now, nil, "")

	mock.ExpectQuery(`SELECT .*FROM identity\.sessions WHERE revoked_at IS NULL AND user_id = \$1 AND expires_at > \$2 ORDER BY issued_at ASC`).
		WithArgs("user-1", now).
		WillReturnRows(rows)

	sessions, err := repo.ListActiveByUser(context.Background(), "user-1", now)
	if err != nil {
		t.Fatalf("ListActiveByUser returned error: %v", err)
	}
	if len(sessions) != 2 {
		t.Fatalf("expected two sessions, got %d", len(sessions))
	}
	if sessions[0].ID != "session-1" || sessions[1].ID != "session-2" {
		t.Fatalf("unexpected session order: %+v", sessions)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestSessionRepository_Revoke(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewSessionRepository(mock)
	at := time.Now().UTC()

	mock.ExpectExec(`UPDATE identity\.sessions SET revoked_at = \$1, revoke_reason = \$2 WHERE id = \$3 AND revoked_at IS NULL`).
		WithArgs(at, "logout", "session-7").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	if err := repo.Revoke(context.Background(), "session-7", "logout", at); err != nil {
		t.Fatalf("Revoke returned error: %v", err)
	}

	mock.ExpectExec(`UPDATE identity\.sessions`).
		WithArgs(at, "logout", "session-7").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	if err := repo.Revoke(context.Background(), "session-7", "logout", at); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for already revoked session, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestSessionRepository_RevokeAllForUser(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewSessionRepository(mock)
	at := time.Now().UTC()

	mock.ExpectExec(`UPDATE identity\.sessions`).
		WithArgs(at, "password_change", "user-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 3))

	n, err := repo.RevokeAllForUser(context.Background(), "user-1", "password_change", at)
	if err != nil {
		t.Fatalf("RevokeAllForUser returned error: %v", err)
	}
	if n != 3 {
		t.Fatalf("expected 3 revoked sessions, got %d", n)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestTxManager_WithinTxRollsBackOnError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	tx := NewTxManager(mock)
	repo := NewSessionRepository(mock)
	at := time.Now().UTC()
	boom := errors.New("boom")

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE identity\.sessions`).
		WithArgs(at, "logout", "session-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectRollback()

	err = tx.WithinTx(context.Background(), func(ctx context.Context) error {
		if err := repo.Revoke(ctx, "session-1", "logout", at); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestTxManager_WithinTxCommitsAndReusesOuterTx(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	tx := NewTxManager(mock)
	repo := NewSessionRepository(mock)
	at := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE identity\.sessions`).
		WithArgs(at, "a", "user-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`UPDATE identity\.sessions`).
		WithArgs(at, "b", "user-2").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	err = tx.WithinTx(context.Background(), func(ctx context.Context) error {
		if _, err := repo.RevokeAllForUser(ctx, "user-1", "a", at); err != nil {
			return err
		}
		return tx.WithinTx(ctx, func(ctx context.Context) error {
			_, err := repo.RevokeAllForUser(ctx, "user-2", "b", at)
			return err
		})
	})
	if err != nil {
		t.Fatalf("WithinTx returned error: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
