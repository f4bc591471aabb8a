package postgres

import (
	"context"
	"fmt"
	"time"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/tanvi-vanity/vanity-agent/internal/core/domain"
	"github.com/tanvi-vanity/vanity-agent/internal/repository"
)

const sessionsTable = "identity.sessions"

var sessionColumns = []string{
	"id",
	"user_id",
	"token_hash",
	"device_fingerprint",
	"ip_address",
	"user_agent",
	"issued_at",
	"expires_at",
	"last_seen_at",
	"revoked_at",
	"revoke_reason",
}

// SessionRepository implements port.SessionRepository backed by PostgreSQL.
type SessionRepository struct {
	base
}

// NewSessionRepository constructs a repository backed by any executor that satisfies pgExecutor.
func NewSessionRepository(exec pgExecutor) *SessionRepository {
	return &SessionRepository{base: newBase(exec)}
}

// Create persists a newly issued session.
func (r *SessionRepository) Create(ctx context.Context, session domain.Session) error {
	stmt, args, err := r.builder.Insert(sessionsTable).
		Columns(sessionColumns...).
		Values(
			session.ID,
			session.UserID,
			session.TokenHash,
			session.DeviceFingerprint,
			session.IPAddress,
			session.UserAgent,
			session.IssuedAt,
			session.ExpiresAt,
			session.LastSeenAt,
			session.RevokedAt,
			session.RevokeReason,
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert session sql: %w", err)
	}

	_, err = r.execCount(ctx, stmt, args, "insert session")
	return err
}

// GetByTokenHash loads a session by the hash of its bearer token.
func (r *SessionRepository) GetByTokenHash(ctx context.Context, tokenHash string) (*domain.Session, error) {
	stmt, args, err := r.builder.
		Select(sessionColumns...).
		From(sessionsTable).
		Where(squirrel.Eq{"token_hash": tokenHash}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select session sql: %w", err)
	}

	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	session, err := scanSession(r.executor(ctx).QueryRow(ctx, stmt, args...))
	if err != nil {
		if isNoRows(err) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan session: %w", err)
	}
	return session, nil
}

// Touch refreshes last_seen_at.
func (r *SessionRepository) Touch(ctx context.Context, sessionID string, at time.Time) error {
	stmt, args, err := r.builder.Update(sessionsTable).
		Set("last_seen_at", at).
		Where(squirrel.Eq{"id": sessionID}).
		Where(squirrel.Lt{"last_seen_at": at}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build touch session sql: %w", err)
	}

	_, err = r.execCount(ctx, stmt, args, "touch session")
	return err
}

// Revoke marks a single session as revoked.
func (r *SessionRepository) Revoke(ctx context.Context, sessionID string, reason string, at time.Time) error {
	stmt, args, err := r.builder.Update(sessionsTable).
		Set("revoked_at", at).
		Set("revoke_reason", reason).
		Where(squirrel.Eq{"id": sessionID, "revoked_at": nil}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build revoke session sql: %w", err)
	}

	return r.execAffecting(ctx, stmt, args, "revoke session")
}

// RevokeAllForUser revokes every live session of a user and returns how many were revoked.
func (r *SessionRepository) RevokeAllForUser(ctx context.Context, userID string, reason string, at time.Time) (int, error) {
	stmt, args, err := r.builder.Update(sessionsTable).
		Set("revoked_at", at).
		Set("revoke_reason", reason).
		Where(squirrel.Eq{"user_id": userID, "revoked_at": nil}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build revoke user sessions sql: %w", err)
	}

	n, err := r.execCount(ctx, stmt, args, "revoke user sessions")
	return int(n), err
}

// ListActiveByUser returns unrevoked, unexpired sessions, oldest first.
func (r *SessionRepository) ListActiveByUser(ctx context.Context, userID string, at time.Time) ([]domain.Session, error) {
	stmt, args, err := r.builder.
		Select(sessionColumns...).
		From(sessionsTable).
		Where(squirrel.Eq{"user_id": userID, "revoked_at": nil}).
		Where(squirrel.Gt{"expires_at": at}).
		OrderBy("issued_at ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list sessions sql: %w", err)
	}

	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	rows, err := r.executor(ctx).Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	var sessions []domain.Session
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, *session)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return sessions, nil
}

// DeleteExpired removes sessions that expired before the cutoff.
func (r *SessionRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	stmt, args, err := r.builder.Delete(sessionsTable).
		Where(squirrel.Lt{"expires_at": before}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build delete expired sessions sql: %w", err)
	}
	return r.execCount(ctx, stmt, args, "delete expired sessions")
}

func scanSession(row pgx.Row) (*domain.Session, error) {
	var s domain.Session
	if err := row.Scan(
		&s.ID,
		&s.UserID,
		&s.TokenHash,
		&s.DeviceFingerprint,
		&s.IPAddress,
		&s.UserAgent,
		&s.IssuedAt,
		&s.ExpiresAt,
		&s.LastSeenAt,
		&s.RevokedAt,
		&s.RevokeReason,
	); err != nil {
		return nil, err
	}
	return &s, nil
}
