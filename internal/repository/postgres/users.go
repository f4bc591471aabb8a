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

const usersTable = "identity.users"

var userColumns = []string{
	"id",
	"username",
	"email",
	"password_hash",
	"first_name",
	"last_name",
	"age_range",
	"style_preference",
	"color_preferences",
	"budget_range",
	"is_active",
	"deactivated_at",
	"last_login",
	"last_password_change",
	"created_at",
	"updated_at",
}

var (
	errDuplicateUsername = domain.NewError(domain.KindConflict, "duplicate_username", "username is already taken")
	errDuplicateEmail    = domain.NewError(domain.KindConflict, "duplicate_email", "email is already registered")
)

// UserRepository implements port.UserRepository using PostgreSQL.
type UserRepository struct {
	base
}

// NewUserRepository wires a PostgreSQL-backed user repository.
func NewUserRepository(exec pgExecutor) *UserRepository {
	return &UserRepository{base: newBase(exec)}
}

// Create inserts a new user row.
func (r *UserRepository) Create(ctx context.Context, user domain.User) error {
	colors, err := json.Marshal(nonNilStrings(user.ColorPreferences))
	if err != nil {
		return fmt.Errorf("marshal color preferences: %w", err)
	}

	stmt, args, err := r.builder.Insert(usersTable).
		Columns(userColumns...).
		Values(
			user.ID,
			user.Username,
			user.Email,
			user.PasswordHash,
			user.FirstName,
			user.LastName,
			user.AgeRange,
			user.StylePreference,
			colors,
			user.BudgetRange,
			user.IsActive,
			user.DeactivatedAt,
			user.LastLogin,
			user.LastPasswordChange,
			user.CreatedAt,
			user.UpdatedAt,
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert user sql: %w", err)
	}

	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	if _, err := r.executor(ctx).Exec(ctx, stmt, args...); err != nil {
		switch {
		case isConstraint(err, "users_username_key"):
			return errDuplicateUsername
		case isConstraint(err, "users_email_key"):
			return errDuplicateEmail
		}
		return fmt.Errorf("insert user: %w", err)
	}

	return nil
}

// GetByID retrieves a user by identifier.
func (r *UserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	return r.getOne(ctx, squirrel.Eq{"id": id})
}

// GetByIdentifier retrieves a user by username or email.
func (r *UserRepository) GetByIdentifier(ctx context.Context, identifier string) (*domain.User, error) {
	return r.getOne(ctx, squirrel.Or{
		squirrel.Eq{"username": identifier},
		squirrel.Expr("lower(email) = lower(?)", identifier),
	})
}

func (r *UserRepository) getOne(ctx context.Context, where squirrel.Sqlizer) (*domain.User, error) {
	stmt, args, err := r.builder.
		Select(userColumns...).
		From(usersTable).
		Where(where).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select user sql: %w", err)
	}

	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	user, err := scanUser(r.executor(ctx).QueryRow(ctx, stmt, args...))
	if err != nil {
		if isNoRows(err) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}
	return user, nil
}

// UpdateProfile persists the display attributes of a user.
func (r *UserRepository) UpdateProfile(ctx context.Context, user domain.User) error {
	colors, err := json.Marshal(nonNilStrings(user.ColorPreferences))
	if err != nil {
		return fmt.Errorf("marshal color preferences: %w", err)
	}

	stmt, args, err := r.builder.Update(usersTable).
		Set("first_name", user.FirstName).
		Set("last_name", user.LastName).
		Set("age_range", user.AgeRange).
		Set("style_preference", user.StylePreference).
		Set("color_preferences", colors).
		Set("budget_range", user.BudgetRange).
		Set("updated_at", user.UpdatedAt).
		Where(squirrel.Eq{"id": user.ID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update user profile sql: %w", err)
	}

	return r.execAffecting(ctx, stmt, args, "update user profile")
}

// UpdatePassword stores a new password hash.
func (r *UserRepository) UpdatePassword(ctx context.Context, id string, passwordHash string, changedAt time.Time) error {
	stmt, args, err := r.builder.Update(usersTable).
		Set("password_hash", passwordHash).
		Set("last_password_change", changedAt).
		Set("updated_at", changedAt).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update password sql: %w", err)
	}

	return r.execAffecting(ctx, stmt, args, "update password")
}

// SetActive flips the active flag and records when the account was deactivated.
func (r *UserRepository) SetActive(ctx context.Context, id string, active bool, deactivatedAt *time.Time) error {
	stmt, args, err := r.builder.Update(usersTable).
		Set("is_active", active).
		Set("deactivated_at", deactivatedAt).
		Set("updated_at", squirrel.Expr("now()")).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build set active sql: %w", err)
	}

	return r.execAffecting(ctx, stmt, args, "set user active")
}

// RecordLogin stamps the last successful login.
func (r *UserRepository) RecordLogin(ctx context.Context, id string, at time.Time) error {
	stmt, args, err := r.builder.Update(usersTable).
		Set("last_login", at).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build record login sql: %w", err)
	}

	return r.execAffecting(ctx, stmt, args, "record login")
}

// DeleteDeactivatedBefore hard-deletes accounts deactivated before cutoff.
func (r *UserRepository) DeleteDeactivatedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	stmt, args, err := r.builder.Delete(usersTable).
		Where(squirrel.Eq{"is_active": false}).
		Where(squirrel.Lt{"deactivated_at": cutoff}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build delete deactivated users sql: %w", err)
	}

	return r.execCount(ctx, stmt, args, "delete deactivated users")
}

func scanUser(row pgx.Row) (*domain.User, error) {
	var (
		user   domain.User
		colors []byte
	)
	if err := row.Scan(
		&user.ID,
		&user.Username,
		&user.Email,
		&user.PasswordHash,
		&user.FirstName,
		&user.LastName,
		&user.AgeRange,
		&user.StylePreference,
		&colors,
		&user.BudgetRange,
		&user.IsActive,
		&user.DeactivatedAt,
		&user.LastLogin,
		&user.LastPasswordChange,
		&user.CreatedAt,
		&user.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if err := unmarshalJSON(colors, &user.ColorPreferences); err != nil {
		return nil, fmt.Errorf("decode color preferences: %w", err)
	}
	return &user, nil
}

func nonNilStrings(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}

func unmarshalJSON(raw []byte, dst any) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, dst)
}
