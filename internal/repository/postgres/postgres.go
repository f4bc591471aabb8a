package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/tanvi-vanity/vanity-agent/internal/repository"
)

// queryTimeout bounds every statement issued by a repository.
const queryTimeout = 2 * time.Second

const uniqueViolationCode = "23505"

type pgExecutor interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type pgBeginner interface {
	pgExecutor
	Begin(ctx context.Context) (pgx.Tx, error)
}

type txKey struct{}

// TxManager implements port.Transactor on top of a pgx pool.
type TxManager struct {
	db pgBeginner
}

// NewTxManager constructs a transaction manager.
func NewTxManager(db pgBeginner) *TxManager {
	return &TxManager{db: db}
}

// WithinTx runs fn inside a transaction. Nested calls reuse the outer transaction.
func (m *TxManager) WithinTx(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if _, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		return fn(ctx)
	}

	tx, err := m.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(context.WithoutCancel(ctx))
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback(context.WithoutCancel(ctx))
		}
	}()

	if err = fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		return err
	}
	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// base carries the executor and statement builder shared by every repository.
type base struct {
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

func newBase(exec pgExecutor) base {
	return base{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// executor returns the transaction bound to ctx, falling back to the pool.
func (b base) executor(ctx context.Context) pgExecutor {
	if tx, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		return tx
	}
	return b.exec
}

// execAffecting runs stmt and maps zero affected rows to repository.ErrNotFound.
func (b base) execAffecting(ctx context.Context, stmt string, args []any, op string) error {
	n, err := b.execCount(ctx, stmt, args, op)
	if err != nil {
		return err
	}
	if n == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// execCount runs stmt and returns the number of affected rows.
func (b base) execCount(ctx context.Context, stmt string, args []any, op string) (int64, error) {
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	tag, err := b.executor(ctx).Exec(ctx, stmt, args...)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return tag.RowsAffected(), nil
}

func withQueryTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, queryTimeout)
}

// IsUniqueViolation reports whether err is a PostgreSQL unique constraint violation.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode
}

// isConstraint reports whether err is a unique violation on the named constraint.
func isConstraint(err error, name string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode && pgErr.ConstraintName == name
}

func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

func joinColumns(columns []string) string {
	return strings.Join(columns, ", ")
}
