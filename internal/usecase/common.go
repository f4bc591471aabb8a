package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/tanvi-vanity/vanity-agent/internal/core/domain"
	"github.com/tanvi-vanity/vanity-agent/internal/core/port"
	"github.com/tanvi-vanity/vanity-agent/internal/repository"
)

func utcNow() time.Time { return time.Now().UTC() }

// withinTx runs fn in a transaction when a transactor is configured.
func withinTx(ctx context.Context, tx port.Transactor, fn func(ctx context.Context) error) error {
	if tx == nil {
		return fn(ctx)
	}
	return tx.WithinTx(ctx, fn)
}

// notFoundAs converts repository.ErrNotFound into the resource's domain error.
func notFoundAs(err error, resource string) error {
	if errors.Is(err, repository.ErrNotFound) {
		return domain.NotFound(resource)
	}
	return err
}

// clampDays returns def when days is unset and rejects values outside [1, max].
func clampDays(days, def, max int) (int, error) {
	if days == 0 {
		return def, nil
	}
	if days < 1 || days > max {
		return 0, domain.Validation("days", "must be between 1 and %d", max)
	}
	return days, nil
}

// pageLimit bounds a caller-supplied page size.
func pageLimit(limit, def, max int) int {
	if limit <= 0 {
		return def
	}
	if limit > max {
		return max
	}
	return limit
}

func strPtr(s string) *string { return &s }
