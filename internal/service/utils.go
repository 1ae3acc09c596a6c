package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ayo6706/partner-settlement/internal/domain"
	"github.com/ayo6706/partner-settlement/internal/observability"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

const (
	defaultPageSize = 10
	maxPageSize     = 100
)

func requireExactlyOne(rows int64, operation string) error {
	if rows != 1 {
		return fmt.Errorf("%w: %s affected %d rows", domain.ErrInternal, operation, rows)
	}
	return nil
}

// normalizePage clamps page/pageSize and returns the matching LIMIT and OFFSET.
func normalizePage(page, pageSize int) (int, int, int32, int32) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return page, pageSize, int32(pageSize), int32((page - 1) * pageSize)
}

func notFound(err error, what string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: %s", domain.ErrNotFound, what)
	}
	return fmt.Errorf("load %s: %w", what, err)
}

// retryOnConflict reruns fn while it fails with domain.ErrConflict, up to attempts runs in total.
func retryOnConflict(ctx context.Context, operation string, attempts int, fn func() error) error {
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for i := 0; i < attempts; i++ {
		err = fn()
		if !domain.IsRetryable(err) || i == attempts-1 {
			return err
		}
		observability.IncrementConflictRetry(operation)
		zap.L().Debug("retrying unit after conflict", zap.String("operation", operation), zap.Int("attempt", i+1), zap.Error(err))

		backoff := time.Duration(i+1) * 10 * time.Millisecond
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}
	return err
}

// recordOutcome counts a coordinator result under a coarse label derived from err.
func recordOutcome(operation string, err error) {
	observability.IncrementSettlement(operation, outcomeLabel(err))
}

func outcomeLabel(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, domain.ErrValidation):
		return "validation"
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrAccountInactive):
		return "account_inactive"
	case errors.Is(err, domain.ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, domain.ErrInvalidState):
		return "invalid_state"
	case errors.Is(err, domain.ErrInvalidCode):
		return "invalid_code"
	case errors.Is(err, domain.ErrTooManyAttempts):
		return "too_many_attempts"
	case errors.Is(err, domain.ErrForbidden):
		return "forbidden"
	case errors.Is(err, domain.ErrConflict):
		return "conflict"
	default:
		return "error"
	}
}

func textParam(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
