package domain

import "errors"

// Error kinds surfaced by the settlement core. Callers match them with errors.Is;
// detail is attached by wrapping (fmt.Errorf("%w: ...", ErrValidation)).
var (
	ErrValidation        = errors.New("validation error")
	ErrNotFound          = errors.New("not found")
	ErrAccountInactive   = errors.New("account inactive")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrInvalidState      = errors.New("invalid state")
	ErrInvalidCode       = errors.New("invalid pickup code")
	ErrConflict          = errors.New("conflict")
	ErrInternal          = errors.New("internal error")

	ErrTooManyAttempts = errors.New("too many pickup code attempts")
	ErrForbidden       = errors.New("forbidden")
)

// IsRetryable reports whether err is a lost concurrency race that is safe to retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConflict)
}
