package models

import gerrors "github.com/go-faster/errors"

var (
	// ErrValidation marks malformed input: bad tier config, missing references in a request.
	ErrValidation = gerrors.New("validation failed")
	// ErrNotFound marks a dangling member, investment, tier or withdrawal reference.
	ErrNotFound = gerrors.New("not found")
	// ErrCapacityExceeded means the matrix is full down to the configured depth.
	ErrCapacityExceeded = gerrors.New("matrix capacity exceeded")
	// ErrConcurrencyConflict means a concurrent writer won a race; the unit should be retried.
	ErrConcurrencyConflict = gerrors.New("concurrency conflict")
	// ErrAlreadyProcessed is the idempotency short circuit. Callers treat it as success.
	ErrAlreadyProcessed = gerrors.New("already processed")
)

// IsRetryable reports whether running the same unit again can succeed.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	switch {
	case gerrors.Is(err, ErrValidation),
		gerrors.Is(err, ErrNotFound),
		gerrors.Is(err, ErrCapacityExceeded),
		gerrors.Is(err, ErrAlreadyProcessed):
		return false
	}
	return true
}
