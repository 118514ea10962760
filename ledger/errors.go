/*
errors.go - Centralized error types for the ledger engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Callers classify errors with errors.Is / the helpers at the bottom
  rather than matching strings.

ERROR CATEGORIES:
  1. Not-found errors   - Unknown worker/job/advance/expense ids
  2. Validation errors  - Missing or malformed request fields
  3. Balance errors     - Overdraft attempts on a nonzero balance
  4. Conflict errors    - Concurrent settlement detected; retried
                          internally, surfaced only when retries exhaust

SEE ALSO:
  - engine.go: Produces these errors
  - api/handlers.go: Maps them to HTTP status codes
*/
package ledger

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrWorkerNotFound is returned when a worker id has no account.
	ErrWorkerNotFound = errors.New("worker not found")

	// ErrJobNotFound is returned when a referenced job doesn't exist.
	ErrJobNotFound = errors.New("job not found")

	// ErrAdvanceNotFound is returned when a referenced advance doesn't exist.
	ErrAdvanceNotFound = errors.New("advance not found")

	// ErrExpenseNotFound is returned when a referenced expense doesn't exist.
	ErrExpenseNotFound = errors.New("expense not found")

	// ErrInvalidRequest is returned for missing or malformed request fields.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrInsufficientBalance is returned for an overdraft attempt on a
	// nonzero held-cash balance. The zero-balance hand-over case is exempt
	// when Policy.AllowOverdraftFromZero is set.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrConflict is returned when the locking layer detects a concurrent
	// settlement run. The engine retries a bounded number of times before
	// letting this escape.
	ErrConflict = errors.New("concurrent settlement detected")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// InsufficientBalanceError provides details about a balance shortage.
type InsufficientBalanceError struct {
	WorkerID  WorkerID
	HeldCash  Money
	Requested Money
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance for worker %s: held %v, requested %v",
		e.WorkerID, e.HeldCash.Value, e.Requested.Value)
}

func (e *InsufficientBalanceError) Unwrap() error {
	return ErrInsufficientBalance
}

// InvalidRequestError names the offending field.
type InvalidRequestError struct {
	Field  string
	Reason string
}

func (e *InvalidRequestError) Error() string {
	return fmt.Sprintf("invalid request: %s %s", e.Field, e.Reason)
}

func (e *InvalidRequestError) Unwrap() error {
	return ErrInvalidRequest
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrWorkerNotFound) ||
		errors.Is(err, ErrJobNotFound) ||
		errors.Is(err, ErrAdvanceNotFound) ||
		errors.Is(err, ErrExpenseNotFound)
}

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidRequest) ||
		errors.Is(err, ErrInsufficientBalance)
}

// IsRetryable returns true if the error might succeed on retry while the
// per-worker exclusive section is held.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConflict)
}
