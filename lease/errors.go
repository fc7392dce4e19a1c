/*
errors.go - Error types for loan servicing

ERROR CATEGORIES:
  1. Lookup errors - unknown loan
  2. Conflicts - closed loan, reused idempotency key, existing loan ID
  3. Validation errors - malformed open or repay requests
  4. Bookkeeping errors - passed through from package loan, wrapped with
     the loan ID

USAGE:
  switch {
  case lease.IsNotFound(err):   // 404
  case lease.IsConflict(err):   // 409
  case lease.IsClientError(err): // 400
  }
*/
package lease

import (
	"errors"
	"fmt"

	"github.com/warp/lease-loan/finance"
	"github.com/warp/lease-loan/loan"
)

var (
	ErrLoanNotFound = errors.New("loan not found")

	// ErrLoanExists is returned when opening a loan under an ID in use.
	ErrLoanExists = errors.New("loan already exists")

	// ErrLoanClosed is returned when repaying a fully repaid loan.
	ErrLoanClosed = errors.New("loan is closed")

	// ErrDuplicateIdempotencyKey is returned when a repayment with the same
	// key was already applied. Expected on client retries.
	ErrDuplicateIdempotencyKey = errors.New("duplicate idempotency key")

	ErrInvalidAmount  = errors.New("invalid amount")
	ErrInvalidRequest = errors.New("invalid request")
)

// ValidationError names the request field that was rejected.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidRequest
}

// IsClientError returns true if the request itself was wrong.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrInvalidRequest) ||
		errors.Is(err, finance.ErrUnknownCurrency) ||
		errors.Is(err, finance.ErrInvalidAmount) ||
		errors.Is(err, finance.ErrInvalidPercent) ||
		loan.IsPrecondition(err)
}

// IsConflict returns true if the request clashes with stored state.
func IsConflict(err error) bool {
	return errors.Is(err, ErrLoanClosed) ||
		errors.Is(err, ErrLoanExists) ||
		errors.Is(err, ErrDuplicateIdempotencyKey)
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrLoanNotFound)
}
