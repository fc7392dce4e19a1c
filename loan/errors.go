/*
errors.go - Error types for the loan aggregate

ERROR CATEGORIES:
  1. Precondition violations - evaluating a loan before its due period
     starts, a payment in the wrong currency, an invalid payment spec.
     The caller asked for something that cannot be answered.
  2. Inconsistencies - the ledger's repayment split disagrees with the
     local computation, the margin period left unconsumed change, or a
     receipt does not balance. The local and ledger views diverged; the
     whole operation must be abandoned and the enclosing transaction
     rolled back.

  Arithmetic domain errors (below zero, overflow) surface as panics from
  package finance.

USAGE:
  if loan.IsInternal(err) {
      // never retry, page someone
  }
*/
package loan

import (
	"errors"
	"fmt"

	"github.com/warp/lease-loan/finance"
)

var (
	// ErrNowBeforePeriodStart is returned when state or repay is evaluated
	// at a time before the current due period starts.
	ErrNowBeforePeriodStart = errors.New("evaluation time precedes due period start")

	// ErrCurrencyMismatch is returned when a payment is not in the loan currency.
	ErrCurrencyMismatch = finance.ErrCurrencyMismatch

	// ErrInvalidPaymentSpec is returned for a zero billing period.
	ErrInvalidPaymentSpec = errors.New("invalid payment spec")

	// ErrLedgerDiverged is returned when the loan ledger splits a repayment
	// differently than the local waterfall.
	ErrLedgerDiverged = errors.New("loan ledger diverged from local computation")

	// ErrMarginNotSettled is returned when paying the margin period leaves change.
	ErrMarginNotSettled = errors.New("margin payment left unconsumed change")

	// ErrReceiptUnbalanced is returned when receipt buckets do not sum to the payment.
	ErrReceiptUnbalanced = errors.New("repay receipt does not balance")

	// ErrPrincipalOverpaid is returned when a receipt pays more principal than due.
	ErrPrincipalOverpaid = errors.New("principal paid exceeds principal due")
)

// PreconditionError reports an evaluation time before the due period start.
type PreconditionError struct {
	Op          string
	PeriodStart finance.Timestamp
	Now         finance.Timestamp
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("%s: due period starts at %s, evaluated at %s", e.Op, e.PeriodStart, e.Now)
}

func (e *PreconditionError) Unwrap() error {
	return ErrNowBeforePeriodStart
}

// InconsistencyError reports a failed cross-check.
type InconsistencyError struct {
	Check    string
	Expected any
	Actual   any
	Err      error
}

func (e *InconsistencyError) Error() string {
	return fmt.Sprintf("%v: %s: expected %v, got %v", e.Err, e.Check, e.Expected, e.Actual)
}

func (e *InconsistencyError) Unwrap() error {
	return e.Err
}

// IsInternal returns true if the error signals diverged bookkeeping.
func IsInternal(err error) bool {
	return errors.Is(err, ErrLedgerDiverged) ||
		errors.Is(err, ErrMarginNotSettled) ||
		errors.Is(err, ErrReceiptUnbalanced) ||
		errors.Is(err, ErrPrincipalOverpaid)
}

// IsPrecondition returns true if the caller passed arguments the loan cannot accept.
func IsPrecondition(err error) bool {
	return errors.Is(err, ErrNowBeforePeriodStart) ||
		errors.Is(err, ErrCurrencyMismatch) ||
		errors.Is(err, ErrInvalidPaymentSpec)
}
