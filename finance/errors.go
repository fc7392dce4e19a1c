/*
errors.go - Error types for the fixed-point primitives

PURPOSE:
  Arithmetic on amounts, durations and timestamps never wraps or saturates.
  A subtraction below zero, an overflow or a cross-currency operation is a
  programming error: the primitive panics with one of the typed errors
  below so callers (and recover() at a transaction boundary) can still
  classify the failure with errors.Is / errors.As.

  Parsing helpers return these errors instead of panicking.

SEE ALSO:
  - coin.go: Currency-tagged arithmetic
  - time.go: Timestamp/Duration arithmetic
*/
package finance

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS
// =============================================================================

var (
	// ErrArithmetic is the root of every underflow/overflow/division failure.
	ErrArithmetic = errors.New("arithmetic domain error")

	// ErrCurrencyMismatch is returned (or panicked) when amounts of two
	// different currencies meet in one operation.
	ErrCurrencyMismatch = errors.New("currency mismatch")

	// ErrUnknownCurrency is returned when a ticker is not registered.
	ErrUnknownCurrency = errors.New("unknown currency")

	// ErrInvalidAmount is returned when a decimal amount cannot be expressed
	// in the currency's minor units.
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrInvalidPercent is returned when a rate cannot be expressed in permille.
	ErrInvalidPercent = errors.New("invalid percent")

	// ErrInvalidPeriod is returned when a period would end before it starts.
	ErrInvalidPeriod = errors.New("invalid period: end before start")
)

// =============================================================================
// STRUCTURED ERRORS
// =============================================================================

// ArithmeticError describes an operation that left the non-negative
// 64-bit domain.
type ArithmeticError struct {
	Op       string
	Operands []uint64
}

func (e *ArithmeticError) Error() string {
	return fmt.Sprintf("arithmetic domain error: %s %v", e.Op, e.Operands)
}

func (e *ArithmeticError) Unwrap() error {
	return ErrArithmetic
}

// CurrencyMismatchError carries both currencies of a rejected operation.
type CurrencyMismatchError struct {
	Op    string
	Left  Currency
	Right Currency
}

func (e *CurrencyMismatchError) Error() string {
	return fmt.Sprintf("currency mismatch in %s: %s vs %s", e.Op, e.Left, e.Right)
}

func (e *CurrencyMismatchError) Unwrap() error {
	return ErrCurrencyMismatch
}

func arithmeticPanic(op string, operands ...uint64) {
	panic(&ArithmeticError{Op: op, Operands: operands})
}
