/*
store.go - Persistence interface for loans and repayments

PURPOSE:
  Defines the interface between loan servicing and the database. A loan
  record is replaced as a whole after every repayment; repayments are an
  append-only log keyed by idempotency key.

ATOMICITY:
  Repay reads a record, mutates the aggregate and writes the record and
  the repayment back. TxStore.WithTx runs those steps as one unit: either
  both writes land or neither does, including when fn panics.

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: SQLite, WAL mode
  - lease/store/memory.go: In-memory for tests and local runs

SEE ALSO:
  - service.go: The only writer
*/
package lease

import "context"

// Store handles persistence of loan records and repayments.
type Store interface {
	// CreateLoan inserts a new record. Returns ErrLoanExists if the ID is taken.
	CreateLoan(ctx context.Context, r Record) error

	// GetLoan returns ErrLoanNotFound for unknown IDs.
	GetLoan(ctx context.Context, id LoanID) (Record, error)

	// SaveLoan replaces an existing record.
	SaveLoan(ctx context.Context, r Record) error

	// ListLoans returns all records ordered by opening time.
	ListLoans(ctx context.Context) ([]Record, error)

	// AppendRepayment persists a repayment. Returns
	// ErrDuplicateIdempotencyKey if the key exists. Append-only.
	AppendRepayment(ctx context.Context, r Repayment) error

	// Repayments returns a loan's repayments in the order they were applied.
	Repayments(ctx context.Context, id LoanID) ([]Repayment, error)

	// Exists checks if an idempotency key was already used.
	Exists(ctx context.Context, idempotencyKey string) (bool, error)
}

// TxStore extends Store with transactions.
type TxStore interface {
	Store

	// WithTx commits if fn returns nil and rolls back otherwise.
	WithTx(ctx context.Context, fn func(Store) error) error
}
