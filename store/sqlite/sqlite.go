/*
Package sqlite provides a SQLite-backed implementation of lease.TxStore.

PURPOSE:
  Persists loan records and the repayment log. A loan row is rewritten on
  every repayment; repayment rows are never updated or deleted.

KEY TABLES:
  loans:      One row per debt position (aggregate and ledger snapshot)
  repayments: Append-only log of applied payments, unique idempotency key

ENCODING:
  Timestamps and durations are stored as INTEGER nanoseconds. Amounts are
  stored as decimal TEXT in minor units: they are uint64 and SQLite
  integers are signed.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety. WithTx holds the write lock for the
  whole transaction and reads inside it go through the *sql.Tx.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging):
  - Multiple readers don't block
  - Single writer at a time
  - Better crash recovery

USAGE:
  store, err := sqlite.New("./data/loans.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  svc := lease.NewService(store, logger)

MIGRATION:
  Schema is auto-migrated on New().

SEE ALSO:
  - lease/store.go: Interface definitions
  - lease/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/warp/lease-loan/finance"
	"github.com/warp/lease-loan/lease"
	"github.com/warp/lease-loan/loan"
)

// Store implements lease.TxStore using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// every :memory: connection is a separate database
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS loans (
		id TEXT PRIMARY KEY,
		currency TEXT NOT NULL,
		billing_period_ns INTEGER NOT NULL,
		grace_period_ns INTEGER NOT NULL,
		margin_permille INTEGER NOT NULL,
		due_period_start_ns INTEGER NOT NULL,
		due_period_length_ns INTEGER NOT NULL,
		principal_due TEXT NOT NULL,
		annual_interest_permille INTEGER NOT NULL,
		interest_paid_by_ns INTEGER NOT NULL,
		principal_opened TEXT NOT NULL,
		opened_at_ns INTEGER NOT NULL,
		closed_at_ns INTEGER,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_loans_opened_at
		ON loans(opened_at_ns);
	CREATE INDEX IF NOT EXISTS idx_loans_open
		ON loans(closed_at_ns) WHERE closed_at_ns IS NULL;

	-- Repayments (append-only)
	CREATE TABLE IF NOT EXISTS repayments (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		loan_id TEXT NOT NULL REFERENCES loans(id),
		idempotency_key TEXT UNIQUE,
		paid_at_ns INTEGER NOT NULL,
		currency TEXT NOT NULL,
		payment TEXT NOT NULL,
		overdue_interest TEXT NOT NULL,
		overdue_margin TEXT NOT NULL,
		due_interest TEXT NOT NULL,
		due_margin TEXT NOT NULL,
		principal TEXT NOT NULL,
		change_amount TEXT NOT NULL,
		closed INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_repayments_loan
		ON repayments(loan_id, seq);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// LOANS
// =============================================================================

func (s *Store) CreateLoan(ctx context.Context, r lease.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return createLoan(ctx, s.db, r)
}

func (s *Store) GetLoan(ctx context.Context, id lease.LoanID) (lease.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getLoan(ctx, s.db, id)
}

func (s *Store) SaveLoan(ctx context.Context, r lease.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return saveLoan(ctx, s.db, r)
}

func (s *Store) ListLoans(ctx context.Context) ([]lease.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listLoans(ctx, s.db)
}

const loanColumns = `id, currency, billing_period_ns, grace_period_ns, margin_permille,
	due_period_start_ns, due_period_length_ns, principal_due, annual_interest_permille,
	interest_paid_by_ns, principal_opened, opened_at_ns, closed_at_ns, updated_at`

func createLoan(ctx context.Context, db querier, r lease.Record) error {
	query := `INSERT INTO loans (` + loanColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := db.ExecContext(ctx, query,
		string(r.ID),
		string(r.Currency),
		int64(r.Spec.BillingPeriod),
		int64(r.Spec.GracePeriod),
		r.MarginRate.Permille(),
		int64(r.DuePeriodStart),
		int64(r.DuePeriodLength),
		formatAmount(r.Position.PrincipalDue),
		r.Position.AnnualInterest.Permille(),
		int64(r.Position.InterestPaidBy),
		formatAmount(r.Principal),
		int64(r.OpenedAt),
		nullTimestamp(r.ClosedAt),
		r.UpdatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("%w: %s", lease.ErrLoanExists, r.ID)
		}
		return fmt.Errorf("failed to create loan: %w", err)
	}
	return nil
}

func saveLoan(ctx context.Context, db querier, r lease.Record) error {
	query := `
		UPDATE loans SET
			due_period_start_ns = ?, due_period_length_ns = ?,
			principal_due = ?, annual_interest_permille = ?, interest_paid_by_ns = ?,
			closed_at_ns = ?, updated_at = ?
		WHERE id = ?
	`

	res, err := db.ExecContext(ctx, query,
		int64(r.DuePeriodStart),
		int64(r.DuePeriodLength),
		formatAmount(r.Position.PrincipalDue),
		r.Position.AnnualInterest.Permille(),
		int64(r.Position.InterestPaidBy),
		nullTimestamp(r.ClosedAt),
		r.UpdatedAt.UTC().Format(time.RFC3339Nano),
		string(r.ID),
	)
	if err != nil {
		return fmt.Errorf("failed to save loan: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to save loan: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", lease.ErrLoanNotFound, r.ID)
	}
	return nil
}

func getLoan(ctx context.Context, db querier, id lease.LoanID) (lease.Record, error) {
	rows, err := db.QueryContext(ctx, `SELECT `+loanColumns+` FROM loans WHERE id = ?`, string(id))
	if err != nil {
		return lease.Record{}, fmt.Errorf("failed to query loan: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return lease.Record{}, err
		}
		return lease.Record{}, fmt.Errorf("%w: %s", lease.ErrLoanNotFound, id)
	}
	return scanLoan(rows)
}

func listLoans(ctx context.Context, db querier) ([]lease.Record, error) {
	rows, err := db.QueryContext(ctx, `SELECT `+loanColumns+` FROM loans ORDER BY opened_at_ns ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query loans: %w", err)
	}
	defer rows.Close()

	var loans []lease.Record
	for rows.Next() {
		r, err := scanLoan(rows)
		if err != nil {
			return nil, err
		}
		loans = append(loans, r)
	}
	return loans, rows.Err()
}

func scanLoan(rows *sql.Rows) (lease.Record, error) {
	var (
		r                                   lease.Record
		id, currency, updatedAt             string
		principalDue, principalOpened       string
		billing, grace, dueStart, dueLength int64
		paidBy, openedAt                    int64
		marginPermille, interestPermille    uint32
		closedAt                            sql.NullInt64
	)

	err := rows.Scan(
		&id, &currency, &billing, &grace, &marginPermille,
		&dueStart, &dueLength, &principalDue, &interestPermille,
		&paidBy, &principalOpened, &openedAt, &closedAt, &updatedAt,
	)
	if err != nil {
		return r, fmt.Errorf("failed to scan loan: %w", err)
	}

	cur := finance.Currency(currency)
	r.ID = lease.LoanID(id)
	r.Currency = cur
	r.Spec = loan.NewPaymentSpec(finance.Duration(billing), finance.Duration(grace))
	r.MarginRate = finance.PercentFromPermille(marginPermille)
	r.DuePeriodStart = finance.Timestamp(dueStart)
	r.DuePeriodLength = finance.Duration(dueLength)
	r.OpenedAt = finance.Timestamp(openedAt)
	r.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)

	if r.Principal, err = parseAmount(principalOpened, cur); err != nil {
		return r, err
	}
	due, err := parseAmount(principalDue, cur)
	if err != nil {
		return r, err
	}
	r.Position = loan.PositionSnapshot{
		PrincipalDue:   due,
		AnnualInterest: finance.PercentFromPermille(interestPermille),
		InterestPaidBy: finance.Timestamp(paidBy),
	}
	if closedAt.Valid {
		ts := finance.Timestamp(closedAt.Int64)
		r.ClosedAt = &ts
	}
	return r, nil
}

// =============================================================================
// REPAYMENTS (append-only)
// =============================================================================

// AppendRepayment adds a repayment to the log.
func (s *Store) AppendRepayment(ctx context.Context, r lease.Repayment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return appendRepayment(ctx, s.db, r)
}

func (s *Store) Repayments(ctx context.Context, id lease.LoanID) ([]lease.Repayment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return repayments(ctx, s.db, id)
}

// Exists checks if an idempotency key exists.
func (s *Store) Exists(ctx context.Context, idempotencyKey string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return exists(ctx, s.db, idempotencyKey)
}

func appendRepayment(ctx context.Context, db querier, r lease.Repayment) error {
	query := `
		INSERT INTO repayments
		(id, loan_id, idempotency_key, paid_at_ns, currency, payment,
		 overdue_interest, overdue_margin, due_interest, due_margin, principal,
		 change_amount, closed, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := db.ExecContext(ctx, query,
		r.ID,
		string(r.LoanID),
		nullString(r.IdempotencyKey),
		int64(r.PaidAt),
		string(r.Payment.Currency),
		formatAmount(r.Payment),
		formatAmount(r.OverdueInterest),
		formatAmount(r.OverdueMargin),
		formatAmount(r.DueInterest),
		formatAmount(r.DueMargin),
		formatAmount(r.Principal),
		formatAmount(r.Change),
		r.Closed,
		r.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return lease.ErrDuplicateIdempotencyKey
		}
		if isForeignKeyError(err) {
			return fmt.Errorf("%w: %s", lease.ErrLoanNotFound, r.LoanID)
		}
		return fmt.Errorf("failed to append repayment: %w", err)
	}
	return nil
}

func repayments(ctx context.Context, db querier, id lease.LoanID) ([]lease.Repayment, error) {
	query := `
		SELECT id, loan_id, idempotency_key, paid_at_ns, currency, payment,
		       overdue_interest, overdue_margin, due_interest, due_margin, principal,
		       change_amount, closed, created_at
		FROM repayments
		WHERE loan_id = ?
		ORDER BY seq ASC
	`
	rows, err := db.QueryContext(ctx, query, string(id))
	if err != nil {
		return nil, fmt.Errorf("failed to query repayments: %w", err)
	}
	defer rows.Close()

	out := []lease.Repayment{}
	for rows.Next() {
		r, err := scanRepayment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func scanRepayment(rows *sql.Rows) (lease.Repayment, error) {
	var (
		r                         lease.Repayment
		loanID, currency, created string
		idempotencyKey            sql.NullString
		paidAt                    int64
		amounts                   [7]string
	)

	err := rows.Scan(
		&r.ID, &loanID, &idempotencyKey, &paidAt, &currency,
		&amounts[0], &amounts[1], &amounts[2], &amounts[3], &amounts[4], &amounts[5], &amounts[6],
		&r.Closed, &created,
	)
	if err != nil {
		return r, fmt.Errorf("failed to scan repayment: %w", err)
	}

	cur := finance.Currency(currency)
	targets := []*finance.Coin{
		&r.Payment, &r.OverdueInterest, &r.OverdueMargin, &r.DueInterest,
		&r.DueMargin, &r.Principal, &r.Change,
	}
	for i, target := range targets {
		if *target, err = parseAmount(amounts[i], cur); err != nil {
			return r, err
		}
	}

	r.LoanID = lease.LoanID(loanID)
	r.IdempotencyKey = idempotencyKey.String
	r.PaidAt = finance.Timestamp(paidAt)
	r.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
	return r, nil
}

func exists(ctx context.Context, db querier, idempotencyKey string) (bool, error) {
	var count int
	err := db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM repayments WHERE idempotency_key = ?",
		idempotencyKey,
	).Scan(&count)
	return count > 0, err
}

// =============================================================================
// TRANSACTIONAL STORE (lease.TxStore interface)
// =============================================================================

// WithTx executes a function within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(store lease.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{tx: sqlTx}); err != nil {
		return err
	}

	return sqlTx.Commit()
}

type txStore struct {
	tx *sql.Tx
}

func (ts *txStore) CreateLoan(ctx context.Context, r lease.Record) error {
	return createLoan(ctx, ts.tx, r)
}

func (ts *txStore) GetLoan(ctx context.Context, id lease.LoanID) (lease.Record, error) {
	return getLoan(ctx, ts.tx, id)
}

func (ts *txStore) SaveLoan(ctx context.Context, r lease.Record) error {
	return saveLoan(ctx, ts.tx, r)
}

func (ts *txStore) ListLoans(ctx context.Context) ([]lease.Record, error) {
	return listLoans(ctx, ts.tx)
}

func (ts *txStore) AppendRepayment(ctx context.Context, r lease.Repayment) error {
	return appendRepayment(ctx, ts.tx, r)
}

func (ts *txStore) Repayments(ctx context.Context, id lease.LoanID) ([]lease.Repayment, error) {
	return repayments(ctx, ts.tx, id)
}

func (ts *txStore) Exists(ctx context.Context, idempotencyKey string) (bool, error) {
	return exists(ctx, ts.tx, idempotencyKey)
}

// Helper functions

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullTimestamp(t *finance.Timestamp) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*t), Valid: true}
}

func formatAmount(c finance.Coin) string {
	return strconv.FormatUint(c.Amount, 10)
}

func parseAmount(value string, currency finance.Currency) (finance.Coin, error) {
	amount, err := strconv.ParseUint(value, 10, 64)
	if err != nil {
		return finance.Coin{}, errors.Join(finance.ErrInvalidAmount, fmt.Errorf("stored amount %q: %w", value, err))
	}
	return finance.NewCoin(amount, currency), nil
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func isForeignKeyError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "FOREIGN KEY constraint failed")
}
