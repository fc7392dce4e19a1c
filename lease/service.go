/*
service.go - Loan servicing

PURPOSE:
  Opens loans, answers state queries and applies repayments. Each call
  loads a loan record, rebuilds the aggregate over a ledger position,
  applies one operation and persists the result in a single transaction.

REPAY FLOW:
  1. Reject reused idempotency keys and closed loans
  2. Rebuild loan.Loan over loan.Position from the record
  3. loan.Repay into a transfer queue
  4. Save the record and append the repayment
  5. Commit, then hand queued margin transfers to the publisher

  Margin transfers leave the process only after commit. Publication
  failures are logged; the repayment stands.

SEE ALSO:
  - loan/loan.go: The aggregate
  - store.go: Persistence contract
  - messaging/: Transfer publishers
*/
package lease

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/warp/lease-loan/finance"
	"github.com/warp/lease-loan/loan"
)

// Clock returns the current time.
type Clock func() time.Time

// TransferPublisher delivers margin transfers to the margin recipient.
type TransferPublisher interface {
	Publish(ctx context.Context, t Transfer) error
}

// Service is the entry point for all loan operations.
type Service struct {
	store     TxStore
	publisher TransferPublisher
	logger    *zap.Logger
	clock     Clock
}

type Option func(*Service)

func WithClock(c Clock) Option {
	return func(s *Service) { s.clock = c }
}

func WithPublisher(p TransferPublisher) Option {
	return func(s *Service) { s.publisher = p }
}

func NewService(store TxStore, logger *zap.Logger, opts ...Option) *Service {
	s := &Service{
		store:  store,
		logger: logger,
		clock:  func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	return s
}

// Now returns the service clock reading.
func (s *Service) Now() time.Time { return s.clock() }

// =============================================================================
// OPEN
// =============================================================================

// OpenRequest describes a new debt position.
type OpenRequest struct {
	ID             LoanID // generated when empty
	Principal      finance.Coin
	AnnualInterest finance.Percent
	MarginInterest finance.Percent
	Spec           loan.PaymentSpec
	At             time.Time // service clock when zero
}

func (r OpenRequest) validate() error {
	if r.Principal.IsZero() {
		return fmt.Errorf("%w: principal must be positive", ErrInvalidAmount)
	}
	if _, err := finance.LookupCurrency(string(r.Principal.Currency)); err != nil {
		return err
	}
	return r.Spec.Validate()
}

// Open creates a loan and its ledger position.
func (s *Service) Open(ctx context.Context, req OpenRequest) (Record, error) {
	if err := req.validate(); err != nil {
		return Record{}, err
	}
	if req.ID == "" {
		req.ID = LoanID(uuid.NewString())
	}
	at := s.at(req.At)
	start := finance.FromTime(at)

	pos := loan.NewPosition(req.Principal, req.AnnualInterest, start)
	l, err := loan.New(start, pos, req.MarginInterest, req.Spec)
	if err != nil {
		return Record{}, err
	}

	rec := Record{
		ID:         req.ID,
		Currency:   req.Principal.Currency,
		Spec:       req.Spec,
		MarginRate: req.MarginInterest,
		Principal:  req.Principal,
		OpenedAt:   start,
		UpdatedAt:  s.clock(),
	}.withSnapshots(l.Snapshot(), pos.Snapshot())

	if err := s.store.CreateLoan(ctx, rec); err != nil {
		return Record{}, err
	}

	s.logger.Info("loan opened",
		zap.String("loan_id", string(rec.ID)),
		zap.Stringer("principal", rec.Principal),
		zap.Stringer("annual_interest", req.AnnualInterest),
		zap.Stringer("margin_interest", req.MarginInterest),
		zap.Stringer("billing_period", req.Spec.BillingPeriod),
		zap.Stringer("grace_period", req.Spec.GracePeriod),
	)
	return rec, nil
}

// =============================================================================
// QUERIES
// =============================================================================

func (s *Service) Get(ctx context.Context, id LoanID) (Record, error) {
	return s.store.GetLoan(ctx, id)
}

func (s *Service) List(ctx context.Context) ([]Record, error) {
	return s.store.ListLoans(ctx)
}

// OpenLoans returns every loan not yet closed.
func (s *Service) OpenLoans(ctx context.Context) ([]Record, error) {
	all, err := s.store.ListLoans(ctx)
	if err != nil {
		return nil, err
	}
	open := make([]Record, 0, len(all))
	for _, r := range all {
		if !r.IsClosed() {
			open = append(open, r)
		}
	}
	return open, nil
}

// State reports what the loan owes at the given time (now when zero).
func (s *Service) State(ctx context.Context, id LoanID, at time.Time) (st loan.State, err error) {
	defer recoverArithmetic(&err)

	rec, err := s.store.GetLoan(ctx, id)
	if err != nil {
		return loan.State{}, err
	}
	l, _, err := rec.rebuild()
	if err != nil {
		return loan.State{}, err
	}
	st, err = l.State(finance.FromTime(s.at(at)))
	if err != nil {
		return loan.State{}, fmt.Errorf("state of loan %s: %w", id, err)
	}
	return st, nil
}

// GracePeriodEnd reports the current grace period end and the first one
// after the given time (now when zero).
func (s *Service) GracePeriodEnd(ctx context.Context, id LoanID, after time.Time) (GraceWindow, error) {
	rec, err := s.store.GetLoan(ctx, id)
	if err != nil {
		return GraceWindow{}, err
	}
	l, _, err := rec.rebuild()
	if err != nil {
		return GraceWindow{}, err
	}
	return GraceWindow{
		Current: l.GracePeriodEnd(),
		Next:    l.NextGracePeriodEnd(finance.FromTime(s.at(after))),
	}, nil
}

func (s *Service) Repayments(ctx context.Context, id LoanID) ([]Repayment, error) {
	if _, err := s.store.GetLoan(ctx, id); err != nil {
		return nil, err
	}
	return s.store.Repayments(ctx, id)
}

// =============================================================================
// REPAY
// =============================================================================

// RepayRequest is one payment against a loan.
type RepayRequest struct {
	LoanID         LoanID
	Amount         finance.Coin
	At             time.Time // service clock when zero
	IdempotencyKey string    // generated when empty
}

// Repay applies a payment and persists the result atomically.
func (s *Service) Repay(ctx context.Context, req RepayRequest) (Repayment, error) {
	if req.Amount.IsZero() {
		return Repayment{}, fmt.Errorf("%w: payment must be positive", ErrInvalidAmount)
	}
	if req.IdempotencyKey == "" {
		req.IdempotencyKey = uuid.NewString()
	}
	now := finance.FromTime(s.at(req.At))

	var (
		out       Repayment
		transfers loan.Transfers
	)
	err := s.store.WithTx(ctx, func(tx Store) (err error) {
		defer recoverArithmetic(&err)

		exists, err := tx.Exists(ctx, req.IdempotencyKey)
		if err != nil {
			return err
		}
		if exists {
			return ErrDuplicateIdempotencyKey
		}

		rec, err := tx.GetLoan(ctx, req.LoanID)
		if err != nil {
			return err
		}
		if rec.IsClosed() {
			return fmt.Errorf("%w: %s", ErrLoanClosed, rec.ID)
		}

		l, pos, err := rec.rebuild()
		if err != nil {
			return err
		}
		receipt, err := l.Repay(req.Amount, now, &transfers)
		if err != nil {
			return fmt.Errorf("repay loan %s: %w", rec.ID, err)
		}

		rec = rec.withSnapshots(l.Snapshot(), pos.Snapshot())
		rec.UpdatedAt = s.clock()
		if receipt.Close() {
			closedAt := now
			rec.ClosedAt = &closedAt
		}
		out = newRepayment(uuid.NewString(), rec.ID, req.IdempotencyKey, now, req.Amount, receipt, rec.UpdatedAt)

		if err := tx.SaveLoan(ctx, rec); err != nil {
			return err
		}
		return tx.AppendRepayment(ctx, out)
	})
	if err != nil {
		if loan.IsInternal(err) {
			s.logger.Error("loan bookkeeping diverged",
				zap.String("loan_id", string(req.LoanID)),
				zap.Stringer("payment", req.Amount),
				zap.Error(err),
			)
		}
		return Repayment{}, err
	}

	s.logger.Info("repayment applied",
		zap.String("loan_id", string(out.LoanID)),
		zap.String("repayment_id", out.ID),
		zap.Stringer("payment", out.Payment),
		zap.Stringer("principal", out.Principal),
		zap.Stringer("margin", out.MarginPaid()),
		zap.Stringer("change", out.Change),
		zap.Bool("closed", out.Closed),
	)
	s.deliver(ctx, out, transfers.Pending())
	return out, nil
}

func (s *Service) deliver(ctx context.Context, r Repayment, amounts []finance.Coin) {
	if s.publisher == nil {
		return
	}
	for _, amount := range amounts {
		t := Transfer{LoanID: r.LoanID, RepaymentID: r.ID, Amount: amount, At: r.PaidAt}
		if err := s.publisher.Publish(ctx, t); err != nil {
			s.logger.Warn("margin transfer not published",
				zap.String("loan_id", string(r.LoanID)),
				zap.String("repayment_id", r.ID),
				zap.Stringer("amount", amount),
				zap.Error(err),
			)
		}
	}
}

func (s *Service) at(t time.Time) time.Time {
	if t.IsZero() {
		return s.clock()
	}
	return t
}

// recoverArithmetic turns arithmetic domain panics from package finance
// into errors. Anything else keeps panicking.
func recoverArithmetic(err *error) {
	r := recover()
	if r == nil {
		return
	}
	if e, ok := r.(error); ok &&
		(errors.Is(e, finance.ErrArithmetic) || errors.Is(e, finance.ErrCurrencyMismatch) || errors.Is(e, finance.ErrInvalidPeriod)) {
		*err = e
		return
	}
	panic(r)
}
