package lease

import (
	"time"

	"github.com/warp/lease-loan/finance"
	"github.com/warp/lease-loan/loan"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

// LoanID identifies one debt position.
type LoanID string

// =============================================================================
// RECORD - Persisted loan
// =============================================================================

// Record is everything needed to rebuild a loan and its ledger position.
// It is replaced as a whole on every repayment.
type Record struct {
	ID         LoanID
	Currency   finance.Currency
	Spec       loan.PaymentSpec
	MarginRate finance.Percent

	// DuePeriodStart is the time margin interest has been paid up to.
	DuePeriodStart  finance.Timestamp
	DuePeriodLength finance.Duration

	Position loan.PositionSnapshot

	Principal finance.Coin // as opened
	OpenedAt  finance.Timestamp
	ClosedAt  *finance.Timestamp
	UpdatedAt time.Time
}

func (r Record) IsClosed() bool { return r.ClosedAt != nil }

// LoanSnapshot returns the aggregate's part of the record.
func (r Record) LoanSnapshot() loan.Snapshot {
	return loan.Snapshot{
		DuePeriodStart:  r.DuePeriodStart,
		DuePeriodLength: r.DuePeriodLength,
		MarginRate:      r.MarginRate,
		Spec:            r.Spec,
	}
}

// withSnapshots copies the mutable state of a loan and its position back.
func (r Record) withSnapshots(l loan.Snapshot, p loan.PositionSnapshot) Record {
	r.DuePeriodStart = l.DuePeriodStart
	r.DuePeriodLength = l.DuePeriodLength
	r.Position = p
	return r
}

// rebuild returns the aggregate over a fresh position from the record.
func (r Record) rebuild() (*loan.Loan, *loan.Position, error) {
	pos := loan.PositionFromSnapshot(r.Position)
	l, err := loan.FromSnapshot(r.LoanSnapshot(), pos)
	if err != nil {
		return nil, nil, err
	}
	return l, pos, nil
}

// =============================================================================
// REPAYMENT - Append-only receipt log
// =============================================================================

// Repayment is one applied payment and its allocation.
type Repayment struct {
	ID             string
	LoanID         LoanID
	IdempotencyKey string
	PaidAt         finance.Timestamp

	Payment         finance.Coin
	OverdueInterest finance.Coin
	OverdueMargin   finance.Coin
	DueInterest     finance.Coin
	DueMargin       finance.Coin
	Principal       finance.Coin
	Change          finance.Coin

	// Closed is set when the payment repaid the remaining principal.
	Closed    bool
	CreatedAt time.Time
}

func newRepayment(id string, loanID LoanID, key string, at finance.Timestamp,
	payment finance.Coin, r loan.RepayReceipt, createdAt time.Time) Repayment {
	return Repayment{
		ID:              id,
		LoanID:          loanID,
		IdempotencyKey:  key,
		PaidAt:          at,
		Payment:         payment,
		OverdueInterest: r.OverdueInterestPaid(),
		OverdueMargin:   r.OverdueMarginPaid(),
		DueInterest:     r.DueInterestPaid(),
		DueMargin:       r.DueMarginPaid(),
		Principal:       r.PrincipalPaid(),
		Change:          r.Change(),
		Closed:          r.Close(),
		CreatedAt:       createdAt,
	}
}

// MarginPaid is the share forwarded to the margin recipient.
func (r Repayment) MarginPaid() finance.Coin {
	return r.OverdueMargin.Add(r.DueMargin)
}

// =============================================================================
// TRANSFER - Outgoing margin payment
// =============================================================================

// Transfer is a margin payment handed to the publisher after commit.
type Transfer struct {
	LoanID      LoanID
	RepaymentID string
	Amount      finance.Coin
	At          finance.Timestamp
}

// GraceWindow reports the current and the next grace period end.
type GraceWindow struct {
	Current finance.Timestamp
	Next    finance.Timestamp
}
