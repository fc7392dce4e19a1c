/*
ledger.go - Loan ledger contract and the reference position

PURPOSE:
  The loan ledger is the authoritative record of principal and base-rate
  interest. The Loan aggregate never owns these numbers: it queries them
  through LedgerView and posts repayments through Ledger.Repay, then
  cross-checks the ledger's own split against its waterfall.

  Position is the in-process implementation: a principal, an annual rate
  and the time interest has been paid up to. Interest accrues linearly
  from that time; a repayment settles interest first (moving the paid-by
  time forward by the share of time it covers), then principal, and
  returns anything left as excess.

SEE ALSO:
  - loan.go: The aggregate consuming the ledger
  - finance/interest.go: The time-slicing used to settle interest
*/
package loan

import "github.com/warp/lease-loan/finance"

// LedgerView is the read side of the loan ledger.
type LedgerView interface {
	// PrincipalDue returns the outstanding principal.
	PrincipalDue() finance.Coin

	// InterestDue returns base interest accrued up to by since the last posting.
	InterestDue(by finance.Timestamp) finance.Coin

	// AnnualInterestRate returns the base annual rate.
	AnnualInterestRate() finance.Percent
}

// Ledger is the full capability set: reads plus repayment posting.
type Ledger interface {
	LedgerView

	// Repay posts a repayment as of by and returns the ledger's own split.
	Repay(by finance.Timestamp, amount finance.Coin) RepayShares
}

// RepayShares is the ledger's breakdown of a posted repayment.
type RepayShares struct {
	Interest  finance.Coin
	Principal finance.Coin
	Excess    finance.Coin
}

// =============================================================================
// POSITION - Reference ledger implementation
// =============================================================================

// Position is a single debt position on the loan ledger.
type Position struct {
	principalDue   finance.Coin
	annualInterest finance.Percent
	interestPaidBy finance.Timestamp
}

// PositionSnapshot is the persisted form of a Position.
type PositionSnapshot struct {
	PrincipalDue   finance.Coin
	AnnualInterest finance.Percent
	InterestPaidBy finance.Timestamp
}

// NewPosition opens a position; interest starts accruing at openedAt.
func NewPosition(principal finance.Coin, annualInterest finance.Percent, openedAt finance.Timestamp) *Position {
	return &Position{
		principalDue:   principal,
		annualInterest: annualInterest,
		interestPaidBy: openedAt,
	}
}

func PositionFromSnapshot(s PositionSnapshot) *Position {
	return NewPosition(s.PrincipalDue, s.AnnualInterest, s.InterestPaidBy)
}

func (p *Position) Snapshot() PositionSnapshot {
	return PositionSnapshot{
		PrincipalDue:   p.principalDue,
		AnnualInterest: p.annualInterest,
		InterestPaidBy: p.interestPaidBy,
	}
}

func (p *Position) PrincipalDue() finance.Coin          { return p.principalDue }
func (p *Position) AnnualInterestRate() finance.Percent { return p.annualInterest }
func (p *Position) InterestPaidBy() finance.Timestamp   { return p.interestPaidBy }

// InterestDue is zero for any time not after the paid-by time.
func (p *Position) InterestDue(by finance.Timestamp) finance.Coin {
	if by <= p.interestPaidBy {
		return p.principalDue.Zero()
	}
	return p.interestPeriod(by).Interest(p.principalDue)
}

// Repay settles interest, then principal. The remainder is excess.
func (p *Position) Repay(by finance.Timestamp, amount finance.Coin) RepayShares {
	by = finance.MaxTimestamp(by, p.interestPaidBy)
	paid, change := p.interestPeriod(by).Pay(p.principalDue, amount, by)

	interest := amount.Sub(change)
	principal := change.Min(p.principalDue)
	excess := change.Sub(principal)

	p.principalDue = p.principalDue.Sub(principal)
	p.interestPaidBy = paid.Start()

	return RepayShares{Interest: interest, Principal: principal, Excess: excess}
}

func (p *Position) interestPeriod(by finance.Timestamp) finance.InterestPeriod {
	return finance.WithInterest(p.annualInterest).And(finance.PeriodFromTill(p.interestPaidBy, by))
}
