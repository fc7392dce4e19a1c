/*
loan.go - The loan aggregate

PURPOSE:
  A Loan tracks one borrower's debt over a rolling billing period. It owns
  only the margin side of the bookkeeping: a margin-rate InterestPeriod
  whose start is the time margin interest has been paid up to. Principal
  and base interest live on the external loan ledger.

WATERFALL:
  Every payment is allocated strictly in this order, each bucket taking
  as much of the remaining payment as it can:

    overdue interest -> overdue margin -> due interest -> due margin
      -> principal -> change

ATOMICITY:
  Repay computes the whole allocation and validates the receipt before it
  touches anything. The ledger is posted next and its split cross-checked;
  only then is the margin period replaced and the margin forwarded. Any
  failure leaves the Loan unchanged, and the caller rolls back whatever
  the ledger recorded together with the rest of its transaction.

SEE ALSO:
  - overdue.go: The overdue classifier
  - ledger.go: The ledger contract and the reference Position
  - lease/service.go: Load, repay and persist in one transaction
*/
package loan

import (
	"fmt"

	"github.com/warp/lease-loan/finance"
)

// Loan is the aggregate over one debt position.
type Loan struct {
	ledger    Ledger
	spec      PaymentSpec
	duePeriod finance.InterestPeriod
}

// Snapshot is the persisted form of a Loan, without its ledger.
type Snapshot struct {
	DuePeriodStart  finance.Timestamp
	DuePeriodLength finance.Duration
	MarginRate      finance.Percent
	Spec            PaymentSpec
}

// New opens a loan whose first due period is [start, start+billing).
func New(start finance.Timestamp, ledger Ledger, marginRate finance.Percent, spec PaymentSpec) (*Loan, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	return &Loan{
		ledger:    ledger,
		spec:      spec,
		duePeriod: finance.WithInterest(marginRate).And(finance.PeriodFromLength(start, spec.BillingPeriod)),
	}, nil
}

// FromSnapshot rebuilds a loan over the given ledger.
func FromSnapshot(s Snapshot, ledger Ledger) (*Loan, error) {
	if err := s.Spec.Validate(); err != nil {
		return nil, err
	}
	return &Loan{
		ledger:    ledger,
		spec:      s.Spec,
		duePeriod: finance.WithInterest(s.MarginRate).And(finance.PeriodFromLength(s.DuePeriodStart, s.DuePeriodLength)),
	}, nil
}

func (l *Loan) Snapshot() Snapshot {
	return Snapshot{
		DuePeriodStart:  l.duePeriod.Start(),
		DuePeriodLength: l.duePeriod.Length(),
		MarginRate:      l.duePeriod.Rate(),
		Spec:            l.spec,
	}
}

func (l *Loan) AnnualMarginInterest() finance.Percent { return l.duePeriod.Rate() }
func (l *Loan) DuePeriod() finance.InterestPeriod     { return l.duePeriod }
func (l *Loan) PaymentSpec() PaymentSpec              { return l.spec }

// State reports everything owed at now.
func (l *Loan) State(now finance.Timestamp) (State, error) {
	if err := l.checkNotBeforeStart("state", now); err != nil {
		return State{}, err
	}

	marginPeriod := finance.PeriodFromTill(l.duePeriod.Start(), now)
	overdue := ComputeOverdue(marginPeriod, l.spec.BillingPeriod, l.spec.GracePeriod, l.duePeriod.Rate(), l.ledger)

	principalDue := l.ledger.PrincipalDue()
	totalMargin := finance.WithInterest(l.duePeriod.Rate()).And(marginPeriod).Interest(principalDue)
	totalInterest := l.ledger.InterestDue(marginPeriod.Till())

	return State{
		AnnualInterest:       l.ledger.AnnualInterestRate(),
		AnnualMarginInterest: l.duePeriod.Rate(),
		PrincipalDue:         principalDue,
		DueInterest:          totalInterest.Sub(overdue.Interest()),
		DueMarginInterest:    totalMargin.Sub(overdue.Margin()),
		Overdue:              overdue,
	}, nil
}

// Repay allocates payment as of now and posts it to the ledger. The margin
// share is sent to recipient. On error the loan is left unchanged.
func (l *Loan) Repay(payment finance.Coin, now finance.Timestamp, recipient MarginRecipient) (RepayReceipt, error) {
	if err := l.checkNotBeforeStart("repay", now); err != nil {
		return RepayReceipt{}, err
	}

	state, err := l.State(now)
	if err != nil {
		return RepayReceipt{}, err
	}
	if !payment.SameCurrency(state.PrincipalDue) {
		return RepayReceipt{}, fmt.Errorf("%w: payment in %s, loan in %s",
			ErrCurrencyMismatch, payment.Currency, state.PrincipalDue.Currency)
	}

	remaining := payment
	take := func(bucket finance.Coin) finance.Coin {
		paid := bucket.Min(remaining)
		remaining = remaining.Sub(paid)
		return paid
	}
	parts := ReceiptParts{
		OverdueInterest: take(state.Overdue.Interest()),
		OverdueMargin:   take(state.Overdue.Margin()),
		DueInterest:     take(state.DueInterest),
		DueMargin:       take(state.DueMarginInterest),
		Principal:       take(state.PrincipalDue),
	}
	parts.Change = remaining

	receipt, err := NewRepayReceipt(payment, state.PrincipalDue, parts)
	if err != nil {
		return RepayReceipt{}, err
	}

	marginPaid := receipt.MarginPaid()
	newDuePeriod, marginChange := finance.WithInterest(l.duePeriod.Rate()).
		And(finance.PeriodFromTill(l.duePeriod.Start(), now)).
		Pay(state.PrincipalDue, marginPaid, now)
	if !marginChange.IsZero() {
		return RepayReceipt{}, &InconsistencyError{
			Check:    "margin change",
			Expected: marginPaid.Zero(),
			Actual:   marginChange,
			Err:      ErrMarginNotSettled,
		}
	}

	interestPaid := receipt.InterestPaid()
	expected := RepayShares{Interest: interestPaid, Principal: receipt.PrincipalPaid(), Excess: payment.Zero()}
	shares := l.ledger.Repay(now, interestPaid.Add(receipt.PrincipalPaid()))
	if shares != expected {
		return RepayReceipt{}, &InconsistencyError{
			Check:    "ledger split",
			Expected: expected,
			Actual:   shares,
			Err:      ErrLedgerDiverged,
		}
	}

	l.duePeriod = newDuePeriod
	recipient.Send(marginPaid)
	return receipt, nil
}

// GracePeriodEnd is the end of the current due period plus the grace period.
func (l *Loan) GracePeriodEnd() finance.Timestamp {
	return l.graceEnd(l.duePeriod.Period())
}

// NextGracePeriodEnd rolls the due period forward by whole billing periods
// and returns the first grace period end strictly after the given time.
func (l *Loan) NextGracePeriodEnd(after finance.Timestamp) finance.Timestamp {
	end := l.GracePeriodEnd()
	if end > after {
		return end
	}
	billing := l.spec.BillingPeriod
	periods := finance.Between(end, after).Nanos()/billing.Nanos() + 1
	return end.Add(billing.SlicePerRatio(periods, 1))
}

func (l *Loan) graceEnd(p finance.Period) finance.Timestamp {
	return p.Till().Add(l.spec.GracePeriod)
}

func (l *Loan) checkNotBeforeStart(op string, now finance.Timestamp) error {
	if now < l.duePeriod.Start() {
		return &PreconditionError{Op: op, PeriodStart: l.duePeriod.Start(), Now: now}
	}
	return nil
}
