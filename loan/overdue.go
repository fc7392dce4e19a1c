/*
overdue.go - Overdue classifier

PURPOSE:
  Splits the interest and margin accrued since the margin period start
  into an overdue part and a current part.

  The most recent billing period is always "current". Everything accrued
  before it belongs to billing periods that have already ended; once the
  grace window after the first of them has passed, all of that older
  accrual is overdue and is reported as one Accrued total. Until then the
  classifier reports how long remains before anything becomes overdue.

  Overdue interest and overdue margin are always computed over the same
  span, so they cannot drift apart across billing-period boundaries.

BOUNDARY:
  elapsed <  billing + grace  ->  StartIn(billing + grace - elapsed)
  elapsed >= billing + grace  ->  Accrued over [start, now - billing)

The classifier is a pure query; repayments are applied by the caller.
*/
package loan

import (
	"fmt"

	"github.com/warp/lease-loan/finance"
)

// Overdue is either an accrued overdue amount or a countdown to the moment
// something becomes overdue.
type Overdue struct {
	accrued  bool
	interest finance.Coin
	margin   finance.Coin
	startIn  finance.Duration
}

// OverdueAccrued reports fixed overdue amounts.
func OverdueAccrued(interest, margin finance.Coin) Overdue {
	if !interest.SameCurrency(margin) {
		panic(&finance.CurrencyMismatchError{Op: "overdue", Left: interest.Currency, Right: margin.Currency})
	}
	return Overdue{accrued: true, interest: interest, margin: margin}
}

// OverdueStartIn reports that nothing is overdue yet.
func OverdueStartIn(d finance.Duration, currency finance.Currency) Overdue {
	zero := finance.ZeroCoin(currency)
	return Overdue{startIn: d, interest: zero, margin: zero}
}

func (o Overdue) IsAccrued() bool        { return o.accrued }
func (o Overdue) Interest() finance.Coin { return o.interest }
func (o Overdue) Margin() finance.Coin   { return o.margin }

// StartIn is zero once overdue amounts have accrued.
func (o Overdue) StartIn() finance.Duration { return o.startIn }

// Total is overdue interest plus overdue margin.
func (o Overdue) Total() finance.Coin { return o.interest.Add(o.margin) }

func (o Overdue) String() string {
	if o.accrued {
		return fmt.Sprintf("Accrued{interest: %s, margin: %s}", o.interest, o.margin)
	}
	return fmt.Sprintf("StartIn(%s)", o.startIn)
}

// ComputeOverdue classifies the accrual over marginPeriod.
func ComputeOverdue(
	marginPeriod finance.Period,
	billingPeriod finance.Duration,
	gracePeriod finance.Duration,
	marginRate finance.Percent,
	ledger LedgerView,
) Overdue {
	principal := ledger.PrincipalDue()
	threshold := billingPeriod.Add(gracePeriod)
	elapsed := marginPeriod.Length()

	if elapsed < threshold {
		return OverdueStartIn(threshold.Sub(elapsed), principal.Currency)
	}

	span := finance.PeriodFromLength(marginPeriod.Start(), elapsed.Sub(billingPeriod))
	margin := finance.WithInterest(marginRate).And(span).Interest(principal)
	interest := ledger.InterestDue(span.Till())
	return OverdueAccrued(interest, margin)
}
