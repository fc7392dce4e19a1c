/*
interest.go - Time-sliced interest accrual

PURPOSE:
  InterestPeriod ties a Period to a fixed annual rate. Interest accrues
  linearly in time, so a partial payment is turned back into time: the
  period start moves forward by exactly the fraction of the elapsed span
  whose interest the payment settles. Repeated partial payments therefore
  never lose or double-count interest.

INVARIANTS:
  - The rate never changes for the lifetime of a value.
  - Pay and ShiftStart only shrink the period from the left; Till() is
    unchanged.
  - If nothing is owed, Pay returns the period unchanged and the whole
    payment as change.

EXAMPLE:
  ip := finance.WithInterest(finance.PercentFromPermille(100)).
      And(finance.PeriodFromLength(start, finance.Year))
  // 10% of 1000 over a full year = 100
  ip.Interest(finance.NewCoin(1000, finance.USDC))
  // Paying 50 by the end of the year covers half of the year
  next, change := ip.Pay(principal, finance.NewCoin(50, finance.USDC), ip.Till())
*/
package finance

import "fmt"

// InterestPeriod is a period tagged with a fixed annual interest rate.
type InterestPeriod struct {
	period Period
	rate   Percent
}

// WithInterest starts an empty period at the epoch with the given rate.
func WithInterest(rate Percent) InterestPeriod {
	return InterestPeriod{rate: rate}
}

// And replaces the period keeping the rate.
func (ip InterestPeriod) And(p Period) InterestPeriod {
	return InterestPeriod{period: p, rate: ip.rate}
}

// From replaces the start keeping the length.
func (ip InterestPeriod) From(start Timestamp) InterestPeriod {
	return ip.And(PeriodFromLength(start, ip.period.Length()))
}

// Spanning replaces the length keeping the start.
func (ip InterestPeriod) Spanning(length Duration) InterestPeriod {
	return ip.And(PeriodFromLength(ip.period.Start(), length))
}

func (ip InterestPeriod) Rate() Percent     { return ip.rate }
func (ip InterestPeriod) Period() Period    { return ip.period }
func (ip InterestPeriod) Start() Timestamp  { return ip.period.Start() }
func (ip InterestPeriod) Length() Duration  { return ip.period.Length() }
func (ip InterestPeriod) Till() Timestamp   { return ip.period.Till() }
func (ip InterestPeriod) ZeroLength() bool  { return ip.period.IsEmpty() }

// Interest returns the interest accrued over the whole period.
func (ip InterestPeriod) Interest(principal Coin) Coin {
	return ip.InterestBy(principal, ip.Till())
}

// InterestBy returns the interest accrued from start up to by, clamped to
// the period end. by must not be before the start.
func (ip InterestPeriod) InterestBy(principal Coin, by Timestamp) Coin {
	if by < ip.Start() {
		panic(fmt.Errorf("%w: interest requested by %s, period starts at %s",
			ErrInvalidPeriod, by, ip.Start()))
	}
	by = ip.period.Clamp(by)
	yearly := ip.rate.Of(principal)
	return Coin{
		Amount:   Between(ip.Start(), by).AnnualizedSliceOf(yearly.Amount),
		Currency: principal.Currency,
	}
}

// Pay settles up to the interest owed by the given time. It returns the
// period starting where the settled interest ends and the unused change.
func (ip InterestPeriod) Pay(principal, payment Coin, by Timestamp) (InterestPeriod, Coin) {
	by = ip.period.Clamp(by)
	owed := ip.InterestBy(principal, by)
	if owed.IsZero() {
		return ip, payment
	}

	settled := owed.Min(payment)
	elapsed := Between(ip.Start(), by)
	paidFor := elapsed.SlicePerRatio(settled.Amount, owed.Amount)
	change := payment.Sub(settled)
	return ip.ShiftStart(paidFor), change
}

// ShiftStart moves the start forward by delta; delta must not exceed the length.
func (ip InterestPeriod) ShiftStart(delta Duration) InterestPeriod {
	if delta > ip.Length() {
		arithmeticPanic("shift beyond period end", uint64(delta), uint64(ip.Length()))
	}
	return InterestPeriod{period: ip.period.ShiftStart(delta), rate: ip.rate}
}

func (ip InterestPeriod) String() string {
	return fmt.Sprintf("%s @ %s", ip.period, ip.rate)
}
