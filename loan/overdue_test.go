package loan_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/warp/lease-loan/finance"
	"github.com/warp/lease-loan/loan"
)

func TestComputeOverdue_StartInBeforeGraceExpires(t *testing.T) {
	ledger := loan.NewPosition(coin(1000), loanRate, leaseStart)
	billing := finance.FromDays(30)
	grace := finance.FromDays(3)

	// GIVEN: 31 days elapsed, inside the grace window of the first period
	period := finance.PeriodFromLength(leaseStart, finance.FromDays(31))

	got := loan.ComputeOverdue(period, billing, grace, marginRate, ledger)

	assert.False(t, got.IsAccrued())
	assert.Equal(t, finance.FromDays(2), got.StartIn())
	assert.True(t, got.Total().IsZero())
	assert.Equal(t, "StartIn(2d)", got.String())
}

func TestComputeOverdue_AccruedAtGraceBoundary(t *testing.T) {
	ledger := loan.NewPosition(coin(1000000), loanRate, leaseStart)
	billing := finance.FromDays(30)
	grace := finance.FromDays(3)
	period := finance.PeriodFromLength(leaseStart, billing.Add(grace))

	got := loan.ComputeOverdue(period, billing, grace, marginRate, ledger)

	// overdue covers everything before the current billing period
	span := finance.FromDays(3)
	assert.True(t, got.IsAccrued())
	assert.Equal(t, coin(span.AnnualizedSliceOf(yearly(loanRate, 1000000))), got.Interest())
	assert.Equal(t, coin(span.AnnualizedSliceOf(yearly(marginRate, 1000000))), got.Margin())
	assert.Zero(t, got.StartIn())
}

func TestComputeOverdue_FoldsSeveralBillingPeriods(t *testing.T) {
	ledger := loan.NewPosition(coin(1000), loanRate, leaseStart)
	billing := finance.Year
	period := finance.PeriodFromLength(leaseStart, 3*finance.Year)

	got := loan.ComputeOverdue(period, billing, 0, marginRate, ledger)

	assert.Equal(t, accrued(1000, 100), got)
}

func TestComputeOverdue_NeverExceedsTotalOwed(t *testing.T) {
	ledger := loan.NewPosition(coin(987654), loanRate, leaseStart)
	billing := finance.FromDays(30)

	for days := uint64(30); days < 400; days += 7 {
		period := finance.PeriodFromLength(leaseStart, finance.FromDays(days))
		got := loan.ComputeOverdue(period, billing, 0, marginRate, ledger)

		totalInterest := ledger.InterestDue(period.Till())
		totalMargin := finance.WithInterest(marginRate).And(period).Interest(ledger.PrincipalDue())
		assert.False(t, got.Interest().GreaterThan(totalInterest), "interest at day %d", days)
		assert.False(t, got.Margin().GreaterThan(totalMargin), "margin at day %d", days)
	}
}

func TestOverdue_AccruedCurrencyMismatchPanics(t *testing.T) {
	assert.Panics(t, func() {
		loan.OverdueAccrued(coin(1), finance.NewCoin(1, finance.USDT))
	})
}
