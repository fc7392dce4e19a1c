package finance_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/lease-loan/finance"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

const periodStart = finance.Timestamp(0)

var tenPercent = finance.PercentFromPercent(10)

func usdc(amount uint64) finance.Coin {
	return finance.NewCoin(amount, finance.USDC)
}

func yearPeriod(rate finance.Percent) finance.InterestPeriod {
	return finance.WithInterest(rate).And(finance.PeriodFromLength(periodStart, finance.Year))
}

func assertPay(t *testing.T, principal, payment finance.Coin, by finance.Timestamp,
	expStart finance.Timestamp, expLength finance.Duration, expChange finance.Coin) {
	t.Helper()

	ip := yearPeriod(tenPercent)
	got, change := ip.Pay(principal, payment, by)

	exp := finance.WithInterest(tenPercent).From(expStart).Spanning(expLength)
	assert.Equal(t, exp, got)
	assert.Equal(t, expChange, change)
	assert.Equal(t, ip.Till(), got.Till(), "pay must not move the period end")
}

// =============================================================================
// INTEREST
// =============================================================================

func TestInterest_FullYear(t *testing.T) {
	ip := yearPeriod(tenPercent)
	assert.Equal(t, usdc(100), ip.Interest(usdc(1000)))
}

func TestInterest_ZeroRate(t *testing.T) {
	ip := yearPeriod(finance.PercentFromPermille(0))
	assert.Equal(t, usdc(0), ip.Interest(usdc(1001)))
}

func TestInterestBy_ClampsToPeriodEnd(t *testing.T) {
	ip := yearPeriod(tenPercent)
	far := periodStart.Add(finance.Year).Add(finance.Year)
	assert.Equal(t, ip.Interest(usdc(1000)), ip.InterestBy(usdc(1000), far))
}

func TestInterestBy_HalfYear(t *testing.T) {
	ip := yearPeriod(tenPercent)
	half := periodStart.Add(finance.Year / 2)
	assert.Equal(t, usdc(50), ip.InterestBy(usdc(1000), half))
}

func TestInterestBy_BeforeStartPanics(t *testing.T) {
	ip := yearPeriod(tenPercent).From(finance.Timestamp(100))
	assert.Panics(t, func() { ip.InterestBy(usdc(1000), finance.Timestamp(99)) })
}

// =============================================================================
// PAY
// =============================================================================

func TestPay_ZeroPrincipal(t *testing.T) {
	payment := usdc(300)
	assertPay(t, usdc(0), payment, periodStart.Add(finance.Year),
		periodStart, finance.Year, payment)
}

func TestPay_ZeroPayment(t *testing.T) {
	payment := usdc(0)
	assertPay(t, usdc(1000), payment, periodStart.Add(finance.Year),
		periodStart, finance.Year, payment)
}

func TestPay_OutsidePeriod(t *testing.T) {
	principal := usdc(1000)
	payment := usdc(345)
	expChange := payment.Sub(tenPercent.Of(principal))

	assertPay(t, principal, payment, periodStart.Add(finance.Year).Add(finance.Year),
		periodStart.Add(finance.Year), 0, expChange)

	assertPay(t, principal, payment, periodStart,
		periodStart, finance.Year, payment)
}

func TestPay_AllDue(t *testing.T) {
	principal := usdc(1000)
	payment := usdc(300)
	by := periodStart.Add(finance.Year)
	assertPay(t, principal, payment, by, by, 0, usdc(200))
}

func TestPay_PartialShrinksProportionally(t *testing.T) {
	// GIVEN: 100 owed for the whole year
	// WHEN: paying 50 at the end of the year
	// THEN: half of the year is covered, no change
	assertPay(t, usdc(1000), usdc(50), periodStart.Add(finance.Year),
		periodStart.Add(finance.Year/2), finance.Year/2, usdc(0))
}

func TestPay_RepeatedPartialPaymentsMatchSinglePayment(t *testing.T) {
	principal := usdc(1000)
	by := periodStart.Add(finance.Year)

	ip := yearPeriod(tenPercent)
	for i := 0; i < 4; i++ {
		var change finance.Coin
		ip, change = ip.Pay(principal, usdc(25), by)
		require.True(t, change.IsZero())
	}

	assert.Equal(t, by, ip.Start())
	assert.True(t, ip.ZeroLength())
	assert.True(t, ip.Interest(principal).IsZero())
}

func TestPay_TillInvariantAcrossPayments(t *testing.T) {
	principal := usdc(36463892)
	ip := yearPeriod(finance.PercentFromPermille(55))
	till := ip.Till()

	for _, p := range []uint64{1, 17, 2500, 99999, 3} {
		by := periodStart.Add(finance.FromDays(p % 365))
		if by < ip.Start() {
			by = ip.Start()
		}
		ip, _ = ip.Pay(principal, usdc(p), by)
		assert.Equal(t, till, ip.Till())
	}
}

func TestShiftStart_BeyondLengthPanics(t *testing.T) {
	ip := yearPeriod(tenPercent)
	assert.Panics(t, func() { ip.ShiftStart(finance.Year + 1) })
}
