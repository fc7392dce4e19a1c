package sqlite_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/warp/lease-loan/finance"
	"github.com/warp/lease-loan/lease"
	"github.com/warp/lease-loan/loan"
	"github.com/warp/lease-loan/store/sqlite"
)

func newStore(t *testing.T) *sqlite.Store {
	t.Helper()
	s, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func record(id lease.LoanID, principal uint64, openedAt finance.Timestamp) lease.Record {
	coin := finance.NewCoin(principal, finance.USDC)
	return lease.Record{
		ID:              id,
		Currency:        finance.USDC,
		Spec:            loan.NewPaymentSpec(finance.FromDays(30), finance.FromDays(3)),
		MarginRate:      finance.PercentFromPermille(40),
		DuePeriodStart:  openedAt,
		DuePeriodLength: finance.FromDays(30),
		Position: loan.PositionSnapshot{
			PrincipalDue:   coin,
			AnnualInterest: finance.PercentFromPermille(120),
			InterestPaidBy: openedAt,
		},
		Principal: coin,
		OpenedAt:  openedAt,
		UpdatedAt: time.Date(2025, time.March, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestStore_LoanRoundTrip(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	// amounts above the signed 64-bit range survive
	rec := record("loan-1", 18_000_000_000_000_000_000, 1_000)
	require.NoError(t, s.CreateLoan(ctx, rec))

	got, err := s.GetLoan(ctx, "loan-1")
	require.NoError(t, err)
	assert.Equal(t, rec, got)
}

func TestStore_CreateDuplicateLoan(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	require.NoError(t, s.CreateLoan(ctx, record("loan-1", 10, 1)))

	err := s.CreateLoan(ctx, record("loan-1", 10, 1))

	assert.ErrorIs(t, err, lease.ErrLoanExists)
}

func TestStore_GetMissingLoan(t *testing.T) {
	s := newStore(t)

	_, err := s.GetLoan(context.Background(), "nope")

	assert.ErrorIs(t, err, lease.ErrLoanNotFound)
}

func TestStore_SaveLoanUpdatesMutableState(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	rec := record("loan-1", 1000, 1)
	require.NoError(t, s.CreateLoan(ctx, rec))

	closed := finance.Timestamp(99)
	rec.DuePeriodStart = 50
	rec.DuePeriodLength = 10
	rec.Position.PrincipalDue = finance.NewCoin(0, finance.USDC)
	rec.Position.InterestPaidBy = 60
	rec.ClosedAt = &closed
	require.NoError(t, s.SaveLoan(ctx, rec))

	got, err := s.GetLoan(ctx, "loan-1")
	require.NoError(t, err)
	assert.Equal(t, rec, got)
	assert.True(t, got.IsClosed())

	assert.ErrorIs(t, s.SaveLoan(ctx, record("other", 1, 1)), lease.ErrLoanNotFound)
}

func TestStore_ListLoansOrderedByOpening(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	require.NoError(t, s.CreateLoan(ctx, record("b", 1, 20)))
	require.NoError(t, s.CreateLoan(ctx, record("a", 1, 30)))
	require.NoError(t, s.CreateLoan(ctx, record("c", 1, 10)))

	loans, err := s.ListLoans(ctx)
	require.NoError(t, err)

	require.Len(t, loans, 3)
	assert.Equal(t, lease.LoanID("c"), loans[0].ID)
	assert.Equal(t, lease.LoanID("b"), loans[1].ID)
	assert.Equal(t, lease.LoanID("a"), loans[2].ID)
}

func TestStore_RepaymentsAppendOnlyAndIdempotent(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	require.NoError(t, s.CreateLoan(ctx, record("loan-1", 1000, 1)))

	usdc := func(a uint64) finance.Coin { return finance.NewCoin(a, finance.USDC) }
	first := lease.Repayment{
		ID: "r1", LoanID: "loan-1", IdempotencyKey: "k1", PaidAt: 5,
		Payment: usdc(10), OverdueInterest: usdc(1), OverdueMargin: usdc(2),
		DueInterest: usdc(3), DueMargin: usdc(4), Principal: usdc(0), Change: usdc(0),
		CreatedAt: time.Date(2025, time.March, 2, 0, 0, 0, 0, time.UTC),
	}
	second := first
	second.ID, second.IdempotencyKey, second.PaidAt = "r2", "k2", 6

	require.NoError(t, s.AppendRepayment(ctx, first))
	require.NoError(t, s.AppendRepayment(ctx, second))

	dup := first
	dup.ID = "r3"
	assert.ErrorIs(t, s.AppendRepayment(ctx, dup), lease.ErrDuplicateIdempotencyKey)

	orphan := first
	orphan.ID, orphan.IdempotencyKey, orphan.LoanID = "r4", "k4", "missing"
	assert.ErrorIs(t, s.AppendRepayment(ctx, orphan), lease.ErrLoanNotFound)

	got, err := s.Repayments(ctx, "loan-1")
	require.NoError(t, err)
	assert.Equal(t, []lease.Repayment{first, second}, got)

	ok, err := s.Exists(ctx, "k1")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = s.Exists(ctx, "k9")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStore_WithTxRollsBackOnError(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	rec := record("loan-1", 1000, 1)
	require.NoError(t, s.CreateLoan(ctx, rec))

	err := s.WithTx(ctx, func(tx lease.Store) error {
		changed := rec
		changed.DuePeriodStart = 500
		require.NoError(t, tx.SaveLoan(ctx, changed))

		got, err := tx.GetLoan(ctx, "loan-1")
		require.NoError(t, err)
		assert.Equal(t, finance.Timestamp(500), got.DuePeriodStart)

		return lease.ErrLoanClosed
	})
	assert.ErrorIs(t, err, lease.ErrLoanClosed)

	got, err := s.GetLoan(ctx, "loan-1")
	require.NoError(t, err)
	assert.Equal(t, rec, got)
}

func TestStore_ServiceRepayEndToEnd(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	now := time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)
	svc := lease.NewService(s, zap.NewNop(), lease.WithClock(func() time.Time { return now }))

	rec, err := svc.Open(ctx, lease.OpenRequest{
		Principal:      finance.NewCoin(1000, finance.USDC),
		AnnualInterest: finance.PercentFromPermille(500),
		MarginInterest: finance.PercentFromPermille(50),
		Spec:           loan.NewPaymentSpec(finance.Year, 0),
	})
	require.NoError(t, err)

	now = now.Add(2 * finance.Year.Std())
	r, err := svc.Repay(ctx, lease.RepayRequest{LoanID: rec.ID, Amount: finance.NewCoin(490, finance.USDC)})
	require.NoError(t, err)
	assert.Equal(t, finance.NewCoin(490, finance.USDC), r.OverdueInterest)

	st, err := svc.State(ctx, rec.ID, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, loan.OverdueAccrued(finance.NewCoin(10, finance.USDC), finance.NewCoin(50, finance.USDC)), st.Overdue)

	history, err := svc.Repayments(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, []lease.Repayment{r}, history)
}
