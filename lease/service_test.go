package lease_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/warp/lease-loan/finance"
	"github.com/warp/lease-loan/lease"
	"github.com/warp/lease-loan/lease/store"
	"github.com/warp/lease-loan/loan"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

var openedAt = time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recordingPublisher struct {
	mu        sync.Mutex
	transfers []lease.Transfer
	err       error
}

func (p *recordingPublisher) Publish(_ context.Context, t lease.Transfer) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.transfers = append(p.transfers, t)
	return nil
}

func usdc(amount uint64) finance.Coin {
	return finance.NewCoin(amount, finance.USDC)
}

func newService(t *testing.T) (*lease.Service, *fakeClock, *recordingPublisher) {
	t.Helper()
	clock := &fakeClock{now: openedAt}
	pub := &recordingPublisher{}
	svc := lease.NewService(store.NewTxMemory(), zap.NewNop(),
		lease.WithClock(clock.Now),
		lease.WithPublisher(pub),
	)
	return svc, clock, pub
}

func openYearly(t *testing.T, svc *lease.Service, principal uint64) lease.Record {
	t.Helper()
	rec, err := svc.Open(context.Background(), lease.OpenRequest{
		Principal:      usdc(principal),
		AnnualInterest: finance.PercentFromPermille(500),
		MarginInterest: finance.PercentFromPermille(50),
		Spec:           loan.NewPaymentSpec(finance.Year, 0),
	})
	require.NoError(t, err)
	return rec
}

// =============================================================================
// OPEN
// =============================================================================

func TestService_Open(t *testing.T) {
	svc, _, _ := newService(t)

	rec := openYearly(t, svc, 1000)

	assert.NotEmpty(t, rec.ID)
	assert.Equal(t, finance.USDC, rec.Currency)
	assert.Equal(t, finance.FromTime(openedAt), rec.OpenedAt)
	assert.Equal(t, finance.FromTime(openedAt), rec.DuePeriodStart)
	assert.Equal(t, finance.Year, rec.DuePeriodLength)
	assert.Equal(t, usdc(1000), rec.Position.PrincipalDue)
	assert.False(t, rec.IsClosed())

	got, err := svc.Get(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, rec, got)
}

func TestService_OpenRejectsInvalidRequests(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()
	spec := loan.NewPaymentSpec(finance.Year, 0)

	_, err := svc.Open(ctx, lease.OpenRequest{Principal: usdc(0), Spec: spec})
	assert.ErrorIs(t, err, lease.ErrInvalidAmount)
	assert.True(t, lease.IsClientError(err))

	_, err = svc.Open(ctx, lease.OpenRequest{Principal: finance.NewCoin(5, "NOPE"), Spec: spec})
	assert.ErrorIs(t, err, finance.ErrUnknownCurrency)

	_, err = svc.Open(ctx, lease.OpenRequest{Principal: usdc(5), Spec: loan.NewPaymentSpec(0, 0)})
	assert.ErrorIs(t, err, loan.ErrInvalidPaymentSpec)
	assert.True(t, lease.IsClientError(err))
}

func TestService_OpenDuplicateID(t *testing.T) {
	svc, _, _ := newService(t)
	req := lease.OpenRequest{
		ID:        "loan-1",
		Principal: usdc(10),
		Spec:      loan.NewPaymentSpec(finance.Year, 0),
	}

	_, err := svc.Open(context.Background(), req)
	require.NoError(t, err)
	_, err = svc.Open(context.Background(), req)

	assert.ErrorIs(t, err, lease.ErrLoanExists)
	assert.True(t, lease.IsConflict(err))
}

// =============================================================================
// STATE
// =============================================================================

func TestService_StateAfterTwoYears(t *testing.T) {
	svc, _, _ := newService(t)
	rec := openYearly(t, svc, 1000)

	st, err := svc.State(context.Background(), rec.ID, openedAt.Add(2*finance.Year.Std()))
	require.NoError(t, err)

	assert.Equal(t, loan.OverdueAccrued(usdc(500), usdc(50)), st.Overdue)
	assert.Equal(t, usdc(500), st.DueInterest)
	assert.Equal(t, usdc(50), st.DueMarginInterest)
}

func TestService_StateBeforeOpeningIsClientError(t *testing.T) {
	svc, _, _ := newService(t)
	rec := openYearly(t, svc, 1000)

	_, err := svc.State(context.Background(), rec.ID, openedAt.Add(-time.Hour))

	assert.ErrorIs(t, err, loan.ErrNowBeforePeriodStart)
	assert.True(t, lease.IsClientError(err))
}

func TestService_UnknownLoan(t *testing.T) {
	svc, _, _ := newService(t)

	_, err := svc.State(context.Background(), "missing", time.Time{})
	assert.True(t, lease.IsNotFound(err))

	_, err = svc.Repayments(context.Background(), "missing")
	assert.True(t, lease.IsNotFound(err))
}

// =============================================================================
// REPAY
// =============================================================================

func TestService_RepayPersistsAndPublishesMargin(t *testing.T) {
	svc, clock, pub := newService(t)
	ctx := context.Background()
	rec := openYearly(t, svc, 1000)

	// GIVEN: half a year has passed
	clock.Advance(finance.Year.Std() / 2)

	// WHEN: due interest and margin plus some principal are paid
	r, err := svc.Repay(ctx, lease.RepayRequest{LoanID: rec.ID, Amount: usdc(250 + 25 + 100), IdempotencyKey: "k1"})
	require.NoError(t, err)

	// THEN: the waterfall is persisted and the margin published
	assert.Equal(t, usdc(250), r.DueInterest)
	assert.Equal(t, usdc(25), r.DueMargin)
	assert.Equal(t, usdc(100), r.Principal)
	assert.True(t, r.Change.IsZero())
	assert.False(t, r.Closed)

	got, err := svc.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, usdc(900), got.Position.PrincipalDue)
	assert.Equal(t, finance.FromTime(clock.Now()), got.DuePeriodStart)
	assert.Equal(t, finance.FromTime(clock.Now()), got.Position.InterestPaidBy)

	history, err := svc.Repayments(ctx, rec.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, r, history[0])

	require.Len(t, pub.transfers, 1)
	assert.Equal(t, lease.Transfer{LoanID: rec.ID, RepaymentID: r.ID, Amount: usdc(25), At: r.PaidAt}, pub.transfers[0])
}

func TestService_RepayDuplicateKeyIsRejected(t *testing.T) {
	svc, clock, pub := newService(t)
	ctx := context.Background()
	rec := openYearly(t, svc, 1000)
	clock.Advance(24 * time.Hour)

	_, err := svc.Repay(ctx, lease.RepayRequest{LoanID: rec.ID, Amount: usdc(10), IdempotencyKey: "same"})
	require.NoError(t, err)
	before, err := svc.Get(ctx, rec.ID)
	require.NoError(t, err)

	_, err = svc.Repay(ctx, lease.RepayRequest{LoanID: rec.ID, Amount: usdc(10), IdempotencyKey: "same"})

	assert.ErrorIs(t, err, lease.ErrDuplicateIdempotencyKey)
	after, err := svc.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, before, after)
	assert.Empty(t, pub.transfers)
}

func TestService_RepayClosesLoan(t *testing.T) {
	svc, clock, _ := newService(t)
	ctx := context.Background()
	rec := openYearly(t, svc, 1000)
	clock.Advance(finance.Year.Std())

	r, err := svc.Repay(ctx, lease.RepayRequest{LoanID: rec.ID, Amount: usdc(500 + 50 + 1000 + 5)})
	require.NoError(t, err)
	assert.True(t, r.Closed)
	assert.Equal(t, usdc(5), r.Change)

	got, err := svc.Get(ctx, rec.ID)
	require.NoError(t, err)
	require.True(t, got.IsClosed())
	assert.Equal(t, finance.FromTime(clock.Now()), *got.ClosedAt)

	open, err := svc.OpenLoans(ctx)
	require.NoError(t, err)
	assert.Empty(t, open)

	_, err = svc.Repay(ctx, lease.RepayRequest{LoanID: rec.ID, Amount: usdc(1)})
	assert.ErrorIs(t, err, lease.ErrLoanClosed)
}

func TestService_RepayCurrencyMismatchRollsBack(t *testing.T) {
	svc, clock, _ := newService(t)
	ctx := context.Background()
	rec := openYearly(t, svc, 1000)
	clock.Advance(time.Hour)

	_, err := svc.Repay(ctx, lease.RepayRequest{LoanID: rec.ID, Amount: finance.NewCoin(10, finance.USDT), IdempotencyKey: "k"})

	assert.ErrorIs(t, err, loan.ErrCurrencyMismatch)
	history, err := svc.Repayments(ctx, rec.ID)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestService_RepayZeroIsRejected(t *testing.T) {
	svc, _, _ := newService(t)
	rec := openYearly(t, svc, 1000)

	_, err := svc.Repay(context.Background(), lease.RepayRequest{LoanID: rec.ID, Amount: usdc(0)})
	assert.ErrorIs(t, err, lease.ErrInvalidAmount)
}

func TestService_PublishFailureDoesNotFailRepay(t *testing.T) {
	svc, clock, pub := newService(t)
	pub.err = errors.New("stream down")
	rec := openYearly(t, svc, 1000)
	clock.Advance(finance.Year.Std() / 2)

	r, err := svc.Repay(context.Background(), lease.RepayRequest{LoanID: rec.ID, Amount: usdc(300)})

	require.NoError(t, err)
	assert.Equal(t, usdc(25), r.MarginPaid())
}

// =============================================================================
// GRACE PERIOD
// =============================================================================

func TestService_GracePeriodEnd(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()
	rec, err := svc.Open(ctx, lease.OpenRequest{
		Principal:      usdc(1000),
		AnnualInterest: finance.PercentFromPermille(100),
		MarginInterest: finance.PercentFromPermille(20),
		Spec:           loan.NewPaymentSpec(finance.FromDays(30), finance.FromDays(5)),
	})
	require.NoError(t, err)

	start := finance.FromTime(openedAt)
	w, err := svc.GracePeriodEnd(ctx, rec.ID, openedAt.Add(40*24*time.Hour))
	require.NoError(t, err)

	assert.Equal(t, start.Add(finance.FromDays(35)), w.Current)
	assert.Equal(t, start.Add(finance.FromDays(65)), w.Next)
}
