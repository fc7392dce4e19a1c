/*
scheduler.go - Grace period scheduler

PURPOSE:
  Keeps one alarm per open loan at its next grace period end. When an
  alarm fires the loan state is evaluated and its overdue classification
  logged, so operators see loans turning overdue without polling.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Each check first fires every due alarm, then re-arms all open loans
    at their next grace period end after now
  - Closed loans lose their alarms
  - Repayments move grace period ends; re-arming on every check picks
    those changes up

USAGE:
  scheduler := NewGraceScheduler(service, alarms.NewRegistry(), logger)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - alarms/alarms.go: Alarm registry
  - loan/loan.go: NextGracePeriodEnd
*/
package api

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/warp/lease-loan/alarms"
	"github.com/warp/lease-loan/finance"
	"github.com/warp/lease-loan/lease"
)

// GraceScheduler fires grace period alarms for open loans.
type GraceScheduler struct {
	Service       *lease.Service
	Alarms        *alarms.Registry
	CheckInterval time.Duration
	Enabled       bool

	logger *zap.Logger
	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// CheckResult summarizes one scheduler pass.
type CheckResult struct {
	Fired   int // alarms dispatched
	Overdue int // fired loans with accrued overdue amounts
	Armed   int // open loans holding an alarm after the pass
}

// NewGraceScheduler creates a new scheduler.
func NewGraceScheduler(svc *lease.Service, registry *alarms.Registry, logger *zap.Logger) *GraceScheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GraceScheduler{
		Service:       svc,
		Alarms:        registry,
		CheckInterval: time.Minute,
		Enabled:       true,
		logger:        logger,
		stop:          make(chan struct{}),
	}
}

// Start begins the scheduler.
func (gs *GraceScheduler) Start() {
	gs.mu.Lock()
	defer gs.mu.Unlock()

	if !gs.Enabled {
		gs.logger.Info("grace scheduler disabled")
		return
	}

	gs.ticker = time.NewTicker(gs.CheckInterval)
	gs.wg.Add(1)

	go gs.run()

	gs.logger.Info("grace scheduler started", zap.Duration("interval", gs.CheckInterval))
}

// Stop stops the scheduler.
func (gs *GraceScheduler) Stop() {
	gs.mu.Lock()
	defer gs.mu.Unlock()

	if gs.ticker != nil {
		gs.ticker.Stop()
		close(gs.stop)
		gs.wg.Wait()
		gs.ticker = nil
		gs.logger.Info("grace scheduler stopped")
	}
}

func (gs *GraceScheduler) run() {
	defer gs.wg.Done()

	// Run immediately on start
	gs.RunNow(context.Background())

	for {
		select {
		case <-gs.ticker.C:
			gs.RunNow(context.Background())
		case <-gs.stop:
			return
		}
	}
}

// RunNow fires due alarms and re-arms open loans.
func (gs *GraceScheduler) RunNow(ctx context.Context) CheckResult {
	now := gs.Service.Now()
	var res CheckResult

	res.Fired = gs.Alarms.Notify(alarms.DispatcherFunc(func(id string, at finance.Timestamp) {
		if gs.checkLoan(ctx, lease.LoanID(id), at, now) {
			res.Overdue++
		}
	}), finance.FromTime(now))

	records, err := gs.Service.List(ctx)
	if err != nil {
		gs.logger.Error("grace scheduler: listing loans", zap.Error(err))
		return res
	}

	for _, rec := range records {
		id := string(rec.ID)
		if rec.IsClosed() {
			for _, at := range gs.Alarms.Pending(id) {
				_ = gs.Alarms.Remove(id, at)
			}
			continue
		}

		window, err := gs.Service.GracePeriodEnd(ctx, rec.ID, now)
		if err != nil {
			gs.logger.Error("grace scheduler: grace period end",
				zap.String("loan_id", id),
				zap.Error(err),
			)
			continue
		}
		gs.Alarms.Reschedule(id, window.Next)
		res.Armed++
	}

	if res.Fired > 0 {
		gs.logger.Info("grace scheduler pass",
			zap.Int("fired", res.Fired),
			zap.Int("overdue", res.Overdue),
			zap.Int("armed", res.Armed),
		)
	}
	return res
}

// checkLoan logs the overdue classification of a loan whose grace period
// ended. It reports whether overdue amounts have accrued.
func (gs *GraceScheduler) checkLoan(ctx context.Context, id lease.LoanID, at finance.Timestamp, now time.Time) bool {
	st, err := gs.Service.State(ctx, id, now)
	if err != nil {
		gs.logger.Warn("grace scheduler: loan state",
			zap.String("loan_id", string(id)),
			zap.Error(err),
		)
		return false
	}

	if !st.Overdue.IsAccrued() {
		gs.logger.Debug("grace period ended without overdue",
			zap.String("loan_id", string(id)),
			zap.Stringer("alarm", at),
			zap.Stringer("overdue", st.Overdue),
		)
		return false
	}

	gs.logger.Info("loan overdue",
		zap.String("loan_id", string(id)),
		zap.Stringer("alarm", at),
		zap.Stringer("overdue_interest", st.Overdue.Interest()),
		zap.Stringer("overdue_margin", st.Overdue.Margin()),
		zap.Stringer("principal_due", st.PrincipalDue),
	)
	return true
}

// NextAlarm returns the earliest armed grace period end.
func (gs *GraceScheduler) NextAlarm() (time.Time, bool) {
	at, ok := gs.Alarms.Next()
	if !ok {
		return time.Time{}, false
	}
	return at.Time(), true
}
