package loan

import (
	"fmt"

	"github.com/warp/lease-loan/finance"
)

// PaymentSpec fixes the billing cadence of a loan.
type PaymentSpec struct {
	// BillingPeriod is the length of the recurring window margin is due over.
	BillingPeriod finance.Duration

	// GracePeriod is the extra time after a billing period before its
	// interest becomes overdue.
	GracePeriod finance.Duration
}

func NewPaymentSpec(billing, grace finance.Duration) PaymentSpec {
	return PaymentSpec{BillingPeriod: billing, GracePeriod: grace}
}

// Validate rejects a zero billing period.
func (s PaymentSpec) Validate() error {
	if s.BillingPeriod == 0 {
		return fmt.Errorf("%w: billing period must be positive", ErrInvalidPaymentSpec)
	}
	return nil
}

// State is a snapshot of everything owed at one instant.
type State struct {
	AnnualInterest       finance.Percent
	AnnualMarginInterest finance.Percent
	PrincipalDue         finance.Coin
	DueInterest          finance.Coin
	DueMarginInterest    finance.Coin
	Overdue              Overdue
}

// TotalInterestDue sums overdue and current interest and margin.
func (s State) TotalInterestDue() finance.Coin {
	return s.Overdue.Total().Add(s.DueInterest).Add(s.DueMarginInterest)
}

// TotalDue is the payment that settles the loan in full at this instant.
func (s State) TotalDue() finance.Coin {
	return s.TotalInterestDue().Add(s.PrincipalDue)
}

// IsSettled reports that nothing at all is owed.
func (s State) IsSettled() bool {
	return s.TotalDue().IsZero()
}
