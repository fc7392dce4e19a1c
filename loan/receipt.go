package loan

import (
	"fmt"

	"github.com/warp/lease-loan/finance"
)

// RepayReceipt is the immutable breakdown of one payment, in waterfall order.
// The six buckets always sum to the payment.
type RepayReceipt struct {
	principalDue    finance.Coin
	overdueInterest finance.Coin
	overdueMargin   finance.Coin
	dueInterest     finance.Coin
	dueMargin       finance.Coin
	principal       finance.Coin
	change          finance.Coin
}

// ReceiptParts lists the buckets of a receipt in allocation order.
type ReceiptParts struct {
	OverdueInterest finance.Coin
	OverdueMargin   finance.Coin
	DueInterest     finance.Coin
	DueMargin       finance.Coin
	Principal       finance.Coin
	Change          finance.Coin
}

// NewRepayReceipt validates and freezes a receipt. principalDue is the
// principal outstanding when the payment was allocated.
func NewRepayReceipt(payment, principalDue finance.Coin, parts ReceiptParts) (RepayReceipt, error) {
	r := RepayReceipt{
		principalDue:    principalDue,
		overdueInterest: parts.OverdueInterest,
		overdueMargin:   parts.OverdueMargin,
		dueInterest:     parts.DueInterest,
		dueMargin:       parts.DueMargin,
		principal:       parts.Principal,
		change:          parts.Change,
	}
	if r.principal.GreaterThan(principalDue) {
		return RepayReceipt{}, &InconsistencyError{
			Check:    "receipt principal",
			Expected: principalDue,
			Actual:   r.principal,
			Err:      ErrPrincipalOverpaid,
		}
	}
	if total := r.Total(); total != payment {
		return RepayReceipt{}, &InconsistencyError{
			Check:    "receipt total",
			Expected: payment,
			Actual:   total,
			Err:      ErrReceiptUnbalanced,
		}
	}
	return r, nil
}

func (r RepayReceipt) PrincipalDue() finance.Coin        { return r.principalDue }
func (r RepayReceipt) OverdueInterestPaid() finance.Coin { return r.overdueInterest }
func (r RepayReceipt) OverdueMarginPaid() finance.Coin   { return r.overdueMargin }
func (r RepayReceipt) DueInterestPaid() finance.Coin     { return r.dueInterest }
func (r RepayReceipt) DueMarginPaid() finance.Coin       { return r.dueMargin }
func (r RepayReceipt) PrincipalPaid() finance.Coin       { return r.principal }
func (r RepayReceipt) Change() finance.Coin              { return r.change }

// Parts returns the buckets.
func (r RepayReceipt) Parts() ReceiptParts {
	return ReceiptParts{
		OverdueInterest: r.overdueInterest,
		OverdueMargin:   r.overdueMargin,
		DueInterest:     r.dueInterest,
		DueMargin:       r.dueMargin,
		Principal:       r.principal,
		Change:          r.change,
	}
}

func (r RepayReceipt) InterestPaid() finance.Coin { return r.overdueInterest.Add(r.dueInterest) }
func (r RepayReceipt) MarginPaid() finance.Coin   { return r.overdueMargin.Add(r.dueMargin) }

// Total sums all six buckets.
func (r RepayReceipt) Total() finance.Coin {
	return r.overdueInterest.
		Add(r.overdueMargin).
		Add(r.dueInterest).
		Add(r.dueMargin).
		Add(r.principal).
		Add(r.change)
}

// Close reports that the payment repaid the whole principal.
func (r RepayReceipt) Close() bool {
	return r.principal == r.principalDue
}

func (r RepayReceipt) String() string {
	return fmt.Sprintf(
		"receipt{overdue interest: %s, overdue margin: %s, due interest: %s, due margin: %s, principal: %s, change: %s}",
		r.overdueInterest, r.overdueMargin, r.dueInterest, r.dueMargin, r.principal, r.change)
}
