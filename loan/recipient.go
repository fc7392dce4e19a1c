package loan

import "github.com/warp/lease-loan/finance"

// MarginRecipient receives the margin-interest share of every repayment.
// Delivery is the recipient's concern.
type MarginRecipient interface {
	Send(amount finance.Coin)
}

// Transfers queues margin transfers in order so they can be delivered
// once the enclosing transaction has committed. Zero amounts are dropped.
type Transfers struct {
	queued []finance.Coin
}

func (t *Transfers) Send(amount finance.Coin) {
	if amount.IsZero() {
		return
	}
	t.queued = append(t.queued, amount)
}

// Pending returns the queued transfers.
func (t *Transfers) Pending() []finance.Coin {
	out := make([]finance.Coin, len(t.queued))
	copy(out, t.queued)
	return out
}

// Total sums the queued transfers. Zero when nothing is queued.
func (t *Transfers) Total(currency finance.Currency) finance.Coin {
	total := finance.ZeroCoin(currency)
	for _, c := range t.queued {
		total = total.Add(c)
	}
	return total
}
