package finance

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// PERCENT - Annual rate in permille units
// =============================================================================

// Percent is a non-negative rate expressed in permille (1/1000).
// 50 permille = 5.0%.
type Percent uint32

const permilleHundred = 1000

func PercentFromPermille(permille uint32) Percent { return Percent(permille) }
func PercentFromPercent(percent uint32) Percent {
	permille := checkedMul("percent", uint64(percent), 10)
	if permille > uint64(^uint32(0)) {
		arithmeticPanic("percent overflow", uint64(percent))
	}
	return Percent(permille)
}

func (p Percent) Permille() uint32 { return uint32(p) }
func (p Percent) IsZero() bool     { return p == 0 }

// Of applies the rate to an amount, rounding down.
func (p Percent) Of(c Coin) Coin {
	return c.MulDiv(uint64(p), permilleHundred)
}

// Decimal renders the rate in percent, e.g. 50 -> 5.
func (p Percent) Decimal() decimal.Decimal {
	return decimal.New(int64(p), -1)
}

func (p Percent) String() string {
	return p.Decimal().StringFixed(1) + "%"
}

// ParsePercent parses a percent string such as "5" or "12.5".
// Precision finer than one permille is rejected.
func ParsePercent(s string) (Percent, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q: %v", ErrInvalidPercent, s, err)
	}
	if d.IsNegative() {
		return 0, fmt.Errorf("%w: negative rate %s", ErrInvalidPercent, s)
	}
	permille := d.Shift(1)
	if !permille.IsInteger() {
		return 0, fmt.Errorf("%w: %s is finer than one permille", ErrInvalidPercent, s)
	}
	if permille.GreaterThan(decimal.NewFromInt(int64(^uint32(0)))) {
		return 0, fmt.Errorf("%w: %s overflows", ErrInvalidPercent, s)
	}
	return Percent(permille.IntPart()), nil
}
