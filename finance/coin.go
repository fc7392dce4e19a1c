package finance

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// =============================================================================
// COIN - Non-negative amount tagged with a currency
// =============================================================================

// Coin is an amount in a currency's minor units. Arithmetic is defined only
// between coins of the same currency and never goes below zero.
type Coin struct {
	Amount   uint64
	Currency Currency
}

func NewCoin(amount uint64, currency Currency) Coin {
	return Coin{Amount: amount, Currency: currency}
}

// ZeroCoin returns the zero amount of a currency.
func ZeroCoin(currency Currency) Coin { return Coin{Currency: currency} }

func (c Coin) Zero() Coin     { return Coin{Currency: c.Currency} }
func (c Coin) IsZero() bool   { return c.Amount == 0 }
func (c Coin) String() string { return fmt.Sprintf("%d %s", c.Amount, c.Currency) }

func (c Coin) Add(o Coin) Coin {
	c.mustMatch("add", o)
	return Coin{Amount: checkedAdd("coin add", c.Amount, o.Amount), Currency: c.Currency}
}

// Sub panics if o is greater than c.
func (c Coin) Sub(o Coin) Coin {
	c.mustMatch("sub", o)
	return Coin{Amount: checkedSub("coin sub", c.Amount, o.Amount), Currency: c.Currency}
}

func (c Coin) Min(o Coin) Coin {
	c.mustMatch("min", o)
	if o.Amount < c.Amount {
		return o
	}
	return c
}

func (c Coin) Max(o Coin) Coin {
	c.mustMatch("max", o)
	if o.Amount > c.Amount {
		return o
	}
	return c
}

// Cmp returns -1, 0 or +1.
func (c Coin) Cmp(o Coin) int {
	c.mustMatch("cmp", o)
	switch {
	case c.Amount < o.Amount:
		return -1
	case c.Amount > o.Amount:
		return 1
	default:
		return 0
	}
}

func (c Coin) LessThan(o Coin) bool    { return c.Cmp(o) < 0 }
func (c Coin) GreaterThan(o Coin) bool { return c.Cmp(o) > 0 }

// MulDiv returns c * num / den rounded down.
func (c Coin) MulDiv(num, den uint64) Coin {
	return Coin{Amount: mulDiv(c.Amount, num, den), Currency: c.Currency}
}

// SameCurrency reports whether both coins may be combined.
func (c Coin) SameCurrency(o Coin) bool { return c.Currency == o.Currency }

func (c Coin) mustMatch(op string, o Coin) {
	if c.Currency != o.Currency {
		panic(&CurrencyMismatchError{Op: op, Left: c.Currency, Right: o.Currency})
	}
}

// =============================================================================
// DECIMAL I/O
// =============================================================================

// Decimal renders the coin in major units, e.g. 1500000 USDC -> 1.5.
func (c Coin) Decimal() decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(c.Amount), -c.Currency.decimals())
}

// ParseCoin parses a decimal string in major units of a registered currency.
// The value must be non-negative and representable in minor units exactly.
func ParseCoin(value string, ticker string) (Coin, error) {
	info, err := LookupCurrency(ticker)
	if err != nil {
		return Coin{}, err
	}
	d, err := decimal.NewFromString(value)
	if err != nil {
		return Coin{}, fmt.Errorf("%w: %q: %v", ErrInvalidAmount, value, err)
	}
	return CoinFromDecimal(d, info)
}

// CoinFromDecimal converts a decimal in major units.
func CoinFromDecimal(d decimal.Decimal, info CurrencyInfo) (Coin, error) {
	if d.IsNegative() {
		return Coin{}, fmt.Errorf("%w: negative amount %s", ErrInvalidAmount, d)
	}
	minor := d.Shift(int32(info.Decimals))
	if !minor.IsInteger() {
		return Coin{}, fmt.Errorf("%w: %s has more than %d decimals", ErrInvalidAmount, d, info.Decimals)
	}
	bi := minor.BigInt()
	if !bi.IsUint64() {
		return Coin{}, fmt.Errorf("%w: %s overflows", ErrInvalidAmount, d)
	}
	return Coin{Amount: bi.Uint64(), Currency: info.Ticker}, nil
}
