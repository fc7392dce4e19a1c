/*
currency.go - Currency registry

PURPOSE:
  Amounts carry a currency ticker. The registry knows how many decimal
  places each ticker uses so amounts can be parsed from and rendered to
  human-readable decimals. Arithmetic never consults the registry: two
  coins are compatible when their tickers are equal.

USAGE:
  finance.RegisterCurrency("EURC", 6)
  c := finance.MustLookupCurrency("USDC")
*/
package finance

import (
	"fmt"
	"sort"
	"sync"
)

// Currency is a ticker such as "USDC".
type Currency string

func (c Currency) String() string { return string(c) }

// CurrencyInfo describes a registered currency.
type CurrencyInfo struct {
	Ticker   Currency
	Decimals uint8
}

var (
	currencyRegistry = make(map[Currency]CurrencyInfo)
	registryMu       sync.RWMutex
)

const (
	USDC Currency = "USDC"
	USDT Currency = "USDT"
	NLS  Currency = "NLS"
	ATOM Currency = "ATOM"
	OSMO Currency = "OSMO"
)

func init() {
	for _, c := range []Currency{USDC, USDT, NLS, ATOM, OSMO} {
		RegisterCurrency(c, 6)
	}
}

// RegisterCurrency adds or replaces a currency.
func RegisterCurrency(ticker Currency, decimals uint8) {
	registryMu.Lock()
	defer registryMu.Unlock()
	currencyRegistry[ticker] = CurrencyInfo{Ticker: ticker, Decimals: decimals}
}

// LookupCurrency finds a registered currency.
func LookupCurrency(ticker string) (CurrencyInfo, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	info, ok := currencyRegistry[Currency(ticker)]
	if !ok {
		return CurrencyInfo{}, fmt.Errorf("%w: %q", ErrUnknownCurrency, ticker)
	}
	return info, nil
}

// MustLookupCurrency finds a registered currency or panics.
// Use in tests or for the built-in tickers.
func MustLookupCurrency(ticker string) CurrencyInfo {
	info, err := LookupCurrency(ticker)
	if err != nil {
		panic(err)
	}
	return info
}

// ListCurrencies returns all registered currencies sorted by ticker.
func ListCurrencies() []CurrencyInfo {
	registryMu.RLock()
	defer registryMu.RUnlock()
	result := make([]CurrencyInfo, 0, len(currencyRegistry))
	for _, info := range currencyRegistry {
		result = append(result, info)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Ticker < result[j].Ticker })
	return result
}

func (c Currency) decimals() int32 {
	registryMu.RLock()
	defer registryMu.RUnlock()
	return int32(currencyRegistry[c].Decimals)
}
