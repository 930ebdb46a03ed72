package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Balance is the free and total holding of a single asset.
type Balance struct {
	Free  decimal.Decimal
	Total decimal.Decimal
}

// MarketSnapshot is the read of balances and last price taken at tick start.
// It is never modified after construction.
type MarketSnapshot struct {
	Pair    string
	Base    string // e.g. BTC
	Quote   string // e.g. IDR
	Price   decimal.Decimal
	Fiat    Balance
	Btc     Balance
	TakenAt time.Time
}

// Equity returns free fiat plus the total BTC holding valued at the snapshot price.
func (m MarketSnapshot) Equity() decimal.Decimal {
	return m.Fiat.Free.Add(m.Btc.Total.Mul(m.Price))
}

// SplitPair splits "BTC/IDR" into its base and quote assets, upper-cased.
func SplitPair(pair string) (base, quote string, err error) {
	parts := strings.Split(pair, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid pair %q: want BASE/QUOTE", pair)
	}
	return strings.ToUpper(parts[0]), strings.ToUpper(parts[1]), nil
}
