// Package venue defines the trading venue contract consumed by the strategy engines.
package venue

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"btc-dca-agent/internal/domain"
)

// Balances maps upper-case asset symbols to holdings.
type Balances map[string]domain.Balance

// Get returns the balance for asset, zero when absent.
func (b Balances) Get(asset string) domain.Balance {
	return b[strings.ToUpper(asset)]
}

// Ticker is the last trade price for a pair.
type Ticker struct {
	Pair      string
	Last      decimal.Decimal
	Timestamp time.Time
}

// OrderStatus is the venue-reported state of an order.
type OrderStatus string

const (
	OrderStatusOpen     OrderStatus = "open"
	OrderStatusClosed   OrderStatus = "closed"
	OrderStatusCanceled OrderStatus = "canceled"
	OrderStatusUnknown  OrderStatus = ""
)

// Fill is the venue's confirmation of a market order.
// Any of AveragePrice, Filled and Cost may be missing; callers reconcile against the quote.
type Fill struct {
	OrderID      string
	Pair         string
	Side         domain.Side
	Status       OrderStatus
	AveragePrice decimal.NullDecimal // quote per base
	Filled       decimal.NullDecimal // base units
	Cost         decimal.NullDecimal // quote units
	Timestamp    time.Time
}

// MarketData reads balances and prices.
type MarketData interface {
	// FetchBalance returns free and total holdings per asset.
	FetchBalance(ctx context.Context) (Balances, error)

	// FetchTicker returns the last price for pair ("BTC/IDR").
	FetchTicker(ctx context.Context, pair string) (Ticker, error)
}

// Trader places market orders.
type Trader interface {
	// CreateMarketBuyOrder buys pair spending cost in quote currency.
	CreateMarketBuyOrder(ctx context.Context, pair string, cost decimal.Decimal) (*Fill, error)

	// CreateMarketSellOrder sells amount of the base asset.
	CreateMarketSellOrder(ctx context.Context, pair string, amount decimal.Decimal) (*Fill, error)
}

// Venue is a spot exchange account.
type Venue interface {
	MarketData
	Trader

	// Name identifies the venue in logs and metrics.
	Name() string
}
