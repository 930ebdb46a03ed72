package orchestrator

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"btc-dca-agent/internal/venue"
)

// timeoutVenue bounds every venue call with its own deadline.
type timeoutVenue struct {
	next    venue.Venue
	timeout time.Duration
}

func (v *timeoutVenue) Name() string { return v.next.Name() }

func (v *timeoutVenue) FetchBalance(ctx context.Context) (venue.Balances, error) {
	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()
	return v.next.FetchBalance(ctx)
}

func (v *timeoutVenue) FetchTicker(ctx context.Context, pair string) (venue.Ticker, error) {
	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()
	return v.next.FetchTicker(ctx, pair)
}

func (v *timeoutVenue) CreateMarketBuyOrder(ctx context.Context, pair string, cost decimal.Decimal) (*venue.Fill, error) {
	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()
	return v.next.CreateMarketBuyOrder(ctx, pair, cost)
}

func (v *timeoutVenue) CreateMarketSellOrder(ctx context.Context, pair string, amount decimal.Decimal) (*venue.Fill, error) {
	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()
	return v.next.CreateMarketSellOrder(ctx, pair, amount)
}

var _ venue.Venue = (*timeoutVenue)(nil)
