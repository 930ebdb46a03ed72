package stub

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"btc-dca-agent/internal/domain"
	"btc-dca-agent/internal/venue"
)

// Venue implements venue.Venue for testing.
// Orders fill completely at Price and move the balances unless a fill override is set.
type Venue struct {
	mu sync.Mutex

	Base, Quote string
	Fiat, Btc   domain.Balance
	Price       decimal.Decimal

	BalanceErr error
	TickerErr  error
	BuyErr     error
	SellErr    error

	// LostReplyErr is returned after an order has filled and moved the
	// balances, as when the connection drops before the response arrives.
	LostReplyErr error

	// BuyFill / SellFill replace the default fill when set.
	BuyFill  func(cost decimal.Decimal) *venue.Fill
	SellFill func(amount decimal.Decimal) *venue.Fill

	Buys         []decimal.Decimal // requested costs
	Sells        []decimal.Decimal // requested amounts
	BalanceCalls int

	nextID int
}

// NewVenue creates a stub for BASE/QUOTE holding fiat and quoting price.
func NewVenue(base, quote string, fiat, price decimal.Decimal) *Venue {
	return &Venue{
		Base:  base,
		Quote: quote,
		Fiat:  domain.Balance{Free: fiat, Total: fiat},
		Price: price,
	}
}

// Name returns "stub".
func (v *Venue) Name() string { return "stub" }

// FetchBalance returns the configured balances.
func (v *Venue) FetchBalance(_ context.Context) (venue.Balances, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.BalanceCalls++
	if v.BalanceErr != nil {
		return nil, v.BalanceErr
	}
	return venue.Balances{v.Base: v.Btc, v.Quote: v.Fiat}, nil
}

// FetchTicker returns Price.
func (v *Venue) FetchTicker(_ context.Context, pair string) (venue.Ticker, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.TickerErr != nil {
		return venue.Ticker{}, v.TickerErr
	}
	return venue.Ticker{Pair: pair, Last: v.Price, Timestamp: time.Now()}, nil
}

// CreateMarketBuyOrder records the request and fills it.
func (v *Venue) CreateMarketBuyOrder(_ context.Context, pair string, cost decimal.Decimal) (*venue.Fill, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.Buys = append(v.Buys, cost)
	if v.BuyErr != nil {
		return nil, v.BuyErr
	}

	fill := v.defaultFill(pair, domain.SideBuy, cost.Div(v.Price), cost)
	if v.BuyFill != nil {
		fill = v.BuyFill(cost)
	}
	v.apply(domain.SideBuy, fill)
	if v.LostReplyErr != nil {
		return nil, v.LostReplyErr
	}
	return fill, nil
}

// CreateMarketSellOrder records the request and fills it.
func (v *Venue) CreateMarketSellOrder(_ context.Context, pair string, amount decimal.Decimal) (*venue.Fill, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.Sells = append(v.Sells, amount)
	if v.SellErr != nil {
		return nil, v.SellErr
	}

	fill := v.defaultFill(pair, domain.SideSell, amount, amount.Mul(v.Price))
	if v.SellFill != nil {
		fill = v.SellFill(amount)
	}
	v.apply(domain.SideSell, fill)
	if v.LostReplyErr != nil {
		return nil, v.LostReplyErr
	}
	return fill, nil
}

func (v *Venue) defaultFill(pair string, side domain.Side, amount, cost decimal.Decimal) *venue.Fill {
	v.nextID++
	return &venue.Fill{
		OrderID:      strconv.Itoa(v.nextID),
		Pair:         pair,
		Side:         side,
		Status:       venue.OrderStatusClosed,
		AveragePrice: decimal.NewNullDecimal(v.Price),
		Filled:       decimal.NewNullDecimal(amount),
		Cost:         decimal.NewNullDecimal(cost),
		Timestamp:    time.Now(),
	}
}

func (v *Venue) apply(side domain.Side, fill *venue.Fill) {
	if fill == nil || !fill.Filled.Valid {
		return
	}
	cost := fill.Cost.Decimal
	if !fill.Cost.Valid {
		cost = fill.Filled.Decimal.Mul(v.Price)
	}
	if side == domain.SideBuy {
		v.Fiat = domain.Balance{Free: v.Fiat.Free.Sub(cost), Total: v.Fiat.Total.Sub(cost)}
		v.Btc = domain.Balance{Free: v.Btc.Free.Add(fill.Filled.Decimal), Total: v.Btc.Total.Add(fill.Filled.Decimal)}
		return
	}
	v.Fiat = domain.Balance{Free: v.Fiat.Free.Add(cost), Total: v.Fiat.Total.Add(cost)}
	v.Btc = domain.Balance{Free: v.Btc.Free.Sub(fill.Filled.Decimal), Total: v.Btc.Total.Sub(fill.Filled.Decimal)}
}

var _ venue.Venue = (*Venue)(nil)
