// Package paper simulates order execution for dry runs.
// Prices come from a real market-data source (or a fixed price); fills never reach the exchange.
package paper

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"btc-dca-agent/internal/domain"
	"btc-dca-agent/internal/venue"
)

// Ledger holds simulated balances. It is persisted between ticks when a ledger path is set.
type Ledger struct {
	Fiat decimal.Decimal `json:"fiat"`
	Btc  decimal.Decimal `json:"btc"`
}

// Options configures a paper venue.
type Options struct {
	Pair       string
	Market     venue.MarketData // price source; nil uses FixedPrice
	FixedPrice decimal.Decimal
	Initial    Ledger // used when no ledger file exists yet
	LedgerPath string // empty keeps the ledger in memory only
	Now        func() time.Time
}

// Venue fills market orders at the current quote against a simulated ledger.
type Venue struct {
	mu sync.Mutex

	base, quote string
	market      venue.MarketData
	fixedPrice  decimal.Decimal
	ledger      Ledger
	ledgerPath  string
	now         func() time.Time
}

// New creates a paper venue, loading the ledger file when present.
func New(opts Options) (*Venue, error) {
	base, quote, err := domain.SplitPair(opts.Pair)
	if err != nil {
		return nil, err
	}
	if opts.Market == nil && !opts.FixedPrice.IsPositive() {
		return nil, errors.New("paper venue needs a market data source or a positive fixed price")
	}

	v := &Venue{
		base:       base,
		quote:      quote,
		market:     opts.Market,
		fixedPrice: opts.FixedPrice,
		ledger:     opts.Initial,
		ledgerPath: opts.LedgerPath,
		now:        opts.Now,
	}
	if v.now == nil {
		v.now = time.Now
	}

	if v.ledgerPath != "" {
		data, err := os.ReadFile(v.ledgerPath)
		switch {
		case err == nil:
			if err := json.Unmarshal(data, &v.ledger); err != nil {
				return nil, fmt.Errorf("decode paper ledger %s: %w", v.ledgerPath, err)
			}
		case errors.Is(err, os.ErrNotExist):
		default:
			return nil, fmt.Errorf("read paper ledger: %w", err)
		}
	}

	return v, nil
}

// Name returns "paper".
func (v *Venue) Name() string { return "paper" }

// Ledger returns a copy of the simulated balances.
func (v *Venue) Ledger() Ledger {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.ledger
}

// FetchBalance returns the simulated balances. Nothing is ever on hold.
func (v *Venue) FetchBalance(_ context.Context) (venue.Balances, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	return venue.Balances{
		v.quote: {Free: v.ledger.Fiat, Total: v.ledger.Fiat},
		v.base:  {Free: v.ledger.Btc, Total: v.ledger.Btc},
	}, nil
}

// FetchTicker delegates to the market data source, or returns the fixed price.
func (v *Venue) FetchTicker(ctx context.Context, pair string) (venue.Ticker, error) {
	if v.market != nil {
		return v.market.FetchTicker(ctx, pair)
	}
	return venue.Ticker{Pair: pair, Last: v.fixedPrice, Timestamp: v.now()}, nil
}

// CreateMarketBuyOrder spends cost at the current quote.
func (v *Venue) CreateMarketBuyOrder(ctx context.Context, pair string, cost decimal.Decimal) (*venue.Fill, error) {
	if !cost.IsPositive() {
		return nil, &venue.InvalidOrder{Message: "cost must be > 0"}
	}
	ticker, err := v.FetchTicker(ctx, pair)
	if err != nil {
		return nil, err
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	if cost.GreaterThan(v.ledger.Fiat) {
		return nil, &venue.InsufficientFunds{Message: fmt.Sprintf("paper %s balance %s < %s", v.quote, v.ledger.Fiat, cost)}
	}
	amount := cost.Div(ticker.Last)
	next := Ledger{Fiat: v.ledger.Fiat.Sub(cost), Btc: v.ledger.Btc.Add(amount)}
	if err := v.commit(next); err != nil {
		return nil, err
	}

	return v.fill(pair, domain.SideBuy, ticker.Last, amount, cost), nil
}

// CreateMarketSellOrder sells amount at the current quote.
func (v *Venue) CreateMarketSellOrder(ctx context.Context, pair string, amount decimal.Decimal) (*venue.Fill, error) {
	if !amount.IsPositive() {
		return nil, &venue.InvalidOrder{Message: "amount must be > 0"}
	}
	ticker, err := v.FetchTicker(ctx, pair)
	if err != nil {
		return nil, err
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	if amount.GreaterThan(v.ledger.Btc) {
		return nil, &venue.InsufficientFunds{Message: fmt.Sprintf("paper %s balance %s < %s", v.base, v.ledger.Btc, amount)}
	}
	proceeds := amount.Mul(ticker.Last)
	next := Ledger{Fiat: v.ledger.Fiat.Add(proceeds), Btc: v.ledger.Btc.Sub(amount)}
	if err := v.commit(next); err != nil {
		return nil, err
	}

	return v.fill(pair, domain.SideSell, ticker.Last, amount, proceeds), nil
}

func (v *Venue) fill(pair string, side domain.Side, price, amount, cost decimal.Decimal) *venue.Fill {
	return &venue.Fill{
		OrderID:      uuid.New().String(),
		Pair:         pair,
		Side:         side,
		Status:       venue.OrderStatusClosed,
		AveragePrice: decimal.NewNullDecimal(price),
		Filled:       decimal.NewNullDecimal(amount),
		Cost:         decimal.NewNullDecimal(cost),
		Timestamp:    v.now().UTC(),
	}
}

// commit writes the ledger file (when configured) before updating memory.
func (v *Venue) commit(next Ledger) error {
	if v.ledgerPath != "" {
		data, err := json.MarshalIndent(next, "", "  ")
		if err != nil {
			return fmt.Errorf("encode paper ledger: %w", err)
		}
		tmp := v.ledgerPath + ".tmp"
		if err := os.MkdirAll(filepath.Dir(v.ledgerPath), 0o755); err != nil {
			return fmt.Errorf("create ledger dir: %w", err)
		}
		if err := os.WriteFile(tmp, data, 0o644); err != nil {
			return fmt.Errorf("write paper ledger: %w", err)
		}
		if err := os.Rename(tmp, v.ledgerPath); err != nil {
			return fmt.Errorf("replace paper ledger: %w", err)
		}
	}
	v.ledger = next
	return nil
}

var _ venue.Venue = (*Venue)(nil)
