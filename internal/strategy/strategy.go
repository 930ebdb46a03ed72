// Package strategy implements the budget, entry, averaging and exit engines that
// advance a StrategyState by one tick.
package strategy

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"btc-dca-agent/internal/domain"
	"btc-dca-agent/internal/venue"
)

// ErrUnknownFill is returned when a venue reports success without a fill.
var ErrUnknownFill = errors.New("venue returned no fill")

// Params holds the sizing parameters shared by the engines.
type Params struct {
	ReserveFraction  decimal.Decimal // share of fiat put at risk per cycle
	EntryFraction    decimal.Decimal // share of the cycle budget spent on the entry buy
	DcaDropThreshold decimal.Decimal // fractional drop below the last buy that triggers averaging
	DcaSizeFraction  decimal.Decimal // share of the remaining budget spent per averaging buy
	MinOrderSize     decimal.Decimal // venue floor in base units
}

// DefaultParams returns the production defaults.
func DefaultParams() Params {
	return Params{
		ReserveFraction:  decimal.RequireFromString("0.7"),
		EntryFraction:    decimal.RequireFromString("0.5"),
		DcaDropThreshold: decimal.RequireFromString("0.10"),
		DcaSizeFraction:  decimal.RequireFromString("0.5"),
		MinOrderSize:     decimal.RequireFromString("0.000001"),
	}
}

// Action is one executed order and its effect on the cycle.
type Action struct {
	Trade       domain.TradeRecord
	Requested   decimal.Decimal // quote cost for buys, base amount for sells
	CycleClosed bool
	Settled     bool // booked from a pending order found at tick start
}

// Wallet is the tick-local view of the account, updated after every fill so later
// engines and the performance tracker see post-trade balances.
type Wallet struct {
	Fiat domain.Balance
	Btc  domain.Balance
}

// NewWallet seeds a wallet from the tick snapshot.
func NewWallet(snap domain.MarketSnapshot) *Wallet {
	return &Wallet{Fiat: snap.Fiat, Btc: snap.Btc}
}

func (w *Wallet) applyBuy(amount, cost decimal.Decimal) {
	w.Fiat = domain.Balance{Free: w.Fiat.Free.Sub(cost), Total: w.Fiat.Total.Sub(cost)}
	w.Btc = domain.Balance{Free: w.Btc.Free.Add(amount), Total: w.Btc.Total.Add(amount)}
}

func (w *Wallet) applySell(amount, proceeds decimal.Decimal) {
	w.Fiat = domain.Balance{Free: w.Fiat.Free.Add(proceeds), Total: w.Fiat.Total.Add(proceeds)}
	w.Btc = domain.Balance{Free: w.Btc.Free.Sub(amount), Total: w.Btc.Total.Sub(amount)}
}

// Executor places orders for one pair and turns fills into trade records.
// Every order is bracketed by a pending marker on the state: set (and
// checkpointed) before the order goes out, cleared when the fill is booked or
// the venue rejects it. Any other failure leaves the marker for Settle.
type Executor struct {
	Trader venue.Trader
	Pair   string
	DryRun bool
	Now    func() time.Time

	// Checkpoint durably saves st. Called with the marker set, before the order
	// is sent; the order is not placed when it fails. Nil skips persistence.
	Checkpoint func(ctx context.Context, st *domain.StrategyState) error
}

func (e *Executor) now() time.Time {
	if e.Now == nil {
		return time.Now().UTC()
	}
	return e.Now().UTC()
}

// Buy spends cost at market. quote is the tick price used when the fill omits one.
func (e *Executor) Buy(ctx context.Context, st *domain.StrategyState, w *Wallet, kind string, cost, quote decimal.Decimal) (domain.TradeRecord, error) {
	if err := e.mark(ctx, st, w, domain.SideBuy, kind, cost, quote); err != nil {
		return domain.TradeRecord{}, err
	}
	fill, err := e.Trader.CreateMarketBuyOrder(ctx, e.Pair, cost)
	if err != nil {
		return domain.TradeRecord{}, e.unmark(st, err)
	}
	if fill == nil {
		return domain.TradeRecord{}, ErrUnknownFill
	}

	price, amount, spent, err := reconcileBuy(fill, cost, quote)
	if err != nil {
		return domain.TradeRecord{}, e.unmark(st, err)
	}
	st.Pending = nil
	return e.record(fill, domain.SideBuy, kind, amount, price, spent), nil
}

// Sell sells amount at market. The returned record's Partial flag is set when the
// venue filled less than requested.
func (e *Executor) Sell(ctx context.Context, st *domain.StrategyState, w *Wallet, kind string, amount, quote decimal.Decimal) (domain.TradeRecord, error) {
	if err := e.mark(ctx, st, w, domain.SideSell, kind, amount, quote); err != nil {
		return domain.TradeRecord{}, err
	}
	fill, err := e.Trader.CreateMarketSellOrder(ctx, e.Pair, amount)
	if err != nil {
		return domain.TradeRecord{}, e.unmark(st, err)
	}
	if fill == nil {
		return domain.TradeRecord{}, ErrUnknownFill
	}

	price, sold, proceeds, err := reconcileSell(fill, amount, quote)
	if err != nil {
		return domain.TradeRecord{}, e.unmark(st, err)
	}
	st.Pending = nil
	rec := e.record(fill, domain.SideSell, kind, sold, price, proceeds)
	rec.Partial = sold.LessThan(amount)
	return rec, nil
}

func (e *Executor) mark(ctx context.Context, st *domain.StrategyState, w *Wallet, side domain.Side, kind string, requested, quote decimal.Decimal) error {
	st.Pending = &domain.PendingOrder{
		Side:       side,
		Kind:       kind,
		Requested:  requested,
		Quote:      quote,
		FiatBefore: w.Fiat.Total,
		BtcBefore:  w.Btc.Total,
		PlacedAt:   e.now(),
	}
	if e.Checkpoint == nil {
		return nil
	}
	if err := e.Checkpoint(ctx, st); err != nil {
		st.Pending = nil
		return fmt.Errorf("checkpoint before %s order: %w", side, err)
	}
	return nil
}

// unmark clears the marker when the venue definitively executed nothing.
func (e *Executor) unmark(st *domain.StrategyState, err error) error {
	if venue.IsRejected(err) {
		st.Pending = nil
	}
	return err
}
