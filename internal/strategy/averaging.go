package strategy

import (
	"context"

	"github.com/shopspring/decimal"

	"btc-dca-agent/internal/domain"
)

// AveragingEngine places drop-triggered buys into an open position.
type AveragingEngine struct {
	Exec          *Executor
	DropThreshold decimal.Decimal
	SizeFraction  decimal.Decimal
	MinOrderSize  decimal.Decimal
}

// Triggered reports whether price has fallen at least DropThreshold below the last buy.
func (a *AveragingEngine) Triggered(st *domain.StrategyState, price decimal.Decimal) bool {
	last, ok := st.LastEntryPrice()
	if !ok || !last.IsPositive() {
		return false
	}
	drop := last.Sub(price).Div(last)
	return drop.GreaterThanOrEqual(a.DropThreshold)
}

// NextTrigger returns the price at which the next averaging buy fires.
func (a *AveragingEngine) NextTrigger(st *domain.StrategyState) (decimal.Decimal, bool) {
	last, ok := st.LastEntryPrice()
	if !ok {
		return decimal.Zero, false
	}
	return last.Mul(decimal.NewFromInt(1).Sub(a.DropThreshold)), true
}

// Run buys min(RemainingBudget * SizeFraction, free fiat) when triggered.
// The caller skips Run on ticks where the exit policy fired or an entry executed.
func (a *AveragingEngine) Run(ctx context.Context, st *domain.StrategyState, w *Wallet, price decimal.Decimal) (*Action, error) {
	if !st.HasPosition() || !a.Triggered(st, price) {
		return nil, nil
	}

	cost := minDecimal(st.Remaining().Mul(a.SizeFraction), w.Fiat.Free)
	if !cost.IsPositive() || cost.Div(price).LessThan(a.MinOrderSize) {
		return nil, nil
	}

	rec, err := a.Exec.Buy(ctx, st, w, domain.KindAveraging, cost, price)
	if err != nil {
		return nil, err
	}

	st.ApplyBuy(rec, rec.Cost)
	w.applyBuy(rec.Amount, rec.Cost)

	return &Action{Trade: rec, Requested: cost}, nil
}
