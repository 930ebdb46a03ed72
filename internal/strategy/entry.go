package strategy

import (
	"context"

	"github.com/shopspring/decimal"

	"btc-dca-agent/internal/domain"
)

// EntryEngine places the first buy of a cycle.
type EntryEngine struct {
	Exec         *Executor
	MinOrderSize decimal.Decimal
}

// Run buys min(RemainingBudget, free fiat) when no position is open. Returns a nil
// Action when the preconditions fail or the order would fall below the venue minimum.
// On success the reserved averaging budget is released into RemainingBudget.
func (e *EntryEngine) Run(ctx context.Context, st *domain.StrategyState, w *Wallet, price decimal.Decimal) (*Action, error) {
	if st.HasPosition() || !st.Remaining().IsPositive() {
		return nil, nil
	}

	cost := minDecimal(st.Remaining(), w.Fiat.Free)
	if !cost.IsPositive() || cost.Div(price).LessThan(e.MinOrderSize) {
		return nil, nil
	}

	rec, err := e.Exec.Buy(ctx, st, w, domain.KindEntry, cost, price)
	if err != nil {
		return nil, err
	}

	st.ApplyBuy(rec, rec.Cost)
	st.ReleaseReserve()
	w.applyBuy(rec.Amount, rec.Cost)

	return &Action{Trade: rec, Requested: cost}, nil
}
