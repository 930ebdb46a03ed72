package strategy

import (
	"context"

	"github.com/shopspring/decimal"

	"btc-dca-agent/internal/domain"
)

// ExitSignal is a policy's verdict for one tick.
type ExitSignal struct {
	Sell   bool
	Kind   string          // trade kind recorded on the sell
	Level  decimal.Decimal // price that triggered (or would trigger) the exit
	Reason string
}

// ExitStatus describes the policy's current target for reports. Never mutates state.
type ExitStatus struct {
	Policy string
	Active bool                // trailing stop armed; always true for take-profit with a position
	Level  decimal.NullDecimal // take-profit target, trailing stop level, or arm price
	Label  string
}

// ExitPolicy decides when to liquidate the open position.
// Exactly one policy runs per deployment.
type ExitPolicy interface {
	// Name identifies the policy ("take_profit", "trailing_stop").
	Name() string

	// Evaluate checks the position against price. It may update the policy's
	// sub-state on st (trailing-stop arming and high-water mark).
	Evaluate(st *domain.StrategyState, price decimal.Decimal) ExitSignal

	// Status reports the current exit level without mutating st.
	Status(st *domain.StrategyState) ExitStatus
}

// ExitEngine runs the configured ExitPolicy and executes its sells.
type ExitEngine struct {
	Policy       ExitPolicy
	Exec         *Executor
	MinOrderSize decimal.Decimal
}

// ExitResult reports what the exit engine saw and did.
type ExitResult struct {
	Signal ExitSignal
	Action *Action // nil when no order was placed and nothing was written off

	// Shortfall is TotalBtc minus the free BTC that could be sold, when positive.
	Shortfall decimal.Decimal
}

// Run evaluates the policy and, on a sell signal, sells min(TotalBtc, free BTC).
// The cycle closes when what is left of that amount after the fill is below
// MinOrderSize, which covers lot-step truncation and a sell capped by free BTC;
// a larger remainder reduces the position pro rata and leaves it open.
// A position already below MinOrderSize cannot be sold and is written off.
func (e *ExitEngine) Run(ctx context.Context, st *domain.StrategyState, w *Wallet, price decimal.Decimal) (*ExitResult, error) {
	if !st.HasPosition() {
		return &ExitResult{}, nil
	}

	sig := e.Policy.Evaluate(st, price)
	res := &ExitResult{Signal: sig}
	if !sig.Sell {
		return res, nil
	}

	if st.TotalBtc.LessThan(e.MinOrderSize) {
		rec := e.Exec.writeOff(st.TotalBtc, price)
		st.ApplySell(rec, true)
		res.Action = &Action{Trade: st.TradeHistory[len(st.TradeHistory)-1], Requested: rec.Amount, CycleClosed: true}
		return res, nil
	}

	amount := minDecimal(st.TotalBtc, w.Btc.Free)
	if short := st.TotalBtc.Sub(amount); short.IsPositive() {
		res.Shortfall = short
	}
	if !amount.IsPositive() || amount.LessThan(e.MinOrderSize) {
		return res, nil
	}

	rec, err := e.Exec.Sell(ctx, st, w, sig.Kind, amount, price)
	if err != nil {
		return res, err
	}

	closeCycle := amount.Sub(rec.Amount).LessThan(e.MinOrderSize)
	st.ApplySell(rec, closeCycle)
	w.applySell(rec.Amount, rec.Cost)

	res.Action = &Action{Trade: st.TradeHistory[len(st.TradeHistory)-1], Requested: amount, CycleClosed: closeCycle}
	return res, nil
}
