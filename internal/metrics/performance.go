package metrics

import (
	"time"

	"github.com/shopspring/decimal"

	"btc-dca-agent/internal/domain"
)

// Performance is one reading of the account and the strategy accumulators.
type Performance struct {
	Price      decimal.Decimal
	FreeFiat   decimal.Decimal
	BtcBalance decimal.Decimal

	Equity      decimal.Decimal
	EquityPeak  decimal.Decimal
	Drawdown    decimal.Decimal // fraction
	MaxDrawdown decimal.Decimal // fraction

	PositionBtc   decimal.Decimal
	PositionCost  decimal.Decimal
	AverageEntry  decimal.Decimal
	UnrealizedPnl decimal.Decimal
	RealizedPnl   decimal.Decimal

	// Percent of the cycle's original budget, zero when no budget is carved out.
	RealizedPct   decimal.Decimal
	UnrealizedPct decimal.Decimal

	TotalTrades   int
	WinningTrades int
	ClosedCycles  int
	WinRate       decimal.Decimal // fraction
}

// Update folds one tick into st: EquityPeak and MaxDrawdown only ever grow.
// fiat and btc are the post-trade working balances.
func Update(st *domain.StrategyState, fiat, btc domain.Balance, price decimal.Decimal) Performance {
	equity := computeEquity(fiat.Free, btc.Total, price)
	if equity.GreaterThan(st.EquityPeak) {
		st.EquityPeak = equity
	}
	dd := computeDrawdown(st.EquityPeak, equity)
	if dd.GreaterThan(st.MaxDrawdown) {
		st.MaxDrawdown = dd
	}

	p := Summarize(st, fiat, btc, price)
	p.Drawdown = dd
	return p
}

// Summarize derives a Performance from st without mutating it.
func Summarize(st *domain.StrategyState, fiat, btc domain.Balance, price decimal.Decimal) Performance {
	equity := computeEquity(fiat.Free, btc.Total, price)
	peak := decimal.Max(st.EquityPeak, equity)
	unrealized := decimal.Zero
	if st.HasPosition() {
		unrealized = computeUnrealizedPnl(st.TotalBtc, st.TotalFiatSpent, price)
	}
	base := decimal.Zero
	if st.OriginalBudget.Valid {
		base = st.OriginalBudget.Decimal
	}

	return Performance{
		Price:         price,
		FreeFiat:      fiat.Free,
		BtcBalance:    btc.Total,
		Equity:        equity,
		EquityPeak:    peak,
		Drawdown:      computeDrawdown(peak, equity),
		MaxDrawdown:   st.MaxDrawdown,
		PositionBtc:   st.TotalBtc,
		PositionCost:  st.TotalFiatSpent,
		AverageEntry:  st.AverageEntryPrice(),
		UnrealizedPnl: unrealized,
		RealizedPnl:   st.RealizedPnl,
		RealizedPct:   computePercentOf(st.RealizedPnl, base),
		UnrealizedPct: computePercentOf(unrealized, base),
		TotalTrades:   st.TotalTrades,
		WinningTrades: st.WinningTrades,
		ClosedCycles:  st.ClosedCycles,
		WinRate:       computeWinRate(st.WinningTrades, st.ClosedCycles),
	}
}

// Snapshot converts the reading into a journal row.
func (p Performance) Snapshot(tickID, pair string, ts time.Time, remaining decimal.Decimal) *domain.EquitySnapshot {
	return &domain.EquitySnapshot{
		TickID:          tickID,
		Pair:            pair,
		Timestamp:       ts.UTC(),
		Price:           p.Price,
		FreeFiat:        p.FreeFiat,
		BtcBalance:      p.BtcBalance,
		Equity:          p.Equity,
		EquityPeak:      p.EquityPeak,
		Drawdown:        p.Drawdown,
		MaxDrawdown:     p.MaxDrawdown,
		PositionBtc:     p.PositionBtc,
		PositionCost:    p.PositionCost,
		RemainingBudget: remaining,
		RealizedPnl:     p.RealizedPnl,
		UnrealizedPnl:   p.UnrealizedPnl,
	}
}
