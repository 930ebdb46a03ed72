package strategy

import (
	"github.com/shopspring/decimal"

	"btc-dca-agent/internal/domain"
	"btc-dca-agent/internal/venue"
)

// Settle resolves the pending order an earlier tick left on st, judging the
// outcome from the account totals in snap against the totals recorded when the
// order went out. A fill is booked like a confirmed one; no movement means the
// order never executed. The marker is cleared either way. Returns nil when
// nothing was booked.
func (e *Executor) Settle(st *domain.StrategyState, snap domain.MarketSnapshot, minOrderSize decimal.Decimal) *Action {
	p := st.Pending
	if p == nil {
		return nil
	}
	st.Pending = nil

	switch p.Side {
	case domain.SideBuy:
		got := snap.Btc.Total.Sub(p.BtcBefore)
		spent := p.FiatBefore.Sub(snap.Fiat.Total)
		if !got.IsPositive() || !spent.IsPositive() {
			return nil
		}
		rec := e.settled(p, domain.SideBuy, got, spent)
		st.ApplyBuy(rec, rec.Cost)
		if p.Kind == domain.KindEntry {
			st.ReleaseReserve()
		}
		return &Action{Trade: rec, Requested: p.Requested, Settled: true}

	case domain.SideSell:
		sold := minDecimal(p.BtcBefore.Sub(snap.Btc.Total), st.TotalBtc)
		proceeds := snap.Fiat.Total.Sub(p.FiatBefore)
		if !sold.IsPositive() || !proceeds.IsPositive() {
			return nil
		}
		rec := e.settled(p, domain.SideSell, sold, proceeds)
		closeCycle := p.Requested.Sub(sold).LessThan(minOrderSize)
		st.ApplySell(rec, closeCycle)
		return &Action{
			Trade:       st.TradeHistory[len(st.TradeHistory)-1],
			Requested:   p.Requested,
			CycleClosed: closeCycle,
			Settled:     true,
		}
	}
	return nil
}

// settled builds the record for a pending order whose fill was inferred from
// balances. The venue order id is unknown.
func (e *Executor) settled(p *domain.PendingOrder, side domain.Side, amount, cost decimal.Decimal) domain.TradeRecord {
	fill := &venue.Fill{Timestamp: p.PlacedAt}
	return e.record(fill, side, p.Kind, amount, cost.Div(amount), cost)
}

// writeOff records closing a position too small to sell. No order is placed
// and nothing is received, so the whole cost basis becomes a realized loss.
func (e *Executor) writeOff(amount, quote decimal.Decimal) domain.TradeRecord {
	fill := &venue.Fill{Timestamp: e.now()}
	return e.record(fill, domain.SideSell, domain.KindWriteOff, amount, quote, decimal.Zero)
}
