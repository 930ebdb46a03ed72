package strategy

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"btc-dca-agent/internal/domain"
	"btc-dca-agent/internal/venue"
)

func exitEngine(h *harness, policy ExitPolicy) *ExitEngine {
	return &ExitEngine{Policy: policy, Exec: h.exec, MinOrderSize: h.params.MinOrderSize}
}

func TestTakeProfit_ClosesCycleAtTarget(t *testing.T) {
	h := newHarness("3000000", "530000000")
	h.venue.Btc = domain.Balance{Free: d("0.008"), Total: d("0.008")}
	st := positionAt(t, "500000000", "0.008", "4000000", "3000000")
	w := h.wallet()
	engine := exitEngine(h, NewTakeProfitPolicy(d("0.06")))

	res, err := engine.Run(context.Background(), st, w, d("530000000"))
	require.NoError(t, err)
	require.NotNil(t, res.Action)

	assert.True(t, res.Signal.Sell)
	assert.True(t, res.Signal.Level.Equal(d("530000000")))
	assert.True(t, res.Action.CycleClosed)
	assert.Equal(t, []decimal.Decimal{d("0.008")}, h.venue.Sells)

	trade := res.Action.Trade
	assert.Equal(t, domain.SideSell, trade.Side)
	assert.Equal(t, domain.KindTakeProfit, trade.Kind)
	require.True(t, trade.RealizedProfit.Valid)
	assert.True(t, trade.RealizedProfit.Decimal.Equal(d("240000")))

	assert.True(t, st.RealizedPnl.Equal(d("240000")))
	assert.Equal(t, 1, st.WinningTrades)
	assert.Equal(t, 1, st.ClosedCycles)
	assert.False(t, st.HasPosition())
	assert.False(t, st.BudgetInitialized(), "caller re-seeds from post-sell balance")
	assert.True(t, w.Fiat.Free.Equal(d("7240000")))
	assert.True(t, w.Btc.Free.IsZero())
	assert.NoError(t, st.CheckInvariants())
}

func TestTakeProfit_BelowTarget(t *testing.T) {
	h := newHarness("3000000", "529999999")
	h.venue.Btc = domain.Balance{Free: d("0.008"), Total: d("0.008")}
	st := positionAt(t, "500000000", "0.008", "4000000", "3000000")

	res, err := exitEngine(h, NewTakeProfitPolicy(d("0.06"))).Run(context.Background(), st, h.wallet(), d("529999999"))
	require.NoError(t, err)
	assert.False(t, res.Signal.Sell)
	assert.Nil(t, res.Action)
	assert.Empty(t, h.venue.Sells)
	assert.True(t, st.HasPosition())
}

func TestTakeProfit_UsesAverageEntry(t *testing.T) {
	st := positionAt(t, "500000000", "0.007", "3500000", "3500000")
	st.ApplyBuy(domain.TradeRecord{Side: domain.SideBuy, Amount: d("0.0035"), Price: d("450000000"), Cost: d("1575000")}, d("1575000"))

	p := NewTakeProfitPolicy(d("0.06"))
	avg := st.AverageEntryPrice()
	target := avg.Mul(d("1.06"))

	assert.True(t, p.Target(st).Equal(target))
	assert.False(t, p.Evaluate(st, target.Sub(d("1"))).Sell)
	assert.True(t, p.Evaluate(st, target).Sell)

	status := p.Status(st)
	assert.True(t, status.Active)
	assert.True(t, status.Level.Decimal.Equal(target))
}

func TestExitEngine_CappedByFreeBtcStillCloses(t *testing.T) {
	h := newHarness("0", "600000000")
	h.venue.Btc = domain.Balance{Free: d("0.006"), Total: d("0.006")}
	st := positionAt(t, "500000000", "0.008", "4000000", "0")

	res, err := exitEngine(h, NewTakeProfitPolicy(d("0.06"))).Run(context.Background(), st, h.wallet(), d("600000000"))
	require.NoError(t, err)
	require.NotNil(t, res.Action)

	assert.True(t, res.Shortfall.Equal(d("0.002")))
	assert.Equal(t, []decimal.Decimal{d("0.006")}, h.venue.Sells)
	assert.True(t, res.Action.CycleClosed)
	assert.False(t, st.HasPosition())
	// proceeds 3,600,000 against full basis 4,000,000
	assert.True(t, st.RealizedPnl.Equal(d("-400000")))
	assert.Equal(t, 0, st.WinningTrades)
}

func TestExitEngine_PartialFillKeepsPositionOpen(t *testing.T) {
	h := newHarness("0", "600000000")
	h.venue.Btc = domain.Balance{Free: d("0.008"), Total: d("0.008")}
	h.venue.SellFill = func(amount decimal.Decimal) *venue.Fill {
		return &venue.Fill{
			OrderID: "p1",
			Status:  venue.OrderStatusOpen,
			Filled:  decimal.NewNullDecimal(d("0.002")),
			Cost:    decimal.NewNullDecimal(d("1200000")),
		}
	}
	st := positionAt(t, "500000000", "0.008", "4000000", "0")

	res, err := exitEngine(h, NewTakeProfitPolicy(d("0.06"))).Run(context.Background(), st, h.wallet(), d("600000000"))
	require.NoError(t, err)
	require.NotNil(t, res.Action)

	assert.False(t, res.Action.CycleClosed)
	assert.True(t, res.Action.Trade.Partial)
	assert.True(t, res.Action.Trade.RealizedProfit.Decimal.Equal(d("200000")))
	assert.True(t, st.TotalBtc.Equal(d("0.006")))
	assert.True(t, st.TotalFiatSpent.Equal(d("3000000")))
	assert.Equal(t, 0, st.ClosedCycles)
	assert.NoError(t, st.CheckInvariants())
}

func TestExitEngine_NothingToSell(t *testing.T) {
	h := newHarness("0", "600000000")
	st := positionAt(t, "500000000", "0.008", "4000000", "0")

	res, err := exitEngine(h, NewTakeProfitPolicy(d("0.06"))).Run(context.Background(), st, h.wallet(), d("600000000"))
	require.NoError(t, err)
	assert.True(t, res.Signal.Sell)
	assert.Nil(t, res.Action)
	assert.True(t, res.Shortfall.Equal(d("0.008")))
	assert.Empty(t, h.venue.Sells)
	assert.True(t, st.HasPosition())
}

func TestExitEngine_TransientErrorLeavesPosition(t *testing.T) {
	h := newHarness("0", "600000000")
	h.venue.Btc = domain.Balance{Free: d("0.008"), Total: d("0.008")}
	h.venue.SellErr = &venue.NetworkError{Op: "sell", Err: context.DeadlineExceeded}
	st := positionAt(t, "500000000", "0.008", "4000000", "0")

	_, err := exitEngine(h, NewTakeProfitPolicy(d("0.06"))).Run(context.Background(), st, h.wallet(), d("600000000"))
	require.Error(t, err)
	assert.True(t, venue.IsTransient(err))
	assert.True(t, st.TotalBtc.Equal(d("0.008")))
	assert.Equal(t, 0, st.ClosedCycles)
}

func TestTrailingStop_StateMachine(t *testing.T) {
	p := NewTrailingStopPolicy(d("0.08"), d("0.03"))
	st := positionAt(t, "500000000", "0.008", "4000000", "0")

	// Below arm price: inactive
	sig := p.Evaluate(st, d("530000000"))
	assert.False(t, sig.Sell)
	assert.False(t, st.TrailingActive)
	assert.True(t, sig.Level.Equal(d("540000000")))

	// Arming tick never sells
	sig = p.Evaluate(st, d("540000000"))
	assert.False(t, sig.Sell)
	assert.True(t, st.TrailingActive)
	assert.True(t, st.HighestPriceSinceTrigger.Decimal.Equal(d("540000000")))

	// New high raises the stop
	sig = p.Evaluate(st, d("560000000"))
	assert.False(t, sig.Sell)
	assert.True(t, st.HighestPriceSinceTrigger.Decimal.Equal(d("560000000")))
	assert.True(t, sig.Level.Equal(d("543200000")))

	// Dip above the stop holds; high is unchanged
	sig = p.Evaluate(st, d("550000000"))
	assert.False(t, sig.Sell)
	assert.True(t, st.HighestPriceSinceTrigger.Decimal.Equal(d("560000000")))

	status := p.Status(st)
	assert.True(t, status.Active)
	assert.True(t, status.Level.Decimal.Equal(d("543200000")))

	// At the stop: sell
	sig = p.Evaluate(st, d("543200000"))
	assert.True(t, sig.Sell)
	assert.Equal(t, domain.KindTrailingStop, sig.Kind)
}

func TestTrailingStop_SellResetsToInactive(t *testing.T) {
	h := newHarness("0", "540000000")
	h.venue.Btc = domain.Balance{Free: d("0.008"), Total: d("0.008")}
	st := positionAt(t, "500000000", "0.008", "4000000", "0")
	st.TrailingActive = true
	st.HighestPriceSinceTrigger = decimal.NewNullDecimal(d("560000000"))
	engine := exitEngine(h, NewTrailingStopPolicy(d("0.08"), d("0.03")))

	res, err := engine.Run(context.Background(), st, h.wallet(), d("540000000"))
	require.NoError(t, err)
	require.NotNil(t, res.Action)

	assert.Equal(t, domain.KindTrailingStop, res.Action.Trade.Kind)
	assert.True(t, st.RealizedPnl.Equal(d("320000")))
	assert.False(t, st.TrailingActive)
	assert.False(t, st.HighestPriceSinceTrigger.Valid)
	assert.False(t, st.HasPosition())
}

func TestTrailingStop_StatusInactive(t *testing.T) {
	p := NewTrailingStopPolicy(d("0.08"), d("0.03"))
	st := positionAt(t, "500000000", "0.008", "4000000", "0")

	status := p.Status(st)
	assert.False(t, status.Active)
	assert.True(t, status.Level.Decimal.Equal(d("540000000")))

	assert.False(t, p.Status(domain.NewStrategyState("BTC/IDR")).Level.Valid)
}

func TestExitEngine_LotStepTruncationClosesCycle(t *testing.T) {
	h := newHarness("0", "600000000")
	h.venue.Btc = domain.Balance{Free: d("0.00800000123"), Total: d("0.00800000123")}
	h.venue.SellFill = func(amount decimal.Decimal) *venue.Fill {
		filled := amount.Truncate(8)
		return &venue.Fill{
			OrderID: "t1",
			Status:  venue.OrderStatusClosed,
			Filled:  decimal.NewNullDecimal(filled),
			Cost:    decimal.NewNullDecimal(filled.Mul(d("600000000"))),
		}
	}
	st := positionAt(t, "500000000", "0.00800000123", "4000000", "0")

	res, err := exitEngine(h, NewTakeProfitPolicy(d("0.06"))).Run(context.Background(), st, h.wallet(), d("600000000"))
	require.NoError(t, err)
	require.NotNil(t, res.Action)

	assert.True(t, res.Action.CycleClosed)
	assert.False(t, res.Action.Trade.Partial)
	assert.True(t, res.Action.Trade.Amount.Equal(d("0.008")))
	assert.False(t, st.HasPosition())
	assert.True(t, st.TotalBtc.IsZero())
	assert.Equal(t, 1, st.ClosedCycles)
	assert.True(t, st.RealizedPnl.Equal(d("800000")))
	assert.NoError(t, st.CheckInvariants())

	// The next signal has nothing left to act on.
	again, err := exitEngine(h, NewTakeProfitPolicy(d("0.06"))).Run(context.Background(), st, h.wallet(), d("600000000"))
	require.NoError(t, err)
	assert.False(t, again.Signal.Sell)
	assert.Len(t, h.venue.Sells, 1)
}

func TestExitEngine_DustPositionWrittenOff(t *testing.T) {
	h := newHarness("0", "600000000")
	h.venue.Btc = domain.Balance{Free: d("0.00000000123"), Total: d("0.00000000123")}
	st := positionAt(t, "500000000", "0.00000000123", "0.615", "0")

	res, err := exitEngine(h, NewTakeProfitPolicy(d("0.06"))).Run(context.Background(), st, h.wallet(), d("600000000"))
	require.NoError(t, err)
	require.NotNil(t, res.Action)

	assert.Empty(t, h.venue.Sells, "no order below the venue minimum")
	assert.True(t, res.Action.CycleClosed)
	assert.Equal(t, domain.KindWriteOff, res.Action.Trade.Kind)
	assert.Equal(t, domain.SideSell, res.Action.Trade.Side)
	assert.True(t, res.Action.Trade.Cost.IsZero())
	assert.True(t, res.Action.Trade.RealizedProfit.Decimal.Equal(d("-0.615")))
	assert.False(t, st.HasPosition())
	assert.Equal(t, 1, st.ClosedCycles)
	assert.False(t, st.BudgetInitialized())
	assert.NoError(t, st.CheckInvariants())
}

func TestExitEngine_LargeRemainderStaysOpen(t *testing.T) {
	h := newHarness("0", "600000000")
	h.venue.Btc = domain.Balance{Free: d("0.008"), Total: d("0.008")}
	h.venue.SellFill = func(amount decimal.Decimal) *venue.Fill {
		return &venue.Fill{
			OrderID: "p2",
			Status:  venue.OrderStatusClosed,
			Filled:  decimal.NewNullDecimal(d("0.007999")),
			Cost:    decimal.NewNullDecimal(d("4799400")),
		}
	}
	st := positionAt(t, "500000000", "0.008", "4000000", "0")

	res, err := exitEngine(h, NewTakeProfitPolicy(d("0.06"))).Run(context.Background(), st, h.wallet(), d("600000000"))
	require.NoError(t, err)
	require.NotNil(t, res.Action)

	// 0.000001 left is exactly the minimum, so it is still sellable.
	assert.False(t, res.Action.CycleClosed)
	assert.True(t, st.TotalBtc.Equal(d("0.000001")))
	assert.NoError(t, st.CheckInvariants())
}
