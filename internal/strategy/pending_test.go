package strategy

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"btc-dca-agent/internal/domain"
	"btc-dca-agent/internal/venue"
)

func (h *harness) snapshot() domain.MarketSnapshot {
	return domain.MarketSnapshot{Pair: "BTC/IDR", Price: h.venue.Price, Fiat: h.venue.Fiat, Btc: h.venue.Btc, TakenAt: fixedNow}
}

func TestExecutor_CheckpointsMarkerBeforeOrder(t *testing.T) {
	h := newHarness("10000000", "500000000")
	var saved []*domain.StrategyState
	h.exec.Checkpoint = func(_ context.Context, st *domain.StrategyState) error {
		assert.Empty(t, h.venue.Buys, "checkpoint runs before the order is sent")
		saved = append(saved, st.Clone())
		return nil
	}
	st := domain.NewStrategyState("BTC/IDR")
	h.budget.Initialize(st, d("10000000"))

	_, err := h.entry.Run(context.Background(), st, h.wallet(), d("500000000"))
	require.NoError(t, err)

	require.Len(t, saved, 1)
	p := saved[0].Pending
	require.NotNil(t, p)
	assert.Equal(t, domain.SideBuy, p.Side)
	assert.Equal(t, domain.KindEntry, p.Kind)
	assert.True(t, p.Requested.Equal(d("3500000")))
	assert.True(t, p.FiatBefore.Equal(d("10000000")))
	assert.True(t, p.BtcBefore.IsZero())
	assert.True(t, p.PlacedAt.Equal(fixedNow))
	assert.Nil(t, st.Pending, "cleared once the fill is booked")
}

func TestExecutor_CheckpointFailureSendsNothing(t *testing.T) {
	h := newHarness("10000000", "500000000")
	h.exec.Checkpoint = func(context.Context, *domain.StrategyState) error { return errors.New("disk full") }
	st := domain.NewStrategyState("BTC/IDR")
	h.budget.Initialize(st, d("10000000"))

	_, err := h.entry.Run(context.Background(), st, h.wallet(), d("500000000"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "checkpoint before buy order")
	assert.Empty(t, h.venue.Buys)
	assert.Nil(t, st.Pending)
	assert.False(t, st.HasPosition())
}

func TestExecutor_MarkerOnFailure(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		keepMark bool
	}{
		{"network", &venue.NetworkError{Op: "buy", Err: context.DeadlineExceeded}, true},
		{"deadline", context.DeadlineExceeded, true},
		{"rejected", &venue.InvalidOrder{Message: "below minimum"}, false},
		{"insufficient", &venue.InsufficientFunds{Message: "no fiat"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness("10000000", "500000000")
			h.venue.BuyErr = tt.err
			st := domain.NewStrategyState("BTC/IDR")
			h.budget.Initialize(st, d("10000000"))

			_, err := h.entry.Run(context.Background(), st, h.wallet(), d("500000000"))
			require.Error(t, err)
			assert.Equal(t, tt.keepMark, st.Pending != nil)
			assert.False(t, st.HasPosition())
		})
	}
}

func TestSettle_BuyFilledDespiteLostReply(t *testing.T) {
	h := newHarness("10000000", "500000000")
	h.venue.LostReplyErr = &venue.NetworkError{Op: "buy", Err: context.DeadlineExceeded}
	st := domain.NewStrategyState("BTC/IDR")
	h.budget.Initialize(st, d("10000000"))

	_, err := h.entry.Run(context.Background(), st, h.wallet(), d("500000000"))
	require.Error(t, err)
	require.NotNil(t, st.Pending)
	assert.False(t, st.HasPosition())

	act := h.exec.Settle(st, h.snapshot(), h.params.MinOrderSize)
	require.NotNil(t, act)

	assert.True(t, act.Settled)
	assert.Equal(t, domain.KindEntry, act.Trade.Kind)
	assert.Equal(t, domain.SideBuy, act.Trade.Side)
	assert.True(t, act.Trade.Amount.Equal(d("0.007")))
	assert.True(t, act.Trade.Cost.Equal(d("3500000")))
	assert.True(t, act.Trade.Price.Equal(d("500000000")))
	assert.Nil(t, st.Pending)
	assert.True(t, st.TotalBtc.Equal(d("0.007")))
	assert.True(t, st.Remaining().Equal(d("3500000")), "reserve released as for a confirmed entry")
	assert.True(t, st.ReservedBudget.IsZero())
	assert.NoError(t, st.CheckInvariants())

	// With the position booked the entry engine does not buy again.
	h.venue.LostReplyErr = nil
	act, err = h.entry.Run(context.Background(), st, h.wallet(), d("500000000"))
	require.NoError(t, err)
	assert.Nil(t, act)
	assert.Len(t, h.venue.Buys, 1)
}

func TestSettle_NoBalanceChangeClearsMarker(t *testing.T) {
	h := newHarness("10000000", "500000000")
	h.venue.BuyErr = &venue.NetworkError{Op: "buy", Err: context.DeadlineExceeded}
	st := domain.NewStrategyState("BTC/IDR")
	h.budget.Initialize(st, d("10000000"))

	_, err := h.entry.Run(context.Background(), st, h.wallet(), d("500000000"))
	require.Error(t, err)
	require.NotNil(t, st.Pending)
	before := st.Clone()
	before.Pending = nil

	assert.Nil(t, h.exec.Settle(st, h.snapshot(), h.params.MinOrderSize))
	assert.Equal(t, before, st)
}

func TestSettle_SellFilledDespiteLostReply(t *testing.T) {
	h := newHarness("0", "600000000")
	h.venue.Btc = domain.Balance{Free: d("0.008"), Total: d("0.008")}
	h.venue.LostReplyErr = &venue.NetworkError{Op: "sell", Err: context.DeadlineExceeded}
	st := positionAt(t, "500000000", "0.008", "4000000", "0")

	_, err := exitEngine(h, NewTakeProfitPolicy(d("0.06"))).Run(context.Background(), st, h.wallet(), d("600000000"))
	require.Error(t, err)
	require.NotNil(t, st.Pending)
	assert.Equal(t, domain.SideSell, st.Pending.Side)

	act := h.exec.Settle(st, h.snapshot(), h.params.MinOrderSize)
	require.NotNil(t, act)

	assert.True(t, act.Settled)
	assert.True(t, act.CycleClosed)
	assert.Equal(t, domain.KindTakeProfit, act.Trade.Kind)
	assert.True(t, act.Trade.RealizedProfit.Decimal.Equal(d("800000")))
	assert.False(t, st.HasPosition())
	assert.Equal(t, 1, st.ClosedCycles)
	assert.Nil(t, st.Pending)
	assert.NoError(t, st.CheckInvariants())
}

func TestSettle_WithoutMarker(t *testing.T) {
	h := newHarness("10000000", "500000000")
	st := domain.NewStrategyState("BTC/IDR")
	assert.Nil(t, h.exec.Settle(st, h.snapshot(), decimal.RequireFromString("0.000001")))
}
