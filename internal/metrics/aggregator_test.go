package metrics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"btc-dca-agent/internal/domain"
	"btc-dca-agent/internal/storage/memory"
)

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func seedJournal(t *testing.T) *memory.Journal {
	t.Helper()
	ctx := context.Background()
	j := memory.NewJournal()

	trades := []domain.TradeRecord{
		{ID: "b1", Pair: "BTC/IDR", Timestamp: t0.Add(24 * time.Hour), Side: domain.SideBuy, Amount: d("0.007"), Price: d("500000000"), Cost: d("3500000")},
		{ID: "b2", Pair: "BTC/IDR", Timestamp: t0.Add(48 * time.Hour), Side: domain.SideBuy, Amount: d("0.0039"), Price: d("449000000"), Cost: d("1751100")},
		{ID: "s1", Pair: "BTC/IDR", Timestamp: t0.Add(72 * time.Hour), Side: domain.SideSell, Amount: d("0.0109"), Price: d("540000000"), Cost: d("5886000"),
			RealizedProfit: decimal.NewNullDecimal(d("634900"))},
		{ID: "b3", Pair: "BTC/IDR", Timestamp: t0.Add(30 * 24 * time.Hour), Side: domain.SideBuy, Amount: d("0.01"), Price: d("500000000"), Cost: d("5000000")},
		{ID: "x1", Pair: "BTC/USDT", Timestamp: t0.Add(24 * time.Hour), Side: domain.SideBuy, Amount: d("1"), Price: d("40000"), Cost: d("40000")},
	}
	if err := j.InsertTrades(ctx, trades); err != nil {
		t.Fatalf("insert trades: %v", err)
	}

	for i, eq := range []string{"10000000", "10200000", "9800000", "10600000"} {
		snap := &domain.EquitySnapshot{
			TickID:    string(rune('a' + i)),
			Pair:      "BTC/IDR",
			Timestamp: t0.Add(time.Duration(i+1) * 24 * time.Hour),
			Equity:    d(eq),
		}
		if err := j.InsertSnapshot(ctx, snap); err != nil {
			t.Fatalf("insert snapshot: %v", err)
		}
	}
	return j
}

func TestAggregator_ComputeWindow(t *testing.T) {
	j := seedJournal(t)
	agg := NewAggregator(j, j)

	stats, err := agg.ComputeWindow(context.Background(), "BTC/IDR", t0, t0.Add(14*24*time.Hour))
	if err != nil {
		t.Fatalf("ComputeWindow: %v", err)
	}

	if stats.Buys != 2 || stats.Sells != 1 {
		t.Errorf("expected 2 buys / 1 sell, got %d / %d", stats.Buys, stats.Sells)
	}
	if !stats.FiatSpent.Equal(d("5251100")) {
		t.Errorf("expected fiat spent 5251100, got %s", stats.FiatSpent)
	}
	if !stats.RealizedPnl.Equal(d("634900")) {
		t.Errorf("expected realized 634900, got %s", stats.RealizedPnl)
	}
	if stats.ClosedCycles != 1 || stats.WinningCycles != 1 {
		t.Errorf("expected 1 closed winning cycle, got %d/%d", stats.WinningCycles, stats.ClosedCycles)
	}
	if !stats.WinRate.Equal(d("1")) {
		t.Errorf("expected win rate 1, got %s", stats.WinRate)
	}
	if stats.Snapshots != 4 {
		t.Errorf("expected 4 snapshots, got %d", stats.Snapshots)
	}
	if !stats.EquityStart.Equal(d("10000000")) || !stats.EquityEnd.Equal(d("10600000")) {
		t.Errorf("unexpected equity range %s..%s", stats.EquityStart, stats.EquityEnd)
	}
	if !stats.EquityLow.Equal(d("9800000")) || !stats.EquityHigh.Equal(d("10600000")) {
		t.Errorf("unexpected equity low/high %s/%s", stats.EquityLow, stats.EquityHigh)
	}
	want := d("400000").Div(d("10200000"))
	if !stats.MaxDrawdown.Equal(want) {
		t.Errorf("expected max drawdown %s, got %s", want, stats.MaxDrawdown)
	}
}

func TestAggregator_ComputeWindow_TradesOnly(t *testing.T) {
	j := seedJournal(t)
	agg := NewAggregator(j, j)

	stats, err := agg.ComputeWindow(context.Background(), "BTC/IDR", t0.Add(20*24*time.Hour), t0.Add(40*24*time.Hour))
	if err != nil {
		t.Fatalf("ComputeWindow: %v", err)
	}
	if stats.Buys != 1 || stats.Snapshots != 0 {
		t.Errorf("expected 1 buy and no snapshots, got %d / %d", stats.Buys, stats.Snapshots)
	}
	if !stats.WinRate.IsZero() {
		t.Errorf("expected zero win rate with no closed cycles, got %s", stats.WinRate)
	}
}

func TestAggregator_ComputeWindow_NoData(t *testing.T) {
	j := seedJournal(t)
	agg := NewAggregator(j, j)

	_, err := agg.ComputeWindow(context.Background(), "ETH/IDR", t0, t0.Add(time.Hour))
	if !errors.Is(err, ErrNoData) {
		t.Errorf("expected ErrNoData, got %v", err)
	}
}
