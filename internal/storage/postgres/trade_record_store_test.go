package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"btc-dca-agent/internal/domain"
	"btc-dca-agent/internal/storage"
)

func TestTradeJournal_InsertAndGet(t *testing.T) {
	pool := newTestPool(t)

	journal := NewJournal(pool)
	ctx := context.Background()
	ts := time.Date(2024, 1, 5, 10, 0, 0, 0, time.UTC)

	trades := []domain.TradeRecord{
		{
			ID: "sell", Pair: "BTC/IDR", Timestamp: ts.Add(time.Hour),
			Side: domain.SideSell, Kind: domain.KindTakeProfit,
			Amount: decimal.RequireFromString("0.007"), Price: decimal.NewFromInt(534285714),
			Cost: decimal.NewFromInt(3740000), RealizedProfit: decimal.NewNullDecimal(decimal.NewFromInt(240000)),
			OrderID: "2",
		},
		{
			ID: "buy", Pair: "BTC/IDR", Timestamp: ts,
			Side: domain.SideBuy, Kind: domain.KindEntry,
			Amount: decimal.RequireFromString("0.007"), Price: decimal.NewFromInt(500000000),
			Cost: decimal.NewFromInt(3500000), OrderID: "1", DryRun: true,
		},
	}
	if err := journal.InsertTrades(ctx, trades); err != nil {
		t.Fatalf("InsertTrades failed: %v", err)
	}

	err := journal.InsertTrades(ctx, trades[:1])
	if !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("Expected ErrDuplicateKey, got %v", err)
	}

	got, err := journal.GetTradesByPair(ctx, "BTC/IDR")
	if err != nil {
		t.Fatalf("GetTradesByPair failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Expected 2 trades, got %d", len(got))
	}
	if got[0].ID != "buy" || !got[0].DryRun || got[0].RealizedProfit.Valid {
		t.Errorf("Unexpected first trade: %+v", got[0])
	}
	if !got[1].RealizedProfit.Decimal.Equal(decimal.NewFromInt(240000)) {
		t.Errorf("RealizedProfit = %s, want 240000", got[1].RealizedProfit.Decimal)
	}
	if !got[0].Amount.Equal(decimal.RequireFromString("0.007")) {
		t.Errorf("Amount = %s, want 0.007", got[0].Amount)
	}
}

func TestEquityJournal_TimeRange(t *testing.T) {
	pool := newTestPool(t)

	journal := NewJournal(pool)
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	for i, id := range []string{"a", "b", "c"} {
		err := journal.InsertSnapshot(ctx, &domain.EquitySnapshot{
			TickID:      id,
			Pair:        "BTC/IDR",
			Timestamp:   base.Add(time.Duration(i) * time.Hour),
			Equity:      decimal.NewFromInt(int64(10000000 - i*1000)),
			MaxDrawdown: decimal.RequireFromString("0.0002"),
		})
		if err != nil {
			t.Fatalf("InsertSnapshot failed: %v", err)
		}
	}

	got, err := journal.GetSnapshots(ctx, "BTC/IDR", base.Add(time.Hour), base.Add(3*time.Hour))
	if err != nil {
		t.Fatalf("GetSnapshots failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Expected 2 snapshots, got %d", len(got))
	}
	if got[0].TickID != "b" || !got[1].Equity.Equal(decimal.NewFromInt(9998000)) {
		t.Errorf("Unexpected snapshots: %+v, %+v", got[0], got[1])
	}
}
