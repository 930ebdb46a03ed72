package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"btc-dca-agent/internal/domain"
	"btc-dca-agent/internal/storage"
)

func TestStateStore_LoadMissing(t *testing.T) {
	pool := newTestPool(t)

	store := NewStateStore(pool, zerolog.Nop())
	_, err := store.Load(context.Background(), "BTC/IDR")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestStateStore_SaveLoadRoundTrip(t *testing.T) {
	pool := newTestPool(t)

	store := NewStateStore(pool, zerolog.Nop())
	ctx := context.Background()

	st := domain.NewStrategyState("BTC/IDR")
	st.OriginalBudget = decimal.NewNullDecimal(decimal.NewFromInt(7000000))
	st.RemainingBudget = decimal.NewNullDecimal(decimal.NewFromInt(3500000))
	st.ReservedBudget = decimal.NewFromInt(3500000)
	st.PurchasePrices = []decimal.Decimal{decimal.NewFromInt(500000000)}
	st.TotalBtc = decimal.RequireFromString("0.007")
	st.TotalFiatSpent = decimal.NewFromInt(3500000)
	st.TradeHistory = []domain.TradeRecord{{
		ID:        "t1",
		Pair:      "BTC/IDR",
		Timestamp: time.Date(2024, 1, 5, 10, 0, 0, 0, time.UTC),
		Side:      domain.SideBuy,
		Kind:      domain.KindEntry,
		Amount:    decimal.RequireFromString("0.007"),
		Price:     decimal.NewFromInt(500000000),
		Cost:      decimal.NewFromInt(3500000),
	}}

	if err := store.Save(ctx, st); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	got, err := store.Load(ctx, "BTC/IDR")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if got.Version != 1 {
		t.Errorf("Version = %d, want 1", got.Version)
	}
	if !got.TotalBtc.Equal(st.TotalBtc) {
		t.Errorf("TotalBtc = %s, want %s", got.TotalBtc, st.TotalBtc)
	}
	if len(got.TradeHistory) != 1 || got.TradeHistory[0].ID != "t1" {
		t.Errorf("TradeHistory not preserved: %+v", got.TradeHistory)
	}
	if err := got.CheckInvariants(); err != nil {
		t.Errorf("Invariants violated after load: %v", err)
	}

	// Load -> Save -> Load is stable
	if err := store.Save(ctx, got); err != nil {
		t.Fatalf("Second save failed: %v", err)
	}
	again, err := store.Load(ctx, "BTC/IDR")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if again.Version != 2 || !again.Remaining().Equal(got.Remaining()) {
		t.Errorf("Unexpected state after resave: version=%d remaining=%s", again.Version, again.Remaining())
	}
}

func TestStateStore_VersionConflict(t *testing.T) {
	pool := newTestPool(t)

	store := NewStateStore(pool, zerolog.Nop())
	ctx := context.Background()

	if err := store.Save(ctx, domain.NewStrategyState("BTC/IDR")); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if err := store.Save(ctx, domain.NewStrategyState("BTC/IDR")); !errors.Is(err, storage.ErrVersionConflict) {
		t.Errorf("Expected ErrVersionConflict on duplicate insert, got %v", err)
	}

	a, _ := store.Load(ctx, "BTC/IDR")
	b, _ := store.Load(ctx, "BTC/IDR")
	if err := store.Save(ctx, a); err != nil {
		t.Fatalf("First writer failed: %v", err)
	}
	if err := store.Save(ctx, b); !errors.Is(err, storage.ErrVersionConflict) {
		t.Errorf("Expected ErrVersionConflict for stale writer, got %v", err)
	}
}
