package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"btc-dca-agent/internal/domain"
	"btc-dca-agent/internal/storage"
)

func TestStateStore_LoadMissing(t *testing.T) {
	store := NewStateStore()

	_, err := store.Load(context.Background(), "BTC/IDR")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestStateStore_SaveAndLoad(t *testing.T) {
	store := NewStateStore()
	ctx := context.Background()

	st := domain.NewStrategyState("BTC/IDR")
	st.RemainingBudget = decimal.NewNullDecimal(decimal.NewFromInt(3500000))

	if err := store.Save(ctx, st); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if st.Version != 1 {
		t.Errorf("Version after first save = %d, want 1", st.Version)
	}

	got, err := store.Load(ctx, "BTC/IDR")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if got.Version != 1 {
		t.Errorf("Loaded version = %d, want 1", got.Version)
	}
	if !got.Remaining().Equal(decimal.NewFromInt(3500000)) {
		t.Errorf("Remaining budget = %s, want 3500000", got.Remaining())
	}
	if got.UpdatedAt.IsZero() {
		t.Error("UpdatedAt should be set on save")
	}

	// Mutating the loaded copy must not leak into the store
	got.TotalTrades = 99
	again, _ := store.Load(ctx, "BTC/IDR")
	if again.TotalTrades != 0 {
		t.Errorf("Store leaked mutation: TotalTrades = %d", again.TotalTrades)
	}
}

func TestStateStore_VersionConflict(t *testing.T) {
	store := NewStateStore()
	ctx := context.Background()

	if err := store.Save(ctx, domain.NewStrategyState("BTC/IDR")); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	first, _ := store.Load(ctx, "BTC/IDR")
	second, _ := store.Load(ctx, "BTC/IDR")

	if err := store.Save(ctx, first); err != nil {
		t.Fatalf("First writer failed: %v", err)
	}
	err := store.Save(ctx, second)
	if !errors.Is(err, storage.ErrVersionConflict) {
		t.Errorf("Expected ErrVersionConflict for stale writer, got %v", err)
	}

	// A fresh record saved over an existing one is also a conflict
	err = store.Save(ctx, domain.NewStrategyState("BTC/IDR"))
	if !errors.Is(err, storage.ErrVersionConflict) {
		t.Errorf("Expected ErrVersionConflict for version 0 over existing, got %v", err)
	}
}

func TestStateStore_InvalidInput(t *testing.T) {
	store := NewStateStore()

	if err := store.Save(context.Background(), nil); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput for nil, got %v", err)
	}
	if err := store.Save(context.Background(), &domain.StrategyState{}); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput for empty pair, got %v", err)
	}
}
