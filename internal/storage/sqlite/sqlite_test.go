package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"btc-dca-agent/internal/domain"
	"btc-dca-agent/internal/storage"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(context.Background(), filepath.Join(t.TempDir(), "dca.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestStateStore_CAS(t *testing.T) {
	store := NewStateStore(openTestDB(t), zerolog.Nop())
	ctx := context.Background()

	_, err := store.Load(ctx, "BTC/IDR")
	require.ErrorIs(t, err, storage.ErrNotFound)

	st := domain.NewStrategyState("BTC/IDR")
	st.RemainingBudget = decimal.NewNullDecimal(decimal.NewFromInt(3500000))
	require.NoError(t, store.Save(ctx, st))
	assert.Equal(t, int64(1), st.Version)

	// Second fresh record for the same pair loses
	err = store.Save(ctx, domain.NewStrategyState("BTC/IDR"))
	assert.ErrorIs(t, err, storage.ErrVersionConflict)

	a, err := store.Load(ctx, "BTC/IDR")
	require.NoError(t, err)
	b, err := store.Load(ctx, "BTC/IDR")
	require.NoError(t, err)
	assert.Equal(t, int64(1), a.Version)
	assert.True(t, a.Remaining().Equal(decimal.NewFromInt(3500000)))

	a.TotalTrades = 1
	require.NoError(t, store.Save(ctx, a))
	assert.ErrorIs(t, store.Save(ctx, b), storage.ErrVersionConflict)

	final, err := store.Load(ctx, "BTC/IDR")
	require.NoError(t, err)
	assert.Equal(t, int64(2), final.Version)
	assert.Equal(t, 1, final.TotalTrades)
}

func TestJournal_Trades(t *testing.T) {
	journal := NewJournal(openTestDB(t))
	ctx := context.Background()
	ts := time.Date(2024, 1, 5, 10, 0, 0, 0, time.UTC)

	buy := domain.TradeRecord{
		ID: "t1", Pair: "BTC/IDR", Timestamp: ts, Side: domain.SideBuy, Kind: domain.KindEntry,
		Amount: decimal.RequireFromString("0.007"), Price: decimal.NewFromInt(500000000),
		Cost: decimal.NewFromInt(3500000), OrderID: "42",
	}
	sell := domain.TradeRecord{
		ID: "t2", Pair: "BTC/IDR", Timestamp: ts.Add(time.Hour), Side: domain.SideSell, Kind: domain.KindTakeProfit,
		Amount: decimal.RequireFromString("0.007"), Price: decimal.NewFromInt(534285714),
		Cost: decimal.NewFromInt(3740000), RealizedProfit: decimal.NewNullDecimal(decimal.NewFromInt(240000)),
		OrderID: "43", DryRun: true,
	}
	require.NoError(t, journal.InsertTrades(ctx, []domain.TradeRecord{sell, buy}))
	assert.ErrorIs(t, journal.InsertTrades(ctx, []domain.TradeRecord{buy}), storage.ErrDuplicateKey)

	got, err := journal.GetTradesByPair(ctx, "BTC/IDR")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "t1", got[0].ID)
	assert.True(t, got[0].Timestamp.Equal(ts))
	assert.False(t, got[0].RealizedProfit.Valid)
	assert.True(t, got[1].RealizedProfit.Decimal.Equal(decimal.NewFromInt(240000)))
	assert.True(t, got[1].DryRun)
	assert.Equal(t, domain.SideSell, got[1].Side)
}

func TestJournal_Snapshots(t *testing.T) {
	journal := NewJournal(openTestDB(t))
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, journal.InsertSnapshot(ctx, &domain.EquitySnapshot{
			TickID:    id,
			Pair:      "BTC/IDR",
			Timestamp: base.Add(time.Duration(i) * time.Hour),
			Equity:    decimal.NewFromInt(int64(10000000 + i)),
			Drawdown:  decimal.RequireFromString("0.01"),
		}))
	}
	err := journal.InsertSnapshot(ctx, &domain.EquitySnapshot{TickID: "a", Pair: "BTC/IDR"})
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)

	got, err := journal.GetSnapshots(ctx, "BTC/IDR", base, base.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].TickID)
	assert.True(t, got[1].Equity.Equal(decimal.NewFromInt(10000001)))
	assert.True(t, got[1].Drawdown.Equal(decimal.RequireFromString("0.01")))
}
