package metrics

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"btc-dca-agent/internal/domain"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestComputeDrawdown(t *testing.T) {
	tests := []struct {
		name   string
		peak   string
		equity string
		want   string
	}{
		{"zero peak", "0", "100", "0"},
		{"at peak", "10000000", "10000000", "0"},
		{"above peak", "10000000", "11000000", "0"},
		{"five percent", "10000000", "9500000", "0.05"},
		{"wiped", "10000000", "0", "1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := computeDrawdown(d(tt.peak), d(tt.equity))
			if !got.Equal(d(tt.want)) {
				t.Errorf("expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestComputeWinRate(t *testing.T) {
	if got := computeWinRate(0, 0); !got.IsZero() {
		t.Errorf("expected 0 with no closed cycles, got %s", got)
	}
	if got := computeWinRate(3, 4); !got.Equal(d("0.75")) {
		t.Errorf("expected 0.75, got %s", got)
	}
}

func TestComputePercentOf(t *testing.T) {
	if got := computePercentOf(d("240000"), d("7000000")); !got.Round(4).Equal(d("3.4286")) {
		t.Errorf("expected 3.4286, got %s", got)
	}
	if got := computePercentOf(d("240000"), decimal.Zero); !got.IsZero() {
		t.Errorf("expected 0 with zero base, got %s", got)
	}
}

func TestComputeMaxDrawdown_Series(t *testing.T) {
	// Peak 120, trough 90 → 25%; later recovery does not erase it
	series := []decimal.Decimal{d("100"), d("120"), d("110"), d("90"), d("130"), d("125")}

	got := computeMaxDrawdown(series)

	if !got.Equal(d("0.25")) {
		t.Errorf("expected 0.25, got %s", got)
	}
	if !computeMaxDrawdown(nil).IsZero() {
		t.Error("expected 0 for empty series")
	}
}

func TestComputeMaxConsecutiveLosses(t *testing.T) {
	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	sell := func(profit string, partial bool) domain.TradeRecord {
		return domain.TradeRecord{
			Timestamp:      ts,
			Side:           domain.SideSell,
			RealizedProfit: decimal.NewNullDecimal(d(profit)),
			Partial:        partial,
		}
	}
	buy := domain.TradeRecord{Timestamp: ts, Side: domain.SideBuy}

	trades := []domain.TradeRecord{
		buy, sell("-10", false),
		buy, sell("0", false),
		buy, sell("5", true), // partial, ignored
		sell("-1", false),
		buy, sell("20", false),
		buy, sell("-3", false),
	}

	if got := computeMaxConsecutiveLosses(trades); got != 3 {
		t.Errorf("expected 3, got %d", got)
	}
}

func TestSortTrades_TimestampThenID(t *testing.T) {
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	trades := []domain.TradeRecord{
		{ID: "c", Timestamp: t0.Add(time.Hour)},
		{ID: "b", Timestamp: t0},
		{ID: "a", Timestamp: t0},
	}

	sorted := sortTrades(trades)

	want := []string{"a", "b", "c"}
	for i, id := range want {
		if sorted[i].ID != id {
			t.Errorf("position %d: expected %s, got %s", i, id, sorted[i].ID)
		}
	}
	if trades[0].ID != "c" {
		t.Error("input slice must not be reordered")
	}
}
