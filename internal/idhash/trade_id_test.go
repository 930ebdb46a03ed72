package idhash

import (
	"testing"
	"time"

	"btc-dca-agent/internal/domain"
)

func TestTradeID_Stable(t *testing.T) {
	at := time.Date(2024, 1, 1, 0, 0, 34, 567e6, time.UTC)

	got := TradeID("BTC/IDR", domain.SideBuy, "12345678", at)
	if len(got) != 64 {
		t.Fatalf("TradeID length = %d, want 64", len(got))
	}
	if again := TradeID("BTC/IDR", domain.SideBuy, "12345678", at.In(time.FixedZone("WIB", 7*3600))); again != got {
		t.Errorf("same instant in another zone must hash equal: %s != %s", again, got)
	}
	// Sub-millisecond differences collapse.
	if TradeID("BTC/IDR", domain.SideBuy, "12345678", at.Add(300*time.Microsecond)) != got {
		t.Error("sub-millisecond offset changed the id")
	}
}

func TestTradeID_FieldsMatter(t *testing.T) {
	at := time.UnixMilli(1000).UTC()
	base := TradeID("BTC/IDR", domain.SideBuy, "order", at)

	variants := map[string]string{
		"pair":      TradeID("BTC/USDT", domain.SideBuy, "order", at),
		"side":      TradeID("BTC/IDR", domain.SideSell, "order", at),
		"order id":  TradeID("BTC/IDR", domain.SideBuy, "other", at),
		"timestamp": TradeID("BTC/IDR", domain.SideBuy, "order", time.UnixMilli(2000)),
	}
	for field, id := range variants {
		if id == base {
			t.Errorf("changing %s must change the id", field)
		}
	}
}
