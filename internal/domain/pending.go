package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// PendingOrder marks a market order that was sent to the venue but whose outcome
// was never confirmed. It is persisted before the order goes out and cleared once
// the fill is booked or the venue rejects the order. A marker found at the start
// of a tick is settled against the balance delta before any engine runs.
type PendingOrder struct {
	Side      Side
	Kind      string
	Requested decimal.Decimal // quote cost for buys, base amount for sells
	Quote     decimal.Decimal // tick price when the order was placed

	// Account totals right before the order.
	FiatBefore decimal.Decimal
	BtcBefore  decimal.Decimal

	PlacedAt time.Time
}
