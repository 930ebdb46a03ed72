package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side is the direction of an executed order.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Trade kinds record which engine placed an order.
const (
	KindEntry        = "entry"
	KindAveraging    = "averaging"
	KindTakeProfit   = "take_profit"
	KindTrailingStop = "trailing_stop"
	KindWriteOff     = "write_off" // unsellable dust closed without an order
)

// TradeRecord is one executed order in the append-only trade history.
// Corresponds to trade_journal table in migrations/postgres.
type TradeRecord struct {
	ID        string // deterministic hash, see idhash.TradeID
	Pair      string
	Timestamp time.Time
	Side      Side
	Kind      string // KindEntry | KindAveraging | KindTakeProfit | KindTrailingStop | KindWriteOff

	Amount decimal.Decimal // base units (BTC)
	Price  decimal.Decimal // quote per base, fill average or quote fallback
	Cost   decimal.Decimal // quote spent (buy) or received (sell)

	RealizedProfit decimal.NullDecimal // sells only
	Partial        bool                // sell that left part of the position open
	OrderID        string              // venue order id, empty for write-offs and settled pending orders
	DryRun         bool
}

// IsBuy reports whether the record is a buy.
func (t TradeRecord) IsBuy() bool {
	return t.Side == SideBuy
}
