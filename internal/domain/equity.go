package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// EquitySnapshot is the per-tick performance reading written to the journal.
// Corresponds to equity_snapshots table in migrations/clickhouse.
type EquitySnapshot struct {
	TickID    string
	Pair      string
	Timestamp time.Time

	Price       decimal.Decimal
	FreeFiat    decimal.Decimal
	BtcBalance  decimal.Decimal // total on the exchange
	Equity      decimal.Decimal // FreeFiat + BtcBalance * Price
	EquityPeak  decimal.Decimal
	Drawdown    decimal.Decimal // instantaneous, fraction
	MaxDrawdown decimal.Decimal

	PositionBtc     decimal.Decimal
	PositionCost    decimal.Decimal
	RemainingBudget decimal.Decimal
	RealizedPnl     decimal.Decimal
	UnrealizedPnl   decimal.Decimal
}
