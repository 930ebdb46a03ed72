package domain

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// CurrentSchemaVersion is the persisted shape written by this build.
// Version 0 is the legacy single-file layout (percent drawdown, IDR field names).
const CurrentSchemaVersion = 2

// StrategyState is the durable record for one trading pair.
// One record per pair; loaded at tick start, mutated by the engines, persisted after
// every money-moving action and at tick end.
type StrategyState struct {
	Pair          string
	Version       int64 // optimistic concurrency token, bumped by the store on save
	SchemaVersion int

	// Budget pools for the current cycle
	OriginalBudget  decimal.NullDecimal // fiat carved out at cycle start
	RemainingBudget decimal.NullDecimal // null = budget not initialized
	ReservedBudget  decimal.Decimal     // averaging half, released after the entry buy

	// Open position
	PurchasePrices []decimal.Decimal // one per buy, execution order
	TotalBtc       decimal.Decimal
	TotalFiatSpent decimal.Decimal

	// Lifetime accumulators, never reset
	RealizedPnl   decimal.Decimal
	EquityPeak    decimal.Decimal
	MaxDrawdown   decimal.Decimal // fraction, 0.12 = 12%
	TotalTrades   int
	WinningTrades int
	ClosedCycles  int
	TradeHistory  []TradeRecord

	// Order sent but not confirmed; nil when none is outstanding
	Pending *PendingOrder

	// Trailing-stop sub-state
	TrailingActive           bool
	HighestPriceSinceTrigger decimal.NullDecimal

	LastReportAt *time.Time
	UpdatedAt    time.Time
}

// NewStrategyState returns the all-empty default state for pair.
func NewStrategyState(pair string) *StrategyState {
	return &StrategyState{
		Pair:          pair,
		SchemaVersion: CurrentSchemaVersion,
	}
}

// HasPosition reports whether a position is open.
func (s *StrategyState) HasPosition() bool {
	return len(s.PurchasePrices) > 0
}

// BudgetInitialized reports whether a cycle budget has been carved out.
func (s *StrategyState) BudgetInitialized() bool {
	return s.RemainingBudget.Valid
}

// Remaining returns the remaining budget, zero when uninitialized.
func (s *StrategyState) Remaining() decimal.Decimal {
	if !s.RemainingBudget.Valid {
		return decimal.Zero
	}
	return s.RemainingBudget.Decimal
}

// LastEntryPrice returns the most recent purchase price.
func (s *StrategyState) LastEntryPrice() (decimal.Decimal, bool) {
	if len(s.PurchasePrices) == 0 {
		return decimal.Zero, false
	}
	return s.PurchasePrices[len(s.PurchasePrices)-1], true
}

// AverageEntryPrice returns TotalFiatSpent / TotalBtc, or zero with no position.
func (s *StrategyState) AverageEntryPrice() decimal.Decimal {
	if !s.TotalBtc.IsPositive() {
		return decimal.Zero
	}
	return s.TotalFiatSpent.Div(s.TotalBtc)
}

// ApplyBuy books an executed buy and debits budgetDebit from the remaining budget.
// The remaining budget is floored at zero.
func (s *StrategyState) ApplyBuy(rec TradeRecord, budgetDebit decimal.Decimal) {
	s.PurchasePrices = append(s.PurchasePrices, rec.Price)
	s.TotalBtc = s.TotalBtc.Add(rec.Amount)
	s.TotalFiatSpent = s.TotalFiatSpent.Add(rec.Cost)

	remaining := s.Remaining().Sub(budgetDebit)
	if remaining.IsNegative() {
		remaining = decimal.Zero
	}
	s.RemainingBudget = decimal.NewNullDecimal(remaining)

	s.TradeHistory = append(s.TradeHistory, rec)
	s.TotalTrades++
}

// ReleaseReserve moves the held-back averaging budget into the remaining budget.
func (s *StrategyState) ReleaseReserve() {
	if s.ReservedBudget.IsZero() {
		return
	}
	s.RemainingBudget = decimal.NewNullDecimal(s.Remaining().Add(s.ReservedBudget))
	s.ReservedBudget = decimal.Zero
}

// ApplySell books an executed sell and returns the realized profit.
// When closeCycle is set the whole cost basis is realized and the cycle is closed;
// otherwise the cost basis is reduced pro rata and the position stays open.
func (s *StrategyState) ApplySell(rec TradeRecord, closeCycle bool) decimal.Decimal {
	basis := s.TotalFiatSpent
	if !closeCycle && s.TotalBtc.IsPositive() {
		basis = s.TotalFiatSpent.Mul(rec.Amount).Div(s.TotalBtc)
	}
	profit := rec.Cost.Sub(basis)

	rec.RealizedProfit = decimal.NewNullDecimal(profit)
	rec.Partial = !closeCycle
	s.TradeHistory = append(s.TradeHistory, rec)
	s.RealizedPnl = s.RealizedPnl.Add(profit)
	s.TotalTrades++

	if !closeCycle {
		s.TotalBtc = s.TotalBtc.Sub(rec.Amount)
		s.TotalFiatSpent = s.TotalFiatSpent.Sub(basis)
		return profit
	}

	if profit.IsPositive() {
		s.WinningTrades++
	}
	s.ClosedCycles++
	s.CloseCycle()
	return profit
}

// CloseCycle zeroes the position and clears the cycle budget.
// Lifetime accumulators are untouched.
func (s *StrategyState) CloseCycle() {
	s.PurchasePrices = nil
	s.TotalBtc = decimal.Zero
	s.TotalFiatSpent = decimal.Zero
	s.OriginalBudget = decimal.NullDecimal{}
	s.RemainingBudget = decimal.NullDecimal{}
	s.ReservedBudget = decimal.Zero
	s.ResetTrailing()
}

// ResetTrailing returns the trailing-stop sub-state to inactive.
func (s *StrategyState) ResetTrailing() {
	s.TrailingActive = false
	s.HighestPriceSinceTrigger = decimal.NullDecimal{}
}

// RecentTrades returns up to n most recent trades, oldest first.
func (s *StrategyState) RecentTrades(n int) []TradeRecord {
	if n <= 0 || len(s.TradeHistory) == 0 {
		return nil
	}
	if n > len(s.TradeHistory) {
		n = len(s.TradeHistory)
	}
	out := make([]TradeRecord, n)
	copy(out, s.TradeHistory[len(s.TradeHistory)-n:])
	return out
}

// Clone returns a deep copy.
func (s *StrategyState) Clone() *StrategyState {
	c := *s
	if s.PurchasePrices != nil {
		c.PurchasePrices = append([]decimal.Decimal(nil), s.PurchasePrices...)
	}
	if s.TradeHistory != nil {
		c.TradeHistory = append([]TradeRecord(nil), s.TradeHistory...)
	}
	if s.LastReportAt != nil {
		t := *s.LastReportAt
		c.LastReportAt = &t
	}
	if s.Pending != nil {
		p := *s.Pending
		c.Pending = &p
	}
	return &c
}

// CheckInvariants reports every position/budget invariant the state violates.
func (s *StrategyState) CheckInvariants() error {
	var errs []error

	if s.TotalBtc.IsZero() != (len(s.PurchasePrices) == 0) {
		errs = append(errs, fmt.Errorf("total_btc=%s but %d purchase prices", s.TotalBtc, len(s.PurchasePrices)))
	}
	if s.TotalBtc.IsNegative() {
		errs = append(errs, fmt.Errorf("negative total_btc %s", s.TotalBtc))
	}
	if s.TotalFiatSpent.IsNegative() {
		errs = append(errs, fmt.Errorf("negative total_fiat_spent %s", s.TotalFiatSpent))
	}
	if s.RemainingBudget.Valid && s.RemainingBudget.Decimal.IsNegative() {
		errs = append(errs, fmt.Errorf("negative remaining_budget %s", s.RemainingBudget.Decimal))
	}
	if s.ReservedBudget.IsNegative() {
		errs = append(errs, fmt.Errorf("negative reserved_budget %s", s.ReservedBudget))
	}
	if buys := s.buysInOpenPosition(); buys >= 0 && buys != len(s.PurchasePrices) {
		errs = append(errs, fmt.Errorf("%d buys in open position but %d purchase prices", buys, len(s.PurchasePrices)))
	}

	return errors.Join(errs...)
}

// buysInOpenPosition counts buy records since the last cycle-closing sell.
// Returns -1 when the history holds no record of the open position (legacy state).
func (s *StrategyState) buysInOpenPosition() int {
	if len(s.TradeHistory) == 0 {
		if len(s.PurchasePrices) > 0 {
			return -1
		}
		return 0
	}
	buys := 0
	for i := len(s.TradeHistory) - 1; i >= 0; i-- {
		rec := s.TradeHistory[i]
		if rec.Side == SideSell && !rec.Partial {
			break
		}
		if rec.IsBuy() {
			buys++
		}
	}
	return buys
}
