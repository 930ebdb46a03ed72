package strategy

import (
	"github.com/shopspring/decimal"

	"btc-dca-agent/internal/domain"
)

// BudgetInitializer carves the cycle budget out of the fiat balance.
type BudgetInitializer struct {
	ReserveFraction decimal.Decimal
	EntryFraction   decimal.Decimal
}

// Initialize seeds the budget from fiatTotal when no budget is set and no position is
// open. The entry share goes to RemainingBudget and the rest to ReservedBudget.
// Reports whether the state changed; the caller must persist it before trading.
func (b BudgetInitializer) Initialize(st *domain.StrategyState, fiatTotal decimal.Decimal) bool {
	if st.BudgetInitialized() || st.HasPosition() {
		return false
	}
	if fiatTotal.IsNegative() {
		fiatTotal = decimal.Zero
	}

	original := fiatTotal.Mul(b.ReserveFraction)
	entry := original.Mul(b.EntryFraction)

	st.OriginalBudget = decimal.NewNullDecimal(original)
	st.RemainingBudget = decimal.NewNullDecimal(entry)
	st.ReservedBudget = original.Sub(entry)
	if st.EquityPeak.IsZero() {
		st.EquityPeak = original
	}
	return true
}
