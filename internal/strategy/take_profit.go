package strategy

import (
	"fmt"

	"github.com/shopspring/decimal"

	"btc-dca-agent/internal/domain"
)

// PolicyTakeProfit names the fixed take-profit exit.
const PolicyTakeProfit = "take_profit"

// TakeProfitPolicy sells everything once price reaches the average entry price
// plus TakeProfit.
type TakeProfitPolicy struct {
	TakeProfit decimal.Decimal // e.g. 0.06 = 6%
}

// NewTakeProfitPolicy creates a TakeProfitPolicy.
func NewTakeProfitPolicy(takeProfit decimal.Decimal) *TakeProfitPolicy {
	return &TakeProfitPolicy{TakeProfit: takeProfit}
}

// Name returns "take_profit".
func (p *TakeProfitPolicy) Name() string { return PolicyTakeProfit }

// Target returns avg entry * (1 + TakeProfit), zero with no position.
func (p *TakeProfitPolicy) Target(st *domain.StrategyState) decimal.Decimal {
	return st.AverageEntryPrice().Mul(decimal.NewFromInt(1).Add(p.TakeProfit))
}

// Evaluate fires when price >= Target.
func (p *TakeProfitPolicy) Evaluate(st *domain.StrategyState, price decimal.Decimal) ExitSignal {
	if !st.HasPosition() {
		return ExitSignal{}
	}
	target := p.Target(st)
	if price.LessThan(target) {
		return ExitSignal{Kind: domain.KindTakeProfit, Level: target}
	}
	return ExitSignal{
		Sell:   true,
		Kind:   domain.KindTakeProfit,
		Level:  target,
		Reason: fmt.Sprintf("price %s reached target %s", price, target.StringFixed(2)),
	}
}

// Status reports the take-profit target.
func (p *TakeProfitPolicy) Status(st *domain.StrategyState) ExitStatus {
	status := ExitStatus{Policy: PolicyTakeProfit, Label: "Take-profit target"}
	if st.HasPosition() {
		status.Active = true
		status.Level = decimal.NewNullDecimal(p.Target(st))
	}
	return status
}

var _ ExitPolicy = (*TakeProfitPolicy)(nil)
