package strategy

import (
	"fmt"

	"github.com/shopspring/decimal"

	"btc-dca-agent/internal/domain"
)

// PolicyTrailingStop names the trailing-stop exit.
const PolicyTrailingStop = "trailing_stop"

// TrailingStopPolicy arms once price rises ArmThreshold above the last buy, then
// trails the high-water mark and sells when price falls Gap below it.
//   - arm:  price >= last_entry * (1 + arm_threshold)
//   - trail: high = max(high, price); stop = high * (1 - gap)
//   - exit: price <= stop
type TrailingStopPolicy struct {
	ArmThreshold decimal.Decimal // e.g. 0.08 = 8%
	Gap          decimal.Decimal // e.g. 0.03 = 3%
}

// NewTrailingStopPolicy creates a TrailingStopPolicy.
func NewTrailingStopPolicy(armThreshold, gap decimal.Decimal) *TrailingStopPolicy {
	return &TrailingStopPolicy{ArmThreshold: armThreshold, Gap: gap}
}

// Name returns "trailing_stop".
func (p *TrailingStopPolicy) Name() string { return PolicyTrailingStop }

// ArmPrice returns the price that activates the stop, false with no position.
func (p *TrailingStopPolicy) ArmPrice(st *domain.StrategyState) (decimal.Decimal, bool) {
	last, ok := st.LastEntryPrice()
	if !ok {
		return decimal.Zero, false
	}
	return last.Mul(decimal.NewFromInt(1).Add(p.ArmThreshold)), true
}

// StopLevel returns high * (1 - Gap).
func (p *TrailingStopPolicy) StopLevel(high decimal.Decimal) decimal.Decimal {
	return high.Mul(decimal.NewFromInt(1).Sub(p.Gap))
}

// Evaluate advances the trailing sub-state on st and fires when price <= stop.
// The tick that arms the stop never sells.
func (p *TrailingStopPolicy) Evaluate(st *domain.StrategyState, price decimal.Decimal) ExitSignal {
	if !st.HasPosition() {
		return ExitSignal{}
	}

	if !st.TrailingActive || !st.HighestPriceSinceTrigger.Valid {
		arm, _ := p.ArmPrice(st)
		if price.LessThan(arm) {
			return ExitSignal{Kind: domain.KindTrailingStop, Level: arm}
		}
		st.TrailingActive = true
		st.HighestPriceSinceTrigger = decimal.NewNullDecimal(price)
		return ExitSignal{Kind: domain.KindTrailingStop, Level: p.StopLevel(price)}
	}

	high := st.HighestPriceSinceTrigger.Decimal
	if price.GreaterThan(high) {
		high = price
		st.HighestPriceSinceTrigger = decimal.NewNullDecimal(high)
	}

	stop := p.StopLevel(high)
	if price.GreaterThan(stop) {
		return ExitSignal{Kind: domain.KindTrailingStop, Level: stop}
	}
	return ExitSignal{
		Sell:   true,
		Kind:   domain.KindTrailingStop,
		Level:  stop,
		Reason: fmt.Sprintf("price %s at or below stop %s (high %s)", price, stop.StringFixed(2), high),
	}
}

// Status reports the stop level when armed, else the arm price.
func (p *TrailingStopPolicy) Status(st *domain.StrategyState) ExitStatus {
	status := ExitStatus{Policy: PolicyTrailingStop}
	if st.TrailingActive && st.HighestPriceSinceTrigger.Valid {
		status.Active = true
		status.Label = "Trailing stop"
		status.Level = decimal.NewNullDecimal(p.StopLevel(st.HighestPriceSinceTrigger.Decimal))
		return status
	}
	status.Label = "Trailing stop arms at"
	if arm, ok := p.ArmPrice(st); ok {
		status.Level = decimal.NewNullDecimal(arm)
	}
	return status
}

var _ ExitPolicy = (*TrailingStopPolicy)(nil)
