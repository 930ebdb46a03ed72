package strategy

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Factory errors
var (
	ErrUnknownExitPolicy   = errors.New("unknown exit policy")
	ErrInvalidTakeProfit   = errors.New("take_profit requires TakeProfit > 0")
	ErrInvalidArmThreshold = errors.New("trailing_stop requires ArmThreshold > 0")
	ErrInvalidTrailGap     = errors.New("trailing_stop requires 0 < Gap < 1")
)

// ExitConfig selects and parameterizes the exit policy.
type ExitConfig struct {
	Policy       string
	TakeProfit   decimal.Decimal
	ArmThreshold decimal.Decimal
	TrailGap     decimal.Decimal
}

// FromConfig creates an ExitPolicy from cfg.
// Validates required parameters per policy.
func FromConfig(cfg ExitConfig) (ExitPolicy, error) {
	switch cfg.Policy {
	case PolicyTakeProfit, "":
		if !cfg.TakeProfit.IsPositive() {
			return nil, ErrInvalidTakeProfit
		}
		return NewTakeProfitPolicy(cfg.TakeProfit), nil
	case PolicyTrailingStop:
		if !cfg.ArmThreshold.IsPositive() {
			return nil, ErrInvalidArmThreshold
		}
		if !cfg.TrailGap.IsPositive() || cfg.TrailGap.GreaterThanOrEqual(decimal.NewFromInt(1)) {
			return nil, ErrInvalidTrailGap
		}
		return NewTrailingStopPolicy(cfg.ArmThreshold, cfg.TrailGap), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownExitPolicy, cfg.Policy)
	}
}
