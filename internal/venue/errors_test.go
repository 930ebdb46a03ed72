package venue

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorClassification(t *testing.T) {
	tests := []struct {
		name          string
		err           error
		wantTransient bool
		wantRejected  bool
	}{
		{"nil", nil, false, false},
		{"network", &NetworkError{Op: "fetch_ticker", Err: errors.New("connection reset")}, true, false},
		{"rate limit", &RateLimitError{Message: "slow down"}, true, false},
		{"deadline", fmt.Errorf("fetch balance: %w", context.DeadlineExceeded), true, false},
		{"wrapped network", fmt.Errorf("snapshot: %w", &NetworkError{Op: "x", Err: errors.New("eof")}), true, false},
		{"exchange", &ExchangeError{Code: "-2010", Message: "rejected"}, false, true},
		{"insufficient funds", &InsufficientFunds{Message: "balance"}, false, true},
		{"invalid order", fmt.Errorf("buy: %w", &InvalidOrder{Message: "min notional"}), false, true},
		{"auth", &AuthenticationError{Message: "bad key"}, false, false},
		{"plain", errors.New("boom"), false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantTransient, IsTransient(tt.err))
			assert.Equal(t, tt.wantRejected, IsRejected(tt.err))
		})
	}
}

func TestNetworkError_Unwrap(t *testing.T) {
	inner := errors.New("timeout")
	err := &NetworkError{Op: "create_order", Err: inner}

	assert.ErrorIs(t, err, inner)
	assert.Contains(t, err.Error(), "create_order")
}

func TestBalancesGet(t *testing.T) {
	b := Balances{"BTC": {}}
	assert.True(t, b.Get("idr").Free.IsZero())
}
