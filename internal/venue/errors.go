package venue

import (
	"context"
	"errors"
	"fmt"
)

// NetworkError wraps transport failures and timeouts. Transient.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error during %s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// RateLimitError is returned when the venue throttles requests. Transient.
type RateLimitError struct {
	Message string
}

func (e *RateLimitError) Error() string { return "rate limited: " + e.Message }

// ExchangeError is a generic venue-side rejection.
type ExchangeError struct {
	Code    string
	Message string
}

func (e *ExchangeError) Error() string {
	if e.Code == "" {
		return "exchange error: " + e.Message
	}
	return fmt.Sprintf("exchange error %s: %s", e.Code, e.Message)
}

// InsufficientFunds is returned when the account cannot cover an order.
type InsufficientFunds struct {
	Message string
}

func (e *InsufficientFunds) Error() string { return "insufficient funds: " + e.Message }

// InvalidOrder is returned when order parameters violate venue filters.
type InvalidOrder struct {
	Message string
}

func (e *InvalidOrder) Error() string { return "invalid order: " + e.Message }

// AuthenticationError is returned for bad or missing credentials. Neither transient nor a rejection.
type AuthenticationError struct {
	Message string
}

func (e *AuthenticationError) Error() string { return "authentication failed: " + e.Message }

// IsTransient reports whether err should be retried on the next tick.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var netErr *NetworkError
	var rateErr *RateLimitError
	return errors.As(err, &netErr) ||
		errors.As(err, &rateErr) ||
		errors.Is(err, context.DeadlineExceeded)
}

// IsRejected reports whether the venue declined an order.
func IsRejected(err error) bool {
	if err == nil {
		return false
	}
	var exErr *ExchangeError
	var fundsErr *InsufficientFunds
	var orderErr *InvalidOrder
	return errors.As(err, &exErr) ||
		errors.As(err, &fundsErr) ||
		errors.As(err, &orderErr)
}
