package strategy

import (
	"fmt"

	"github.com/shopspring/decimal"

	"btc-dca-agent/internal/domain"
	"btc-dca-agent/internal/idhash"
	"btc-dca-agent/internal/venue"
)

// reconcileBuy derives execution price, BTC received and fiat spent from a buy fill.
// Missing fields fall back in order: average price, cost/filled, quote; filled,
// cost/price; reported cost, requested cost.
func reconcileBuy(fill *venue.Fill, requested, quote decimal.Decimal) (price, amount, cost decimal.Decimal, err error) {
	if err := checkFilled(fill); err != nil {
		return decimal.Zero, decimal.Zero, decimal.Zero, err
	}

	cost = requested
	if positive(fill.Cost) {
		cost = fill.Cost.Decimal
	}
	price = fillPrice(fill, quote)
	if positive(fill.Filled) {
		amount = fill.Filled.Decimal
	} else {
		amount = cost.Div(price)
	}
	return price, amount, cost, nil
}

// reconcileSell derives execution price, BTC sold and fiat received from a sell fill.
func reconcileSell(fill *venue.Fill, requested, quote decimal.Decimal) (price, amount, proceeds decimal.Decimal, err error) {
	if err := checkFilled(fill); err != nil {
		return decimal.Zero, decimal.Zero, decimal.Zero, err
	}

	amount = requested
	if positive(fill.Filled) {
		amount = fill.Filled.Decimal
	}
	price = fillPrice(fill, quote)
	if positive(fill.Cost) {
		proceeds = fill.Cost.Decimal
	} else {
		proceeds = price.Mul(amount)
	}
	return price, amount, proceeds, nil
}

// checkFilled rejects fills that report nothing executed.
func checkFilled(fill *venue.Fill) error {
	if fill.Filled.Valid && !fill.Filled.Decimal.IsPositive() {
		return &venue.ExchangeError{
			Code:    "not_filled",
			Message: fmt.Sprintf("order %s %s with nothing filled", fill.OrderID, statusText(fill.Status)),
		}
	}
	if fill.Status == venue.OrderStatusCanceled && !fill.Filled.Valid {
		return &venue.ExchangeError{Code: "canceled", Message: fmt.Sprintf("order %s canceled", fill.OrderID)}
	}
	return nil
}

func fillPrice(fill *venue.Fill, quote decimal.Decimal) decimal.Decimal {
	if positive(fill.AveragePrice) {
		return fill.AveragePrice.Decimal
	}
	if positive(fill.Cost) && positive(fill.Filled) {
		return fill.Cost.Decimal.Div(fill.Filled.Decimal)
	}
	return quote
}

func positive(d decimal.NullDecimal) bool {
	return d.Valid && d.Decimal.IsPositive()
}

func statusText(s venue.OrderStatus) string {
	if s == venue.OrderStatusUnknown {
		return "returned"
	}
	return string(s)
}

func (e *Executor) record(fill *venue.Fill, side domain.Side, kind string, amount, price, cost decimal.Decimal) domain.TradeRecord {
	ts := fill.Timestamp.UTC()
	if fill.Timestamp.IsZero() {
		ts = e.now()
	}
	return domain.TradeRecord{
		ID:        idhash.TradeID(e.Pair, side, fill.OrderID, ts),
		Pair:      e.Pair,
		Timestamp: ts,
		Side:      side,
		Kind:      kind,
		Amount:    amount,
		Price:     price,
		Cost:      cost,
		OrderID:   fill.OrderID,
		DryRun:    e.DryRun,
	}
}

func minDecimal(a, b decimal.Decimal) decimal.Decimal {
	if a.LessThan(b) {
		return a
	}
	return b
}
