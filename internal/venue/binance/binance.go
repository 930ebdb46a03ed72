// Package binance implements venue.Venue on the Binance spot API.
package binance

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	gobinance "github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/common"
	"github.com/shopspring/decimal"

	"btc-dca-agent/internal/domain"
	"btc-dca-agent/internal/venue"
)

// TestnetBaseURL is the spot testnet REST host.
const TestnetBaseURL = "https://testnet.binance.vision"

// Config holds adapter settings.
type Config struct {
	APIKey    string
	SecretKey string
	Testnet   bool
	BaseURL   string // overrides the host, used by tests
	Timeout   time.Duration

	// QuantityPlaces is the LOT_SIZE step precision for sell quantities (BTCUSDT: 5).
	QuantityPlaces int32
}

// Venue adapts a go-binance spot client.
type Venue struct {
	client         *gobinance.Client
	quantityPlaces int32
	now            func() time.Time
}

// New creates a Binance spot venue.
func New(cfg Config) *Venue {
	client := gobinance.NewClient(cfg.APIKey, cfg.SecretKey)
	switch {
	case cfg.BaseURL != "":
		client.BaseURL = cfg.BaseURL
	case cfg.Testnet:
		client.BaseURL = TestnetBaseURL
	}
	if cfg.Timeout > 0 {
		client.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}
	if cfg.QuantityPlaces <= 0 {
		cfg.QuantityPlaces = 5
	}
	return &Venue{client: client, quantityPlaces: cfg.QuantityPlaces, now: time.Now}
}

// Name returns "binance".
func (v *Venue) Name() string { return "binance" }

// FetchBalance reads the spot account. Total = free + locked.
func (v *Venue) FetchBalance(ctx context.Context) (venue.Balances, error) {
	account, err := v.client.NewGetAccountService().Do(ctx)
	if err != nil {
		return nil, mapError("fetch_balance", err)
	}

	out := make(venue.Balances, len(account.Balances))
	for _, b := range account.Balances {
		free, err := decimal.NewFromString(b.Free)
		if err != nil {
			continue
		}
		locked, err := decimal.NewFromString(b.Locked)
		if err != nil {
			locked = decimal.Zero
		}
		out[strings.ToUpper(b.Asset)] = domain.Balance{Free: free, Total: free.Add(locked)}
	}
	return out, nil
}

// FetchTicker reads the last price for pair.
func (v *Venue) FetchTicker(ctx context.Context, pair string) (venue.Ticker, error) {
	symbol, err := toSymbol(pair)
	if err != nil {
		return venue.Ticker{}, err
	}

	prices, err := v.client.NewListPricesService().Symbol(symbol).Do(ctx)
	if err != nil {
		return venue.Ticker{}, mapError("fetch_ticker", err)
	}
	for _, p := range prices {
		if p.Symbol != symbol {
			continue
		}
		last, err := decimal.NewFromString(p.Price)
		if err != nil {
			return venue.Ticker{}, &venue.ExchangeError{Message: fmt.Sprintf("bad price %q for %s", p.Price, symbol)}
		}
		return venue.Ticker{Pair: pair, Last: last, Timestamp: v.now().UTC()}, nil
	}
	return venue.Ticker{}, &venue.ExchangeError{Message: "no price returned for " + symbol}
}

// CreateMarketBuyOrder buys spending cost via quoteOrderQty.
func (v *Venue) CreateMarketBuyOrder(ctx context.Context, pair string, cost decimal.Decimal) (*venue.Fill, error) {
	symbol, err := toSymbol(pair)
	if err != nil {
		return nil, err
	}

	resp, err := v.client.NewCreateOrderService().
		Symbol(symbol).
		Side(gobinance.SideTypeBuy).
		Type(gobinance.OrderTypeMarket).
		QuoteOrderQty(cost.StringFixed(8)).
		NewOrderRespType(gobinance.NewOrderRespTypeFULL).
		Do(ctx)
	if err != nil {
		return nil, mapError("create_buy_order", err)
	}
	return v.toFill(pair, domain.SideBuy, resp), nil
}

// CreateMarketSellOrder sells amount, truncated to the lot step.
func (v *Venue) CreateMarketSellOrder(ctx context.Context, pair string, amount decimal.Decimal) (*venue.Fill, error) {
	symbol, err := toSymbol(pair)
	if err != nil {
		return nil, err
	}
	qty := amount.Truncate(v.quantityPlaces)
	if !qty.IsPositive() {
		return nil, &venue.InvalidOrder{Message: "sell quantity rounds to zero"}
	}

	resp, err := v.client.NewCreateOrderService().
		Symbol(symbol).
		Side(gobinance.SideTypeSell).
		Type(gobinance.OrderTypeMarket).
		Quantity(qty.String()).
		NewOrderRespType(gobinance.NewOrderRespTypeFULL).
		Do(ctx)
	if err != nil {
		return nil, mapError("create_sell_order", err)
	}
	return v.toFill(pair, domain.SideSell, resp), nil
}

func (v *Venue) toFill(pair string, side domain.Side, resp *gobinance.CreateOrderResponse) *venue.Fill {
	f := &venue.Fill{
		OrderID:   strconv.FormatInt(resp.OrderID, 10),
		Pair:      pair,
		Side:      side,
		Status:    toStatus(resp.Status),
		Timestamp: v.now().UTC(),
	}
	if resp.TransactTime > 0 {
		f.Timestamp = time.UnixMilli(resp.TransactTime).UTC()
	}
	if filled, err := decimal.NewFromString(resp.ExecutedQuantity); err == nil {
		f.Filled = decimal.NewNullDecimal(filled)
	}
	if cost, err := decimal.NewFromString(resp.CummulativeQuoteQuantity); err == nil {
		f.Cost = decimal.NewNullDecimal(cost)
	}
	if f.Filled.Valid && f.Cost.Valid && f.Filled.Decimal.IsPositive() {
		f.AveragePrice = decimal.NewNullDecimal(f.Cost.Decimal.Div(f.Filled.Decimal))
	}
	return f
}

func toStatus(s gobinance.OrderStatusType) venue.OrderStatus {
	switch s {
	case gobinance.OrderStatusTypeFilled:
		return venue.OrderStatusClosed
	case gobinance.OrderStatusTypeNew, gobinance.OrderStatusTypePartiallyFilled:
		return venue.OrderStatusOpen
	case gobinance.OrderStatusTypeCanceled, gobinance.OrderStatusTypeRejected, gobinance.OrderStatusTypeExpired:
		return venue.OrderStatusCanceled
	default:
		return venue.OrderStatusUnknown
	}
}

// toSymbol converts "BTC/USDT" to "BTCUSDT".
func toSymbol(pair string) (string, error) {
	base, quote, err := domain.SplitPair(pair)
	if err != nil {
		return "", err
	}
	return base + quote, nil
}

// mapError converts go-binance errors into the venue taxonomy.
func mapError(op string, err error) error {
	var apiErr *common.APIError
	if !errors.As(err, &apiErr) {
		return &venue.NetworkError{Op: op, Err: err}
	}

	msg := apiErr.Message
	switch apiErr.Code {
	case -1003, -1015:
		return &venue.RateLimitError{Message: msg}
	case -1002, -1022, -2014, -2015:
		return &venue.AuthenticationError{Message: msg}
	case -1013, -1100, -1101, -1102, -1111, -1121:
		return &venue.InvalidOrder{Message: msg}
	case -1001, -1007:
		return &venue.NetworkError{Op: op, Err: apiErr}
	}
	if strings.Contains(strings.ToLower(msg), "insufficient") {
		return &venue.InsufficientFunds{Message: msg}
	}
	return &venue.ExchangeError{Code: strconv.FormatInt(apiErr.Code, 10), Message: msg}
}

var _ venue.Venue = (*Venue)(nil)
