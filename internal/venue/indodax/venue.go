package indodax

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"btc-dca-agent/internal/domain"
	"btc-dca-agent/internal/venue"
)

// baseAmountPlaces is the precision Indodax accepts for coin amounts.
const baseAmountPlaces = 8

// Venue adapts Client to venue.Venue.
type Venue struct {
	client *Client
	now    func() time.Time
}

// New creates an Indodax venue.
func New(cfg Config) *Venue {
	return &Venue{client: NewClient(cfg), now: time.Now}
}

// Name returns "indodax".
func (v *Venue) Name() string { return "indodax" }

type tickerResponse struct {
	Ticker struct {
		Last       decimal.Decimal `json:"last"`
		ServerTime int64           `json:"server_time"`
	} `json:"ticker"`
}

// FetchTicker reads the public ticker for pair.
func (v *Venue) FetchTicker(ctx context.Context, pair string) (venue.Ticker, error) {
	base, quote, err := domain.SplitPair(pair)
	if err != nil {
		return venue.Ticker{}, err
	}

	var resp tickerResponse
	path := "/api/ticker/" + strings.ToLower(base+quote)
	if err := v.client.callPublic(ctx, "fetch_ticker", path, &resp); err != nil {
		return venue.Ticker{}, err
	}

	ts := v.now()
	if resp.Ticker.ServerTime > 0 {
		ts = time.Unix(resp.Ticker.ServerTime, 0)
	}
	return venue.Ticker{Pair: pair, Last: resp.Ticker.Last, Timestamp: ts.UTC()}, nil
}

type infoResponse struct {
	Balance     map[string]json.RawMessage `json:"balance"`
	BalanceHold map[string]json.RawMessage `json:"balance_hold"`
}

// FetchBalance reads account balances via getInfo. Total = free + on hold.
func (v *Venue) FetchBalance(ctx context.Context) (venue.Balances, error) {
	var info infoResponse
	if err := v.client.callPrivate(ctx, "getInfo", nil, &info); err != nil {
		return nil, err
	}

	out := make(venue.Balances, len(info.Balance))
	for asset, raw := range info.Balance {
		free, err := parseAmount(raw)
		if err != nil {
			continue
		}
		hold, _ := parseAmount(info.BalanceHold[asset])
		out[strings.ToUpper(asset)] = domain.Balance{Free: free, Total: free.Add(hold)}
	}
	return out, nil
}

// CreateMarketBuyOrder buys spending cost of the quote currency.
func (v *Venue) CreateMarketBuyOrder(ctx context.Context, pair string, cost decimal.Decimal) (*venue.Fill, error) {
	base, quote, err := domain.SplitPair(pair)
	if err != nil {
		return nil, err
	}
	cost = cost.Truncate(quotePlaces(quote))
	if !cost.IsPositive() {
		return nil, &venue.InvalidOrder{Message: "buy cost rounds to zero"}
	}

	params := url.Values{
		"pair":       {tradePair(base, quote)},
		"type":       {"buy"},
		"order_type": {"market"},
	}
	params.Set(strings.ToLower(quote), cost.String())

	ret, err := v.trade(ctx, params)
	if err != nil {
		return nil, err
	}

	filled := ret.amount("receive_" + strings.ToLower(base))
	spent := ret.amount("spend_rp")
	if !spent.Valid {
		spent = decimal.NewNullDecimal(cost)
	}
	return v.fill(ret, pair, domain.SideBuy, filled, spent), nil
}

// CreateMarketSellOrder sells amount of the base asset.
func (v *Venue) CreateMarketSellOrder(ctx context.Context, pair string, amount decimal.Decimal) (*venue.Fill, error) {
	base, quote, err := domain.SplitPair(pair)
	if err != nil {
		return nil, err
	}
	amount = amount.Truncate(baseAmountPlaces)
	if !amount.IsPositive() {
		return nil, &venue.InvalidOrder{Message: "sell amount rounds to zero"}
	}

	params := url.Values{
		"pair":       {tradePair(base, quote)},
		"type":       {"sell"},
		"order_type": {"market"},
	}
	params.Set(strings.ToLower(base), amount.String())

	ret, err := v.trade(ctx, params)
	if err != nil {
		return nil, err
	}

	filled := ret.amount("spend_" + strings.ToLower(base))
	if !filled.Valid {
		filled = decimal.NewNullDecimal(amount)
	}
	received := ret.amount("receive_rp")
	return v.fill(ret, pair, domain.SideSell, filled, received), nil
}

// tradeReturn is the loosely typed "return" object of the trade method.
type tradeReturn map[string]json.RawMessage

func (r tradeReturn) amount(key string) decimal.NullDecimal {
	raw, ok := r[key]
	if !ok {
		return decimal.NullDecimal{}
	}
	d, err := parseAmount(raw)
	if err != nil {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(d)
}

func (r tradeReturn) orderID() string {
	raw, ok := r["order_id"]
	if !ok {
		return ""
	}
	return strings.Trim(string(raw), `"`)
}

func (v *Venue) trade(ctx context.Context, params url.Values) (tradeReturn, error) {
	var ret tradeReturn
	if err := v.client.callPrivate(ctx, "trade", params, &ret); err != nil {
		return nil, err
	}
	return ret, nil
}

func (v *Venue) fill(ret tradeReturn, pair string, side domain.Side, filled, cost decimal.NullDecimal) *venue.Fill {
	f := &venue.Fill{
		OrderID:   ret.orderID(),
		Pair:      pair,
		Side:      side,
		Status:    venue.OrderStatusClosed,
		Filled:    filled,
		Cost:      cost,
		Timestamp: v.now().UTC(),
	}
	if filled.Valid && cost.Valid && filled.Decimal.IsPositive() {
		f.AveragePrice = decimal.NewNullDecimal(cost.Decimal.Div(filled.Decimal))
	}
	if filled.Valid && filled.Decimal.IsZero() {
		f.Status = venue.OrderStatusOpen
	}
	return f
}

// parseAmount accepts both JSON numbers and numeric strings.
func parseAmount(raw json.RawMessage) (decimal.Decimal, error) {
	if len(raw) == 0 {
		return decimal.Zero, fmt.Errorf("empty amount")
	}
	s := strings.Trim(string(raw), `"`)
	if s == "" || s == "null" {
		return decimal.Zero, fmt.Errorf("empty amount")
	}
	return decimal.NewFromString(s)
}

func tradePair(base, quote string) string {
	return strings.ToLower(base) + "_" + strings.ToLower(quote)
}

// quotePlaces returns the precision for quote amounts; rupiah is integral.
func quotePlaces(quote string) int32 {
	if strings.EqualFold(quote, "IDR") {
		return 0
	}
	return 8
}

var _ venue.Venue = (*Venue)(nil)
