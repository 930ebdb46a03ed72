package binance

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"btc-dca-agent/internal/venue"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// newMockVenue serves a minimal spot API and records the last order form.
func newMockVenue(t *testing.T, orderStatus int, orderBody any) (*Venue, url.Values) {
	t.Helper()
	lastOrder := url.Values{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var resp any
		status := http.StatusOK

		switch r.URL.Path {
		case "/api/v3/account":
			resp = map[string]any{
				"balances": []map[string]string{
					{"asset": "BTC", "free": "0.01000000", "locked": "0.00200000"},
					{"asset": "USDT", "free": "1500.50", "locked": "0"},
				},
			}
		case "/api/v3/ticker/price":
			resp = []map[string]string{{"symbol": r.URL.Query().Get("symbol"), "price": "65000.12"}}
		case "/api/v3/order":
			_ = r.ParseForm()
			for k, vs := range r.Form {
				lastOrder[k] = vs
			}
			status = orderStatus
			resp = orderBody
		default:
			resp = map[string]any{}
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)

	return New(Config{APIKey: "k", SecretKey: "s", BaseURL: srv.URL}), lastOrder
}

func TestFetchBalance(t *testing.T) {
	v, _ := newMockVenue(t, http.StatusOK, nil)

	bal, err := v.FetchBalance(context.Background())
	require.NoError(t, err)
	assert.True(t, bal.Get("BTC").Free.Equal(d("0.01")))
	assert.True(t, bal.Get("BTC").Total.Equal(d("0.012")))
	assert.True(t, bal.Get("USDT").Free.Equal(d("1500.5")))
}

func TestFetchTicker(t *testing.T) {
	v, _ := newMockVenue(t, http.StatusOK, nil)

	ticker, err := v.FetchTicker(context.Background(), "BTC/USDT")
	require.NoError(t, err)
	assert.Equal(t, "BTC/USDT", ticker.Pair)
	assert.True(t, ticker.Last.Equal(d("65000.12")))
}

func TestCreateMarketBuyOrder(t *testing.T) {
	v, last := newMockVenue(t, http.StatusOK, map[string]any{
		"symbol":              "BTCUSDT",
		"orderId":             28,
		"transactTime":        1507725176595,
		"executedQty":         "0.01538000",
		"cummulativeQuoteQty": "999.70000000",
		"status":              "FILLED",
		"type":                "MARKET",
		"side":                "BUY",
	})

	fill, err := v.CreateMarketBuyOrder(context.Background(), "BTC/USDT", d("1000"))
	require.NoError(t, err)

	assert.Equal(t, "BTCUSDT", last.Get("symbol"))
	assert.Equal(t, "BUY", last.Get("side"))
	assert.Equal(t, "MARKET", last.Get("type"))
	assert.Equal(t, "1000.00000000", last.Get("quoteOrderQty"))

	assert.Equal(t, "28", fill.OrderID)
	assert.Equal(t, venue.OrderStatusClosed, fill.Status)
	assert.True(t, fill.Filled.Decimal.Equal(d("0.01538")))
	assert.True(t, fill.Cost.Decimal.Equal(d("999.7")))
	assert.True(t, fill.AveragePrice.Decimal.Equal(d("65000")))
	assert.Equal(t, int64(1507725176595), fill.Timestamp.UnixMilli())
}

func TestCreateMarketSellOrder_TruncatesQuantity(t *testing.T) {
	v, last := newMockVenue(t, http.StatusOK, map[string]any{
		"orderId":             29,
		"executedQty":         "0.01234000",
		"cummulativeQuoteQty": "802.10000000",
		"status":              "FILLED",
	})

	fill, err := v.CreateMarketSellOrder(context.Background(), "BTC/USDT", d("0.012349"))
	require.NoError(t, err)
	assert.Equal(t, "0.01234", last.Get("quantity"))
	assert.True(t, fill.Filled.Decimal.Equal(d("0.01234")))
}

func TestCreateMarketSellOrder_DustRejected(t *testing.T) {
	v, _ := newMockVenue(t, http.StatusOK, nil)

	_, err := v.CreateMarketSellOrder(context.Background(), "BTC/USDT", d("0.000001"))
	assert.True(t, venue.IsRejected(err))
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		name  string
		code  int
		msg   string
		check func(error) bool
	}{
		{"insufficient balance", -2010, "Account has insufficient balance for requested action.", venue.IsRejected},
		{"filter failure", -1013, "Filter failure: NOTIONAL", venue.IsRejected},
		{"too many requests", -1003, "Too many requests", venue.IsTransient},
		{"bad key", -2015, "Invalid API-key, IP, or permissions for action.", func(err error) bool {
			return !venue.IsRejected(err) && !venue.IsTransient(err)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, _ := newMockVenue(t, http.StatusBadRequest, map[string]any{"code": tt.code, "msg": tt.msg})

			_, err := v.CreateMarketBuyOrder(context.Background(), "BTC/USDT", d("10"))
			require.Error(t, err)
			assert.True(t, tt.check(err), "unexpected classification: %v", err)
		})
	}
}

func TestToSymbol(t *testing.T) {
	s, err := toSymbol("btc/usdt")
	require.NoError(t, err)
	assert.Equal(t, "BTCUSDT", s)

	_, err = toSymbol("BTCUSDT")
	assert.Error(t, err)
}
