package observability

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"btc-dca-agent/internal/domain"
	"btc-dca-agent/internal/storage"
	"btc-dca-agent/internal/venue"
)

// instrumentedVenue records latency and error class for every venue call.
type instrumentedVenue struct {
	next venue.Venue
	m    *Metrics
}

// InstrumentVenue wraps v with request metrics.
func InstrumentVenue(v venue.Venue, m *Metrics) venue.Venue {
	return &instrumentedVenue{next: v, m: m}
}

func (iv *instrumentedVenue) observe(method string, start time.Time, err error) {
	name := iv.next.Name()
	iv.m.VenueLatency.WithLabelValues(name, method).Observe(time.Since(start).Seconds())
	if err != nil {
		iv.m.VenueErrors.WithLabelValues(name, method, errorClass(err)).Inc()
	}
}

func (iv *instrumentedVenue) Name() string { return iv.next.Name() }

func (iv *instrumentedVenue) FetchBalance(ctx context.Context) (venue.Balances, error) {
	start := time.Now()
	b, err := iv.next.FetchBalance(ctx)
	iv.observe("fetch_balance", start, err)
	return b, err
}

func (iv *instrumentedVenue) FetchTicker(ctx context.Context, pair string) (venue.Ticker, error) {
	start := time.Now()
	t, err := iv.next.FetchTicker(ctx, pair)
	iv.observe("fetch_ticker", start, err)
	return t, err
}

func (iv *instrumentedVenue) CreateMarketBuyOrder(ctx context.Context, pair string, cost decimal.Decimal) (*venue.Fill, error) {
	start := time.Now()
	f, err := iv.next.CreateMarketBuyOrder(ctx, pair, cost)
	iv.observe("market_buy", start, err)
	return f, err
}

func (iv *instrumentedVenue) CreateMarketSellOrder(ctx context.Context, pair string, amount decimal.Decimal) (*venue.Fill, error) {
	start := time.Now()
	f, err := iv.next.CreateMarketSellOrder(ctx, pair, amount)
	iv.observe("market_sell", start, err)
	return f, err
}

func errorClass(err error) string {
	var authErr *venue.AuthenticationError
	switch {
	case venue.IsTransient(err):
		return "transient"
	case venue.IsRejected(err):
		return "rejected"
	case errors.As(err, &authErr):
		return "auth"
	default:
		return "other"
	}
}

// instrumentedStore records duration and errors for state store calls.
type instrumentedStore struct {
	next     storage.StateStore
	m        *Metrics
	database string
}

// InstrumentStateStore wraps s with storage metrics labeled database.
func InstrumentStateStore(s storage.StateStore, m *Metrics, database string) storage.StateStore {
	return &instrumentedStore{next: s, m: m, database: database}
}

func (is *instrumentedStore) Load(ctx context.Context, pair string) (*domain.StrategyState, error) {
	start := time.Now()
	st, err := is.next.Load(ctx, pair)
	// A missing record is the first-run path, not a storage failure.
	recorded := err
	if errors.Is(err, storage.ErrNotFound) {
		recorded = nil
	}
	is.m.RecordDBQuery(is.database, "load_state", time.Since(start).Seconds(), recorded)
	return st, err
}

func (is *instrumentedStore) Save(ctx context.Context, st *domain.StrategyState) error {
	start := time.Now()
	err := is.next.Save(ctx, st)
	is.m.RecordDBQuery(is.database, "save_state", time.Since(start).Seconds(), err)
	return err
}

var (
	_ venue.Venue        = (*instrumentedVenue)(nil)
	_ storage.StateStore = (*instrumentedStore)(nil)
)
