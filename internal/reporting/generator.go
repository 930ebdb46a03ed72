package reporting

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"btc-dca-agent/internal/domain"
	"btc-dca-agent/internal/metrics"
	"btc-dca-agent/internal/strategy"
)

// DefaultHistoryTail is the number of trades listed under recent activity.
const DefaultHistoryTail = 3

// Input is the account view a report is rendered from.
type Input struct {
	State *domain.StrategyState
	Fiat  domain.Balance
	Btc   domain.Balance
	Price decimal.Decimal
}

// Generator produces reports from strategy state. It never mutates the state.
type Generator struct {
	policy        strategy.ExitPolicy
	dropThreshold decimal.Decimal
	historyTail   int
	aggregator    *metrics.Aggregator
	log           zerolog.Logger
	now           func() time.Time // Injectable clock for deterministic output
}

// NewGenerator creates a new report generator.
func NewGenerator(policy strategy.ExitPolicy, dropThreshold decimal.Decimal, historyTail int) *Generator {
	if historyTail <= 0 {
		historyTail = DefaultHistoryTail
	}
	return &Generator{
		policy:        policy,
		dropThreshold: dropThreshold,
		historyTail:   historyTail,
		log:           zerolog.Nop(),
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// WithClock sets a custom clock function for deterministic output.
func (g *Generator) WithClock(now func() time.Time) *Generator {
	g.now = now
	return g
}

// WithAggregator adds a journal activity section to every report.
func (g *Generator) WithAggregator(a *metrics.Aggregator) *Generator {
	g.aggregator = a
	return g
}

// WithLogger sets the logger used for journal read failures.
func (g *Generator) WithLogger(log zerolog.Logger) *Generator {
	g.log = log.With().Str("component", "report_generator").Logger()
	return g
}

// Generate builds a report. Empty trade history is not an error.
func (g *Generator) Generate(ctx context.Context, in Input) (*Report, error) {
	st := in.State
	base, quote, err := domain.SplitPair(st.Pair)
	if err != nil {
		return nil, err
	}
	now := g.now()

	r := &Report{
		Pair:          st.Pair,
		Base:          base,
		Quote:         quote,
		GeneratedAt:   now,
		InitialBudget: st.OriginalBudget,
		Performance:   metrics.Summarize(st, in.Fiat, in.Btc, in.Price),
		RecentTrades:  st.RecentTrades(g.historyTail),
	}

	averaging := strategy.AveragingEngine{DropThreshold: g.dropThreshold}
	if next, ok := averaging.NextTrigger(st); ok {
		r.NextDcaTrigger = decimal.NewNullDecimal(next)
	}
	if g.policy != nil {
		r.Exit = g.policy.Status(st)
	}

	if g.aggregator != nil {
		var since time.Time
		if st.LastReportAt != nil {
			since = *st.LastReportAt
		}
		stats, err := g.aggregator.ComputeWindow(ctx, st.Pair, since, now)
		switch {
		case err == nil:
			r.Period = stats
		case errors.Is(err, metrics.ErrNoData):
		default:
			g.log.Warn().Err(err).Str("pair", st.Pair).Msg("journal window unavailable, omitting period section")
		}
	}

	return r, nil
}
