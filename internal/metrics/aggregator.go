package metrics

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"btc-dca-agent/internal/domain"
	"btc-dca-agent/internal/storage"
)

// ErrNoData is returned when the journal holds nothing for the window.
var ErrNoData = errors.New("no journal data in window")

// WindowStats summarizes journal activity for one pair over [Start, End].
type WindowStats struct {
	Pair  string
	Start time.Time
	End   time.Time

	Buys       int
	Sells      int
	FiatSpent  decimal.Decimal
	FiatGained decimal.Decimal
	BtcBought  decimal.Decimal
	BtcSold    decimal.Decimal

	RealizedPnl          decimal.Decimal
	ClosedCycles         int
	WinningCycles        int
	WinRate              decimal.Decimal
	MaxConsecutiveLosses int

	Snapshots   int
	EquityStart decimal.Decimal
	EquityEnd   decimal.Decimal
	EquityHigh  decimal.Decimal
	EquityLow   decimal.Decimal
	MaxDrawdown decimal.Decimal // within the window, fraction
}

// Aggregator computes window statistics from the trade and equity journals.
type Aggregator struct {
	trades storage.TradeJournal
	equity storage.EquityJournal
}

// NewAggregator creates a new journal aggregator.
func NewAggregator(trades storage.TradeJournal, equity storage.EquityJournal) *Aggregator {
	return &Aggregator{trades: trades, equity: equity}
}

// ComputeWindow loads trades and snapshots for pair in [start, end] and summarizes them.
// Returns ErrNoData if the window holds neither.
func (a *Aggregator) ComputeWindow(ctx context.Context, pair string, start, end time.Time) (*WindowStats, error) {
	all, err := a.trades.GetTradesByPair(ctx, pair)
	if err != nil {
		return nil, err
	}
	var trades []domain.TradeRecord
	for _, t := range all {
		if t.Timestamp.Before(start) || t.Timestamp.After(end) {
			continue
		}
		trades = append(trades, t)
	}

	snaps, err := a.equity.GetSnapshots(ctx, pair, start, end)
	if err != nil {
		return nil, err
	}

	if len(trades) == 0 && len(snaps) == 0 {
		return nil, ErrNoData
	}

	stats := computeTradeStats(sortTrades(trades))
	stats.Pair = pair
	stats.Start = start
	stats.End = end
	applyEquityStats(stats, snaps)
	return stats, nil
}

func computeTradeStats(trades []domain.TradeRecord) *WindowStats {
	s := &WindowStats{}
	for _, t := range trades {
		if t.IsBuy() {
			s.Buys++
			s.FiatSpent = s.FiatSpent.Add(t.Cost)
			s.BtcBought = s.BtcBought.Add(t.Amount)
			continue
		}
		s.Sells++
		s.FiatGained = s.FiatGained.Add(t.Cost)
		s.BtcSold = s.BtcSold.Add(t.Amount)
		if t.RealizedProfit.Valid {
			s.RealizedPnl = s.RealizedPnl.Add(t.RealizedProfit.Decimal)
		}
		if !t.Partial {
			s.ClosedCycles++
			if t.RealizedProfit.Valid && t.RealizedProfit.Decimal.IsPositive() {
				s.WinningCycles++
			}
		}
	}
	s.WinRate = computeWinRate(s.WinningCycles, s.ClosedCycles)
	s.MaxConsecutiveLosses = computeMaxConsecutiveLosses(trades)
	return s
}

// applyEquityStats fills the equity fields. snaps must be ordered by timestamp ASC.
func applyEquityStats(s *WindowStats, snaps []*domain.EquitySnapshot) {
	s.Snapshots = len(snaps)
	if len(snaps) == 0 {
		return
	}

	series := make([]decimal.Decimal, len(snaps))
	s.EquityHigh = snaps[0].Equity
	s.EquityLow = snaps[0].Equity
	for i, snap := range snaps {
		series[i] = snap.Equity
		s.EquityHigh = decimal.Max(s.EquityHigh, snap.Equity)
		s.EquityLow = decimal.Min(s.EquityLow, snap.Equity)
	}
	s.EquityStart = series[0]
	s.EquityEnd = series[len(series)-1]
	s.MaxDrawdown = computeMaxDrawdown(series)
}
