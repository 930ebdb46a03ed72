package metrics

import (
	"sort"

	"github.com/shopspring/decimal"

	"btc-dca-agent/internal/domain"
)

var hundred = decimal.NewFromInt(100)

// computeEquity values the account: free fiat plus the whole BTC holding at price.
func computeEquity(freeFiat, btcTotal, price decimal.Decimal) decimal.Decimal {
	return freeFiat.Add(btcTotal.Mul(price))
}

// computeDrawdown returns (peak - equity) / peak as a fraction.
// Zero when peak is not positive or equity is above peak.
func computeDrawdown(peak, equity decimal.Decimal) decimal.Decimal {
	if !peak.IsPositive() {
		return decimal.Zero
	}
	dd := peak.Sub(equity).Div(peak)
	if dd.IsNegative() {
		return decimal.Zero
	}
	return dd
}

// computeWinRate calculates win rate as wins / closed.
func computeWinRate(wins, closed int) decimal.Decimal {
	if closed == 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(int64(wins)).Div(decimal.NewFromInt(int64(closed)))
}

// computeUnrealizedPnl marks the open position to price.
func computeUnrealizedPnl(totalBtc, totalSpent, price decimal.Decimal) decimal.Decimal {
	return totalBtc.Mul(price).Sub(totalSpent)
}

// computePercentOf returns value / base * 100, zero when base is not positive.
func computePercentOf(value, base decimal.Decimal) decimal.Decimal {
	if !base.IsPositive() {
		return decimal.Zero
	}
	return value.Div(base).Mul(hundred)
}

// computeMaxDrawdown calculates worst peak-to-trough on an equity series.
// Result is a fraction of the running peak. Series must be in chronological order.
func computeMaxDrawdown(equity []decimal.Decimal) decimal.Decimal {
	peak := decimal.Zero
	maxDD := decimal.Zero
	for _, e := range equity {
		if e.GreaterThan(peak) {
			peak = e
		}
		if dd := computeDrawdown(peak, e); dd.GreaterThan(maxDD) {
			maxDD = dd
		}
	}
	return maxDD
}

// computeMaxConsecutiveLosses finds the longest streak of cycle-closing sells
// with profit <= 0. Partial sells are ignored. Trades must be in chronological order.
func computeMaxConsecutiveLosses(trades []domain.TradeRecord) int {
	maxStreak := 0
	currentStreak := 0

	for _, t := range trades {
		if t.IsBuy() || t.Partial || !t.RealizedProfit.Valid {
			continue
		}
		if !t.RealizedProfit.Decimal.IsPositive() {
			currentStreak++
			if currentStreak > maxStreak {
				maxStreak = currentStreak
			}
		} else {
			currentStreak = 0
		}
	}
	return maxStreak
}

// sortTrades orders trades by Timestamp ASC, ID ASC.
func sortTrades(trades []domain.TradeRecord) []domain.TradeRecord {
	sorted := make([]domain.TradeRecord, len(trades))
	copy(sorted, trades)
	sort.SliceStable(sorted, func(i, j int) bool {
		if !sorted[i].Timestamp.Equal(sorted[j].Timestamp) {
			return sorted[i].Timestamp.Before(sorted[j].Timestamp)
		}
		return sorted[i].ID < sorted[j].ID
	})
	return sorted
}
