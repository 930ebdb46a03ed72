package reporting

import (
	"time"

	"github.com/shopspring/decimal"

	"btc-dca-agent/internal/domain"
	"btc-dca-agent/internal/metrics"
	"btc-dca-agent/internal/strategy"
)

// SubjectPrefix starts every report subject line.
const SubjectPrefix = "Biweekly Trading Report"

// Report is the periodic performance summary for one pair.
type Report struct {
	// Metadata
	Pair        string
	Base        string
	Quote       string
	GeneratedAt time.Time

	// Budget & P&L
	InitialBudget decimal.NullDecimal // null between cycles
	Performance   metrics.Performance

	// Market overview
	NextDcaTrigger decimal.NullDecimal // null without an open position
	Exit           strategy.ExitStatus

	// Last N trades, oldest first
	RecentTrades []domain.TradeRecord

	// Journal activity since the previous report, nil when no journal is configured
	Period *metrics.WindowStats
}

// Subject returns the notification subject line.
func (r *Report) Subject() string {
	return SubjectPrefix + " - " + r.GeneratedAt.Format("2006-01-02")
}
