package reporting

import (
	"fmt"
	"strings"
	"time"
)

// RenderText renders report as plain text for email.
func RenderText(r *Report) string {
	var sb strings.Builder
	p := r.Performance
	q := r.Quote

	title := r.Subject()
	sb.WriteString(title + "\n")
	sb.WriteString(strings.Repeat("=", len(title)) + "\n")
	sb.WriteString(fmt.Sprintf("Pair: %s\n", r.Pair))
	sb.WriteString(fmt.Sprintf("Generated: %s\n\n", r.GeneratedAt.Format(time.RFC3339)))

	sb.WriteString(fmt.Sprintf("- Initial Balance: %s\n", formatNullMoney(r.InitialBudget, q)))
	sb.WriteString(fmt.Sprintf("- Current Value: %s\n", formatMoney(p.Equity, q)))
	sb.WriteString(fmt.Sprintf("- Average Entry: %s\n", averageEntry(r)))
	sb.WriteString(fmt.Sprintf("- Realized P&L: %s %s (%s)\n",
		formatSigned(p.RealizedPnl, quotePlaces(q)), q, signedPct(p.RealizedPct)))
	sb.WriteString(fmt.Sprintf("- Unrealized P&L: %s %s (%s)\n\n",
		formatSigned(p.UnrealizedPnl, quotePlaces(q)), q, signedPct(p.UnrealizedPct)))

	sb.WriteString("Performance Metrics\n")
	sb.WriteString("-------------------\n")
	sb.WriteString(fmt.Sprintf("- Total Trades: %d\n", p.TotalTrades))
	sb.WriteString(fmt.Sprintf("- Closed Cycles: %d\n", p.ClosedCycles))
	sb.WriteString(fmt.Sprintf("- Win Rate: %s\n", formatFractionPct(p.WinRate)))
	sb.WriteString(fmt.Sprintf("- Max Drawdown: %s\n\n", formatFractionPct(p.MaxDrawdown)))

	sb.WriteString("Market Overview\n")
	sb.WriteString("---------------\n")
	sb.WriteString(fmt.Sprintf("- Current %s Price: %s\n", r.Base, formatMoney(p.Price, q)))
	sb.WriteString(fmt.Sprintf("- Next Buy Trigger: %s\n", formatNullMoney(r.NextDcaTrigger, q)))
	sb.WriteString(fmt.Sprintf("- %s: %s\n\n", exitLabel(r), formatNullMoney(r.Exit.Level, q)))

	sb.WriteString("Recent Activity\n")
	sb.WriteString("---------------\n")
	if len(r.RecentTrades) == 0 {
		sb.WriteString("No trades yet.\n")
	}
	for _, t := range r.RecentTrades {
		sb.WriteString("- " + formatTradeLine(t, r.Base, q) + "\n")
	}

	if s := r.Period; s != nil {
		sb.WriteString("\nSince Last Report\n")
		sb.WriteString("-----------------\n")
		sb.WriteString(fmt.Sprintf("- Buys / Sells: %d / %d\n", s.Buys, s.Sells))
		sb.WriteString(fmt.Sprintf("- Spent / Received: %s / %s\n", formatMoney(s.FiatSpent, q), formatMoney(s.FiatGained, q)))
		sb.WriteString(fmt.Sprintf("- Realized P&L: %s %s\n", formatSigned(s.RealizedPnl, quotePlaces(q)), q))
		if s.Snapshots > 0 {
			sb.WriteString(fmt.Sprintf("- Equity Range: %s .. %s\n", formatMoney(s.EquityLow, q), formatMoney(s.EquityHigh, q)))
			sb.WriteString(fmt.Sprintf("- Period Drawdown: %s\n", formatFractionPct(s.MaxDrawdown)))
		}
	}

	return sb.String()
}

func averageEntry(r *Report) string {
	if !r.Performance.AverageEntry.IsPositive() {
		return notAvailable
	}
	return formatMoney(r.Performance.AverageEntry, r.Quote)
}

func exitLabel(r *Report) string {
	if r.Exit.Label == "" {
		return "Exit"
	}
	return r.Exit.Label
}
