package reporting

import (
	"fmt"
	"strings"
	"time"
)

// RenderMarkdown renders report as Markdown string (Telegram, Discord, HTTP).
func RenderMarkdown(r *Report) string {
	var sb strings.Builder
	p := r.Performance
	q := r.Quote
	places := quotePlaces(q)

	// Header
	sb.WriteString(fmt.Sprintf("# %s\n\n", r.Subject()))
	sb.WriteString(fmt.Sprintf("Pair: **%s** | Generated: %s\n\n", r.Pair, r.GeneratedAt.Format(time.RFC3339)))

	// Balance
	sb.WriteString("## Balance\n\n")
	sb.WriteString("| Metric | Value |\n")
	sb.WriteString("|--------|-------|\n")
	sb.WriteString(fmt.Sprintf("| Initial Balance | %s |\n", formatNullMoney(r.InitialBudget, q)))
	sb.WriteString(fmt.Sprintf("| Current Value | %s |\n", formatMoney(p.Equity, q)))
	sb.WriteString(fmt.Sprintf("| Average Entry | %s |\n", averageEntry(r)))
	sb.WriteString(fmt.Sprintf("| Realized P&L | %s %s (%s) |\n", formatSigned(p.RealizedPnl, places), q, signedPct(p.RealizedPct)))
	sb.WriteString(fmt.Sprintf("| Unrealized P&L | %s %s (%s) |\n", formatSigned(p.UnrealizedPnl, places), q, signedPct(p.UnrealizedPct)))
	sb.WriteString("\n")

	// Performance
	sb.WriteString("## Performance\n\n")
	sb.WriteString("| Trades | Closed Cycles | Win Rate | Max Drawdown |\n")
	sb.WriteString("|--------|---------------|----------|--------------|\n")
	sb.WriteString(fmt.Sprintf("| %d | %d | %s | %s |\n",
		p.TotalTrades, p.ClosedCycles, formatFractionPct(p.WinRate), formatFractionPct(p.MaxDrawdown)))
	sb.WriteString("\n")

	// Market
	sb.WriteString("## Market\n\n")
	sb.WriteString(fmt.Sprintf("- Current %s price: %s\n", r.Base, formatMoney(p.Price, q)))
	sb.WriteString(fmt.Sprintf("- Next buy trigger: %s\n", formatNullMoney(r.NextDcaTrigger, q)))
	sb.WriteString(fmt.Sprintf("- %s: %s\n", exitLabel(r), formatNullMoney(r.Exit.Level, q)))
	sb.WriteString("\n")

	// Recent trades
	sb.WriteString("## Recent Activity\n\n")
	if len(r.RecentTrades) > 0 {
		for _, t := range r.RecentTrades {
			sb.WriteString("- " + formatTradeLine(t, r.Base, q) + "\n")
		}
	} else {
		sb.WriteString("No trades yet.\n")
	}

	if s := r.Period; s != nil {
		sb.WriteString("\n## Since Last Report\n\n")
		sb.WriteString("| Buys | Sells | Spent | Received | Realized P&L | Period Drawdown |\n")
		sb.WriteString("|------|-------|-------|----------|--------------|-----------------|\n")
		sb.WriteString(fmt.Sprintf("| %d | %d | %s | %s | %s | %s |\n",
			s.Buys, s.Sells,
			formatMoney(s.FiatSpent, q), formatMoney(s.FiatGained, q),
			formatSigned(s.RealizedPnl, places), formatFractionPct(s.MaxDrawdown)))
	}

	return sb.String()
}
