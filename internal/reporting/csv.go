package reporting

import (
	"encoding/csv"
	"io"
	"strconv"
	"time"

	"btc-dca-agent/internal/domain"
)

var csvHeader = []string{
	"id", "pair", "timestamp", "side", "kind",
	"amount", "price", "cost", "realized_profit",
	"partial", "order_id", "dry_run",
}

// WriteTradesCSV writes the trade history as CSV, one row per trade.
func WriteTradesCSV(w io.Writer, trades []domain.TradeRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}

	for _, t := range trades {
		profit := ""
		if t.RealizedProfit.Valid {
			profit = t.RealizedProfit.Decimal.String()
		}
		row := []string{
			t.ID,
			t.Pair,
			t.Timestamp.UTC().Format(time.RFC3339),
			string(t.Side),
			t.Kind,
			t.Amount.String(),
			t.Price.String(),
			t.Cost.String(),
			profit,
			strconv.FormatBool(t.Partial),
			t.OrderID,
			strconv.FormatBool(t.DryRun),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}
