package reporting

import (
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/shopspring/decimal"

	"btc-dca-agent/internal/domain"
)

const notAvailable = "n/a"

// zeroDecimalQuotes are quote currencies displayed without fractional digits.
var zeroDecimalQuotes = map[string]bool{"IDR": true, "JPY": true, "KRW": true, "VND": true}

func quotePlaces(quote string) int32 {
	if zeroDecimalQuotes[quote] {
		return 0
	}
	return 2
}

// formatAmount renders v rounded to places with thousands separators.
func formatAmount(v decimal.Decimal, places int32) string {
	rounded := v.Round(places)
	neg := rounded.IsNegative()
	rounded = rounded.Abs()

	out := humanize.Comma(rounded.IntPart())
	if places > 0 {
		fixed := rounded.StringFixed(places)
		out += fixed[strings.IndexByte(fixed, '.'):]
	}
	if neg {
		return "-" + out
	}
	return out
}

// formatSigned is formatAmount with an explicit "+" on non-negative values.
func formatSigned(v decimal.Decimal, places int32) string {
	s := formatAmount(v, places)
	if !strings.HasPrefix(s, "-") {
		return "+" + s
	}
	return s
}

func formatMoney(v decimal.Decimal, quote string) string {
	return formatAmount(v, quotePlaces(quote)) + " " + quote
}

func formatNullMoney(v decimal.NullDecimal, quote string) string {
	if !v.Valid {
		return notAvailable
	}
	return formatMoney(v.Decimal, quote)
}

// formatPct renders a percentage value (already scaled by 100) with one decimal.
func formatPct(v decimal.Decimal) string {
	return v.StringFixed(1) + "%"
}

// signedPct renders a percentage value with an explicit sign.
func signedPct(v decimal.Decimal) string {
	s := formatPct(v)
	if !strings.HasPrefix(s, "-") {
		return "+" + s
	}
	return s
}

// formatFractionPct renders a fraction (0.05) as a percentage (5.0%).
func formatFractionPct(v decimal.Decimal) string {
	return formatPct(v.Mul(decimal.NewFromInt(100)))
}

// formatTradeLine renders "YYYY-MM-DD: SIDE amount BASE @ price QUOTE".
func formatTradeLine(t domain.TradeRecord, base, quote string) string {
	return t.Timestamp.UTC().Format("2006-01-02") + ": " +
		strings.ToUpper(string(t.Side)) + " " +
		t.Amount.StringFixed(5) + " " + base + " @ " +
		formatMoney(t.Price, quote)
}
