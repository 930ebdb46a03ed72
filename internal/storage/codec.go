package storage

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"btc-dca-agent/internal/domain"
)

// stateDoc is the persisted JSON shape of domain.StrategyState.
// Field names keep the legacy single-file layout where one existed.
type stateDoc struct {
	SchemaVersion            int                 `json:"schema_version"`
	Pair                     string              `json:"pair"`
	Version                  int64               `json:"version"`
	OriginalBudget           decimal.NullDecimal `json:"original_strategy_budget"`
	RemainingBudget          decimal.NullDecimal `json:"remaining_budget"`
	ReservedBudget           decimal.Decimal     `json:"reserved_budget"`
	PurchasePrices           []decimal.Decimal   `json:"purchase_prices"`
	TotalBtc                 decimal.Decimal     `json:"total_btc"`
	TotalFiatSpent           decimal.Decimal     `json:"total_fiat_spent"`
	RealizedPnl              decimal.Decimal     `json:"realized_pnl"`
	EquityPeak               decimal.Decimal     `json:"equity_peak"`
	MaxDrawdown              decimal.Decimal     `json:"max_drawdown"`
	TotalTrades              int                 `json:"total_trades"`
	WinningTrades            int                 `json:"winning_trades"`
	ClosedCycles             int                 `json:"closed_cycles"`
	TradeHistory             []tradeDoc          `json:"trade_history"`
	TrailingActive           bool                `json:"trailing_active"`
	HighestPriceSinceTrigger decimal.NullDecimal `json:"highest_price_since_trigger"`
	PendingOrder             *pendingDoc         `json:"pending_order,omitempty"`
	LastReportAt             *time.Time          `json:"last_report_at"`
	UpdatedAt                time.Time           `json:"updated_at"`
}

type tradeDoc struct {
	ID      string              `json:"id,omitempty"`
	Pair    string              `json:"pair,omitempty"`
	Date    string              `json:"date"`
	Type    string              `json:"type"`
	Kind    string              `json:"kind,omitempty"`
	Amount  decimal.Decimal     `json:"amount"`
	Price   decimal.Decimal     `json:"price"`
	Cost    decimal.Decimal     `json:"cost"`
	Profit  decimal.NullDecimal `json:"profit"`
	Partial bool                `json:"partial,omitempty"`
	OrderID string              `json:"order_id,omitempty"`
	DryRun  bool                `json:"dry_run,omitempty"`
}

type pendingDoc struct {
	Side       string          `json:"side"`
	Kind       string          `json:"kind"`
	Requested  decimal.Decimal `json:"requested"`
	Quote      decimal.Decimal `json:"quote"`
	FiatBefore decimal.Decimal `json:"fiat_before"`
	BtcBefore  decimal.Decimal `json:"btc_before"`
	PlacedAt   time.Time       `json:"placed_at"`
}

// legacyTimeLayouts are accepted for trade dates written without a zone.
var legacyTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

// EncodeState returns the canonical JSON encoding of st.
func EncodeState(st *domain.StrategyState) ([]byte, error) {
	doc := stateDoc{
		SchemaVersion:            domain.CurrentSchemaVersion,
		Pair:                     st.Pair,
		Version:                  st.Version,
		OriginalBudget:           st.OriginalBudget,
		RemainingBudget:          st.RemainingBudget,
		ReservedBudget:           st.ReservedBudget,
		PurchasePrices:           make([]decimal.Decimal, 0, len(st.PurchasePrices)),
		TotalBtc:                 st.TotalBtc,
		TotalFiatSpent:           st.TotalFiatSpent,
		RealizedPnl:              st.RealizedPnl,
		EquityPeak:               st.EquityPeak,
		MaxDrawdown:              st.MaxDrawdown,
		TotalTrades:              st.TotalTrades,
		WinningTrades:            st.WinningTrades,
		ClosedCycles:             st.ClosedCycles,
		TradeHistory:             make([]tradeDoc, 0, len(st.TradeHistory)),
		TrailingActive:           st.TrailingActive,
		HighestPriceSinceTrigger: st.HighestPriceSinceTrigger,
		LastReportAt:             st.LastReportAt,
		UpdatedAt:                st.UpdatedAt.UTC(),
	}
	doc.PurchasePrices = append(doc.PurchasePrices, st.PurchasePrices...)
	for _, t := range st.TradeHistory {
		doc.TradeHistory = append(doc.TradeHistory, tradeDoc{
			ID:      t.ID,
			Pair:    t.Pair,
			Date:    t.Timestamp.UTC().Format(time.RFC3339Nano),
			Type:    string(t.Side),
			Kind:    t.Kind,
			Amount:  t.Amount,
			Price:   t.Price,
			Cost:    t.Cost,
			Profit:  t.RealizedProfit,
			Partial: t.Partial,
			OrderID: t.OrderID,
			DryRun:  t.DryRun,
		})
	}
	if p := st.Pending; p != nil {
		doc.PendingOrder = &pendingDoc{
			Side:       string(p.Side),
			Kind:       p.Kind,
			Requested:  p.Requested,
			Quote:      p.Quote,
			FiatBefore: p.FiatBefore,
			BtcBefore:  p.BtcBefore,
			PlacedAt:   p.PlacedAt.UTC(),
		}
	}
	if doc.LastReportAt != nil {
		utc := doc.LastReportAt.UTC()
		doc.LastReportAt = &utc
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode state: %w", err)
	}
	return data, nil
}

// DecodeState decodes a persisted state, merging recognized fields over the defaults
// for pair. Missing fields keep their default; malformed fields keep their default and
// are reported in warnings. Legacy (schema 0) documents are migrated. Only a blob that
// is not a JSON object returns ErrCorruptState.
func DecodeState(data []byte, pair string) (*domain.StrategyState, []string, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrCorruptState, err)
	}

	st := domain.NewStrategyState(pair)
	st.SchemaVersion = 0
	var warnings []string
	d := &decoder{raw: raw, warnings: &warnings}

	decodeField(d, &st.SchemaVersion, "schema_version")
	decodeField(d, &st.Pair, "pair")
	if st.Pair == "" {
		st.Pair = pair
	}
	decodeField(d, &st.Version, "version")
	decodeField(d, &st.OriginalBudget, "original_strategy_budget", "original_budget")
	decodeField(d, &st.RemainingBudget, "remaining_budget")
	decodeField(d, &st.ReservedBudget, "reserved_budget")
	hasPrices := decodeField(d, &st.PurchasePrices, "purchase_prices")
	hasBtc := decodeField(d, &st.TotalBtc, "total_btc")
	decodeField(d, &st.TotalFiatSpent, "total_fiat_spent", "total_idr_spent")
	decodeField(d, &st.RealizedPnl, "realized_pnl")
	decodeField(d, &st.EquityPeak, "equity_peak")
	decodeField(d, &st.MaxDrawdown, "max_drawdown")
	decodeField(d, &st.TotalTrades, "total_trades")
	decodeField(d, &st.WinningTrades, "winning_trades")
	decodeField(d, &st.ClosedCycles, "closed_cycles")
	decodeField(d, &st.TrailingActive, "trailing_active")
	decodeField(d, &st.HighestPriceSinceTrigger, "highest_price_since_trigger", "highest_price")
	decodeField(d, &st.LastReportAt, "last_report_at")
	decodeField(d, &st.UpdatedAt, "updated_at")

	var pending pendingDoc
	if decodeField(d, &pending, "pending_order") {
		side := domain.Side(pending.Side)
		if side == domain.SideBuy || side == domain.SideSell {
			st.Pending = &domain.PendingOrder{
				Side:       side,
				Kind:       pending.Kind,
				Requested:  pending.Requested,
				Quote:      pending.Quote,
				FiatBefore: pending.FiatBefore,
				BtcBefore:  pending.BtcBefore,
				PlacedAt:   pending.PlacedAt.UTC(),
			}
		} else {
			warnings = append(warnings, fmt.Sprintf("pending_order: unknown side %q", pending.Side))
		}
	}

	var history []json.RawMessage
	if decodeField(d, &history, "trade_history") {
		st.TradeHistory = decodeTrades(history, st.Pair, &warnings)
	}

	if len(st.PurchasePrices) == 0 {
		st.PurchasePrices = nil
	}

	if st.SchemaVersion == 0 {
		migrateLegacy(d, st, hasPrices, hasBtc)
	}
	st.SchemaVersion = domain.CurrentSchemaVersion

	return st, warnings, nil
}

type decoder struct {
	raw      map[string]json.RawMessage
	warnings *[]string
}

// decodeField decodes the first present, non-null key into dst.
// Reports whether a value was decoded.
func decodeField[T any](d *decoder, dst *T, keys ...string) bool {
	for _, key := range keys {
		value, ok := d.raw[key]
		if !ok || string(value) == "null" {
			continue
		}
		var v T
		if err := json.Unmarshal(value, &v); err != nil {
			*d.warnings = append(*d.warnings, fmt.Sprintf("field %s: %v", key, err))
			return false
		}
		*dst = v
		return true
	}
	return false
}

func decodeTrades(history []json.RawMessage, pair string, warnings *[]string) []domain.TradeRecord {
	out := make([]domain.TradeRecord, 0, len(history))
	for i, raw := range history {
		var doc tradeDoc
		if err := json.Unmarshal(raw, &doc); err != nil {
			*warnings = append(*warnings, fmt.Sprintf("trade_history[%d]: %v", i, err))
			continue
		}
		ts, err := parseTradeTime(doc.Date)
		if err != nil {
			*warnings = append(*warnings, fmt.Sprintf("trade_history[%d].date: %v", i, err))
		}
		side := domain.Side(strings.ToLower(doc.Type))
		if side != domain.SideBuy && side != domain.SideSell {
			*warnings = append(*warnings, fmt.Sprintf("trade_history[%d].type: unknown side %q", i, doc.Type))
			continue
		}
		if doc.Pair == "" {
			doc.Pair = pair
		}
		cost := doc.Cost
		if cost.IsZero() {
			cost = doc.Amount.Mul(doc.Price)
		}
		out = append(out, domain.TradeRecord{
			ID:             doc.ID,
			Pair:           doc.Pair,
			Timestamp:      ts,
			Side:           side,
			Kind:           doc.Kind,
			Amount:         doc.Amount,
			Price:          doc.Price,
			Cost:           cost,
			RealizedProfit: doc.Profit,
			Partial:        doc.Partial,
			OrderID:        doc.OrderID,
			DryRun:         doc.DryRun,
		})
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func parseTradeTime(s string) (time.Time, error) {
	for _, layout := range legacyTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized time %q", s)
}

// migrateLegacy upgrades a schema-0 document in place: drawdown was stored in percent,
// and the open position was recorded only as a last purchase price plus fiat spent.
func migrateLegacy(d *decoder, st *domain.StrategyState, hasPrices, hasBtc bool) {
	st.MaxDrawdown = st.MaxDrawdown.Div(decimal.NewFromInt(100))

	if !hasPrices {
		var last decimal.NullDecimal
		if decodeField(d, &last, "last_purchase_price") && last.Valid && last.Decimal.IsPositive() {
			st.PurchasePrices = []decimal.Decimal{last.Decimal}
		}
	}
	if len(st.PurchasePrices) > 0 && !hasBtc {
		if st.TotalFiatSpent.IsPositive() {
			st.TotalBtc = st.TotalFiatSpent.Div(st.PurchasePrices[len(st.PurchasePrices)-1])
		} else {
			st.PurchasePrices = nil
		}
	}
}
