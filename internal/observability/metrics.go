// Package observability provides Prometheus metrics and structured logging.
package observability

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/push"

	"btc-dca-agent/internal/domain"
	"btc-dca-agent/internal/metrics"
)

// Tick outcome labels.
const (
	TickOK        = "ok"
	TickTransient = "transient"
	TickFailed    = "failed"
)

// Order outcome labels.
const (
	OrderFilled   = "filled"
	OrderRejected = "rejected"
	OrderFailed   = "failed"
)

// Metrics holds all Prometheus metrics for the bot. Each instance owns its registry.
type Metrics struct {
	registry *prometheus.Registry

	// Tick metrics
	TicksTotal   *prometheus.CounterVec
	TickDuration prometheus.Histogram
	LastTick     prometheus.Gauge

	// Order metrics
	OrdersTotal *prometheus.CounterVec
	FiatVolume  *prometheus.CounterVec

	// Account & strategy gauges
	Price           prometheus.Gauge
	Equity          prometheus.Gauge
	EquityPeak      prometheus.Gauge
	Drawdown        prometheus.Gauge
	MaxDrawdown     prometheus.Gauge
	PositionBtc     prometheus.Gauge
	RemainingBudget prometheus.Gauge
	RealizedPnl     prometheus.Gauge
	UnrealizedPnl   prometheus.Gauge
	TrailingActive  prometheus.Gauge

	// Venue metrics
	VenueLatency *prometheus.HistogramVec
	VenueErrors  *prometheus.CounterVec

	// Storage metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec

	// Reporting metrics
	ReportsSent          prometheus.Counter
	NotificationFailures prometheus.Counter
}

// NewMetrics creates a new Metrics instance registered on a fresh registry.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "dca_bot"
	}

	reg := prometheus.NewRegistry()
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,

		// Tick metrics
		TicksTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tick",
			Name:      "runs_total",
			Help:      "Total number of ticks by outcome",
		}, []string{"status"}),
		TickDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "tick",
			Name:      "duration_seconds",
			Help:      "Tick execution duration in seconds",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
		LastTick: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_tick_timestamp",
			Help:      "Unix timestamp of last successful tick",
		}),

		// Order metrics
		OrdersTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "orders",
			Name:      "total",
			Help:      "Total number of market orders by kind and outcome",
		}, []string{"kind", "status"}),
		FiatVolume: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "orders",
			Name:      "fiat_volume_total",
			Help:      "Quote currency spent (buy) or received (sell)",
		}, []string{"side"}),

		// Account & strategy gauges
		Price:           gauge(f, namespace, "price", "Last price used by the tick"),
		Equity:          gauge(f, namespace, "equity", "Free fiat plus BTC valued at price"),
		EquityPeak:      gauge(f, namespace, "equity_peak", "Highest equity observed"),
		Drawdown:        gauge(f, namespace, "drawdown_ratio", "Current drawdown from peak as a fraction"),
		MaxDrawdown:     gauge(f, namespace, "max_drawdown_ratio", "Worst drawdown observed as a fraction"),
		PositionBtc:     gauge(f, namespace, "position_btc", "BTC held by the open position"),
		RemainingBudget: gauge(f, namespace, "remaining_budget", "Fiat left in the cycle budget"),
		RealizedPnl:     gauge(f, namespace, "realized_pnl", "Lifetime realized profit"),
		UnrealizedPnl:   gauge(f, namespace, "unrealized_pnl", "Open position marked to price"),
		TrailingActive:  gauge(f, namespace, "trailing_active", "1 when the trailing stop is armed"),

		// Venue metrics
		VenueLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "venue",
			Name:      "request_latency_seconds",
			Help:      "Venue API call latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"venue", "method"}),
		VenueErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "venue",
			Name:      "errors_total",
			Help:      "Venue API errors by class",
		}, []string{"venue", "method", "class"}),

		// Storage metrics
		DBQueryDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Storage operation duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"database", "operation"}),
		DBQueryErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total number of storage operation errors",
		}, []string{"database", "operation"}),

		// Reporting metrics
		ReportsSent: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "report",
			Name:      "sent_total",
			Help:      "Total number of reports delivered",
		}),
		NotificationFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "report",
			Name:      "notification_failures_total",
			Help:      "Total number of failed report deliveries",
		}),
	}
}

func gauge(f promauto.Factory, namespace, name, help string) prometheus.Gauge {
	return f.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "strategy",
		Name:      name,
		Help:      help,
	})
}

// WithRuntimeCollectors adds Go runtime and process collectors (long-running serve mode).
func (m *Metrics) WithRuntimeCollectors() *Metrics {
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the registry the metrics are registered on.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler returns an HTTP handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Push sends the current values to a Prometheus pushgateway under job.
// Used by one-shot tick runs that exit before any scrape.
func (m *Metrics) Push(ctx context.Context, url, job string) error {
	if err := push.New(url, job).Gatherer(m.registry).PushContext(ctx); err != nil {
		return fmt.Errorf("push metrics to %s: %w", url, err)
	}
	return nil
}

// RecordTick records a tick outcome.
func (m *Metrics) RecordTick(status string, d time.Duration, finishedAt time.Time) {
	m.TicksTotal.WithLabelValues(status).Inc()
	m.TickDuration.Observe(d.Seconds())
	if status == TickOK {
		m.LastTick.Set(float64(finishedAt.Unix()))
	}
}

// RecordOrder records one order attempt. rec is nil unless the order filled.
func (m *Metrics) RecordOrder(kind, status string, rec *domain.TradeRecord) {
	m.OrdersTotal.WithLabelValues(kind, status).Inc()
	if rec != nil {
		m.FiatVolume.WithLabelValues(string(rec.Side)).Add(rec.Cost.InexactFloat64())
	}
}

// RecordPerformance sets the account and strategy gauges.
func (m *Metrics) RecordPerformance(p metrics.Performance, st *domain.StrategyState) {
	m.Price.Set(p.Price.InexactFloat64())
	m.Equity.Set(p.Equity.InexactFloat64())
	m.EquityPeak.Set(p.EquityPeak.InexactFloat64())
	m.Drawdown.Set(p.Drawdown.InexactFloat64())
	m.MaxDrawdown.Set(p.MaxDrawdown.InexactFloat64())
	m.PositionBtc.Set(p.PositionBtc.InexactFloat64())
	m.RemainingBudget.Set(st.Remaining().InexactFloat64())
	m.RealizedPnl.Set(p.RealizedPnl.InexactFloat64())
	m.UnrealizedPnl.Set(p.UnrealizedPnl.InexactFloat64())
	if st.TrailingActive {
		m.TrailingActive.Set(1)
	} else {
		m.TrailingActive.Set(0)
	}
}

// RecordReport records a report delivery attempt.
func (m *Metrics) RecordReport(err error) {
	if err != nil {
		m.NotificationFailures.Inc()
		return
	}
	m.ReportsSent.Inc()
}

// RecordDBQuery records storage operation metrics.
func (m *Metrics) RecordDBQuery(database, operation string, seconds float64, err error) {
	m.DBQueryDuration.WithLabelValues(database, operation).Observe(seconds)
	if err != nil {
		m.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}
