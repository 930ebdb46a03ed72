// Package api serves the bot's health, metrics, status and report endpoints.
package api

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"btc-dca-agent/internal/domain"
	"btc-dca-agent/internal/metrics"
	"btc-dca-agent/internal/orchestrator"
	"btc-dca-agent/internal/reporting"
	"btc-dca-agent/internal/storage"
	"btc-dca-agent/internal/venue"
)

// ErrTickInProgress is returned when a tick is requested while one is running.
var ErrTickInProgress = errors.New("tick already in progress")

// Bot is the tick runner the server exposes.
type Bot interface {
	Run(ctx context.Context) (*orchestrator.RunResult, error)
	Status(ctx context.Context) (*domain.StrategyState, metrics.Performance, error)
	ReportInput(ctx context.Context) (reporting.Input, error)
}

// Server wraps the gin router and serializes ticks.
type Server struct {
	router    *gin.Engine
	bot       Bot
	generator *reporting.Generator
	log       zerolog.Logger
	now       func() time.Time

	tickMu sync.Mutex

	mu        sync.RWMutex
	started   time.Time
	lastTick  time.Time
	lastError string
	ticks     int
}

// NewServer builds the router. metricsHandler serves /metrics.
func NewServer(bot Bot, gen *reporting.Generator, metricsHandler http.Handler, log zerolog.Logger) *Server {
	s := &Server{
		router:    gin.New(),
		bot:       bot,
		generator: gen,
		log:       log.With().Str("component", "api").Logger(),
		now:       time.Now,
	}
	s.started = s.now()

	s.router.Use(gin.Recovery(), s.requestLogger())
	s.router.GET("/health", s.handleHealth)
	s.router.GET("/metrics", gin.WrapH(metricsHandler))
	s.router.GET("/status", s.handleStatus)
	s.router.GET("/report", s.handleReport)
	s.router.GET("/trades.csv", s.handleTradesCSV)
	s.router.POST("/tick", s.handleTick)
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler { return s.router }

// Tick runs one tick unless another is in flight.
func (s *Server) Tick(ctx context.Context) (*orchestrator.RunResult, error) {
	if !s.tickMu.TryLock() {
		return nil, ErrTickInProgress
	}
	defer s.tickMu.Unlock()

	res, err := s.bot.Run(ctx)

	s.mu.Lock()
	s.ticks++
	if err != nil {
		s.lastError = err.Error()
	} else {
		s.lastTick = s.now()
		s.lastError = ""
	}
	s.mu.Unlock()
	return res, err
}

// ListenAndServe serves on addr until ctx is done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", addr).Msg("http server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Debug().
			Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Msg("request")
	}
}

// HealthResponse is the JSON response for /health.
type HealthResponse struct {
	Status    string    `json:"status"`
	Uptime    string    `json:"uptime"`
	Ticks     int       `json:"ticks"`
	LastTick  time.Time `json:"last_tick,omitempty"`
	LastError string    `json:"last_error,omitempty"`
}

func (s *Server) handleHealth(c *gin.Context) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c.JSON(http.StatusOK, HealthResponse{
		Status:    "ok",
		Uptime:    s.now().Sub(s.started).Round(time.Second).String(),
		Ticks:     s.ticks,
		LastTick:  s.lastTick,
		LastError: s.lastError,
	})
}

// StatusResponse is the JSON response for /status.
type StatusResponse struct {
	Pair            string              `json:"pair"`
	Price           decimal.Decimal     `json:"price"`
	Equity          decimal.Decimal     `json:"equity"`
	EquityPeak      decimal.Decimal     `json:"equity_peak"`
	Drawdown        decimal.Decimal     `json:"drawdown"`
	MaxDrawdown     decimal.Decimal     `json:"max_drawdown"`
	PositionBtc     decimal.Decimal     `json:"position_btc"`
	AverageEntry    decimal.Decimal     `json:"average_entry"`
	RemainingBudget decimal.NullDecimal `json:"remaining_budget"`
	RealizedPnl     decimal.Decimal     `json:"realized_pnl"`
	UnrealizedPnl   decimal.Decimal     `json:"unrealized_pnl"`
	TotalTrades     int                 `json:"total_trades"`
	ClosedCycles    int                 `json:"closed_cycles"`
	WinRate         decimal.Decimal     `json:"win_rate"`
	TrailingActive  bool                `json:"trailing_active"`
	LastReportAt    *time.Time          `json:"last_report_at,omitempty"`
	Version         int64               `json:"version"`
}

func (s *Server) handleStatus(c *gin.Context) {
	st, perf, err := s.bot.Status(c.Request.Context())
	if err != nil {
		s.abort(c, err)
		return
	}
	c.JSON(http.StatusOK, StatusResponse{
		Pair:            st.Pair,
		Price:           perf.Price,
		Equity:          perf.Equity,
		EquityPeak:      perf.EquityPeak,
		Drawdown:        perf.Drawdown,
		MaxDrawdown:     perf.MaxDrawdown,
		PositionBtc:     perf.PositionBtc,
		AverageEntry:    perf.AverageEntry,
		RemainingBudget: st.RemainingBudget,
		RealizedPnl:     perf.RealizedPnl,
		UnrealizedPnl:   perf.UnrealizedPnl,
		TotalTrades:     perf.TotalTrades,
		ClosedCycles:    perf.ClosedCycles,
		WinRate:         perf.WinRate,
		TrailingActive:  st.TrailingActive,
		LastReportAt:    st.LastReportAt,
		Version:         st.Version,
	})
}

func (s *Server) handleReport(c *gin.Context) {
	in, err := s.bot.ReportInput(c.Request.Context())
	if err != nil {
		s.abort(c, err)
		return
	}
	rep, err := s.generator.Generate(c.Request.Context(), in)
	if err != nil {
		s.abort(c, err)
		return
	}
	if c.Query("format") == "text" {
		c.Data(http.StatusOK, "text/plain; charset=utf-8", []byte(reporting.RenderText(rep)))
		return
	}
	c.Data(http.StatusOK, "text/markdown; charset=utf-8", []byte(reporting.RenderMarkdown(rep)))
}

func (s *Server) handleTradesCSV(c *gin.Context) {
	st, _, err := s.bot.Status(c.Request.Context())
	if st == nil {
		s.abort(c, err)
		return
	}
	c.Header("Content-Type", "text/csv; charset=utf-8")
	c.Header("Content-Disposition", `attachment; filename="trades.csv"`)
	c.Status(http.StatusOK)
	if err := reporting.WriteTradesCSV(c.Writer, st.TradeHistory); err != nil {
		s.log.Error().Err(err).Msg("write trades csv")
	}
}

// TickResponse is the JSON response for POST /tick.
type TickResponse struct {
	TickID       string          `json:"tick_id"`
	Price        decimal.Decimal `json:"price"`
	Actions      []string        `json:"actions"`
	Rejected     []string        `json:"rejected,omitempty"`
	Equity       decimal.Decimal `json:"equity"`
	Drawdown     decimal.Decimal `json:"drawdown"`
	ReportSent   bool            `json:"report_sent"`
	StateVersion int64           `json:"state_version"`
}

func (s *Server) handleTick(c *gin.Context) {
	res, err := s.Tick(c.Request.Context())
	if err != nil {
		s.abort(c, err)
		return
	}
	actions := make([]string, 0, len(res.Actions))
	for _, a := range res.Actions {
		actions = append(actions, string(a.Trade.Side)+"/"+a.Trade.Kind)
	}
	c.JSON(http.StatusOK, TickResponse{
		TickID:       res.TickID,
		Price:        res.Price,
		Actions:      actions,
		Rejected:     res.Rejected,
		Equity:       res.Performance.Equity,
		Drawdown:     res.Performance.Drawdown,
		ReportSent:   res.ReportSent,
		StateVersion: res.StateVersion,
	})
}

func (s *Server) abort(c *gin.Context, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, ErrTickInProgress), errors.Is(err, storage.ErrVersionConflict):
		code = http.StatusConflict
	case venue.IsTransient(err):
		code = http.StatusServiceUnavailable
	}
	s.log.Warn().Err(err).Int("status", code).Str("path", c.FullPath()).Msg("request failed")
	c.AbortWithStatusJSON(code, gin.H{"error": err.Error()})
}
