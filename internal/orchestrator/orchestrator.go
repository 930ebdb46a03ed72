// Package orchestrator runs one trading tick end to end.
// It coordinates: snapshot → settle → budget → entry → exit → averaging → performance → journal → report → persist
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"btc-dca-agent/internal/domain"
	"btc-dca-agent/internal/metrics"
	"btc-dca-agent/internal/observability"
	"btc-dca-agent/internal/reporting"
	"btc-dca-agent/internal/storage"
	"btc-dca-agent/internal/strategy"
	"btc-dca-agent/internal/venue"
)

// DefaultRequestTimeout bounds each venue and notification call.
const DefaultRequestTimeout = 15 * time.Second

// ErrInvalidPrice is returned when the venue quotes a zero or negative price.
var ErrInvalidPrice = errors.New("invalid price")

// Orchestrator runs ticks for one pair.
// Flow: load → snapshot → settle pending → budget init → entry → exit → averaging → performance → journal → report → save
type Orchestrator struct {
	pair  string
	base  string
	quote string

	venue     venue.Venue
	store     storage.StateStore
	journal   storage.Journal
	scheduler *reporting.Scheduler

	exec      *strategy.Executor
	budget    strategy.BudgetInitializer
	entry     *strategy.EntryEngine
	exit      *strategy.ExitEngine
	averaging *strategy.AveragingEngine

	minOrderSize   decimal.Decimal
	metrics        *observability.Metrics
	pushgatewayURL string
	timeout        time.Duration
	dryRun         bool
	now            func() time.Time
	log            zerolog.Logger
}

// Options for creating Orchestrator.
type Options struct {
	Pair string // "BTC/IDR"

	// Required collaborators
	Venue      venue.Venue
	Store      storage.StateStore
	ExitPolicy strategy.ExitPolicy
	Params     strategy.Params

	// Optional collaborators
	Journal   storage.Journal      // analytics sink, skipped when nil
	Scheduler *reporting.Scheduler // report delivery, skipped when nil
	Metrics   *observability.Metrics

	PushgatewayURL string        // push metrics after each tick when set
	RequestTimeout time.Duration // per venue/notifier call, DefaultRequestTimeout when zero
	DryRun         bool
	Clock          func() time.Time
	Logger         zerolog.Logger
}

// New creates a new Orchestrator.
func New(opts Options) (*Orchestrator, error) {
	base, quote, err := domain.SplitPair(opts.Pair)
	if err != nil {
		return nil, err
	}
	if opts.Venue == nil || opts.Store == nil || opts.ExitPolicy == nil {
		return nil, errors.New("orchestrator: venue, store and exit policy are required")
	}

	timeout := opts.RequestTimeout
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	now := opts.Clock
	if now == nil {
		now = time.Now
	}
	m := opts.Metrics
	if m == nil {
		m = observability.NewMetrics("")
	}

	o := &Orchestrator{
		pair:           base + "/" + quote,
		base:           base,
		quote:          quote,
		venue:          &timeoutVenue{next: opts.Venue, timeout: timeout},
		store:          opts.Store,
		journal:        opts.Journal,
		scheduler:      opts.Scheduler,
		metrics:        m,
		pushgatewayURL: opts.PushgatewayURL,
		timeout:        timeout,
		dryRun:         opts.DryRun,
		now:            now,
		log:            opts.Logger.With().Str("component", "orchestrator").Logger(),
	}

	p := opts.Params
	exec := &strategy.Executor{Trader: o.venue, Pair: o.pair, DryRun: opts.DryRun, Now: now, Checkpoint: o.save}
	o.exec = exec
	o.minOrderSize = p.MinOrderSize
	o.budget = strategy.BudgetInitializer{ReserveFraction: p.ReserveFraction, EntryFraction: p.EntryFraction}
	o.entry = &strategy.EntryEngine{Exec: exec, MinOrderSize: p.MinOrderSize}
	o.exit = &strategy.ExitEngine{Policy: opts.ExitPolicy, Exec: exec, MinOrderSize: p.MinOrderSize}
	o.averaging = &strategy.AveragingEngine{
		Exec:          exec,
		DropThreshold: p.DcaDropThreshold,
		SizeFraction:  p.DcaSizeFraction,
		MinOrderSize:  p.MinOrderSize,
	}
	return o, nil
}

// Pair returns the traded pair.
func (o *Orchestrator) Pair() string { return o.pair }

// RunResult contains results from one tick.
type RunResult struct {
	TickID            string
	Price             decimal.Decimal
	BudgetInitialized bool
	Actions           []strategy.Action
	Rejected          []string // kinds of orders the venue declined
	Performance       metrics.Performance
	ReportSent        bool
	StateVersion      int64
}

// Run executes one tick.
// Phases:
//  1. Load state (defaults when missing or corrupt)
//  2. Snapshot balances and price
//  3. Settle an order left unconfirmed by an earlier tick
//  4. Budget initialization, entry, exit, averaging
//  5. Performance tracking, best-effort journal append, report delivery
//  6. Persist, then best-effort metrics push
func (o *Orchestrator) Run(ctx context.Context) (*RunResult, error) {
	start := o.now()
	tickID := uuid.NewString()
	log := o.log.With().Str("tick_id", tickID).Str("pair", o.pair).Bool("dry_run", o.dryRun).Logger()

	result, err := o.run(ctx, tickID, log)

	status := observability.TickOK
	switch {
	case err == nil:
		log.Info().
			Int("actions", len(result.Actions)).
			Str("equity", result.Performance.Equity.String()).
			Int64("version", result.StateVersion).
			Msg("tick completed")
	case venue.IsTransient(err):
		status = observability.TickTransient
		log.Warn().Err(err).Msg("tick aborted on transient venue error")
	default:
		status = observability.TickFailed
		log.Error().Err(err).Msg("tick failed")
	}
	finished := o.now()
	o.metrics.RecordTick(status, finished.Sub(start), finished)
	o.pushMetrics(ctx, log)

	return result, err
}

func (o *Orchestrator) run(ctx context.Context, tickID string, log zerolog.Logger) (*RunResult, error) {
	result := &RunResult{TickID: tickID}

	// Phase 1: load state
	st, err := o.loadState(ctx, log)
	if err != nil {
		return result, err
	}

	// Phase 2: snapshot
	snap, err := o.snapshot(ctx)
	if err != nil {
		return result, fmt.Errorf("snapshot: %w", err)
	}
	result.Price = snap.Price
	if !snap.Price.IsPositive() {
		return result, o.fail(ctx, st, fmt.Errorf("%w: %s quoted %s", ErrInvalidPrice, o.pair, snap.Price), log)
	}
	w := strategy.NewWallet(snap)
	var trades []domain.TradeRecord

	// Phase 3: settle
	settled, err := o.settle(ctx, st, snap, result, log)
	if err != nil {
		return result, err
	}
	if settled != nil {
		trades = append(trades, settled.Trade)
	}

	// Phase 4: trading
	if o.budget.Initialize(st, snap.Fiat.Total) {
		result.BudgetInitialized = true
		log.Info().
			Str("original_budget", st.OriginalBudget.Decimal.String()).
			Str("remaining_budget", st.Remaining().String()).
			Msg("cycle budget initialized")
		if err := o.save(ctx, st); err != nil {
			return result, err
		}
	}

	// A settled order counts as this tick's buy or sell.
	var entry *strategy.Action
	if settled == nil {
		entry, err = o.entry.Run(ctx, st, w, snap.Price)
		if err := o.handleOrderErr(ctx, st, domain.KindEntry, err, result, log); err != nil {
			return result, err
		}
		if entry != nil {
			if err := o.booked(ctx, st, entry, result, log); err != nil {
				return result, err
			}
			trades = append(trades, entry.Trade)
		}
	}

	exit, err := o.exit.Run(ctx, st, w, snap.Price)
	if err := o.handleOrderErr(ctx, st, exit.Signal.Kind, err, result, log); err != nil {
		return result, err
	}
	if exit.Shortfall.IsPositive() {
		log.Warn().
			Str("shortfall_btc", exit.Shortfall.String()).
			Str("free_btc", w.Btc.Free.String()).
			Msg("position larger than free BTC on the venue, selling what is available")
	}
	if exit.Action != nil {
		o.reseed(ctx, st, w, log)
		if err := o.booked(ctx, st, exit.Action, result, log); err != nil {
			return result, err
		}
		trades = append(trades, exit.Action.Trade)
	}

	if entry == nil && settled == nil && !exit.Signal.Sell {
		avg, err := o.averaging.Run(ctx, st, w, snap.Price)
		if err := o.handleOrderErr(ctx, st, domain.KindAveraging, err, result, log); err != nil {
			return result, err
		}
		if avg != nil {
			if err := o.booked(ctx, st, avg, result, log); err != nil {
				return result, err
			}
			trades = append(trades, avg.Trade)
		}
	} else {
		log.Debug().Msg("averaging skipped this tick")
	}

	if err := st.CheckInvariants(); err != nil {
		log.Error().Err(err).Msg("state invariants violated")
	}

	// Phase 5: performance, journal and report. The journal goes first so the
	// report's period section includes this tick's trades.
	perf := metrics.Update(st, w.Fiat, w.Btc, snap.Price)
	result.Performance = perf
	o.metrics.RecordPerformance(perf, st)

	o.appendJournal(ctx, tickID, st, perf, trades, log)

	if o.scheduler != nil {
		result.ReportSent = o.deliverReport(ctx, st, w, snap.Price, log)
	}

	// Phase 6: persist
	if err := o.save(ctx, st); err != nil {
		return result, err
	}
	result.StateVersion = st.Version
	return result, nil
}

// loadState returns the stored state, or defaults on first run or corruption.
func (o *Orchestrator) loadState(ctx context.Context, log zerolog.Logger) (*domain.StrategyState, error) {
	st, err := o.store.Load(ctx, o.pair)
	switch {
	case err == nil:
		return st, nil
	case errors.Is(err, storage.ErrNotFound):
		log.Info().Msg("no saved state, starting fresh")
		return domain.NewStrategyState(o.pair), nil
	case errors.Is(err, storage.ErrCorruptState):
		log.Error().Err(err).Msg("saved state is unreadable, starting from defaults")
		if st == nil {
			st = domain.NewStrategyState(o.pair)
		}
		return st, nil
	default:
		return nil, fmt.Errorf("load state: %w", err)
	}
}

func (o *Orchestrator) snapshot(ctx context.Context) (domain.MarketSnapshot, error) {
	bal, err := o.venue.FetchBalance(ctx)
	if err != nil {
		return domain.MarketSnapshot{}, fmt.Errorf("fetch balance: %w", err)
	}
	ticker, err := o.venue.FetchTicker(ctx, o.pair)
	if err != nil {
		return domain.MarketSnapshot{}, fmt.Errorf("fetch ticker: %w", err)
	}
	return domain.MarketSnapshot{
		Pair:    o.pair,
		Base:    o.base,
		Quote:   o.quote,
		Price:   ticker.Last,
		Fiat:    bal.Get(o.quote),
		Btc:     bal.Get(o.base),
		TakenAt: o.now().UTC(),
	}, nil
}

// settle books or clears the pending order marker before any engine runs, so an
// order whose reply was lost is never placed a second time.
func (o *Orchestrator) settle(ctx context.Context, st *domain.StrategyState, snap domain.MarketSnapshot, result *RunResult, log zerolog.Logger) (*strategy.Action, error) {
	p := st.Pending
	if p == nil {
		return nil, nil
	}
	log = log.With().
		Str("pending_side", string(p.Side)).
		Str("pending_kind", p.Kind).
		Time("placed_at", p.PlacedAt).
		Logger()

	a := o.exec.Settle(st, snap, o.minOrderSize)
	if a == nil {
		log.Warn().Msg("unconfirmed order left no balance change, clearing it")
		return nil, o.save(ctx, st)
	}
	log.Warn().Msg("unconfirmed order executed, booking it from the balance change")
	if a.CycleClosed {
		log.Info().Msg("settled sell closed the cycle, next budget comes from the current balance")
	}
	return a, o.booked(ctx, st, a, result, log)
}

// handleOrderErr logs and continues on rejections, aborts on anything else.
func (o *Orchestrator) handleOrderErr(ctx context.Context, st *domain.StrategyState, kind string, err error, result *RunResult, log zerolog.Logger) error {
	if err == nil {
		return nil
	}
	if venue.IsRejected(err) {
		o.metrics.RecordOrder(kind, observability.OrderRejected, nil)
		result.Rejected = append(result.Rejected, kind)
		log.Warn().Err(err).Str("kind", kind).Msg("order rejected, state unchanged")
		return nil
	}
	o.metrics.RecordOrder(kind, observability.OrderFailed, nil)
	return o.fail(ctx, st, fmt.Errorf("%s order: %w", kind, err), log)
}

// booked records an executed action and persists the state right away.
func (o *Orchestrator) booked(ctx context.Context, st *domain.StrategyState, a *strategy.Action, result *RunResult, log zerolog.Logger) error {
	rec := a.Trade
	result.Actions = append(result.Actions, *a)
	if rec.Kind == domain.KindWriteOff {
		log.Warn().
			Str("amount", rec.Amount.String()).
			Str("profit", rec.RealizedProfit.Decimal.String()).
			Msg("position below the minimum order size written off")
		return o.save(ctx, st)
	}
	o.metrics.RecordOrder(rec.Kind, observability.OrderFilled, &rec)

	ev := log.Info().
		Str("side", string(rec.Side)).
		Str("kind", rec.Kind).
		Str("amount", rec.Amount.String()).
		Str("price", rec.Price.String()).
		Str("cost", rec.Cost.String()).
		Str("order_id", rec.OrderID)
	if rec.RealizedProfit.Valid {
		ev = ev.Str("profit", rec.RealizedProfit.Decimal.String()).Bool("cycle_closed", a.CycleClosed)
	}
	ev.Msg("order filled")

	return o.save(ctx, st)
}

// reseed carves the next cycle budget out of the post-sell fiat balance.
// Falls back to the working wallet (pre-sell free fiat plus proceeds) when the
// balance cannot be fetched.
func (o *Orchestrator) reseed(ctx context.Context, st *domain.StrategyState, w *strategy.Wallet, log zerolog.Logger) {
	if st.HasPosition() {
		return
	}
	fiat := w.Fiat.Free
	bal, err := o.venue.FetchBalance(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("post-sell balance unavailable, using computed proceeds")
	} else {
		w.Fiat = bal.Get(o.quote)
		w.Btc = bal.Get(o.base)
		fiat = w.Fiat.Total
	}
	if o.budget.Initialize(st, fiat) {
		log.Info().
			Str("original_budget", st.OriginalBudget.Decimal.String()).
			Msg("next cycle budget initialized")
	}
}

func (o *Orchestrator) deliverReport(ctx context.Context, st *domain.StrategyState, w *strategy.Wallet, price decimal.Decimal, log zerolog.Logger) bool {
	now := o.now()
	if !o.scheduler.Due(st, now) {
		return false
	}

	rctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	sent, err := o.scheduler.MaybeSend(rctx, reporting.Input{State: st, Fiat: w.Fiat, Btc: w.Btc, Price: price}, now)
	o.metrics.RecordReport(err)
	if err != nil {
		log.Warn().Err(err).Msg("report not delivered")
	}
	return sent
}

func (o *Orchestrator) save(ctx context.Context, st *domain.StrategyState) error {
	if err := o.store.Save(ctx, st); err != nil {
		return fmt.Errorf("save state: %w", err)
	}
	return nil
}

// fail persists st best-effort and returns err. Transient venue failures and
// lost races save nothing more: an order in flight was already checkpointed with
// its pending marker, or another writer owns the state.
func (o *Orchestrator) fail(ctx context.Context, st *domain.StrategyState, err error, log zerolog.Logger) error {
	if venue.IsTransient(err) || errors.Is(err, storage.ErrVersionConflict) {
		return err
	}
	if saveErr := o.store.Save(context.WithoutCancel(ctx), st); saveErr != nil {
		log.Error().Err(saveErr).Msg("best-effort state save failed")
	}
	return err
}

func (o *Orchestrator) appendJournal(ctx context.Context, tickID string, st *domain.StrategyState, perf metrics.Performance, trades []domain.TradeRecord, log zerolog.Logger) {
	if o.journal == nil {
		return
	}
	if len(trades) > 0 {
		if err := o.journal.InsertTrades(ctx, trades); err != nil {
			log.Warn().Err(err).Int("trades", len(trades)).Msg("journal trade append failed")
		}
	}
	snap := perf.Snapshot(tickID, o.pair, o.now(), st.Remaining())
	if err := o.journal.InsertSnapshot(ctx, snap); err != nil {
		log.Warn().Err(err).Msg("journal snapshot append failed")
	}
}

func (o *Orchestrator) pushMetrics(ctx context.Context, log zerolog.Logger) {
	if o.pushgatewayURL == "" {
		return
	}
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.timeout)
	defer cancel()
	if err := o.metrics.Push(pctx, o.pushgatewayURL, "dcabot"); err != nil {
		log.Warn().Err(err).Msg("metrics push failed")
	}
}

// Status summarizes the stored state at price without mutating it.
func (o *Orchestrator) Status(ctx context.Context) (*domain.StrategyState, metrics.Performance, error) {
	st, err := o.loadState(ctx, o.log)
	if err != nil {
		return nil, metrics.Performance{}, err
	}
	snap, err := o.snapshot(ctx)
	if err != nil {
		return st, metrics.Performance{}, fmt.Errorf("snapshot: %w", err)
	}
	return st, metrics.Summarize(st, snap.Fiat, snap.Btc, snap.Price), nil
}

// ReportInput loads state and market data for an out-of-band report.
func (o *Orchestrator) ReportInput(ctx context.Context) (reporting.Input, error) {
	st, err := o.loadState(ctx, o.log)
	if err != nil {
		return reporting.Input{}, err
	}
	snap, err := o.snapshot(ctx)
	if err != nil {
		return reporting.Input{}, fmt.Errorf("snapshot: %w", err)
	}
	return reporting.Input{State: st, Fiat: snap.Fiat, Btc: snap.Btc, Price: snap.Price}, nil
}
