package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/rs/zerolog"

	"btc-dca-agent/internal/config"
	"btc-dca-agent/internal/metrics"
	"btc-dca-agent/internal/notify"
	"btc-dca-agent/internal/observability"
	"btc-dca-agent/internal/orchestrator"
	"btc-dca-agent/internal/reporting"
	"btc-dca-agent/internal/storage"
	chstore "btc-dca-agent/internal/storage/clickhouse"
	"btc-dca-agent/internal/storage/file"
	"btc-dca-agent/internal/storage/memory"
	"btc-dca-agent/internal/storage/migrations"
	pgstore "btc-dca-agent/internal/storage/postgres"
	"btc-dca-agent/internal/storage/sqlite"
	"btc-dca-agent/internal/strategy"
	"btc-dca-agent/internal/venue"
	"btc-dca-agent/internal/venue/binance"
	"btc-dca-agent/internal/venue/indodax"
	"btc-dca-agent/internal/venue/paper"
)

// runtime holds every collaborator of one process.
type runtime struct {
	cfg     *config.Config
	log     zerolog.Logger
	metrics *observability.Metrics

	venue     venue.Venue
	store     storage.StateStore
	journal   storage.Journal
	durable   bool // journal outlives the process, so report periods can be read back from it
	generator *reporting.Generator
	scheduler *reporting.Scheduler
	orch      *orchestrator.Orchestrator

	closers []func()
}

// Close releases database connections in reverse order.
func (r *runtime) Close() {
	for i := len(r.closers) - 1; i >= 0; i-- {
		r.closers[i]()
	}
}

// buildRuntime wires the collaborators from configuration. push enables the
// pushgateway for one-shot runs.
func buildRuntime(ctx context.Context, cfg *config.Config, log zerolog.Logger, push bool) (*runtime, error) {
	r := &runtime{cfg: cfg, log: log, metrics: observability.NewMetrics("")}

	policy, err := strategy.FromConfig(cfg.Exit)
	if err != nil {
		return nil, asConfigError(err)
	}

	v, err := buildVenue(cfg)
	if err != nil {
		return nil, err
	}
	r.venue = observability.InstrumentVenue(v, r.metrics)

	if err := r.buildStorage(ctx); err != nil {
		r.Close()
		return nil, err
	}

	r.generator = reporting.NewGenerator(policy, cfg.Strategy.DcaDropThreshold, cfg.ReportHistoryTail).WithLogger(log)
	if r.durable {
		r.generator.WithAggregator(metrics.NewAggregator(r.journal, r.journal))
	}
	notifier, err := buildNotifier(cfg, log)
	if err != nil {
		r.Close()
		return nil, err
	}
	r.scheduler = &reporting.Scheduler{
		Generator: r.generator,
		Notifier:  notifier,
		Interval:  cfg.ReportInterval,
		Log:       log.With().Str("component", "report_scheduler").Logger(),
	}

	opts := orchestrator.Options{
		Pair:           cfg.Pair,
		Venue:          r.venue,
		Store:          r.store,
		ExitPolicy:     policy,
		Params:         cfg.Strategy,
		Journal:        r.journal,
		Scheduler:      r.scheduler,
		Metrics:        r.metrics,
		RequestTimeout: cfg.RequestTimeout,
		DryRun:         cfg.DryRun,
		Logger:         log,
	}
	if push {
		opts.PushgatewayURL = cfg.PushgatewayURL
	}
	r.orch, err = orchestrator.New(opts)
	if err != nil {
		r.Close()
		return nil, asConfigError(err)
	}
	return r, nil
}

// buildVenue returns the live venue, or the paper venue priced from live market
// data when dry-running.
func buildVenue(cfg *config.Config) (venue.Venue, error) {
	var live venue.Venue
	switch cfg.Venue {
	case config.VenueBinance:
		live = binance.New(binance.Config{
			APIKey:    cfg.BinanceAPIKey,
			SecretKey: cfg.BinanceSecretKey,
			Testnet:   cfg.BinanceTestnet,
			Timeout:   cfg.RequestTimeout,
		})
	default:
		live = indodax.New(indodax.Config{
			APIKey:          cfg.IndodaxAPIKey,
			SecretKey:       cfg.IndodaxSecretKey,
			RateLimitPerSec: cfg.VenueRateLimit,
			Timeout:         cfg.RequestTimeout,
		})
	}
	if !cfg.DryRun && cfg.Venue != config.VenuePaper {
		return live, nil
	}

	pv, err := paper.New(paper.Options{
		Pair:       cfg.Pair,
		Market:     live,
		Initial:    paper.Ledger{Fiat: cfg.PaperFiat, Btc: cfg.PaperBtc},
		LedgerPath: cfg.PaperLedgerFile,
	})
	if err != nil {
		return nil, fmt.Errorf("paper venue: %w", err)
	}
	return pv, nil
}

// buildStorage opens the state backend and the journal. ClickHouse takes the
// journal when configured; otherwise the SQL backends journal into their own
// database and the file backend keeps an in-process journal. An in-process
// journal only covers the current process, so reports skip the period section.
func (r *runtime) buildStorage(ctx context.Context) error {
	cfg := r.cfg
	var store storage.StateStore

	switch cfg.StateBackend {
	case config.BackendFile:
		var syncer file.Syncer
		if cfg.StateGitSync {
			syncer = &file.GitSyncer{Push: true}
		}
		store = file.NewStateStore(file.Options{Path: cfg.StateFile, Syncer: syncer, Logger: r.log})
		r.journal = memory.NewJournal()
	case config.BackendSQLite:
		db, err := sqlite.Open(ctx, cfg.SQLitePath)
		if err != nil {
			return err
		}
		r.closers = append(r.closers, func() { _ = db.Close() })
		store = sqlite.NewStateStore(db, r.log)
		r.journal = sqlite.NewJournal(db)
		r.durable = true
	case config.BackendPostgres:
		pool, err := pgstore.NewPool(ctx, cfg.PostgresDSN, r.log)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		r.closers = append(r.closers, pool.Close)
		applied, err := migrations.RunPostgresMigrations(ctx, pool)
		if err != nil {
			return err
		}
		r.log.Debug().Strs("migrations", applied).Msg("postgres migrations applied")
		store = pgstore.NewStateStore(pool, r.log)
		r.journal = pgstore.NewJournal(pool)
		r.durable = true
	case config.BackendMemory:
		store = memory.NewStateStore()
		r.journal = memory.NewJournal()
	default:
		return asConfigError(fmt.Errorf("unknown state backend %q", cfg.StateBackend))
	}
	r.store = observability.InstrumentStateStore(store, r.metrics, cfg.StateBackend)

	if cfg.ClickhouseDSN != "" {
		conn, err := migrations.RunClickhouseMigrations(ctx, cfg.ClickhouseDSN)
		if err != nil {
			return err
		}
		r.closers = append(r.closers, func() { _ = conn.Close() })
		r.journal = chstore.NewJournal(conn)
		r.durable = true
	}
	return nil
}

// buildNotifier fans out to every configured channel, or logs reports when none is set.
func buildNotifier(cfg *config.Config, log zerolog.Logger) (notify.Notifier, error) {
	multi := notify.NewMulti(log)

	if cfg.Email.Enabled() {
		n, err := notify.NewEmailNotifier(notify.EmailConfig{
			Host:     cfg.Email.Host,
			Port:     cfg.Email.Port,
			Sender:   cfg.Email.Sender,
			Password: cfg.Email.Password,
			Receiver: cfg.Email.Receiver,
		})
		if err != nil {
			return nil, asConfigError(err)
		}
		multi.Add("email", n)
	}
	if cfg.TelegramToken != "" {
		n, err := notify.NewTelegramNotifier(notify.TelegramConfig{Token: cfg.TelegramToken, ChatID: cfg.TelegramChatID})
		if err != nil {
			return nil, asConfigError(err)
		}
		multi.Add("telegram", n)
	}
	if cfg.DiscordWebhookURL != "" {
		n, err := notify.NewDiscordNotifier(cfg.DiscordWebhookURL, &http.Client{Timeout: cfg.RequestTimeout})
		if err != nil {
			return nil, asConfigError(err)
		}
		multi.Add("discord", n)
	}

	if multi.Len() == 0 {
		log.Info().Msg("no notification channel configured, reports go to the log")
		return notify.NewLogNotifier(log), nil
	}
	return multi, nil
}
