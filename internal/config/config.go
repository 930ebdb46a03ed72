// Package config loads bot settings from the environment, an optional .env file
// and an optional config file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"btc-dca-agent/internal/domain"
	"btc-dca-agent/internal/strategy"
)

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid config")

// Venue names.
const (
	VenueIndodax = "indodax"
	VenueBinance = "binance"
	VenuePaper   = "paper"
)

// State backends.
const (
	BackendFile     = "file"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

// EmailConfig holds the SMTP report channel settings.
type EmailConfig struct {
	Sender   string
	Password string
	Receiver string
	Host     string
	Port     int
}

// Enabled reports whether the email channel is configured.
func (e EmailConfig) Enabled() bool {
	return e.Sender != "" && e.Receiver != ""
}

// Config is the resolved bot configuration.
type Config struct {
	Pair string

	// Venue
	Venue            string
	IndodaxAPIKey    string
	IndodaxSecretKey string
	BinanceAPIKey    string
	BinanceSecretKey string
	BinanceTestnet   bool
	VenueRateLimit   float64
	RequestTimeout   time.Duration

	// Strategy
	Strategy strategy.Params
	Exit     strategy.ExitConfig

	// Reporting
	ReportInterval    time.Duration
	ReportHistoryTail int

	// Dry run
	DryRun          bool
	PaperFiat       decimal.Decimal
	PaperBtc        decimal.Decimal
	PaperLedgerFile string

	// Storage
	StateBackend  string
	StateFile     string
	StateGitSync  bool
	SQLitePath    string
	PostgresDSN   string
	ClickhouseDSN string

	// Notifications
	Email             EmailConfig
	TelegramToken     string
	TelegramChatID    string
	DiscordWebhookURL string

	// Ambient
	PushgatewayURL string
	LogLevel       string
	LogFormat      string
	HTTPAddr       string
}

var defaults = map[string]any{
	"PAIR":                     "BTC/IDR",
	"VENUE":                    VenueIndodax,
	"BINANCE_TESTNET":          false,
	"VENUE_RATE_LIMIT_PER_SEC": 2.0,
	"REQUEST_TIMEOUT":          "15s",
	"RESERVE_FRACTION":         "0.7",
	"ENTRY_FRACTION":           "0.5",
	"DCA_DROP_THRESHOLD":       "0.10",
	"DCA_SIZE_FRACTION":        "0.5",
	"TAKE_PROFIT":              "0.06",
	"EXIT_POLICY":              strategy.PolicyTakeProfit,
	"TRAIL_ARM_THRESHOLD":      "0.08",
	"TRAIL_GAP":                "0.03",
	"MIN_ORDER_SIZE":           "0.000001",
	"REPORT_INTERVAL_SECONDS":  1209600,
	"REPORT_HISTORY_TAIL":      3,
	"DRY_RUN":                  false,
	"PAPER_FIAT_BALANCE":       "10000000",
	"PAPER_BTC_BALANCE":        "0",
	"PAPER_LEDGER_FILE":        "paper_ledger.json",
	"STATE_BACKEND":            BackendFile,
	"STATE_FILE":               "bot_state.json",
	"STATE_GIT_SYNC":           false,
	"SQLITE_PATH":              "dca.db",
	"SMTP_HOST":                "smtp.gmail.com",
	"SMTP_PORT":                465,
	"LOG_LEVEL":                "info",
	"LOG_FORMAT":               "json",
	"HTTP_ADDR":                ":8080",
}

// keys without defaults that are still read from the environment
var envOnly = []string{
	"INDODAX_API_KEY", "INDODAX_SECRET_KEY",
	"BINANCE_API_KEY", "BINANCE_SECRET_KEY",
	"POSTGRES_DSN", "CLICKHOUSE_DSN",
	"EMAIL_SENDER", "EMAIL_PASSWORD", "EMAIL_RECEIVER",
	"TELEGRAM_BOT_TOKEN", "TELEGRAM_CHAT_ID",
	"DISCORD_WEBHOOK_URL", "PUSHGATEWAY_URL",
}

// Load reads .env (a missing file is fine), then the environment, then the optional
// config file at path. Environment values override the file.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	return load(viper.New(), path)
}

func load(v *viper.Viper, path string) (*Config, error) {
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	for _, k := range envOnly {
		if err := v.BindEnv(k); err != nil {
			return nil, err
		}
	}
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	p := &parser{v: v}
	cfg := &Config{
		Pair:             strings.ToUpper(v.GetString("PAIR")),
		Venue:            strings.ToLower(v.GetString("VENUE")),
		IndodaxAPIKey:    v.GetString("INDODAX_API_KEY"),
		IndodaxSecretKey: v.GetString("INDODAX_SECRET_KEY"),
		BinanceAPIKey:    v.GetString("BINANCE_API_KEY"),
		BinanceSecretKey: v.GetString("BINANCE_SECRET_KEY"),
		BinanceTestnet:   v.GetBool("BINANCE_TESTNET"),
		VenueRateLimit:   v.GetFloat64("VENUE_RATE_LIMIT_PER_SEC"),
		RequestTimeout:   v.GetDuration("REQUEST_TIMEOUT"),

		Strategy: strategy.Params{
			ReserveFraction:  p.decimal("RESERVE_FRACTION"),
			EntryFraction:    p.decimal("ENTRY_FRACTION"),
			DcaDropThreshold: p.decimal("DCA_DROP_THRESHOLD"),
			DcaSizeFraction:  p.decimal("DCA_SIZE_FRACTION"),
			MinOrderSize:     p.decimal("MIN_ORDER_SIZE"),
		},
		Exit: strategy.ExitConfig{
			Policy:       strings.ToLower(v.GetString("EXIT_POLICY")),
			TakeProfit:   p.decimal("TAKE_PROFIT"),
			ArmThreshold: p.decimal("TRAIL_ARM_THRESHOLD"),
			TrailGap:     p.decimal("TRAIL_GAP"),
		},

		ReportInterval:    time.Duration(v.GetInt64("REPORT_INTERVAL_SECONDS")) * time.Second,
		ReportHistoryTail: v.GetInt("REPORT_HISTORY_TAIL"),

		DryRun:          v.GetBool("DRY_RUN"),
		PaperFiat:       p.decimal("PAPER_FIAT_BALANCE"),
		PaperBtc:        p.decimal("PAPER_BTC_BALANCE"),
		PaperLedgerFile: v.GetString("PAPER_LEDGER_FILE"),

		StateBackend:  strings.ToLower(v.GetString("STATE_BACKEND")),
		StateFile:     v.GetString("STATE_FILE"),
		StateGitSync:  v.GetBool("STATE_GIT_SYNC"),
		SQLitePath:    v.GetString("SQLITE_PATH"),
		PostgresDSN:   v.GetString("POSTGRES_DSN"),
		ClickhouseDSN: v.GetString("CLICKHOUSE_DSN"),

		Email: EmailConfig{
			Sender:   v.GetString("EMAIL_SENDER"),
			Password: v.GetString("EMAIL_PASSWORD"),
			Receiver: v.GetString("EMAIL_RECEIVER"),
			Host:     v.GetString("SMTP_HOST"),
			Port:     v.GetInt("SMTP_PORT"),
		},
		TelegramToken:     v.GetString("TELEGRAM_BOT_TOKEN"),
		TelegramChatID:    v.GetString("TELEGRAM_CHAT_ID"),
		DiscordWebhookURL: v.GetString("DISCORD_WEBHOOK_URL"),

		PushgatewayURL: v.GetString("PUSHGATEWAY_URL"),
		LogLevel:       v.GetString("LOG_LEVEL"),
		LogFormat:      v.GetString("LOG_FORMAT"),
		HTTPAddr:       v.GetString("HTTP_ADDR"),
	}
	if err := errors.Join(p.errs...); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return cfg, nil
}

// parser collects decimal parse errors so every bad key is reported at once.
type parser struct {
	v    *viper.Viper
	errs []error
}

func (p *parser) decimal(key string) decimal.Decimal {
	raw := strings.TrimSpace(p.v.GetString(key))
	d, err := decimal.NewFromString(raw)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s=%q: not a number", key, raw))
		return decimal.Zero
	}
	return d
}

// Validate reports every setting that cannot run.
func (c *Config) Validate() error {
	var errs []error
	one := decimal.NewFromInt(1)

	if _, _, err := domain.SplitPair(c.Pair); err != nil {
		errs = append(errs, err)
	}

	fractions := map[string]decimal.Decimal{
		"RESERVE_FRACTION":    c.Strategy.ReserveFraction,
		"ENTRY_FRACTION":      c.Strategy.EntryFraction,
		"DCA_DROP_THRESHOLD":  c.Strategy.DcaDropThreshold,
		"DCA_SIZE_FRACTION":   c.Strategy.DcaSizeFraction,
		"TAKE_PROFIT":         c.Exit.TakeProfit,
		"TRAIL_ARM_THRESHOLD": c.Exit.ArmThreshold,
		"TRAIL_GAP":           c.Exit.TrailGap,
	}
	for _, key := range sortedKeys(fractions) {
		f := fractions[key]
		if !f.IsPositive() || f.GreaterThan(one) {
			errs = append(errs, fmt.Errorf("%s=%s: want a fraction in (0, 1]", key, f))
		}
	}
	if !c.Strategy.MinOrderSize.IsPositive() {
		errs = append(errs, fmt.Errorf("MIN_ORDER_SIZE=%s: must be positive", c.Strategy.MinOrderSize))
	}
	if _, err := strategy.FromConfig(c.Exit); err != nil {
		errs = append(errs, err)
	}

	switch c.Venue {
	case VenueIndodax:
		if !c.DryRun && (c.IndodaxAPIKey == "" || c.IndodaxSecretKey == "") {
			errs = append(errs, errors.New("INDODAX_API_KEY and INDODAX_SECRET_KEY are required unless DRY_RUN"))
		}
	case VenueBinance:
		if !c.DryRun && (c.BinanceAPIKey == "" || c.BinanceSecretKey == "") {
			errs = append(errs, errors.New("BINANCE_API_KEY and BINANCE_SECRET_KEY are required unless DRY_RUN"))
		}
	case VenuePaper:
		if c.PaperFiat.IsNegative() || c.PaperBtc.IsNegative() {
			errs = append(errs, errors.New("paper balances must not be negative"))
		}
	default:
		errs = append(errs, fmt.Errorf("VENUE=%q: want indodax, binance or paper", c.Venue))
	}

	switch c.StateBackend {
	case BackendFile:
		if c.StateFile == "" {
			errs = append(errs, errors.New("STATE_FILE is required for the file backend"))
		}
	case BackendSQLite:
		if c.SQLitePath == "" {
			errs = append(errs, errors.New("SQLITE_PATH is required for the sqlite backend"))
		}
	case BackendPostgres:
		if c.PostgresDSN == "" {
			errs = append(errs, errors.New("POSTGRES_DSN is required for the postgres backend"))
		}
	case BackendMemory:
	default:
		errs = append(errs, fmt.Errorf("STATE_BACKEND=%q: want file, sqlite, postgres or memory", c.StateBackend))
	}

	if c.ReportInterval <= 0 {
		errs = append(errs, errors.New("REPORT_INTERVAL_SECONDS must be positive"))
	}
	if c.ReportHistoryTail <= 0 {
		errs = append(errs, errors.New("REPORT_HISTORY_TAIL must be positive"))
	}
	if c.RequestTimeout <= 0 {
		errs = append(errs, errors.New("REQUEST_TIMEOUT must be positive"))
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}

func sortedKeys(m map[string]decimal.Decimal) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
