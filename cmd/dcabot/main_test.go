package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"btc-dca-agent/internal/config"
	"btc-dca-agent/internal/domain"
	"btc-dca-agent/internal/notify"
	"btc-dca-agent/internal/reporting"
	"btc-dca-agent/internal/storage"
	"btc-dca-agent/internal/venue"
	"btc-dca-agent/internal/venue/paper"
)

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"success", nil, exitOK},
		{"config", fmt.Errorf("load: %w", config.ErrInvalidConfig), exitConfig},
		{"transient", fmt.Errorf("snapshot: %w", &venue.NetworkError{Op: "ticker", Err: errors.New("timeout")}), exitTempFail},
		{"rate limited", &venue.RateLimitError{Message: "slow down"}, exitTempFail},
		{"conflict", fmt.Errorf("save state: %w", storage.ErrVersionConflict), exitFailure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, exitCode(tt.err))
		})
	}
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	t.Setenv("DRY_RUN", "true")
	t.Setenv("STATE_BACKEND", "memory")
	t.Setenv("PAPER_LEDGER_FILE", filepath.Join(t.TempDir(), "ledger.json"))
	cfg, err := config.Load("")
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())
	return cfg
}

func TestBuildVenue_DryRunUsesPaper(t *testing.T) {
	cfg := testConfig(t)

	v, err := buildVenue(cfg)
	require.NoError(t, err)
	_, ok := v.(*paper.Venue)
	assert.True(t, ok, "dry run trades on the paper ledger, got %T", v)
}

func TestBuildNotifier(t *testing.T) {
	cfg := testConfig(t)

	n, err := buildNotifier(cfg, zerolog.Nop())
	require.NoError(t, err)
	_, ok := n.(*notify.LogNotifier)
	assert.True(t, ok, "no channels configured falls back to the log, got %T", n)

	cfg.DiscordWebhookURL = "https://discord.example/api/webhooks/1/abc"
	cfg.Email = config.EmailConfig{Sender: "bot@example.com", Receiver: "me@example.com", Host: "smtp.example.com", Port: 465}
	n, err = buildNotifier(cfg, zerolog.Nop())
	require.NoError(t, err)
	multi, ok := n.(*notify.Multi)
	require.True(t, ok)
	assert.Equal(t, 2, multi.Len())
}

func TestBuildRuntime_MemoryBackend(t *testing.T) {
	cfg := testConfig(t)

	rt, err := buildRuntime(context.Background(), cfg, zerolog.Nop(), true)
	require.NoError(t, err)
	defer rt.Close()

	assert.NotNil(t, rt.orch)
	assert.NotNil(t, rt.journal)
	assert.False(t, rt.durable, "an in-process journal cannot cover a report period")
	assert.Equal(t, "BTC/IDR", rt.orch.Pair())
}

func TestBuildRuntime_FileBackendOmitsPeriodSection(t *testing.T) {
	cfg := testConfig(t)
	cfg.StateBackend = config.BackendFile
	cfg.StateFile = filepath.Join(t.TempDir(), "state.json")

	rt, err := buildRuntime(context.Background(), cfg, zerolog.Nop(), true)
	require.NoError(t, err)
	defer rt.Close()

	assert.False(t, rt.durable)
	ctx := context.Background()
	require.NoError(t, rt.journal.InsertTrades(ctx, []domain.TradeRecord{{
		ID: "t1", Pair: "BTC/IDR", Side: domain.SideBuy, Kind: domain.KindEntry,
		Amount: decimal.RequireFromString("0.007"), Price: decimal.RequireFromString("500000000"),
		Cost: decimal.RequireFromString("3500000"), Timestamp: time.Now().UTC().Add(-time.Minute),
	}}))

	st := domain.NewStrategyState("BTC/IDR")
	st.OriginalBudget = decimal.NewNullDecimal(decimal.RequireFromString("7000000"))
	rep, err := rt.generator.Generate(ctx, reporting.Input{State: st, Price: decimal.RequireFromString("500000000")})
	require.NoError(t, err)
	assert.Nil(t, rep.Period)
}

func TestBuildRuntime_SQLiteJournalIsDurable(t *testing.T) {
	cfg := testConfig(t)
	cfg.StateBackend = config.BackendSQLite
	cfg.SQLitePath = filepath.Join(t.TempDir(), "dca.db")

	rt, err := buildRuntime(context.Background(), cfg, zerolog.Nop(), true)
	require.NoError(t, err)
	defer rt.Close()

	assert.True(t, rt.durable)
}

func TestRootCmd_InvalidConfigIsConfigError(t *testing.T) {
	t.Setenv("RESERVE_FRACTION", "2")

	cmd := newRootCmd()
	cmd.SetArgs([]string{"state", "show"})
	cmd.SetOut(&bytes.Buffer{})
	err := cmd.ExecuteContext(context.Background())

	require.Error(t, err)
	assert.Equal(t, exitConfig, exitCode(err))
}

func TestRootCmd_StateShowEmptyStore(t *testing.T) {
	testConfig(t)

	cmd := newRootCmd()
	cmd.SetArgs([]string{"state", "show", "--dry-run"})
	cmd.SetOut(&bytes.Buffer{})
	err := cmd.ExecuteContext(context.Background())

	require.Error(t, err)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.Equal(t, exitFailure, exitCode(err))
}
