package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"btc-dca-agent/internal/config"
	"btc-dca-agent/internal/observability"
)

// cli holds the global flags and the resolved configuration.
type cli struct {
	configFile string
	logLevel   string
	dryRun     bool

	cfg *config.Config
	log zerolog.Logger
}

func newRootCmd() *cobra.Command {
	c := &cli{}

	root := &cobra.Command{
		Use:           "dcabot",
		Short:         "BTC spot dollar-cost-averaging bot",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return c.load()
		},
	}

	root.PersistentFlags().StringVar(&c.configFile, "config", "", "optional config file (yaml, toml or json)")
	root.PersistentFlags().StringVar(&c.logLevel, "log-level", "", "log level override (debug, info, warn, error)")
	root.PersistentFlags().BoolVar(&c.dryRun, "dry-run", false, "trade against the paper ledger")

	root.AddCommand(
		newTickCmd(c),
		newServeCmd(c),
		newReportCmd(c),
		newStateCmd(c),
	)
	return root
}

// load resolves configuration and the logger. Every failure here is a configuration error.
func (c *cli) load() error {
	cfg, err := config.Load(c.configFile)
	if err != nil {
		return asConfigError(err)
	}
	if c.dryRun {
		cfg.DryRun = true
	}
	if c.logLevel != "" {
		cfg.LogLevel = c.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	log, err := observability.NewLogger(cfg.LogLevel, cfg.LogFormat, os.Stderr)
	if err != nil {
		return asConfigError(err)
	}
	c.cfg = cfg
	c.log = log
	return nil
}

func asConfigError(err error) error {
	if errors.Is(err, config.ErrInvalidConfig) {
		return err
	}
	return fmt.Errorf("%w: %w", config.ErrInvalidConfig, err)
}
