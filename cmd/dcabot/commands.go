package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"btc-dca-agent/internal/api"
	"btc-dca-agent/internal/reporting"
	"btc-dca-agent/internal/storage"
)

func newTickCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "tick",
		Short: "Run one trading tick and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			rt, err := buildRuntime(ctx, c.cfg, c.log, true)
			if err != nil {
				return err
			}
			defer rt.Close()

			_, err = rt.orch.Run(ctx)
			return err
		},
	}
}

func newServeCmd(c *cli) *cobra.Command {
	var interval time.Duration

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run ticks on a fixed interval and serve the HTTP status API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if interval <= 0 {
				return asConfigError(fmt.Errorf("--interval must be positive, got %s", interval))
			}
			ctx := cmd.Context()
			rt, err := buildRuntime(ctx, c.cfg, c.log, false)
			if err != nil {
				return err
			}
			defer rt.Close()
			rt.metrics.WithRuntimeCollectors()

			srv := api.NewServer(rt.orch, rt.generator, rt.metrics.Handler(), c.log)

			g, ctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				return srv.ListenAndServe(ctx, c.cfg.HTTPAddr)
			})
			g.Go(func() error {
				tickLoop(ctx, srv, interval, c)
				return nil
			})
			return g.Wait()
		},
	}

	cmd.Flags().DurationVar(&interval, "interval", time.Hour, "time between ticks")
	return cmd
}

// tickLoop runs a tick immediately and then every interval until ctx is done.
// Tick failures are logged; the next tick retries.
func tickLoop(ctx context.Context, srv *api.Server, interval time.Duration, c *cli) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := srv.Tick(ctx); err != nil && !errors.Is(err, api.ErrTickInProgress) {
			c.log.Warn().Err(err).Int("exit_code", exitCode(err)).Msg("scheduled tick failed")
		}
		select {
		case <-ctx.Done():
			c.log.Info().Msg("shutting down tick loop")
			return
		case <-ticker.C:
		}
	}
}

func newReportCmd(c *cli) *cobra.Command {
	var (
		send   bool
		format string
	)

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Render the current report, or deliver it with --send",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			rt, err := buildRuntime(ctx, c.cfg, c.log, false)
			if err != nil {
				return err
			}
			defer rt.Close()

			in, err := rt.orch.ReportInput(ctx)
			if err != nil {
				return err
			}

			if send {
				rep, err := rt.scheduler.Send(ctx, in)
				rt.metrics.RecordReport(err)
				if err != nil {
					return fmt.Errorf("send report: %w", err)
				}
				c.log.Info().Str("subject", rep.Subject()).Msg("report sent")
				return nil
			}

			rep, err := rt.generator.Generate(ctx, in)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			switch format {
			case "text":
				_, err = fmt.Fprint(out, reporting.RenderText(rep))
			case "markdown":
				_, err = fmt.Fprint(out, reporting.RenderMarkdown(rep))
			case "csv":
				err = reporting.WriteTradesCSV(out, in.State.TradeHistory)
			default:
				return asConfigError(fmt.Errorf("--format %q: want text, markdown or csv", format))
			}
			return err
		},
	}

	cmd.Flags().BoolVar(&send, "send", false, "deliver through the configured notifiers (does not move the report schedule)")
	cmd.Flags().StringVar(&format, "format", "text", "output format: text, markdown or csv")
	return cmd
}

func newStateCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "state",
		Short: "Inspect or adjust the stored strategy state",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the stored state as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			rt, err := buildRuntime(ctx, c.cfg, c.log, false)
			if err != nil {
				return err
			}
			defer rt.Close()

			st, err := rt.store.Load(ctx, c.cfg.Pair)
			if err != nil {
				return fmt.Errorf("load state: %w", err)
			}
			raw, err := storage.EncodeState(st)
			if err != nil {
				return err
			}
			var buf bytes.Buffer
			if err := json.Indent(&buf, raw, "", "  "); err != nil {
				return err
			}
			buf.WriteByte('\n')
			_, err = cmd.OutOrStdout().Write(buf.Bytes())
			return err
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "reset-trailing",
		Short: "Clear the trailing-stop arm state and high-water mark",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			rt, err := buildRuntime(ctx, c.cfg, c.log, false)
			if err != nil {
				return err
			}
			defer rt.Close()

			st, err := rt.store.Load(ctx, c.cfg.Pair)
			if err != nil {
				return fmt.Errorf("load state: %w", err)
			}
			wasActive := st.TrailingActive
			st.ResetTrailing()
			if err := rt.store.Save(ctx, st); err != nil {
				return fmt.Errorf("save state: %w", err)
			}
			c.log.Info().Bool("was_active", wasActive).Int64("version", st.Version).Msg("trailing stop reset")
			return nil
		},
	})
	return cmd
}
