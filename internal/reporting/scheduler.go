package reporting

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"btc-dca-agent/internal/domain"
	"btc-dca-agent/internal/notify"
)

// DefaultInterval is the biweekly cadence.
const DefaultInterval = 14 * 24 * time.Hour

// Scheduler sends a report when the interval since the last delivery has elapsed.
type Scheduler struct {
	Generator *Generator
	Notifier  notify.Notifier
	Interval  time.Duration
	Log       zerolog.Logger
}

// Due reports whether a report should go out at now.
func (s *Scheduler) Due(st *domain.StrategyState, now time.Time) bool {
	if st.LastReportAt == nil {
		return true
	}
	interval := s.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	return now.Sub(*st.LastReportAt) >= interval
}

// MaybeSend delivers a report when due. LastReportAt advances only after a
// successful delivery; a failed delivery is logged and retried next tick.
// The returned error is the delivery error, which callers treat as non-fatal.
func (s *Scheduler) MaybeSend(ctx context.Context, in Input, now time.Time) (bool, error) {
	if !s.Due(in.State, now) {
		return false, nil
	}

	rep, err := s.Send(ctx, in)
	if err != nil {
		s.Log.Warn().Err(err).Str("pair", in.State.Pair).Msg("report delivery failed, will retry next tick")
		return false, err
	}

	sentAt := now.UTC()
	in.State.LastReportAt = &sentAt
	s.Log.Info().Str("pair", in.State.Pair).Str("subject", rep.Subject()).Msg("report sent")
	return true, nil
}

// Send renders and delivers a report without touching LastReportAt.
func (s *Scheduler) Send(ctx context.Context, in Input) (*Report, error) {
	rep, err := s.Generator.Generate(ctx, in)
	if err != nil {
		return nil, err
	}
	if err := s.Notifier.Send(ctx, rep.Subject(), RenderText(rep)); err != nil {
		return rep, err
	}
	return rep, nil
}
