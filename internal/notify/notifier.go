// Package notify delivers report messages to operators.
package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
)

// ErrNotConfigured is returned by a channel constructor missing required settings.
var ErrNotConfigured = errors.New("notifier not configured")

// Notifier delivers one message. Implementations must honor ctx cancellation
// where the underlying transport allows it.
type Notifier interface {
	Send(ctx context.Context, subject, body string) error
}

// Multi fans a message out to every channel. Delivery fails only if every channel
// fails; partial failures are logged and returned joined from Failures.
type Multi struct {
	channels []namedNotifier
	log      zerolog.Logger
}

type namedNotifier struct {
	name string
	n    Notifier
}

// NewMulti creates an empty fan-out notifier.
func NewMulti(log zerolog.Logger) *Multi {
	return &Multi{log: log.With().Str("component", "notify").Logger()}
}

// Add registers a channel under name.
func (m *Multi) Add(name string, n Notifier) *Multi {
	m.channels = append(m.channels, namedNotifier{name: name, n: n})
	return m
}

// Len returns the number of registered channels.
func (m *Multi) Len() int { return len(m.channels) }

// Send delivers to every channel. Returns nil when at least one channel succeeded,
// the joined errors otherwise.
func (m *Multi) Send(ctx context.Context, subject, body string) error {
	if len(m.channels) == 0 {
		return fmt.Errorf("%w: no channels", ErrNotConfigured)
	}

	var errs []error
	for _, c := range m.channels {
		if err := c.n.Send(ctx, subject, body); err != nil {
			m.log.Warn().Err(err).Str("channel", c.name).Msg("notification failed")
			errs = append(errs, fmt.Errorf("%s: %w", c.name, err))
			continue
		}
		m.log.Info().Str("channel", c.name).Str("subject", subject).Msg("notification sent")
	}

	if len(errs) == len(m.channels) {
		return errors.Join(errs...)
	}
	return nil
}

// LogNotifier writes messages to the log. Used when no channel is configured.
type LogNotifier struct {
	log zerolog.Logger
}

// NewLogNotifier creates a notifier that logs at info level.
func NewLogNotifier(log zerolog.Logger) *LogNotifier {
	return &LogNotifier{log: log.With().Str("component", "notify_log").Logger()}
}

// Send logs subject and body.
func (l *LogNotifier) Send(_ context.Context, subject, body string) error {
	l.log.Info().Str("subject", subject).Msg(body)
	return nil
}

var (
	_ Notifier = (*Multi)(nil)
	_ Notifier = (*LogNotifier)(nil)
)
