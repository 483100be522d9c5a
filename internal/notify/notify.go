// Package notify delivers operator alerts and run summaries over chat,
// email and webhook channels.
package notify

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/jobscout/internal/logging"
)

// Sender delivers one message over one channel.
type Sender interface {
	Name() string
	Send(ctx context.Context, subject, body string) error
}

// Multi fans a message out to every configured sender. Failures are logged
// and never returned, so alerting cannot break the caller.
type Multi struct {
	senders []Sender
	logger  *zap.Logger
}

// NewMulti builds a fan-out notifier. Nil senders are ignored.
func NewMulti(logger *zap.Logger, senders ...Sender) *Multi {
	m := &Multi{logger: logging.OrNop(logger).With(zap.String("component", "notify"))}
	for _, s := range senders {
		if s != nil {
			m.senders = append(m.senders, s)
		}
	}
	return m
}

// Len reports how many channels are configured.
func (m *Multi) Len() int { return len(m.senders) }

// Notify sends msg on every channel. The subject is the first line of msg
// with Markdown emphasis stripped.
func (m *Multi) Notify(ctx context.Context, msg string) {
	subject := Subject(msg)
	for _, s := range m.senders {
		if err := s.Send(ctx, subject, msg); err != nil {
			m.logger.Warn("notification failed", zap.String("channel", s.Name()), zap.Error(err))
			continue
		}
		m.logger.Debug("notification sent", zap.String("channel", s.Name()))
	}
}

// Subject derives a one-line subject from a Markdown message.
func Subject(msg string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(msg), "\n")
	line = strings.NewReplacer("*", "", "_", "", "`", "").Replace(line)
	return strings.TrimSpace(line)
}

// Log writes messages to the logger. It is the fallback when no channel is configured.
type Log struct {
	logger *zap.Logger
}

// NewLog builds a log sender.
func NewLog(logger *zap.Logger) *Log {
	return &Log{logger: logging.OrNop(logger)}
}

// Name implements Sender.
func (l *Log) Name() string { return "log" }

// Send implements Sender.
func (l *Log) Send(_ context.Context, subject, body string) error {
	l.logger.Info("notification", zap.String("subject", subject), zap.String("body", body))
	return nil
}
