package mail

import (
	"context"
	"log/slog"
)

// LogMailer writes messages to a logger instead of sending them. Passcodes appear in the
// log, so it is meant for local development only.
type LogMailer struct {
	logger *slog.Logger
}

func NewLogMailer(logger *slog.Logger) *LogMailer {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogMailer{logger: logger}
}

func (m *LogMailer) Send(ctx context.Context, to, subject, body string) error {
	m.logger.LogAttrs(ctx, slog.LevelInfo, "mail not sent: log mailer",
		slog.String("to", to),
		slog.String("subject", subject),
		slog.String("body", body),
	)
	return nil
}
