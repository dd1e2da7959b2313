package worker

import (
	"context"
	"log/slog"
)

// Mailer delivers one email. The notification path is best-effort; a failed
// send surfaces through the task status, never back to the caller that
// triggered it.
type Mailer interface {
	Send(ctx context.Context, to, subject, body string) error
}

// LogMailer writes the email to the log instead of sending it. The default
// when no delivery backend is configured.
type LogMailer struct {
	Logger *slog.Logger
}

func (m LogMailer) Send(ctx context.Context, to, subject, body string) error {
	logger := m.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("email (log delivery)", "to", to, "subject", subject, "body", body)
	return nil
}
