package client

import (
	"context"

	"github.com/alpha-starter/backend/internal/logging"
)

// LogNotifier records that a message would have been sent. Bodies carry
// one-time tokens, so only the recipient and subject are written.
type LogNotifier struct {
	logger logging.Logger
}

func NewLogNotifier(logger logging.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.With("module", "mail")}
}

func (n *LogNotifier) SendText(ctx context.Context, to, subject, _ string) error {
	n.logger.Info(ctx, "mail not sent, no SMTP relay configured", "to", to, "subject", subject)
	return nil
}
