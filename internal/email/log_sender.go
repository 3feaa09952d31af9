package email

import (
	"context"

	"github.com/redmonkez12/go-otp-auth/internal/logging"
)

// LogSender writes messages to the log instead of delivering them.
// It stands in for SMTP in local development.
type LogSender struct {
	logger *logging.Logger
}

func NewLogSender(logger *logging.Logger) *LogSender {
	return &LogSender{logger: logger}
}

func (s *LogSender) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.logger.Info("email not delivered (log sender)",
		"to", msg.To,
		"subject", msg.Subject,
		"body", msg.HTML,
	)
	return nil
}
