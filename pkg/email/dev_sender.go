package email

import (
	"context"
	"log/slog"

	"github.com/dmitrymomot/signupkit/pkg/logger"
)

// DevSender implements Sender for local development. It logs the email
// instead of sending it, which is enough to pick a magic link out of the
// server output.
type DevSender struct {
	log *slog.Logger
}

// NewDevSender creates a development email sender.
func NewDevSender(log *slog.Logger) Sender {
	if log == nil {
		log = logger.NewDiscard()
	}
	return &DevSender{log: log}
}

// SendEmail logs the email at info level.
func (d *DevSender) SendEmail(ctx context.Context, params SendEmailParams) error {
	if err := params.Validate(); err != nil {
		return err
	}

	d.log.InfoContext(ctx, "dev email",
		logger.Component("email"),
		slog.String("to", params.SendTo),
		slog.String("subject", params.Subject),
		slog.String("tag", params.Tag),
		slog.String("body", params.BodyText),
	)
	return nil
}
