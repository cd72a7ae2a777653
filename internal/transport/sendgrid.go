package transport

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

// SendGridConfig holds the SendGrid key and sender identity
type SendGridConfig struct {
	APIKey    string
	FromEmail string
	FromName  string
}

// SendGridTransport sends email through the SendGrid v3 API
type SendGridTransport struct {
	client *sendgrid.Client
	from   *mail.Email
	logger *slog.Logger
}

// NewSendGridTransport creates a SendGrid email transport
func NewSendGridTransport(cfg SendGridConfig, logger *slog.Logger) *SendGridTransport {
	return &SendGridTransport{
		client: sendgrid.NewSendClient(cfg.APIKey),
		from:   mail.NewEmail(cfg.FromName, cfg.FromEmail),
		logger: logger,
	}
}

// Send implements Transport. The body is sent as plain text.
func (t *SendGridTransport) Send(ctx context.Context, msg Message) (string, error) {
	to := mail.NewEmail("", msg.To)
	message := mail.NewSingleEmailPlainText(t.from, msg.Subject, to, msg.Body)

	response, err := t.client.SendWithContext(ctx, message)
	if err != nil {
		return "", fmt.Errorf("failed to send email: %w", err)
	}

	if response.StatusCode >= 400 {
		return "", fmt.Errorf("sendgrid returned error status: %d", response.StatusCode)
	}

	messageID := ""
	if ids := response.Headers["X-Message-Id"]; len(ids) > 0 {
		messageID = ids[0]
	}

	t.logger.Debug("email accepted by sendgrid",
		slog.Int("status", response.StatusCode),
		slog.String("message_id", messageID),
	)

	return messageID, nil
}
