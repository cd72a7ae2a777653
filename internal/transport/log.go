package transport

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
)

// LogTransport writes messages to the log instead of sending them. It is the
// development default when no provider credentials are configured.
type LogTransport struct {
	logger *slog.Logger
}

// NewLogTransport creates a console-only transport
func NewLogTransport(logger *slog.Logger) *LogTransport {
	return &LogTransport{logger: logger}
}

// Send implements Transport
func (t *LogTransport) Send(ctx context.Context, msg Message) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	id := "log-" + uuid.NewString()
	t.logger.Info("message not sent (log transport)",
		slog.String("external_id", id),
		slog.String("channel", string(msg.Channel)),
		slog.String("to", msg.To),
		slog.String("subject", msg.Subject),
		slog.Int("body_length", len(msg.Body)),
	)
	return id, nil
}
