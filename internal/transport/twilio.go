package transport

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

// TwilioConfig holds Twilio credentials and the sending number
type TwilioConfig struct {
	AccountSID    string
	AuthToken     string
	FromNumber    string
	DefaultRegion string
}

// TwilioTransport sends SMS through the Twilio Messages API
type TwilioTransport struct {
	client *twilio.RestClient
	from   string
	region string
	logger *slog.Logger
}

// NewTwilioTransport creates a Twilio SMS transport
func NewTwilioTransport(cfg TwilioConfig, logger *slog.Logger) *TwilioTransport {
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: cfg.AccountSID,
		Password: cfg.AuthToken,
	})

	return &TwilioTransport{
		client: client,
		from:   cfg.FromNumber,
		region: cfg.DefaultRegion,
		logger: logger,
	}
}

type twilioResult struct {
	sid string
	err error
}

// Send implements Transport
func (t *TwilioTransport) Send(ctx context.Context, msg Message) (string, error) {
	to, err := NormalizePhone(msg.To, t.region)
	if err != nil {
		return "", err
	}

	params := &twilioApi.CreateMessageParams{}
	params.SetTo(to)
	params.SetFrom(t.from)
	params.SetBody(msg.Body)

	done := make(chan twilioResult, 1)
	go func() {
		resp, err := t.client.Api.CreateMessage(params)
		if err != nil {
			done <- twilioResult{err: err}
			return
		}
		sid := ""
		if resp.Sid != nil {
			sid = *resp.Sid
		}
		done <- twilioResult{sid: sid}
	}()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-done:
		if res.err != nil {
			return "", fmt.Errorf("twilio send failed: %w", res.err)
		}
		t.logger.Debug("sms accepted by twilio", slog.String("sid", res.sid))
		return res.sid, nil
	}
}
