// Package notify delivers campaign pass summaries to operators.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/Raymond9734/drip-campaign-engine/internal/models"
)

// Summary is what operators are told after each campaign pass
type Summary struct {
	CampaignName string              `json:"campaign_name"`
	Run          *models.CampaignRun `json:"run"`
	Text         string              `json:"text"`
}

// Sink receives pass summaries. Callers treat delivery as fire-and-forget.
type Sink interface {
	Notify(ctx context.Context, summary Summary) error
}

// LogSink writes summaries to the structured log
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink creates a log-only sink
func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

// Notify implements Sink
func (s *LogSink) Notify(_ context.Context, summary Summary) error {
	level := slog.LevelInfo
	if summary.Run != nil && summary.Run.Error != nil {
		level = slog.LevelError
	}
	s.logger.Log(context.Background(), level, summary.Text,
		slog.String("campaign", summary.CampaignName),
	)
	return nil
}

// WebhookSink posts summaries as JSON. The payload carries a top-level
// "text" field so Slack-compatible incoming webhooks render it directly.
type WebhookSink struct {
	url    string
	client *http.Client
}

// NewWebhookSink creates a webhook sink
func NewWebhookSink(url string, timeout time.Duration) *WebhookSink {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &WebhookSink{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

// Notify implements Sink
func (s *WebhookSink) Notify(ctx context.Context, summary Summary) error {
	payload, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("failed to marshal summary: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to post summary: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned error status: %d", resp.StatusCode)
	}
	return nil
}

// Multi fans a summary out to several sinks and returns the first error
type Multi []Sink

// Notify implements Sink
func (m Multi) Notify(ctx context.Context, summary Summary) error {
	var first error
	for _, sink := range m {
		if err := sink.Notify(ctx, summary); err != nil && first == nil {
			first = err
		}
	}
	return first
}
