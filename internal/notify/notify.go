package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// Sink delivers a single notification message.
type Sink interface {
	Send(ctx context.Context, message string) error
}

// WebhookSink posts messages to a chat webhook as JSON.
type WebhookSink struct {
	URL    string
	Client *http.Client
}

// NewWebhookSink creates a webhook sink with a sane request timeout.
func NewWebhookSink(url string) *WebhookSink {
	return &WebhookSink{
		URL:    url,
		Client: &http.Client{Timeout: 10 * time.Second},
	}
}

type webhookPayload struct {
	Text   string `json:"text"`
	Format string `json:"message_format"`
	Notify bool   `json:"notify"`
}

// Send posts the message to the webhook.
func (s *WebhookSink) Send(ctx context.Context, message string) error {
	body, err := json.Marshal(webhookPayload{Text: message, Format: "text", Notify: true})
	if err != nil {
		return fmt.Errorf("encoding notification: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building notification request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.Client.Do(req)
	if err != nil {
		return fmt.Errorf("posting notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("posting notification: unexpected status %d", resp.StatusCode)
	}
	return nil
}

// LogSink writes notifications to the log. Used when no webhook is
// configured so the messages still land somewhere visible.
type LogSink struct{}

// Send logs the message.
func (LogSink) Send(_ context.Context, message string) error {
	slog.Info("notification", "message", message)
	return nil
}
