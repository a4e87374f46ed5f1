package notify

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/goccy/go-json"
)

const (
	webhookEventType = "sync_admin_alert"
	webhookSource    = "socialsync"
)

// WebhookPayload is the JSON body posted to the webhook.
type WebhookPayload struct {
	Alert     Alert     `json:"alert"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
	Source    string    `json:"source"`
}

// WebhookNotifier posts alerts to an HTTP endpoint, retrying 5xx and network failures.
type WebhookNotifier struct {
	url        string
	client     *http.Client
	maxRetries uint64
	initial    time.Duration
}

// NewWebhookNotifier creates a notifier for url. client defaults to one with a 10s timeout.
func NewWebhookNotifier(url string, client *http.Client) *WebhookNotifier {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &WebhookNotifier{url: url, client: client, maxRetries: 3, initial: 200 * time.Millisecond}
}

func (n *WebhookNotifier) NotifyAdmin(ctx context.Context, a Alert) error {
	if a.Timestamp.IsZero() {
		a.Timestamp = time.Now().UTC()
	}
	body, err := json.Marshal(WebhookPayload{Alert: a, EventType: webhookEventType, Timestamp: a.Timestamp, Source: webhookSource})
	if err != nil {
		return fmt.Errorf("failed to marshal webhook payload: %w", err)
	}

	b := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(n.initial),
	), n.maxRetries), ctx)

	return backoff.Retry(func() error { return n.send(ctx, body) }, b)
}

func (n *WebhookNotifier) send(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return backoff.Permanent(fmt.Errorf("failed to create webhook request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send webhook: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 500:
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	case resp.StatusCode >= 400:
		return backoff.Permanent(fmt.Errorf("webhook returned status %d", resp.StatusCode))
	}
	return nil
}
