// Package notify delivers device health transitions to an operator
// webhook endpoint.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

type webhookPayload struct {
	Event    string    `json:"event"`
	Device   string    `json:"device"`
	Failures int       `json:"failures,omitempty"`
	At       time.Time `json:"at"`
}

// WebhookNotifier posts device degraded/recovered transitions as JSON.
// It satisfies the scheduler's status notifier interface.
type WebhookNotifier struct {
	url    string
	client *http.Client
}

// WebhookOption configures the notifier.
type WebhookOption func(*WebhookNotifier)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(client *http.Client) WebhookOption {
	return func(n *WebhookNotifier) {
		if client != nil {
			n.client = client
		}
	}
}

// NewWebhookNotifier constructs a notifier for the given endpoint.
func NewWebhookNotifier(url string, opts ...WebhookOption) (*WebhookNotifier, error) {
	if url == "" {
		return nil, errors.New("webhook notifier: empty url")
	}
	n := &WebhookNotifier{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(n)
	}
	return n, nil
}

// DeviceDegraded reports a device crossing its consecutive-failure
// threshold.
func (n *WebhookNotifier) DeviceDegraded(ctx context.Context, device string, consecutiveFailures int) {
	_ = n.post(ctx, webhookPayload{
		Event:    "device_degraded",
		Device:   device,
		Failures: consecutiveFailures,
		At:       time.Now(),
	})
}

// DeviceRecovered reports a degraded device polling successfully again.
func (n *WebhookNotifier) DeviceRecovered(ctx context.Context, device string) {
	_ = n.post(ctx, webhookPayload{
		Event:  "device_recovered",
		Device: device,
		At:     time.Now(),
	})
}

func (n *WebhookNotifier) post(ctx context.Context, payload webhookPayload) error {
	if n == nil || n.url == "" {
		return errors.New("webhook notifier: empty url")
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook notifier: non-2xx response %d", resp.StatusCode)
	}
	return nil
}
