// Package notifier delivers out-of-band push alerts over an HTTP webhook.
package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"tutorhub/internal/config"
)

// WebhookNotifier posts alert payloads to a configured endpoint. With no
// endpoint configured every send is a silent no-op, which keeps the router
// free of nil checks.
type WebhookNotifier struct {
	endpoint string
	client   *http.Client
}

// alertPayload is the JSON body posted to the webhook.
type alertPayload struct {
	Token     string `json:"token"`
	Recipient string `json:"recipient"`
	Tutor     string `json:"tutor"`
}

// New creates a notifier from configuration.
func New(cfg *config.NotifierConfig) *WebhookNotifier {
	return &WebhookNotifier{
		endpoint: cfg.Endpoint,
		client:   &http.Client{Timeout: cfg.Timeout},
	}
}

// SendTutorOnlineAlert pushes a "tutor came online" alert to the device
// identified by token.
func (n *WebhookNotifier) SendTutorOnlineAlert(ctx context.Context, token, recipient, tutor string) error {
	if n.endpoint == "" {
		return nil
	}

	payload := alertPayload{
		Token:     token,
		Recipient: recipient,
		Tutor:     tutor,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("%w: encode alert: %w", ErrNotifier, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: build alert request: %w", ErrNotifier, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: deliver alert: %w", ErrNotifier, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: endpoint returned status %d", ErrNotifier, resp.StatusCode)
	}

	slog.Debug("push alert delivered", "recipient", recipient, "tutor", tutor)
	return nil
}
