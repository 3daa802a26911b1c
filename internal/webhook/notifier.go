// ABOUTME: Fire-and-forget webhook notifications for terminal queue statuses
// ABOUTME: Single attempt with a short timeout; failures are logged, never surfaced

package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/jnun/contactcmd/internal/store"
)

// Payload is the JSON body POSTed to the key's webhook URL when an entry
// reaches a terminal status.
type Payload struct {
	ActionID     string `json:"action_id"`
	Status       string `json:"status"`
	SentAt       string `json:"sent_at,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
	Recipient    string `json:"recipient"`
	Channel      string `json:"channel"`
}

// Notifier POSTs terminal status updates. One attempt, no retries; a
// webhook failure never affects the entry's recorded outcome.
type Notifier struct {
	client *http.Client
	logger *slog.Logger
}

// NewNotifier creates a notifier with the given per-request timeout.
func NewNotifier(timeout time.Duration) *Notifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Notifier{
		client: &http.Client{Timeout: timeout},
		logger: slog.Default().With("component", "webhook"),
	}
}

// Notify dispatches the webhook in a background goroutine and returns
// immediately. Invalid or empty URLs are skipped.
func (n *Notifier) Notify(url string, entry *store.QueueEntry) {
	if url == "" {
		return
	}
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		n.logger.Warn("skipping webhook with invalid url", "entry_id", entry.ID)
		return
	}

	payload := Payload{
		ActionID:     entry.ID,
		Status:       entry.Status,
		ErrorMessage: entry.ErrorMessage,
		Recipient:    entry.RecipientAddress,
		Channel:      entry.Channel,
	}
	if entry.SentAt != nil {
		payload.SentAt = entry.SentAt.UTC().Format(time.RFC3339)
	}

	go n.post(url, payload)
}

func (n *Notifier) post(url string, payload Payload) {
	body, err := json.Marshal(payload)
	if err != nil {
		n.logger.Warn("marshaling webhook payload", "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), n.client.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		n.logger.Warn("building webhook request", "error", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		n.logger.Warn("webhook delivery failed",
			"action_id", payload.ActionID, "error", err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		n.logger.Warn("webhook returned non-success status",
			"action_id", payload.ActionID, "status", resp.StatusCode)
		return
	}
	n.logger.Debug("webhook delivered",
		"action_id", payload.ActionID, "status", resp.StatusCode)
}
