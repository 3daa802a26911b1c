// ABOUTME: Delivery execution for approved entries: channel routing and outcome recording
// ABOUTME: Provider errors are sanitized to one line before they reach the store

package delivery

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/jnun/contactcmd/internal/store"
)

// Sender delivers one message on a single channel.
type Sender interface {
	Send(ctx context.Context, entry *store.QueueEntry) error
}

// SenderFunc adapts a function to the Sender interface.
type SenderFunc func(ctx context.Context, entry *store.QueueEntry) error

func (f SenderFunc) Send(ctx context.Context, entry *store.QueueEntry) error {
	return f(ctx, entry)
}

// Executor routes approved entries to channel senders and records the
// outcome. A missing sender for a channel is a delivery failure, not a
// panic.
type Executor struct {
	queue   store.QueueStore
	senders map[string]Sender
	logger  *slog.Logger
}

// NewExecutor creates an executor with no senders registered.
func NewExecutor(qs store.QueueStore) *Executor {
	return &Executor{
		queue:   qs,
		senders: make(map[string]Sender),
		logger:  slog.Default().With("component", "delivery"),
	}
}

// Register installs the sender for a channel, replacing any existing one.
func (e *Executor) Register(channel string, s Sender) {
	e.senders[channel] = s
}

// Channels returns the channels with a registered sender, sorted.
func (e *Executor) Channels() []string {
	channels := make([]string, 0, len(e.senders))
	for ch := range e.senders {
		channels = append(channels, ch)
	}
	sort.Strings(channels)
	return channels
}

// Execute delivers an approved entry and records sent or failed. The
// returned error message is what was persisted; empty on success.
func (e *Executor) Execute(ctx context.Context, entry *store.QueueEntry) (string, error) {
	sender, ok := e.senders[entry.Channel]
	if !ok {
		msg := fmt.Sprintf("no sender configured for channel %s", entry.Channel)
		if err := e.queue.MarkFailed(ctx, entry.ID, msg); err != nil {
			return msg, fmt.Errorf("recording delivery failure: %w", err)
		}
		return msg, nil
	}

	if err := sender.Send(ctx, entry); err != nil {
		msg := sanitizeError(err)
		e.logger.Warn("delivery failed",
			"entry_id", entry.ID, "channel", entry.Channel, "error", msg)
		if err := e.queue.MarkFailed(ctx, entry.ID, msg); err != nil {
			return msg, fmt.Errorf("recording delivery failure: %w", err)
		}
		return msg, nil
	}

	if err := e.queue.MarkSent(ctx, entry.ID); err != nil {
		return "", fmt.Errorf("recording delivery success: %w", err)
	}
	e.logger.Info("message delivered", "entry_id", entry.ID, "channel", entry.Channel)
	return "", nil
}

const maxErrorLen = 200

// sanitizeError reduces a provider error to a short single line so response
// bodies and credentials never land in the audit trail.
func sanitizeError(err error) string {
	msg := err.Error()
	if i := strings.IndexAny(msg, "\r\n"); i >= 0 {
		msg = msg[:i]
	}
	msg = strings.TrimSpace(msg)
	if len(msg) > maxErrorLen {
		msg = msg[:maxErrorLen]
	}
	if msg == "" {
		msg = "delivery failed"
	}
	return msg
}
