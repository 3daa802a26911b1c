// ABOUTME: Shared approve/deny service used by the HTTP control surface and the console
// ABOUTME: Both surfaces race through the store's atomic claim; one winner per entry

package gateway

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jnun/contactcmd/internal/delivery"
	"github.com/jnun/contactcmd/internal/store"
	"github.com/jnun/contactcmd/internal/webhook"
)

// Approver resolves queue entries. Approve claims the entry, executes
// delivery inline, and notifies the key's webhook; Deny claims and notifies.
type Approver struct {
	keys     store.KeyStore
	queue    store.QueueStore
	executor *delivery.Executor
	notifier *webhook.Notifier
	logger   *slog.Logger
}

// NewApprover wires the approver's dependencies.
func NewApprover(ks store.KeyStore, qs store.QueueStore, ex *delivery.Executor, n *webhook.Notifier) *Approver {
	return &Approver{
		keys:     ks,
		queue:    qs,
		executor: ex,
		notifier: n,
		logger:   slog.Default().With("component", "approver"),
	}
}

// Approve claims an entry and delivers it. The returned entry reflects the
// terminal status (sent or failed). Losing a claim race returns
// store.ErrAlreadyResolved.
func (a *Approver) Approve(ctx context.Context, id string) (*store.QueueEntry, error) {
	if err := a.queue.Claim(ctx, id, store.StatusApproved); err != nil {
		return nil, err
	}

	// Approved is transient. Once the claim has succeeded the entry must
	// reach a terminal status even if the caller disconnects, so delivery
	// and outcome recording run detached from the request's cancellation.
	ctx = context.WithoutCancel(ctx)

	entry, err := a.queue.GetEntry(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("loading claimed entry: %w", err)
	}

	if _, err := a.executor.Execute(ctx, entry); err != nil {
		return nil, err
	}

	// Re-read for the recorded terminal status and sent_at
	entry, err = a.queue.GetEntry(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("loading delivered entry: %w", err)
	}

	a.logger.Info("entry approved", "entry_id", id, "status", entry.Status)
	a.notify(ctx, entry)
	return entry, nil
}

// Deny claims an entry as denied. Nothing is delivered.
func (a *Approver) Deny(ctx context.Context, id string) (*store.QueueEntry, error) {
	if err := a.queue.Claim(ctx, id, store.StatusDenied); err != nil {
		return nil, err
	}

	ctx = context.WithoutCancel(ctx)
	entry, err := a.queue.GetEntry(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("loading denied entry: %w", err)
	}

	a.logger.Info("entry denied", "entry_id", id)
	a.notify(ctx, entry)
	return entry, nil
}

func (a *Approver) notify(ctx context.Context, entry *store.QueueEntry) {
	if a.notifier == nil {
		return
	}
	key, err := a.keys.GetKey(ctx, entry.ApiKeyID)
	if err != nil {
		a.logger.Warn("loading key for webhook", "entry_id", entry.ID, "error", err)
		return
	}
	a.notifier.Notify(key.WebhookURL, entry)
}
