// ABOUTME: Store interfaces and data types for gateway persistence
// ABOUTME: Defines ApiKey, QueueEntry, ContentFilter structs and the sentinel errors

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// ErrAlreadyResolved is returned when a queue entry cannot be claimed
// because it has already left the pending/flagged states.
var ErrAlreadyResolved = errors.New("entry already resolved")

// Queue entry statuses. Pending and Flagged are the two initial states,
// Approved is transient, the rest are terminal.
const (
	StatusPending  = "pending"
	StatusFlagged  = "flagged"
	StatusApproved = "approved"
	StatusDenied   = "denied"
	StatusSent     = "sent"
	StatusFailed   = "failed"
)

// Channels supported by the gateway.
const (
	ChannelEmail    = "email"
	ChannelSMS      = "sms"
	ChannelIMessage = "imessage"
)

// Message priorities, highest first.
const (
	PriorityUrgent = "urgent"
	PriorityHigh   = "high"
	PriorityNormal = "normal"
	PriorityLow    = "low"
)

// Content filter pattern types and actions.
const (
	PatternRegex   = "regex"
	PatternLiteral = "literal"

	ActionDeny = "deny"
	ActionFlag = "flag"
)

// ApiKey is an agent credential. The plaintext secret exists only at
// creation time; only its SHA-256 hash and a short display prefix are stored.
type ApiKey struct {
	ID               string
	Name             string
	KeyHash          string
	KeyPrefix        string
	CreatedAt        time.Time
	LastUsedAt       *time.Time
	RevokedAt        *time.Time
	RateLimitPerHour int
	RateLimitPerDay  int
	WebhookURL       string
}

// Revoked reports whether the key has been permanently rejected.
func (k *ApiKey) Revoked() bool {
	return k.RevokedAt != nil
}

// AllowlistEntry restricts one ApiKey to a recipient pattern: an exact
// address or a wildcard domain like "*@acme.com".
type AllowlistEntry struct {
	ID               string
	ApiKeyID         string
	RecipientPattern string
	CreatedAt        time.Time
}

// ContentFilter is a pattern-based safety rule evaluated against outbound
// message content.
type ContentFilter struct {
	ID          string
	Pattern     string
	PatternType string // regex | literal
	Action      string // deny | flag
	Description string
	Enabled     bool
	CreatedAt   time.Time
}

// QueueEntry is one requested send tracked through the approval lifecycle.
// Recipient, channel, and body are immutable once persisted; AgentContext is
// opaque agent-supplied JSON kept verbatim for audit and never used for
// authorization decisions.
type QueueEntry struct {
	ID               string
	ApiKeyID         string
	Channel          string
	RecipientAddress string
	RecipientName    string
	Subject          string
	Body             string
	Priority         string
	Status           string
	AgentContext     string
	CreatedAt        time.Time
	ReviewedAt       *time.Time
	SentAt           *time.Time
	ErrorMessage     string
}

// HistoryEntry pairs a queue entry with the display name of the key that
// created it, for the audit log view.
type HistoryEntry struct {
	QueueEntry
	AgentName string
}

// HistoryFilter narrows the history listing.
type HistoryFilter struct {
	Status string // exact status match, empty for all
	Agent  string // substring match on key name, empty for all
	Limit  int
}

// KeyStore persists API keys and their per-key configuration.
type KeyStore interface {
	CreateKey(ctx context.Context, key *ApiKey) error
	GetKey(ctx context.Context, id string) (*ApiKey, error)
	GetKeyByHash(ctx context.Context, keyHash string) (*ApiKey, error)
	ListKeys(ctx context.Context) ([]*ApiKey, error)
	TouchKey(ctx context.Context, id string) error
	RevokeKey(ctx context.Context, id string) error
	SetWebhook(ctx context.Context, id, url string) error

	AddAllowlistEntry(ctx context.Context, entry *AllowlistEntry) (bool, error)
	ListAllowlist(ctx context.Context, apiKeyID string) ([]*AllowlistEntry, error)
	RemoveAllowlistEntry(ctx context.Context, apiKeyID, pattern string) (bool, error)
}

// QueueStore persists queued actions and their status history.
type QueueStore interface {
	CreateEntry(ctx context.Context, entry *QueueEntry) error
	GetEntry(ctx context.Context, id string) (*QueueEntry, error)
	ListPending(ctx context.Context) ([]*QueueEntry, error)
	CountPending(ctx context.Context) (int64, error)
	CountSince(ctx context.Context, apiKeyID string, since time.Time) (int64, error)
	OldestSince(ctx context.Context, apiKeyID string, since time.Time) (*time.Time, error)
	ListHistory(ctx context.Context, filter HistoryFilter) ([]*HistoryEntry, error)

	// Claim atomically moves a pending or flagged entry to the given status
	// (approved or denied). Returns ErrAlreadyResolved if the entry has
	// already been claimed and ErrNotFound if it does not exist.
	Claim(ctx context.Context, id, status string) error

	MarkSent(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id, errorMessage string) error
}

// FilterStore persists content filters.
type FilterStore interface {
	CreateFilter(ctx context.Context, f *ContentFilter) error
	ListFilters(ctx context.Context) ([]*ContentFilter, error)
	ListEnabledFilters(ctx context.Context) ([]*ContentFilter, error)
	SetFilterEnabled(ctx context.Context, id string, enabled bool) error
	DeleteFilter(ctx context.Context, id string) error
}

// ConsentStore looks up the per-contact AI consent flag by recipient
// address. Unknown recipients are treated as allowed.
type ConsentStore interface {
	ConsentAllowed(ctx context.Context, address string) (bool, error)
}
