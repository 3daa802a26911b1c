// ABOUTME: Ordered admission pipeline for send requests
// ABOUTME: Shape, consent, allowlist, rate limit, then content filter; first rejection wins

package policy

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jnun/contactcmd/internal/filter"
	"github.com/jnun/contactcmd/internal/store"
)

// Request is a parsed send request, evaluated after authentication.
type Request struct {
	Channel       string
	Recipient     string
	RecipientName string
	Subject       string
	Body          string
	Priority      string
	AgentContext  string
}

// Pipeline runs the admission checks in order against an authenticated key.
type Pipeline struct {
	keys    store.KeyStore
	queue   store.QueueStore
	consent store.ConsentStore
	matcher *filter.Matcher
	logger  *slog.Logger
	now     func() time.Time
}

// NewPipeline wires the pipeline's dependencies.
func NewPipeline(ks store.KeyStore, qs store.QueueStore, cs store.ConsentStore, m *filter.Matcher) *Pipeline {
	return &Pipeline{
		keys:    ks,
		queue:   qs,
		consent: cs,
		matcher: m,
		logger:  slog.Default().With("component", "policy"),
		now:     time.Now,
	}
}

// Evaluate runs all checks in order. On admission it returns the entry's
// initial status (pending, or flagged when a flag filter matched). Policy
// rejections come back as *Error; anything else is an internal failure.
func (p *Pipeline) Evaluate(ctx context.Context, key *store.ApiKey, req *Request) (string, error) {
	if perr := validateShape(req); perr != nil {
		return "", perr
	}

	allowed, err := p.consent.ConsentAllowed(ctx, req.Recipient)
	if err != nil {
		return "", fmt.Errorf("checking contact consent: %w", err)
	}
	if !allowed {
		return "", consentDenied(req.Recipient)
	}

	entries, err := p.keys.ListAllowlist(ctx, key.ID)
	if err != nil {
		return "", fmt.Errorf("loading allowlist: %w", err)
	}
	patterns := make([]string, len(entries))
	for i, e := range entries {
		patterns[i] = e.RecipientPattern
	}
	if !MatchesAllowlist(patterns, req.Recipient) {
		return "", recipientNotAllowed(patterns)
	}

	if perr, err := p.checkRateLimits(ctx, key); err != nil {
		return "", err
	} else if perr != nil {
		return "", perr
	}

	var match *filter.Match
	if req.Channel == store.ChannelEmail {
		match = p.matcher.CheckEmail(req.Subject, req.Body)
	} else {
		match = p.matcher.CheckMessage(req.Body)
	}
	if match != nil {
		if match.Action == store.ActionDeny {
			p.logger.Info("send blocked by content filter",
				"key_id", key.ID, "filter_id", match.FilterID)
			return "", contentBlocked(match.FilterID, match.Description)
		}
		return store.StatusFlagged, nil
	}

	return store.StatusPending, nil
}

func validateShape(req *Request) *Error {
	switch req.Channel {
	case store.ChannelEmail, store.ChannelSMS, store.ChannelIMessage:
	case "":
		return validationError("channel is required")
	default:
		return validationError(fmt.Sprintf("unknown channel %q", req.Channel))
	}

	if strings.TrimSpace(req.Recipient) == "" {
		return validationError("recipient is required")
	}
	if strings.TrimSpace(req.Body) == "" {
		return validationError("body is required")
	}
	if req.Channel == store.ChannelEmail {
		if strings.TrimSpace(req.Subject) == "" {
			return validationError("subject is required for email")
		}
		if !strings.Contains(req.Recipient, "@") {
			return validationError("email recipient must be an email address")
		}
	}

	switch req.Priority {
	case "", store.PriorityUrgent, store.PriorityHigh, store.PriorityNormal, store.PriorityLow:
	default:
		return validationError(fmt.Sprintf("unknown priority %q", req.Priority))
	}
	return nil
}

// checkRateLimits counts all entries in the trailing hour and day windows.
// Every admitted request consumes quota regardless of its eventual outcome.
func (p *Pipeline) checkRateLimits(ctx context.Context, key *store.ApiKey) (*Error, error) {
	now := p.now()

	windows := []struct {
		limitType string
		window    time.Duration
		limit     int
	}{
		{"hourly", time.Hour, key.RateLimitPerHour},
		{"daily", 24 * time.Hour, key.RateLimitPerDay},
	}

	for _, w := range windows {
		if w.limit <= 0 {
			continue
		}
		since := now.Add(-w.window)
		count, err := p.queue.CountSince(ctx, key.ID, since)
		if err != nil {
			return nil, fmt.Errorf("counting %s window: %w", w.limitType, err)
		}
		if count < int64(w.limit) {
			continue
		}
		retryAfter := p.retryAfter(ctx, key.ID, since, now, w.window)
		return rateLimitExceeded(w.limitType, count, w.limit, retryAfter), nil
	}
	return nil, nil
}

// retryAfter computes seconds until the oldest in-window entry ages out,
// clamped to [1, window]. Falls back to the full window if the oldest entry
// cannot be read.
func (p *Pipeline) retryAfter(ctx context.Context, keyID string, since, now time.Time, window time.Duration) int64 {
	oldest, err := p.queue.OldestSince(ctx, keyID, since)
	if err != nil || oldest == nil {
		return int64(window.Seconds())
	}
	remaining := window - now.Sub(*oldest)
	secs := int64(remaining.Round(time.Second).Seconds())
	if secs < 1 {
		return 1
	}
	if max := int64(window.Seconds()); secs > max {
		return max
	}
	return secs
}
