// ABOUTME: Tests for the SQLite store: keys, allowlists, filters, queue state machine

package store

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func createTestKey(t *testing.T, s *SQLiteStore, name string) *ApiKey {
	t.Helper()
	key := &ApiKey{
		Name:      name,
		KeyHash:   "hash-" + name,
		KeyPrefix: "gw_" + name,
	}
	require.NoError(t, s.CreateKey(context.Background(), key))
	return key
}

func createTestEntry(t *testing.T, s *SQLiteStore, keyID string, mod func(*QueueEntry)) *QueueEntry {
	t.Helper()
	entry := &QueueEntry{
		ApiKeyID:         keyID,
		Channel:          ChannelEmail,
		RecipientAddress: "bob@acme.com",
		Subject:          "hello",
		Body:             "test body",
	}
	if mod != nil {
		mod(entry)
	}
	require.NoError(t, s.CreateEntry(context.Background(), entry))
	return entry
}

func TestCreateAndGetKey(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	key := createTestKey(t, s, "agent-1")
	assert.NotEmpty(t, key.ID)
	assert.Equal(t, 10, key.RateLimitPerHour)
	assert.Equal(t, 50, key.RateLimitPerDay)

	got, err := s.GetKey(ctx, key.ID)
	require.NoError(t, err)
	assert.Equal(t, "agent-1", got.Name)
	assert.Nil(t, got.LastUsedAt)
	assert.False(t, got.Revoked())

	byHash, err := s.GetKeyByHash(ctx, key.KeyHash)
	require.NoError(t, err)
	assert.Equal(t, key.ID, byHash.ID)
}

func TestGetKeyNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetKey(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.GetKeyByHash(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTouchKey(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	key := createTestKey(t, s, "agent-1")

	require.NoError(t, s.TouchKey(ctx, key.ID))
	got, err := s.GetKey(ctx, key.ID)
	require.NoError(t, err)
	require.NotNil(t, got.LastUsedAt)
	assert.WithinDuration(t, time.Now(), *got.LastUsedAt, 5*time.Second)

	assert.ErrorIs(t, s.TouchKey(ctx, "missing"), ErrNotFound)
}

func TestRevokeKey(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	key := createTestKey(t, s, "agent-1")

	require.NoError(t, s.RevokeKey(ctx, key.ID))
	got, err := s.GetKey(ctx, key.ID)
	require.NoError(t, err)
	assert.True(t, got.Revoked())

	// Revoking twice is an error; revocation is permanent
	assert.ErrorIs(t, s.RevokeKey(ctx, key.ID), ErrNotFound)
}

func TestSetWebhook(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	key := createTestKey(t, s, "agent-1")

	require.NoError(t, s.SetWebhook(ctx, key.ID, "https://example.com/hook"))
	got, err := s.GetKey(ctx, key.ID)
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/hook", got.WebhookURL)

	require.NoError(t, s.SetWebhook(ctx, key.ID, ""))
	got, err = s.GetKey(ctx, key.ID)
	require.NoError(t, err)
	assert.Empty(t, got.WebhookURL)
}

func TestListKeys(t *testing.T) {
	s := newTestStore(t)
	createTestKey(t, s, "agent-1")
	createTestKey(t, s, "agent-2")

	listed, err := s.ListKeys(context.Background())
	require.NoError(t, err)
	assert.Len(t, listed, 2)
}

func TestAllowlistAddDuplicateRemove(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	key := createTestKey(t, s, "agent-1")

	added, err := s.AddAllowlistEntry(ctx, &AllowlistEntry{
		ApiKeyID: key.ID, RecipientPattern: "*@acme.com",
	})
	require.NoError(t, err)
	assert.True(t, added)

	added, err = s.AddAllowlistEntry(ctx, &AllowlistEntry{
		ApiKeyID: key.ID, RecipientPattern: "*@acme.com",
	})
	require.NoError(t, err)
	assert.False(t, added)

	entries, err := s.ListAllowlist(ctx, key.ID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "*@acme.com", entries[0].RecipientPattern)

	removed, err := s.RemoveAllowlistEntry(ctx, key.ID, "*@acme.com")
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = s.RemoveAllowlistEntry(ctx, key.ID, "*@acme.com")
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestSeededDefaultFilters(t *testing.T) {
	s := newTestStore(t)
	filters, err := s.ListEnabledFilters(context.Background())
	require.NoError(t, err)
	require.Len(t, filters, 4)

	// Deny filters sort before flag filters
	assert.Equal(t, ActionFlag, filters[len(filters)-1].Action)
	denyCount := 0
	for _, f := range filters {
		if f.Action == ActionDeny {
			denyCount++
		}
	}
	assert.Equal(t, 3, denyCount)
}

func TestSeedingIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.db")

	s1, err := NewSQLiteStore(path)
	require.NoError(t, err)
	require.NoError(t, s1.Close())

	s2, err := NewSQLiteStore(path)
	require.NoError(t, err)
	defer s2.Close()

	filters, err := s2.ListFilters(context.Background())
	require.NoError(t, err)
	assert.Len(t, filters, 4)
}

func TestFilterEnableDisableDelete(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	f := &ContentFilter{
		Pattern: "blocked", PatternType: PatternLiteral,
		Action: ActionDeny, Enabled: true,
	}
	require.NoError(t, s.CreateFilter(ctx, f))

	require.NoError(t, s.SetFilterEnabled(ctx, f.ID, false))
	enabled, err := s.ListEnabledFilters(ctx)
	require.NoError(t, err)
	for _, e := range enabled {
		assert.NotEqual(t, f.ID, e.ID)
	}

	require.NoError(t, s.DeleteFilter(ctx, f.ID))
	assert.ErrorIs(t, s.DeleteFilter(ctx, f.ID), ErrNotFound)
}

func TestCreateAndGetEntry(t *testing.T) {
	s := newTestStore(t)
	key := createTestKey(t, s, "agent-1")

	entry := createTestEntry(t, s, key.ID, func(e *QueueEntry) {
		e.AgentContext = `{"reason":"follow up"}`
	})
	assert.Equal(t, StatusPending, entry.Status)
	assert.Equal(t, PriorityNormal, entry.Priority)

	got, err := s.GetEntry(context.Background(), entry.ID)
	require.NoError(t, err)
	assert.Equal(t, "bob@acme.com", got.RecipientAddress)
	assert.Equal(t, `{"reason":"follow up"}`, got.AgentContext)
	assert.Nil(t, got.ReviewedAt)
	assert.Nil(t, got.SentAt)
}

func TestCreateEntryFlaggedInitialStatus(t *testing.T) {
	s := newTestStore(t)
	key := createTestKey(t, s, "agent-1")

	entry := createTestEntry(t, s, key.ID, func(e *QueueEntry) {
		e.Status = StatusFlagged
	})

	got, err := s.GetEntry(context.Background(), entry.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusFlagged, got.Status)
}

func TestListPendingOrdering(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	key := createTestKey(t, s, "agent-1")

	base := time.Now().UTC().Add(-time.Hour)
	mk := func(status, priority string, offset time.Duration) *QueueEntry {
		return createTestEntry(t, s, key.ID, func(e *QueueEntry) {
			e.Status = status
			e.Priority = priority
			e.CreatedAt = base.Add(offset)
		})
	}

	normalOld := mk(StatusPending, PriorityNormal, 0)
	urgent := mk(StatusPending, PriorityUrgent, 2*time.Minute)
	flaggedLow := mk(StatusFlagged, PriorityLow, 3*time.Minute)
	normalNew := mk(StatusPending, PriorityNormal, 4*time.Minute)

	// Resolved entries never appear
	resolved := mk(StatusPending, PriorityUrgent, time.Minute)
	require.NoError(t, s.Claim(ctx, resolved.ID, StatusDenied))

	pending, err := s.ListPending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 4)
	assert.Equal(t, flaggedLow.ID, pending[0].ID)
	assert.Equal(t, urgent.ID, pending[1].ID)
	assert.Equal(t, normalOld.ID, pending[2].ID)
	assert.Equal(t, normalNew.ID, pending[3].ID)
}

func TestCountPending(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	key := createTestKey(t, s, "agent-1")

	createTestEntry(t, s, key.ID, nil)
	createTestEntry(t, s, key.ID, func(e *QueueEntry) { e.Status = StatusFlagged })
	denied := createTestEntry(t, s, key.ID, nil)
	require.NoError(t, s.Claim(ctx, denied.ID, StatusDenied))

	count, err := s.CountPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}

func TestCountSinceCountsAllStatuses(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	key := createTestKey(t, s, "agent-1")
	other := createTestKey(t, s, "agent-2")

	now := time.Now().UTC()
	createTestEntry(t, s, key.ID, func(e *QueueEntry) { e.CreatedAt = now.Add(-10 * time.Minute) })
	denied := createTestEntry(t, s, key.ID, func(e *QueueEntry) { e.CreatedAt = now.Add(-20 * time.Minute) })
	require.NoError(t, s.Claim(ctx, denied.ID, StatusDenied))
	createTestEntry(t, s, key.ID, func(e *QueueEntry) { e.CreatedAt = now.Add(-2 * time.Hour) })
	createTestEntry(t, s, other.ID, func(e *QueueEntry) { e.CreatedAt = now.Add(-5 * time.Minute) })

	count, err := s.CountSince(ctx, key.ID, now.Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}

func TestOldestSince(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	key := createTestKey(t, s, "agent-1")

	now := time.Now().UTC().Truncate(time.Second)
	createTestEntry(t, s, key.ID, func(e *QueueEntry) { e.CreatedAt = now.Add(-40 * time.Minute) })
	createTestEntry(t, s, key.ID, func(e *QueueEntry) { e.CreatedAt = now.Add(-10 * time.Minute) })
	createTestEntry(t, s, key.ID, func(e *QueueEntry) { e.CreatedAt = now.Add(-2 * time.Hour) })

	oldest, err := s.OldestSince(ctx, key.ID, now.Add(-time.Hour))
	require.NoError(t, err)
	require.NotNil(t, oldest)
	assert.Equal(t, now.Add(-40*time.Minute), oldest.UTC())

	empty, err := s.OldestSince(ctx, "no-such-key", now.Add(-time.Hour))
	require.NoError(t, err)
	assert.Nil(t, empty)
}

func TestClaimTransitions(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	key := createTestKey(t, s, "agent-1")

	entry := createTestEntry(t, s, key.ID, nil)
	require.NoError(t, s.Claim(ctx, entry.ID, StatusApproved))

	got, err := s.GetEntry(ctx, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusApproved, got.Status)
	require.NotNil(t, got.ReviewedAt)

	// Second claim loses
	assert.ErrorIs(t, s.Claim(ctx, entry.ID, StatusDenied), ErrAlreadyResolved)
	// Missing entry is distinguishable
	assert.ErrorIs(t, s.Claim(ctx, "missing", StatusApproved), ErrNotFound)
	// Only approved/denied are valid claim targets
	fresh := createTestEntry(t, s, key.ID, nil)
	err = s.Claim(ctx, fresh.ID, StatusSent)
	assert.Error(t, err)
	assert.False(t, errors.Is(err, ErrAlreadyResolved))
}

func TestClaimFlaggedEntry(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	key := createTestKey(t, s, "agent-1")

	entry := createTestEntry(t, s, key.ID, func(e *QueueEntry) { e.Status = StatusFlagged })
	require.NoError(t, s.Claim(ctx, entry.ID, StatusDenied))

	got, err := s.GetEntry(ctx, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusDenied, got.Status)
}

func TestConcurrentClaimSingleWinner(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	key := createTestKey(t, s, "agent-1")
	entry := createTestEntry(t, s, key.ID, nil)

	const racers = 10
	results := make(chan error, racers)
	var wg sync.WaitGroup
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- s.Claim(ctx, entry.ID, StatusApproved)
		}()
	}
	wg.Wait()
	close(results)

	wins, losses := 0, 0
	for err := range results {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, ErrAlreadyResolved):
			losses++
		default:
			t.Fatalf("unexpected claim error: %v", err)
		}
	}
	assert.Equal(t, 1, wins)
	assert.Equal(t, racers-1, losses)
}

func TestMarkSentRequiresApproved(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	key := createTestKey(t, s, "agent-1")
	entry := createTestEntry(t, s, key.ID, nil)

	// Pending entries cannot be marked sent
	assert.ErrorIs(t, s.MarkSent(ctx, entry.ID), ErrNotFound)

	require.NoError(t, s.Claim(ctx, entry.ID, StatusApproved))
	require.NoError(t, s.MarkSent(ctx, entry.ID))

	got, err := s.GetEntry(ctx, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusSent, got.Status)
	assert.NotNil(t, got.SentAt)
	assert.Empty(t, got.ErrorMessage)
}

func TestMarkFailedRecordsError(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	key := createTestKey(t, s, "agent-1")
	entry := createTestEntry(t, s, key.ID, nil)

	require.NoError(t, s.Claim(ctx, entry.ID, StatusApproved))
	require.NoError(t, s.MarkFailed(ctx, entry.ID, "smtp: connection refused"))

	got, err := s.GetEntry(ctx, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, got.Status)
	assert.Equal(t, "smtp: connection refused", got.ErrorMessage)
	assert.NotNil(t, got.SentAt)

	// Terminal: cannot be marked again
	assert.ErrorIs(t, s.MarkSent(ctx, entry.ID), ErrNotFound)
}

func TestListHistoryFilters(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	alpha := createTestKey(t, s, "alpha-agent")
	beta := createTestKey(t, s, "beta-agent")

	base := time.Now().UTC().Add(-time.Hour)
	for i := 0; i < 3; i++ {
		createTestEntry(t, s, alpha.ID, func(e *QueueEntry) {
			e.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		})
	}
	denied := createTestEntry(t, s, beta.ID, func(e *QueueEntry) {
		e.CreatedAt = base.Add(10 * time.Minute)
	})
	require.NoError(t, s.Claim(ctx, denied.ID, StatusDenied))

	all, err := s.ListHistory(ctx, HistoryFilter{})
	require.NoError(t, err)
	require.Len(t, all, 4)
	// Newest first
	assert.Equal(t, denied.ID, all[0].ID)
	assert.Equal(t, "beta-agent", all[0].AgentName)

	deniedOnly, err := s.ListHistory(ctx, HistoryFilter{Status: StatusDenied})
	require.NoError(t, err)
	require.Len(t, deniedOnly, 1)
	assert.Equal(t, denied.ID, deniedOnly[0].ID)

	alphaOnly, err := s.ListHistory(ctx, HistoryFilter{Agent: "alpha"})
	require.NoError(t, err)
	assert.Len(t, alphaOnly, 3)

	limited, err := s.ListHistory(ctx, HistoryFilter{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestConsentAllowed(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// Unknown recipients are allowed
	allowed, err := s.ConsentAllowed(ctx, "stranger@acme.com")
	require.NoError(t, err)
	assert.True(t, allowed)

	require.NoError(t, s.UpsertContact(ctx, "Bob@Acme.com", "Bob", false))
	allowed, err = s.ConsentAllowed(ctx, "bob@acme.com")
	require.NoError(t, err)
	assert.False(t, allowed)

	// Phone numbers match on normalized form
	require.NoError(t, s.UpsertContact(ctx, "+1 (555) 123-4567", "Sue", false))
	allowed, err = s.ConsentAllowed(ctx, "+15551234567")
	require.NoError(t, err)
	assert.False(t, allowed)

	require.NoError(t, s.UpsertContact(ctx, "bob@acme.com", "Bob", true))
	allowed, err = s.ConsentAllowed(ctx, "bob@acme.com")
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestCreateKeyDuplicateHashFails(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first := &ApiKey{Name: "a", KeyHash: "same-hash", KeyPrefix: "gw_a"}
	require.NoError(t, s.CreateKey(ctx, first))

	dup := &ApiKey{Name: "b", KeyHash: "same-hash", KeyPrefix: "gw_b"}
	err := s.CreateKey(ctx, dup)
	require.Error(t, err)
	assert.Contains(t, fmt.Sprint(err), "inserting api key")
}
