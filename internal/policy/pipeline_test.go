// ABOUTME: Tests for the admission pipeline: check order, rejection codes, retry-after math

package policy

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jnun/contactcmd/internal/filter"
	"github.com/jnun/contactcmd/internal/store"
)

type fakeKeyStore struct {
	store.KeyStore
	allowlist []*store.AllowlistEntry
}

func (f *fakeKeyStore) ListAllowlist(ctx context.Context, apiKeyID string) ([]*store.AllowlistEntry, error) {
	return f.allowlist, nil
}

type fakeQueueStore struct {
	store.QueueStore
	count  int64
	oldest *time.Time
}

func (f *fakeQueueStore) CountSince(ctx context.Context, apiKeyID string, since time.Time) (int64, error) {
	return f.count, nil
}

func (f *fakeQueueStore) OldestSince(ctx context.Context, apiKeyID string, since time.Time) (*time.Time, error) {
	return f.oldest, nil
}

type fakeConsent struct {
	denied map[string]bool
}

func (f *fakeConsent) ConsentAllowed(ctx context.Context, address string) (bool, error) {
	return !f.denied[address], nil
}

type fakeFilterStore struct {
	filters []*store.ContentFilter
}

func (f *fakeFilterStore) CreateFilter(ctx context.Context, cf *store.ContentFilter) error {
	return nil
}
func (f *fakeFilterStore) ListFilters(ctx context.Context) ([]*store.ContentFilter, error) {
	return f.filters, nil
}
func (f *fakeFilterStore) ListEnabledFilters(ctx context.Context) ([]*store.ContentFilter, error) {
	return f.filters, nil
}
func (f *fakeFilterStore) SetFilterEnabled(ctx context.Context, id string, enabled bool) error {
	return nil
}
func (f *fakeFilterStore) DeleteFilter(ctx context.Context, id string) error {
	return nil
}

type pipelineFixture struct {
	pipeline *Pipeline
	keys     *fakeKeyStore
	queue    *fakeQueueStore
	consent  *fakeConsent
	key      *store.ApiKey
}

func newFixture(t *testing.T, filters ...*store.ContentFilter) *pipelineFixture {
	t.Helper()
	ks := &fakeKeyStore{}
	qs := &fakeQueueStore{}
	cs := &fakeConsent{denied: map[string]bool{}}
	m, err := filter.NewMatcher(context.Background(), &fakeFilterStore{filters: filters})
	require.NoError(t, err)

	return &pipelineFixture{
		pipeline: NewPipeline(ks, qs, cs, m),
		keys:     ks,
		queue:    qs,
		consent:  cs,
		key: &store.ApiKey{
			ID:               "key-1",
			Name:             "tester",
			RateLimitPerHour: 10,
			RateLimitPerDay:  50,
		},
	}
}

func validRequest() *Request {
	return &Request{
		Channel:   store.ChannelEmail,
		Recipient: "bob@acme.com",
		Subject:   "hello",
		Body:      "a friendly note",
	}
}

func policyErr(t *testing.T, err error) *Error {
	t.Helper()
	perr, ok := err.(*Error)
	require.True(t, ok, "expected *policy.Error, got %T: %v", err, err)
	return perr
}

func TestEvaluateAdmitsCleanRequest(t *testing.T) {
	f := newFixture(t)
	status, err := f.pipeline.Evaluate(context.Background(), f.key, validRequest())
	require.NoError(t, err)
	assert.Equal(t, store.StatusPending, status)
}

func TestEvaluateShapeValidation(t *testing.T) {
	f := newFixture(t)
	tests := []struct {
		name string
		mod  func(*Request)
	}{
		{"missing channel", func(r *Request) { r.Channel = "" }},
		{"unknown channel", func(r *Request) { r.Channel = "fax" }},
		{"missing recipient", func(r *Request) { r.Recipient = "  " }},
		{"missing body", func(r *Request) { r.Body = "" }},
		{"email without subject", func(r *Request) { r.Subject = "" }},
		{"email without at-sign", func(r *Request) { r.Recipient = "5551234567" }},
		{"unknown priority", func(r *Request) { r.Priority = "asap" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := validRequest()
			tt.mod(req)
			_, err := f.pipeline.Evaluate(context.Background(), f.key, req)
			perr := policyErr(t, err)
			assert.Equal(t, "invalid_request", perr.Code)
			assert.Equal(t, 400, perr.Status)
		})
	}
}

func TestEvaluateConsentDenied(t *testing.T) {
	f := newFixture(t)
	f.consent.denied["bob@acme.com"] = true

	_, err := f.pipeline.Evaluate(context.Background(), f.key, validRequest())
	perr := policyErr(t, err)
	assert.Equal(t, "contact_consent_denied", perr.Code)
	assert.Equal(t, 403, perr.Status)
	assert.Equal(t, "bob@acme.com", perr.Fields["recipient"])
}

func TestEvaluateAllowlistRejection(t *testing.T) {
	f := newFixture(t)
	f.keys.allowlist = []*store.AllowlistEntry{
		{RecipientPattern: "*@other.com"},
	}

	_, err := f.pipeline.Evaluate(context.Background(), f.key, validRequest())
	perr := policyErr(t, err)
	assert.Equal(t, "recipient_not_allowed", perr.Code)
	assert.Equal(t, 403, perr.Status)
	assert.Equal(t, []string{"*@other.com"}, perr.Fields["allowed_patterns"])
}

func TestEvaluateConsentCheckedBeforeAllowlist(t *testing.T) {
	f := newFixture(t)
	f.consent.denied["bob@acme.com"] = true
	f.keys.allowlist = []*store.AllowlistEntry{
		{RecipientPattern: "*@other.com"},
	}

	_, err := f.pipeline.Evaluate(context.Background(), f.key, validRequest())
	perr := policyErr(t, err)
	assert.Equal(t, "contact_consent_denied", perr.Code)
}

func TestEvaluateHourlyRateLimit(t *testing.T) {
	f := newFixture(t)
	f.queue.count = 10

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	f.pipeline.now = func() time.Time { return now }
	oldest := now.Add(-40 * time.Minute)
	f.queue.oldest = &oldest

	_, err := f.pipeline.Evaluate(context.Background(), f.key, validRequest())
	perr := policyErr(t, err)
	assert.Equal(t, "rate_limit_exceeded", perr.Code)
	assert.Equal(t, 429, perr.Status)
	assert.Equal(t, "hourly", perr.Fields["limit_type"])
	assert.Equal(t, int64(10), perr.Fields["current_count"])
	assert.Equal(t, 10, perr.Fields["limit"])
	// Oldest entry is 40m old in a 60m window: 20m until it ages out
	assert.Equal(t, int64(20*60), perr.Fields["retry_after_seconds"])
}

func TestEvaluateRetryAfterClamped(t *testing.T) {
	f := newFixture(t)
	f.queue.count = 10

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	f.pipeline.now = func() time.Time { return now }
	oldest := now.Add(-time.Hour) // exactly at the window edge
	f.queue.oldest = &oldest

	_, err := f.pipeline.Evaluate(context.Background(), f.key, validRequest())
	perr := policyErr(t, err)
	assert.Equal(t, int64(1), perr.Fields["retry_after_seconds"])
}

func TestEvaluateRetryAfterFallsBackToWindow(t *testing.T) {
	f := newFixture(t)
	f.queue.count = 10
	f.queue.oldest = nil

	_, err := f.pipeline.Evaluate(context.Background(), f.key, validRequest())
	perr := policyErr(t, err)
	assert.Equal(t, int64(3600), perr.Fields["retry_after_seconds"])
}

func TestEvaluateDailyRateLimit(t *testing.T) {
	f := newFixture(t)
	f.key.RateLimitPerHour = 0 // disabled
	f.key.RateLimitPerDay = 50
	f.queue.count = 50

	_, err := f.pipeline.Evaluate(context.Background(), f.key, validRequest())
	perr := policyErr(t, err)
	assert.Equal(t, "daily", perr.Fields["limit_type"])
}

func TestEvaluateContentDeny(t *testing.T) {
	f := newFixture(t, &store.ContentFilter{
		ID: "ssn", Pattern: `\b\d{3}-\d{2}-\d{4}\b`, PatternType: store.PatternRegex,
		Action: store.ActionDeny, Description: "SSN pattern", Enabled: true,
	})

	req := validRequest()
	req.Body = "my ssn is 123-45-6789"
	_, err := f.pipeline.Evaluate(context.Background(), f.key, req)
	perr := policyErr(t, err)
	assert.Equal(t, "content_blocked", perr.Code)
	assert.Equal(t, 400, perr.Status)
	assert.Equal(t, "ssn", perr.Fields["filter"])
	assert.Equal(t, "SSN pattern", perr.Fields["description"])
}

func TestEvaluateContentFlag(t *testing.T) {
	f := newFixture(t, &store.ContentFilter{
		ID: "pw", Pattern: "password", PatternType: store.PatternLiteral,
		Action: store.ActionFlag, Enabled: true,
	})

	req := validRequest()
	req.Body = "your password is attached"
	status, err := f.pipeline.Evaluate(context.Background(), f.key, req)
	require.NoError(t, err)
	assert.Equal(t, store.StatusFlagged, status)
}

func TestEvaluateFilterChecksEmailSubject(t *testing.T) {
	f := newFixture(t, &store.ContentFilter{
		ID: "pw", Pattern: "password", PatternType: store.PatternLiteral,
		Action: store.ActionFlag, Enabled: true,
	})

	req := validRequest()
	req.Subject = "password reset"
	req.Body = "clean"
	status, err := f.pipeline.Evaluate(context.Background(), f.key, req)
	require.NoError(t, err)
	assert.Equal(t, store.StatusFlagged, status)
}
