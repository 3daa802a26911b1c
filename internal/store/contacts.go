// ABOUTME: Contact consent lookup against the contacts table
// ABOUTME: Unknown recipients are allowed; only an explicit opt-out blocks sends

package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// ConsentAllowed reports whether the contact at the given address permits
// automated messages. Phone numbers are matched on their normalized form.
func (s *SQLiteStore) ConsentAllowed(ctx context.Context, address string) (bool, error) {
	var allowed int
	err := s.db.QueryRowContext(ctx, `
		SELECT ai_contact_allowed FROM contacts WHERE address = ?
	`, normalizeContactAddress(address)).Scan(&allowed)
	if err == sql.ErrNoRows {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("looking up contact consent: %w", err)
	}
	return allowed != 0, nil
}

// UpsertContact records or updates a contact's consent flag. Used by tests
// and by the owning contact manager; the gateway itself only reads.
func (s *SQLiteStore) UpsertContact(ctx context.Context, address, displayName string, allowed bool) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO contacts (id, address, display_name, ai_contact_allowed, created_at)
		VALUES (
			lower(hex(randomblob(16))), ?, ?, ?,
			strftime('%Y-%m-%dT%H:%M:%SZ', 'now')
		)
		ON CONFLICT(address) DO UPDATE SET
			display_name = excluded.display_name,
			ai_contact_allowed = excluded.ai_contact_allowed
	`, normalizeContactAddress(address), nullString(displayName), boolToInt(allowed))
	if err != nil {
		return fmt.Errorf("upserting contact: %w", err)
	}
	return nil
}

// normalizeContactAddress lowercases emails and reduces phone numbers to
// their digits so stored and queried addresses compare equal.
func normalizeContactAddress(address string) string {
	if strings.Contains(address, "@") {
		return strings.ToLower(strings.TrimSpace(address))
	}
	var b strings.Builder
	for _, r := range address {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return strings.ToLower(strings.TrimSpace(address))
	}
	return b.String()
}
