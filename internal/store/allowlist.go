// ABOUTME: Allowlist persistence: per-key recipient patterns
// ABOUTME: Duplicate patterns are ignored via the unique index, not errored

package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// AddAllowlistEntry adds a recipient pattern for a key. Returns false when
// the pattern already exists for that key.
func (s *SQLiteStore) AddAllowlistEntry(ctx context.Context, entry *AllowlistEntry) (bool, error) {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO api_key_allowlists (id, api_key_id, recipient_pattern, created_at)
		VALUES (?, ?, ?, ?)
	`, entry.ID, entry.ApiKeyID, entry.RecipientPattern,
		entry.CreatedAt.UTC().Format(time.RFC3339))
	if err != nil {
		return false, fmt.Errorf("inserting allowlist entry: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("checking rows affected: %w", err)
	}
	return rows > 0, nil
}

// ListAllowlist returns all patterns for a key, oldest first. An empty list
// means the key is unrestricted.
func (s *SQLiteStore) ListAllowlist(ctx context.Context, apiKeyID string) ([]*AllowlistEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, api_key_id, recipient_pattern, created_at
		FROM api_key_allowlists
		WHERE api_key_id = ?
		ORDER BY created_at ASC
	`, apiKeyID)
	if err != nil {
		return nil, fmt.Errorf("listing allowlist: %w", err)
	}
	defer rows.Close()

	var entries []*AllowlistEntry
	for rows.Next() {
		var e AllowlistEntry
		var createdAt string
		if err := rows.Scan(&e.ID, &e.ApiKeyID, &e.RecipientPattern, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning allowlist entry: %w", err)
		}
		e.CreatedAt, err = parseTime(createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

// RemoveAllowlistEntry deletes one pattern for a key. Returns false when the
// pattern was not present.
func (s *SQLiteStore) RemoveAllowlistEntry(ctx context.Context, apiKeyID, pattern string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM api_key_allowlists
		WHERE api_key_id = ? AND recipient_pattern = ?
	`, apiKeyID, pattern)
	if err != nil {
		return false, fmt.Errorf("removing allowlist entry: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("checking rows affected: %w", err)
	}
	return rows > 0, nil
}
