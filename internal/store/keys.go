// ABOUTME: KeyStore implementation over SQLite: api_keys plus their allowlists
// ABOUTME: Keys are stored hashed; the plaintext secret never touches this package

package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// CreateKey persists a new API key record. The caller supplies the hash and
// display prefix; ID and CreatedAt are filled in if empty.
func (s *SQLiteStore) CreateKey(ctx context.Context, key *ApiKey) error {
	if key.ID == "" {
		key.ID = uuid.NewString()
	}
	if key.CreatedAt.IsZero() {
		key.CreatedAt = time.Now().UTC()
	}
	if key.RateLimitPerHour == 0 {
		key.RateLimitPerHour = 10
	}
	if key.RateLimitPerDay == 0 {
		key.RateLimitPerDay = 50
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO api_keys (id, name, key_hash, key_prefix, created_at,
			rate_limit_per_hour, rate_limit_per_day, webhook_url)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, key.ID, key.Name, key.KeyHash, key.KeyPrefix,
		key.CreatedAt.UTC().Format(time.RFC3339),
		key.RateLimitPerHour, key.RateLimitPerDay, nullString(key.WebhookURL))
	if err != nil {
		return fmt.Errorf("inserting api key: %w", err)
	}
	return nil
}

// GetKey returns one key by id.
func (s *SQLiteStore) GetKey(ctx context.Context, id string) (*ApiKey, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, key_hash, key_prefix, created_at, last_used_at,
			revoked_at, rate_limit_per_hour, rate_limit_per_day, webhook_url
		FROM api_keys
		WHERE id = ?
	`, id)
	return scanApiKey(row)
}

// GetKeyByHash looks up a key by its SHA-256 hash. Returns ErrNotFound when
// no key matches; revoked keys are returned so callers can report revocation.
func (s *SQLiteStore) GetKeyByHash(ctx context.Context, keyHash string) (*ApiKey, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, key_hash, key_prefix, created_at, last_used_at,
			revoked_at, rate_limit_per_hour, rate_limit_per_day, webhook_url
		FROM api_keys
		WHERE key_hash = ?
	`, keyHash)
	return scanApiKey(row)
}

// ListKeys returns all keys, active and revoked, newest first.
func (s *SQLiteStore) ListKeys(ctx context.Context) ([]*ApiKey, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, key_hash, key_prefix, created_at, last_used_at,
			revoked_at, rate_limit_per_hour, rate_limit_per_day, webhook_url
		FROM api_keys
		ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("listing api keys: %w", err)
	}
	defer rows.Close()

	var keys []*ApiKey
	for rows.Next() {
		key, err := scanApiKey(rows)
		if err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

// TouchKey updates last_used_at to now. Called on each successful
// authentication.
func (s *SQLiteStore) TouchKey(ctx context.Context, id string) error {
	now := time.Now().UTC().Format(time.RFC3339)
	result, err := s.db.ExecContext(ctx,
		`UPDATE api_keys SET last_used_at = ? WHERE id = ?`, now, id)
	if err != nil {
		return fmt.Errorf("touching api key: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// RevokeKey marks a key revoked. Revocation is permanent; there is no
// corresponding un-revoke.
func (s *SQLiteStore) RevokeKey(ctx context.Context, id string) error {
	now := time.Now().UTC().Format(time.RFC3339)
	result, err := s.db.ExecContext(ctx,
		`UPDATE api_keys SET revoked_at = ? WHERE id = ? AND revoked_at IS NULL`, now, id)
	if err != nil {
		return fmt.Errorf("revoking api key: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// SetWebhook sets or clears (url == "") the per-key webhook URL.
func (s *SQLiteStore) SetWebhook(ctx context.Context, id, url string) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE api_keys SET webhook_url = ? WHERE id = ?`, nullString(url), id)
	if err != nil {
		return fmt.Errorf("setting webhook url: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanApiKey(row rowScanner) (*ApiKey, error) {
	var key ApiKey
	var createdAt string
	var lastUsedAt, revokedAt, webhookURL sql.NullString

	err := row.Scan(&key.ID, &key.Name, &key.KeyHash, &key.KeyPrefix,
		&createdAt, &lastUsedAt, &revokedAt,
		&key.RateLimitPerHour, &key.RateLimitPerDay, &webhookURL)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning api key: %w", err)
	}

	key.CreatedAt, err = parseTime(createdAt)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	key.LastUsedAt = parseNullTime(lastUsedAt)
	key.RevokedAt = parseNullTime(revokedAt)
	if webhookURL.Valid {
		key.WebhookURL = webhookURL.String
	}
	return &key, nil
}
