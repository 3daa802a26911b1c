// ABOUTME: SQLite implementation of the gateway stores using modernc.org/sqlite
// ABOUTME: Owns schema creation, default content filter seeding, and the shared DB handle

package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements KeyStore, QueueStore, FilterStore, and ConsentStore
// on a single SQLite database.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is created if it doesn't exist and default content filters are
// seeded on first run. Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Single connection: SQLite allows one writer, and sharing a connection
	// avoids SQLITE_BUSY under concurrent claims
	db.SetMaxOpenConns(1)

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	if err := s.seedContentFilters(); err != nil {
		db.Close()
		return nil, fmt.Errorf("seeding content filters: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS api_keys (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			key_hash TEXT NOT NULL UNIQUE,
			key_prefix TEXT NOT NULL,
			created_at TEXT NOT NULL,
			last_used_at TEXT,
			revoked_at TEXT,
			rate_limit_per_hour INTEGER NOT NULL DEFAULT 10,
			rate_limit_per_day INTEGER NOT NULL DEFAULT 50,
			webhook_url TEXT
		);

		CREATE INDEX IF NOT EXISTS idx_api_keys_hash ON api_keys(key_hash);

		CREATE TABLE IF NOT EXISTS api_key_allowlists (
			id TEXT PRIMARY KEY,
			api_key_id TEXT NOT NULL,
			recipient_pattern TEXT NOT NULL,
			created_at TEXT NOT NULL,
			FOREIGN KEY (api_key_id) REFERENCES api_keys(id) ON DELETE CASCADE
		);

		CREATE INDEX IF NOT EXISTS idx_allowlist_api_key ON api_key_allowlists(api_key_id);
		CREATE UNIQUE INDEX IF NOT EXISTS idx_allowlist_unique
			ON api_key_allowlists(api_key_id, recipient_pattern);

		CREATE TABLE IF NOT EXISTS content_filters (
			id TEXT PRIMARY KEY,
			pattern TEXT NOT NULL,
			pattern_type TEXT NOT NULL,
			action TEXT NOT NULL,
			description TEXT,
			enabled INTEGER NOT NULL DEFAULT 1,
			created_at TEXT NOT NULL,

			CHECK (pattern_type IN ('regex', 'literal')),
			CHECK (action IN ('deny', 'flag'))
		);

		CREATE INDEX IF NOT EXISTS idx_content_filter_enabled ON content_filters(enabled);
		CREATE INDEX IF NOT EXISTS idx_content_filter_action ON content_filters(action);

		CREATE TABLE IF NOT EXISTS communication_queue (
			id TEXT PRIMARY KEY,
			api_key_id TEXT NOT NULL,
			channel TEXT NOT NULL,
			recipient_address TEXT NOT NULL,
			recipient_name TEXT,
			subject TEXT,
			body TEXT NOT NULL,
			priority TEXT NOT NULL DEFAULT 'normal',
			status TEXT NOT NULL DEFAULT 'pending',
			agent_context TEXT,
			created_at TEXT NOT NULL,
			reviewed_at TEXT,
			sent_at TEXT,
			error_message TEXT,

			FOREIGN KEY (api_key_id) REFERENCES api_keys(id),
			CHECK (channel IN ('email', 'sms', 'imessage')),
			CHECK (status IN ('pending', 'flagged', 'approved', 'denied', 'sent', 'failed'))
		);

		CREATE INDEX IF NOT EXISTS idx_queue_status ON communication_queue(status);
		CREATE INDEX IF NOT EXISTS idx_queue_created ON communication_queue(created_at);
		CREATE INDEX IF NOT EXISTS idx_queue_api_key ON communication_queue(api_key_id);

		CREATE TABLE IF NOT EXISTS contacts (
			id TEXT PRIMARY KEY,
			address TEXT NOT NULL UNIQUE,
			display_name TEXT,
			ai_contact_allowed INTEGER NOT NULL DEFAULT 1,
			created_at TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_contacts_address ON contacts(address);
	`

	_, err := s.db.Exec(schema)
	return err
}

// seedContentFilters inserts the default safety filters on a fresh database.
// Idempotent: runs only when the content_filters table is empty.
func (s *SQLiteStore) seedContentFilters() error {
	var count int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM content_filters`).Scan(&count); err != nil {
		return fmt.Errorf("counting filters: %w", err)
	}
	if count > 0 {
		return nil
	}

	defaults := []struct {
		pattern     string
		patternType string
		action      string
		description string
	}{
		{`\b\d{3}-\d{2}-\d{4}\b`, "regex", "deny", "Social Security Number pattern (XXX-XX-XXXX)"},
		{`\b(?:\d{4}[- ]?){3}\d{4}\b`, "regex", "deny", "Credit card number pattern (16 digits)"},
		{"password", "literal", "flag", "Message contains the word 'password'"},
		{`\b(?:api[_-]?key|secret[_-]?key|access[_-]?token)\s*[:=]\s*\S+`, "regex", "deny", "API key or secret assignment pattern"},
	}

	now := time.Now().UTC().Format(time.RFC3339)
	for _, f := range defaults {
		_, err := s.db.Exec(`
			INSERT INTO content_filters (id, pattern, pattern_type, action, description, enabled, created_at)
			VALUES (?, ?, ?, ?, ?, 1, ?)
		`, uuid.NewString(), f.pattern, f.patternType, f.action, f.description, now)
		if err != nil {
			return fmt.Errorf("inserting default filter: %w", err)
		}
	}

	s.logger.Info("seeded default content filters", "count", len(defaults))
	return nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	s.logger.Info("closing SQLite store")
	return s.db.Close()
}

// nullString returns nil for empty strings, otherwise the string value
func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339, s)
}

func parseNullTime(ns sql.NullString) *time.Time {
	if !ns.Valid {
		return nil
	}
	t, err := time.Parse(time.RFC3339, ns.String)
	if err != nil {
		return nil
	}
	return &t
}
