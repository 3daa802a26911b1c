// ABOUTME: Content filter persistence: safety rules matched against outbound content
// ABOUTME: Enabled filters are ordered deny-before-flag so denials win

package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// CreateFilter persists a content filter.
func (s *SQLiteStore) CreateFilter(ctx context.Context, f *ContentFilter) error {
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	if f.CreatedAt.IsZero() {
		f.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO content_filters (id, pattern, pattern_type, action, description, enabled, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, f.ID, f.Pattern, f.PatternType, f.Action, nullString(f.Description),
		boolToInt(f.Enabled), f.CreatedAt.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("inserting content filter: %w", err)
	}
	return nil
}

// ListFilters returns every filter, enabled or not.
func (s *SQLiteStore) ListFilters(ctx context.Context) ([]*ContentFilter, error) {
	return s.queryFilters(ctx, `
		SELECT id, pattern, pattern_type, action, description, enabled, created_at
		FROM content_filters
		ORDER BY action ASC, created_at ASC
	`)
}

// ListEnabledFilters returns enabled filters with deny filters first, so a
// message matching both a deny and a flag rule is denied.
func (s *SQLiteStore) ListEnabledFilters(ctx context.Context) ([]*ContentFilter, error) {
	return s.queryFilters(ctx, `
		SELECT id, pattern, pattern_type, action, description, enabled, created_at
		FROM content_filters
		WHERE enabled = 1
		ORDER BY action ASC, created_at ASC
	`)
}

// SetFilterEnabled toggles a filter on or off.
func (s *SQLiteStore) SetFilterEnabled(ctx context.Context, id string, enabled bool) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE content_filters SET enabled = ? WHERE id = ?`, boolToInt(enabled), id)
	if err != nil {
		return fmt.Errorf("updating content filter: %w", err)
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

// DeleteFilter removes a filter permanently.
func (s *SQLiteStore) DeleteFilter(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM content_filters WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting content filter: %w", err)
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

func (s *SQLiteStore) queryFilters(ctx context.Context, query string) ([]*ContentFilter, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying content filters: %w", err)
	}
	defer rows.Close()

	var filters []*ContentFilter
	for rows.Next() {
		var f ContentFilter
		var description sql.NullString
		var enabled int
		var createdAt string
		if err := rows.Scan(&f.ID, &f.Pattern, &f.PatternType, &f.Action,
			&description, &enabled, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning content filter: %w", err)
		}
		if description.Valid {
			f.Description = description.String
		}
		f.Enabled = enabled != 0
		f.CreatedAt, err = parseTime(createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		filters = append(filters, &f)
	}
	return filters, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
