// ABOUTME: Communication queue persistence and the approval state machine
// ABOUTME: Claim is the single atomic primitive both control surfaces race through

package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// CreateEntry persists a new queue entry with its initial status (pending or
// flagged). ID and CreatedAt are filled in if empty.
func (s *SQLiteStore) CreateEntry(ctx context.Context, entry *QueueEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	if entry.Status == "" {
		entry.Status = StatusPending
	}
	if entry.Priority == "" {
		entry.Priority = PriorityNormal
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO communication_queue (id, api_key_id, channel, recipient_address,
			recipient_name, subject, body, priority, status, agent_context, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, entry.ID, entry.ApiKeyID, entry.Channel, entry.RecipientAddress,
		nullString(entry.RecipientName), nullString(entry.Subject), entry.Body,
		entry.Priority, entry.Status, nullString(entry.AgentContext),
		entry.CreatedAt.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("inserting queue entry: %w", err)
	}
	return nil
}

// GetEntry returns one queue entry by id.
func (s *SQLiteStore) GetEntry(ctx context.Context, id string) (*QueueEntry, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, api_key_id, channel, recipient_address, recipient_name,
			subject, body, priority, status, agent_context, created_at,
			reviewed_at, sent_at, error_message
		FROM communication_queue
		WHERE id = ?
	`, id)
	return scanQueueEntry(row)
}

// ListPending returns entries awaiting review: flagged first, then by
// priority (urgent highest), then oldest first.
func (s *SQLiteStore) ListPending(ctx context.Context) ([]*QueueEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, api_key_id, channel, recipient_address, recipient_name,
			subject, body, priority, status, agent_context, created_at,
			reviewed_at, sent_at, error_message
		FROM communication_queue
		WHERE status IN ('pending', 'flagged')
		ORDER BY
			CASE status WHEN 'flagged' THEN 0 ELSE 1 END,
			CASE priority
				WHEN 'urgent' THEN 0
				WHEN 'high' THEN 1
				WHEN 'normal' THEN 2
				ELSE 3
			END,
			created_at ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("listing pending queue: %w", err)
	}
	defer rows.Close()

	var entries []*QueueEntry
	for rows.Next() {
		entry, err := scanQueueEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// CountPending returns the number of entries awaiting review.
func (s *SQLiteStore) CountPending(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM communication_queue
		WHERE status IN ('pending', 'flagged')
	`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting pending queue: %w", err)
	}
	return count, nil
}

// CountSince counts all entries for a key created at or after the given
// time, regardless of status. Denied and failed sends still consume quota.
func (s *SQLiteStore) CountSince(ctx context.Context, apiKeyID string, since time.Time) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM communication_queue
		WHERE api_key_id = ? AND created_at >= ?
	`, apiKeyID, since.UTC().Format(time.RFC3339)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting queue entries: %w", err)
	}
	return count, nil
}

// OldestSince returns the creation time of the oldest entry for a key inside
// the window, or nil when the window is empty. Used to compute exact
// retry-after values.
func (s *SQLiteStore) OldestSince(ctx context.Context, apiKeyID string, since time.Time) (*time.Time, error) {
	var createdAt sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT MIN(created_at) FROM communication_queue
		WHERE api_key_id = ? AND created_at >= ?
	`, apiKeyID, since.UTC().Format(time.RFC3339)).Scan(&createdAt)
	if err != nil {
		return nil, fmt.Errorf("finding oldest queue entry: %w", err)
	}
	return parseNullTime(createdAt), nil
}

// ListHistory returns entries joined with agent names, newest first,
// optionally filtered by exact status and/or agent name substring.
func (s *SQLiteStore) ListHistory(ctx context.Context, filter HistoryFilter) ([]*HistoryEntry, error) {
	var conditions []string
	var args []any

	if filter.Status != "" {
		conditions = append(conditions, "q.status = ?")
		args = append(args, filter.Status)
	}
	if filter.Agent != "" {
		conditions = append(conditions, "k.name LIKE ?")
		args = append(args, "%"+filter.Agent+"%")
	}

	query := `
		SELECT q.id, q.api_key_id, q.channel, q.recipient_address, q.recipient_name,
			q.subject, q.body, q.priority, q.status, q.agent_context, q.created_at,
			q.reviewed_at, q.sent_at, q.error_message,
			COALESCE(k.name, '') AS agent_name
		FROM communication_queue q
		LEFT JOIN api_keys k ON k.id = q.api_key_id
	`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY q.created_at DESC"

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	query += " LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing history: %w", err)
	}
	defer rows.Close()

	var entries []*HistoryEntry
	for rows.Next() {
		var h HistoryEntry
		var recipientName, subject, agentContext, errorMessage sql.NullString
		var reviewedAt, sentAt sql.NullString
		var createdAt string
		if err := rows.Scan(&h.ID, &h.ApiKeyID, &h.Channel, &h.RecipientAddress,
			&recipientName, &subject, &h.Body, &h.Priority, &h.Status,
			&agentContext, &createdAt, &reviewedAt, &sentAt, &errorMessage,
			&h.AgentName); err != nil {
			return nil, fmt.Errorf("scanning history entry: %w", err)
		}
		h.RecipientName = recipientName.String
		h.Subject = subject.String
		h.AgentContext = agentContext.String
		h.ErrorMessage = errorMessage.String
		h.CreatedAt, err = parseTime(createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		h.ReviewedAt = parseNullTime(reviewedAt)
		h.SentAt = parseNullTime(sentAt)
		entries = append(entries, &h)
	}
	return entries, rows.Err()
}

// Claim atomically transitions a pending or flagged entry to the given
// status and stamps reviewed_at. Exactly one concurrent claimant wins; the
// others get ErrAlreadyResolved.
func (s *SQLiteStore) Claim(ctx context.Context, id, status string) error {
	if status != StatusApproved && status != StatusDenied {
		return fmt.Errorf("invalid claim status %q", status)
	}

	now := time.Now().UTC().Format(time.RFC3339)
	result, err := s.db.ExecContext(ctx, `
		UPDATE communication_queue
		SET status = ?, reviewed_at = ?
		WHERE id = ? AND status IN ('pending', 'flagged')
	`, status, now, id)
	if err != nil {
		return fmt.Errorf("claiming queue entry: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rows > 0 {
		return nil
	}

	// Claim failed: distinguish missing from already-resolved
	if _, err := s.GetEntry(ctx, id); err != nil {
		return err
	}
	return ErrAlreadyResolved
}

// MarkSent records successful delivery of an approved entry.
func (s *SQLiteStore) MarkSent(ctx context.Context, id string) error {
	now := time.Now().UTC().Format(time.RFC3339)
	result, err := s.db.ExecContext(ctx, `
		UPDATE communication_queue
		SET status = 'sent', sent_at = ?
		WHERE id = ? AND status = 'approved'
	`, now, id)
	if err != nil {
		return fmt.Errorf("marking entry sent: %w", err)
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

// MarkFailed records a delivery failure for an approved entry. The error
// message must already be sanitized by the caller.
func (s *SQLiteStore) MarkFailed(ctx context.Context, id, errorMessage string) error {
	now := time.Now().UTC().Format(time.RFC3339)
	result, err := s.db.ExecContext(ctx, `
		UPDATE communication_queue
		SET status = 'failed', sent_at = ?, error_message = ?
		WHERE id = ? AND status = 'approved'
	`, now, errorMessage, id)
	if err != nil {
		return fmt.Errorf("marking entry failed: %w", err)
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

func scanQueueEntry(row rowScanner) (*QueueEntry, error) {
	var e QueueEntry
	var recipientName, subject, agentContext, errorMessage sql.NullString
	var reviewedAt, sentAt sql.NullString
	var createdAt string

	err := row.Scan(&e.ID, &e.ApiKeyID, &e.Channel, &e.RecipientAddress,
		&recipientName, &subject, &e.Body, &e.Priority, &e.Status,
		&agentContext, &createdAt, &reviewedAt, &sentAt, &errorMessage)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning queue entry: %w", err)
	}

	e.RecipientName = recipientName.String
	e.Subject = subject.String
	e.AgentContext = agentContext.String
	e.ErrorMessage = errorMessage.String
	e.CreatedAt, err = parseTime(createdAt)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	e.ReviewedAt = parseNullTime(reviewedAt)
	e.SentAt = parseNullTime(sentAt)
	return &e, nil
}
