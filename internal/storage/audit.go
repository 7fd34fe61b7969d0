package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/stewardhq/steward/pkg/models"
)

// WriteAudit persists one governance decision. Idempotent on the entry id so
// journal replays never duplicate rows.
func (s *Store) WriteAudit(ctx context.Context, entry *models.AuditEntry) error {
	if entry == nil || entry.AuditEntryID == "" {
		return fmt.Errorf("audit entry requires an id")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_entries (audit_entry_id, agent_id, session_id, decision, reason, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(audit_entry_id) DO NOTHING`,
		entry.AuditEntryID, entry.AgentID, nullableString(entry.SessionID),
		string(entry.Decision), entry.Reason, formatTime(entry.CreatedAt))
	if err != nil {
		return fmt.Errorf("write audit %s: %w", entry.AuditEntryID, err)
	}
	return nil
}

// ListAudits returns every audit entry for the agent, oldest first.
func (s *Store) ListAudits(ctx context.Context, agentID string) ([]*models.AuditEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT audit_entry_id, agent_id, session_id, decision, reason, created_at
		FROM audit_entries WHERE agent_id = ?
		ORDER BY created_at ASC, audit_entry_id ASC`, agentID)
	if err != nil {
		return nil, fmt.Errorf("list audits for %s: %w", agentID, err)
	}
	defer rows.Close()

	var entries []*models.AuditEntry
	for rows.Next() {
		var (
			entry     models.AuditEntry
			sessionID sql.NullString
			decision  string
			createdAt string
		)
		if err := rows.Scan(&entry.AuditEntryID, &entry.AgentID, &sessionID, &decision, &entry.Reason, &createdAt); err != nil {
			return nil, fmt.Errorf("scan audit: %w", err)
		}
		entry.SessionID = sessionID.String
		entry.Decision = models.PolicyDecision(decision)
		if entry.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, fmt.Errorf("parse audit created_at: %w", err)
		}
		entries = append(entries, &entry)
	}
	return entries, rows.Err()
}

// CountAuditsSince counts entries with the given reason recorded at or after
// since. Tool quota enforcement counts successful invocation audits this way.
func (s *Store) CountAuditsSince(ctx context.Context, agentID, reason string, since time.Time) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM audit_entries
		WHERE agent_id = ? AND reason = ? AND created_at >= ?`,
		agentID, reason, formatTime(since)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count audits for %s: %w", agentID, err)
	}
	return count, nil
}

func nullableString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
