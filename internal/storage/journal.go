package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// JournalStatus is the recorded outcome of one activity.
type JournalStatus string

const (
	JournalComplete JournalStatus = "complete"
	JournalFailed   JournalStatus = "failed"
)

// JournalEntry is one immutable row of the workflow journal.
type JournalEntry struct {
	ExecutionID      string
	ActivityName     string
	IdempotencyKey   string
	Status           JournalStatus
	SerializedResult []byte
	SerializedError  []byte
	RecordedAt       time.Time
}

// GetJournalEntry returns the recorded outcome for the activity key, or nil
// if the activity has not completed yet.
func (s *Store) GetJournalEntry(ctx context.Context, executionID, activityName, idempotencyKey string) (*JournalEntry, error) {
	var (
		entry      JournalEntry
		status     string
		result     sql.NullString
		serr       sql.NullString
		recordedAt string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT status, serialized_result, serialized_error, recorded_at
		FROM workflow_journal
		WHERE execution_id = ? AND activity_name = ? AND idempotency_key = ?`,
		executionID, activityName, idempotencyKey).
		Scan(&status, &result, &serr, &recordedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get journal entry %s/%s: %w", executionID, activityName, err)
	}
	entry.ExecutionID = executionID
	entry.ActivityName = activityName
	entry.IdempotencyKey = idempotencyKey
	entry.Status = JournalStatus(status)
	if result.Valid {
		entry.SerializedResult = []byte(result.String)
	}
	if serr.Valid {
		entry.SerializedError = []byte(serr.String)
	}
	if entry.RecordedAt, err = parseTime(recordedAt); err != nil {
		return nil, fmt.Errorf("parse journal recorded_at: %w", err)
	}
	return &entry, nil
}

// RecordJournalEntry writes an activity outcome. The first write for a key
// wins; later writes are ignored so replays can never rewrite history.
func (s *Store) RecordJournalEntry(ctx context.Context, entry *JournalEntry) error {
	if entry == nil || entry.ExecutionID == "" || entry.ActivityName == "" {
		return fmt.Errorf("journal entry requires execution id and activity name")
	}
	if entry.RecordedAt.IsZero() {
		entry.RecordedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO workflow_journal (execution_id, activity_name, idempotency_key,
			status, serialized_result, serialized_error, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(execution_id, activity_name, idempotency_key) DO NOTHING`,
		entry.ExecutionID, entry.ActivityName, entry.IdempotencyKey, string(entry.Status),
		nullableString(string(entry.SerializedResult)), nullableString(string(entry.SerializedError)),
		formatTime(entry.RecordedAt))
	if err != nil {
		return fmt.Errorf("record journal entry %s/%s: %w", entry.ExecutionID, entry.ActivityName, err)
	}
	return nil
}
