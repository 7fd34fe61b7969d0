// Package workflow folds sequences of journalled activities. Before an
// activity's effect runs, the journal is consulted for a prior outcome keyed
// by (executionId, activityName, idempotencyKey); a hit replays without side
// effects, a miss runs the effect and records its outcome. The first journal
// write is the commit point, which makes each activity exactly-once across
// restarts.
package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/stewardhq/steward/internal/storage"
	"github.com/stewardhq/steward/pkg/models"
)

// Journal is the persistence the runner needs.
type Journal interface {
	GetJournalEntry(ctx context.Context, executionID, activityName, idempotencyKey string) (*storage.JournalEntry, error)
	RecordJournalEntry(ctx context.Context, entry *storage.JournalEntry) error
}

// Runner executes activities for one workflow execution.
type Runner struct {
	executionID string
	journal     Journal
	logger      *slog.Logger
}

// NewRunner creates a runner for the given execution id.
func NewRunner(executionID string, journal Journal, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default().With("component", "workflow")
	}
	return &Runner{executionID: executionID, journal: journal, logger: logger}
}

// Execute runs one activity with replay. The effect's result is serialized to
// JSON for the journal; on replay it is deserialized into out (which must be
// a pointer, or nil when the activity has no result). Errors replay as the
// same typed domain error they were recorded as.
func (r *Runner) Execute(ctx context.Context, activityName, idempotencyKey string, out any, effect func(ctx context.Context) (any, error)) error {
	entry, err := r.journal.GetJournalEntry(ctx, r.executionID, activityName, idempotencyKey)
	if err != nil {
		return fmt.Errorf("journal lookup for %s: %w", activityName, err)
	}
	if entry != nil {
		r.logger.Debug("replaying activity from journal",
			"execution_id", r.executionID, "activity", activityName, "status", entry.Status)
		if entry.Status == storage.JournalFailed {
			return models.DecodeError(entry.SerializedError)
		}
		if out != nil && len(entry.SerializedResult) > 0 {
			if err := json.Unmarshal(entry.SerializedResult, out); err != nil {
				return fmt.Errorf("replay %s result: %w", activityName, err)
			}
		}
		return nil
	}

	result, effectErr := effect(ctx)
	record := &storage.JournalEntry{
		ExecutionID:    r.executionID,
		ActivityName:   activityName,
		IdempotencyKey: idempotencyKey,
	}
	if effectErr != nil {
		record.Status = storage.JournalFailed
		record.SerializedError = models.EncodeError(effectErr)
		if err := r.journal.RecordJournalEntry(ctx, record); err != nil {
			return fmt.Errorf("journal %s failure: %w", activityName, err)
		}
		return effectErr
	}

	record.Status = storage.JournalComplete
	if result != nil {
		serialized, err := json.Marshal(result)
		if err != nil {
			return fmt.Errorf("serialize %s result: %w", activityName, err)
		}
		record.SerializedResult = serialized
	}
	if err := r.journal.RecordJournalEntry(ctx, record); err != nil {
		return fmt.Errorf("journal %s completion: %w", activityName, err)
	}
	if out != nil && record.SerializedResult != nil {
		if err := json.Unmarshal(record.SerializedResult, out); err != nil {
			return fmt.Errorf("decode %s result: %w", activityName, err)
		}
	}
	return nil
}
