package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/stewardhq/steward/internal/recurrence"
	"github.com/stewardhq/steward/pkg/models"
)

// UpsertSchedule inserts or replaces a schedule after validating its
// recurrence pattern against the trigger kind.
func (s *Store) UpsertSchedule(ctx context.Context, record *models.ScheduleRecord) error {
	if record == nil || record.ScheduleID == "" {
		return fmt.Errorf("schedule requires an id")
	}
	if err := recurrence.Validate(record.Recurrence, record.Trigger); err != nil {
		return fmt.Errorf("schedule %s: %w", record.ScheduleID, err)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO schedules (schedule_id, owner_agent_id, recurrence_label, cron_expression,
			interval_seconds, trigger, action_ref, status, concurrency_policy, allows_catch_up,
			auto_disable_after_run, catch_up_window_seconds, max_catch_up_runs_per_tick,
			last_execution_at, next_execution_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(schedule_id) DO UPDATE SET
			owner_agent_id             = excluded.owner_agent_id,
			recurrence_label           = excluded.recurrence_label,
			cron_expression            = excluded.cron_expression,
			interval_seconds           = excluded.interval_seconds,
			trigger                    = excluded.trigger,
			action_ref                 = excluded.action_ref,
			status                     = excluded.status,
			concurrency_policy         = excluded.concurrency_policy,
			allows_catch_up            = excluded.allows_catch_up,
			auto_disable_after_run     = excluded.auto_disable_after_run,
			catch_up_window_seconds    = excluded.catch_up_window_seconds,
			max_catch_up_runs_per_tick = excluded.max_catch_up_runs_per_tick,
			last_execution_at          = excluded.last_execution_at,
			next_execution_at          = excluded.next_execution_at`,
		record.ScheduleID, record.OwnerAgentID, record.Recurrence.Label,
		nullableString(record.Recurrence.CronExpression), nullableInt(record.Recurrence.IntervalSeconds),
		string(record.Trigger), record.ActionRef, string(record.Status), string(record.Concurrency),
		boolToInt(record.AllowsCatchUp),
		boolToInt(record.AutoDisableAfterRun), record.CatchUpWindowSecs, record.MaxCatchUpRuns,
		formatNullableTime(record.LastExecutionAt), formatNullableTime(record.NextExecutionAt))
	if err != nil {
		return fmt.Errorf("upsert schedule %s: %w", record.ScheduleID, err)
	}
	return nil
}

// GetSchedule returns one schedule, or nil if unknown.
func (s *Store) GetSchedule(ctx context.Context, scheduleID string) (*models.ScheduleRecord, error) {
	row := s.db.QueryRowContext(ctx, scheduleSelect+` WHERE schedule_id = ?`, scheduleID)
	record, err := scanSchedule(row)
	if err != nil {
		return nil, err
	}
	return record, nil
}

// ListDueSchedules returns active schedules whose next execution is at or
// before now, ordered by (next_execution_at, schedule_id).
func (s *Store) ListDueSchedules(ctx context.Context, now time.Time) ([]*models.ScheduleRecord, error) {
	rows, err := s.db.QueryContext(ctx, scheduleSelect+`
		WHERE status = ? AND next_execution_at IS NOT NULL AND next_execution_at <= ?
		ORDER BY next_execution_at ASC, schedule_id ASC`,
		string(models.ScheduleActive), formatTime(now))
	if err != nil {
		return nil, fmt.Errorf("list due schedules: %w", err)
	}
	defer rows.Close()

	var records []*models.ScheduleRecord
	for rows.Next() {
		record, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

// RecordExecution atomically inserts the execution row and advances the
// schedule: auto-disable schedules are disabled with no next execution,
// otherwise last/next execution times are recomputed from the recurrence.
// Idempotent on execution id.
func (s *Store) RecordExecution(ctx context.Context, exec *models.ScheduledExecutionRecord) error {
	if exec == nil || exec.ExecutionID == "" {
		return fmt.Errorf("execution requires an id")
	}
	if (exec.SkipReason != "") != (exec.Outcome == models.OutcomeSkipped) {
		return fmt.Errorf("execution %s: skip reason set iff outcome is skipped", exec.ExecutionID)
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO scheduled_executions (execution_id, schedule_id, due_at, trigger_source,
				outcome, started_at, ended_at, skip_reason)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(execution_id) DO NOTHING`,
			exec.ExecutionID, exec.ScheduleID, formatTime(exec.DueAt), string(exec.TriggerSource),
			string(exec.Outcome), formatTime(exec.StartedAt), formatNullableTime(exec.EndedAt),
			nullableString(string(exec.SkipReason)))
		if err != nil {
			return fmt.Errorf("insert execution %s: %w", exec.ExecutionID, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return nil
		}

		// Skipped firings do not move the schedule forward.
		if exec.Outcome == models.OutcomeSkipped {
			return nil
		}

		row := tx.QueryRowContext(ctx, scheduleSelect+` WHERE schedule_id = ?`, exec.ScheduleID)
		record, err := scanSchedule(row)
		if err != nil {
			return err
		}
		if record == nil {
			return fmt.Errorf("record execution: unknown schedule %s", exec.ScheduleID)
		}

		completedAt := exec.StartedAt
		if exec.EndedAt != nil {
			completedAt = *exec.EndedAt
		}

		if record.AutoDisableAfterRun {
			_, err = tx.ExecContext(ctx, `
				UPDATE schedules SET status = ?, last_execution_at = ?, next_execution_at = NULL
				WHERE schedule_id = ?`,
				string(models.ScheduleDisabled), formatTime(completedAt), exec.ScheduleID)
			if err != nil {
				return fmt.Errorf("disable schedule %s: %w", exec.ScheduleID, err)
			}
			return nil
		}

		var nextAt sql.NullString
		if next, ok := recurrence.Next(record.Recurrence, record.Trigger, completedAt); ok {
			nextAt = sql.NullString{String: formatTime(next), Valid: true}
		}
		_, err = tx.ExecContext(ctx, `
			UPDATE schedules SET last_execution_at = ?, next_execution_at = ? WHERE schedule_id = ?`,
			formatTime(completedAt), nextAt, exec.ScheduleID)
		if err != nil {
			return fmt.Errorf("advance schedule %s: %w", exec.ScheduleID, err)
		}
		return nil
	})
}

// ListExecutions returns every execution of the schedule, oldest first.
func (s *Store) ListExecutions(ctx context.Context, scheduleID string) ([]*models.ScheduledExecutionRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT execution_id, schedule_id, due_at, trigger_source, outcome, started_at, ended_at, skip_reason
		FROM scheduled_executions WHERE schedule_id = ?
		ORDER BY started_at ASC, execution_id ASC`, scheduleID)
	if err != nil {
		return nil, fmt.Errorf("list executions for %s: %w", scheduleID, err)
	}
	defer rows.Close()

	var execs []*models.ScheduledExecutionRecord
	for rows.Next() {
		var (
			exec       models.ScheduledExecutionRecord
			dueAt      string
			source     string
			outcome    string
			startedAt  string
			endedAt    sql.NullString
			skipReason sql.NullString
		)
		if err := rows.Scan(&exec.ExecutionID, &exec.ScheduleID, &dueAt, &source, &outcome,
			&startedAt, &endedAt, &skipReason); err != nil {
			return nil, fmt.Errorf("scan execution: %w", err)
		}
		exec.TriggerSource = models.TriggerSource(source)
		exec.Outcome = models.ExecutionOutcome(outcome)
		exec.SkipReason = models.SkipReason(skipReason.String)
		if exec.DueAt, err = parseTime(dueAt); err != nil {
			return nil, fmt.Errorf("parse due_at: %w", err)
		}
		if exec.StartedAt, err = parseTime(startedAt); err != nil {
			return nil, fmt.Errorf("parse started_at: %w", err)
		}
		if exec.EndedAt, err = parseNullableTime(endedAt); err != nil {
			return nil, fmt.Errorf("parse ended_at: %w", err)
		}
		execs = append(execs, &exec)
	}
	return execs, rows.Err()
}

const scheduleSelect = `
	SELECT schedule_id, owner_agent_id, recurrence_label, cron_expression, interval_seconds,
		trigger, action_ref, status, concurrency_policy, allows_catch_up,
		auto_disable_after_run, catch_up_window_seconds, max_catch_up_runs_per_tick,
		last_execution_at, next_execution_at
	FROM schedules`

func scanSchedule(row rowScanner) (*models.ScheduleRecord, error) {
	var (
		record      models.ScheduleRecord
		cronExpr    sql.NullString
		interval    sql.NullInt64
		trigger     string
		status      string
		concurrency string
		catchUp     int
		autoDisable int
		lastAt      sql.NullString
		nextAt      sql.NullString
	)
	err := row.Scan(&record.ScheduleID, &record.OwnerAgentID, &record.Recurrence.Label,
		&cronExpr, &interval, &trigger, &record.ActionRef, &status, &concurrency,
		&catchUp, &autoDisable, &record.CatchUpWindowSecs, &record.MaxCatchUpRuns,
		&lastAt, &nextAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan schedule: %w", err)
	}
	record.Recurrence.CronExpression = cronExpr.String
	record.Recurrence.IntervalSeconds = int(interval.Int64)
	record.Trigger = models.TriggerKind(trigger)
	record.Status = models.ScheduleStatus(status)
	record.Concurrency = models.ConcurrencyPolicy(concurrency)
	record.AllowsCatchUp = catchUp != 0
	record.AutoDisableAfterRun = autoDisable != 0
	if record.LastExecutionAt, err = parseNullableTime(lastAt); err != nil {
		return nil, fmt.Errorf("parse last_execution_at: %w", err)
	}
	if record.NextExecutionAt, err = parseNullableTime(nextAt); err != nil {
		return nil, fmt.Errorf("parse next_execution_at: %w", err)
	}
	return &record, nil
}

func nullableInt(v int) sql.NullInt64 {
	if v == 0 {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(v), Valid: true}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
