package models

import "time"

// TriggerKind is what causes a schedule to fire.
type TriggerKind string

const (
	TriggerCron     TriggerKind = "cron"
	TriggerInterval TriggerKind = "interval"
	TriggerEvent    TriggerKind = "event"
)

// ScheduleStatus is the lifecycle state of a schedule.
type ScheduleStatus string

const (
	ScheduleActive   ScheduleStatus = "active"
	SchedulePaused   ScheduleStatus = "paused"
	ScheduleExpired  ScheduleStatus = "expired"
	ScheduleDisabled ScheduleStatus = "disabled"
)

// ConcurrencyPolicy controls overlapping executions of one schedule.
type ConcurrencyPolicy string

const (
	ConcurrencyAllow   ConcurrencyPolicy = "allow"
	ConcurrencyForbid  ConcurrencyPolicy = "forbid"
	ConcurrencyReplace ConcurrencyPolicy = "replace"
)

// RecurrencePattern describes when a schedule fires. Exactly one of
// CronExpression / IntervalSeconds is set for cron or interval triggers.
type RecurrencePattern struct {
	Label           string `json:"label,omitempty"`
	CronExpression  string `json:"cron_expression,omitempty"`
	IntervalSeconds int    `json:"interval_seconds,omitempty"`
}

// ScheduleRecord is one recurring background action.
type ScheduleRecord struct {
	ScheduleID          string            `json:"schedule_id"`
	OwnerAgentID        string            `json:"owner_agent_id"`
	Recurrence          RecurrencePattern `json:"recurrence"`
	Trigger             TriggerKind       `json:"trigger"`
	ActionRef           string            `json:"action_ref"`
	Status              ScheduleStatus    `json:"status"`
	Concurrency         ConcurrencyPolicy `json:"concurrency"`
	AllowsCatchUp       bool              `json:"allows_catch_up"`
	AutoDisableAfterRun bool              `json:"auto_disable_after_run"`
	CatchUpWindowSecs   int               `json:"catch_up_window_seconds"`
	MaxCatchUpRuns      int               `json:"max_catch_up_runs_per_tick"`
	LastExecutionAt     *time.Time        `json:"last_execution_at,omitempty"`
	NextExecutionAt     *time.Time        `json:"next_execution_at,omitempty"`
}

// TriggerSource records what caused one execution.
type TriggerSource string

const (
	SourceCronTick     TriggerSource = "cron_tick"
	SourceIntervalTick TriggerSource = "interval_tick"
	SourceEvent        TriggerSource = "event"
	SourceManual       TriggerSource = "manual"
)

// ExecutionOutcome is the terminal state of one execution.
type ExecutionOutcome string

const (
	OutcomeSucceeded ExecutionOutcome = "succeeded"
	OutcomeFailed    ExecutionOutcome = "failed"
	OutcomeSkipped   ExecutionOutcome = "skipped"
)

// SkipReason is set exactly when an execution outcome is Skipped.
type SkipReason string

const (
	SkipConcurrencyForbid     SkipReason = "concurrency_forbid"
	SkipConcurrencyReplace    SkipReason = "concurrency_replace"
	SkipManualTriggerInactive SkipReason = "manual_trigger_inactive"
)

// ScheduledExecutionRecord is the durable record of one schedule firing.
type ScheduledExecutionRecord struct {
	ExecutionID   string           `json:"execution_id"`
	ScheduleID    string           `json:"schedule_id"`
	DueAt         time.Time        `json:"due_at"`
	TriggerSource TriggerSource    `json:"trigger_source"`
	Outcome       ExecutionOutcome `json:"outcome"`
	StartedAt     time.Time        `json:"started_at"`
	EndedAt       *time.Time       `json:"ended_at,omitempty"`
	SkipReason    SkipReason       `json:"skip_reason,omitempty"`
}
