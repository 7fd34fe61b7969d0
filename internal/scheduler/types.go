package scheduler

import (
	"context"
	"time"

	"github.com/stewardhq/steward/pkg/models"
)

// Ticket is the scheduler's claim on one execution of one schedule's action.
// It is consumed by the action executor; completion is reported back through
// CompleteExecution.
type Ticket struct {
	ExecutionID   string
	ScheduleID    string
	DueAt         time.Time
	TriggerSource models.TriggerSource
	StartedAt     time.Time
	ActionRef     string
}

// ActionExecutor runs the action a ticket stands for.
type ActionExecutor interface {
	Execute(ctx context.Context, ticket *Ticket) error
}

// ActionExecutorFunc adapts a function to an ActionExecutor.
type ActionExecutorFunc func(ctx context.Context, ticket *Ticket) error

// Execute runs the function.
func (f ActionExecutorFunc) Execute(ctx context.Context, ticket *Ticket) error {
	return f(ctx, ticket)
}

// SchedulePort is the persistence the scheduler needs.
type SchedulePort interface {
	GetSchedule(ctx context.Context, scheduleID string) (*models.ScheduleRecord, error)
	ListDueSchedules(ctx context.Context, now time.Time) ([]*models.ScheduleRecord, error)
	RecordExecution(ctx context.Context, exec *models.ScheduledExecutionRecord) error
}
