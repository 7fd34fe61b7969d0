package storage

import (
	"context"
	"time"

	"github.com/stewardhq/steward/pkg/models"
)

// AgentStatePort is typed CRUD over agent governance state plus atomic budget
// consumption.
type AgentStatePort interface {
	GetAgentState(ctx context.Context, agentID string) (*models.AgentState, error)
	UpsertAgentState(ctx context.Context, state *models.AgentState) error
	ConsumeTokenBudget(ctx context.Context, agentID string, requested int, now time.Time) error
}

// SessionTurnPort is typed CRUD over sessions and their append-only turns.
type SessionTurnPort interface {
	StartSession(ctx context.Context, state *models.SessionState) error
	AppendTurn(ctx context.Context, turn *models.TurnRecord) error
	UpdateContextWindow(ctx context.Context, sessionID string, deltaTokens int) error
	ListTurns(ctx context.Context, sessionID string) ([]*models.TurnRecord, error)
}

// AuditPort persists governance decisions.
type AuditPort interface {
	WriteAudit(ctx context.Context, entry *models.AuditEntry) error
	ListAudits(ctx context.Context, agentID string) ([]*models.AuditEntry, error)
	CountAuditsSince(ctx context.Context, agentID, reason string, since time.Time) (int, error)
}

// SchedulePort is typed CRUD over schedules and their execution history.
type SchedulePort interface {
	UpsertSchedule(ctx context.Context, record *models.ScheduleRecord) error
	GetSchedule(ctx context.Context, scheduleID string) (*models.ScheduleRecord, error)
	ListDueSchedules(ctx context.Context, now time.Time) ([]*models.ScheduleRecord, error)
	RecordExecution(ctx context.Context, exec *models.ScheduledExecutionRecord) error
	ListExecutions(ctx context.Context, scheduleID string) ([]*models.ScheduledExecutionRecord, error)
}

// ChannelPort is typed CRUD over channel bindings.
type ChannelPort interface {
	CreateChannel(ctx context.Context, record *models.ChannelRecord) error
	GetChannel(ctx context.Context, channelID string) (*models.ChannelRecord, error)
}

// MemoryPort is substring search and lifecycle over memory items.
type MemoryPort interface {
	SearchMemory(ctx context.Context, agentID string, query models.MemoryQuery) (*models.MemoryPage, error)
	EncodeMemory(ctx context.Context, agentID string, items []*models.MemoryItem, now time.Time) ([]string, error)
	ForgetMemory(ctx context.Context, agentID string, cutoff time.Time) (int, error)
}
