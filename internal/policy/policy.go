// Package policy is the governance engine: permission evaluation per agent
// mode, tool quotas, sandboxed execution, and audit recording.
package policy

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/stewardhq/steward/internal/storage"
	"github.com/stewardhq/steward/pkg/models"
)

// Engine evaluates governance policy against persisted agent state. It holds
// no cached state; agent records are read through on every call.
type Engine struct {
	agents storage.AgentStatePort
	audits storage.AuditPort
	logger *slog.Logger
	now    func() time.Time
}

// Option configures the engine.
type Option func(*Engine)

// WithLogger configures the engine logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithNow overrides the clock for tests.
func WithNow(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// NewEngine creates a governance engine over the given ports.
func NewEngine(agents storage.AgentStatePort, audits storage.AuditPort, opts ...Option) *Engine {
	e := &Engine{
		agents: agents,
		audits: audits,
		logger: slog.Default().With("component", "policy"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// EvaluatePolicy decides whether the described action is allowed for the
// agent's permission mode.
//
//   - permissive agents may do anything
//   - standard agents may read memory and invoke tools
//   - restrictive agents may read memory; tool invocations require approval
//
// Unknown agents and unknown actions are denied outright.
func (e *Engine) EvaluatePolicy(ctx context.Context, input models.PolicyInput) (models.PolicyDecision, error) {
	state, err := e.agents.GetAgentState(ctx, input.AgentID)
	if err != nil {
		return models.DecisionDeny, fmt.Errorf("load agent state: %w", err)
	}
	if state == nil {
		return models.DecisionDeny, nil
	}

	switch state.PermissionMode {
	case models.PermissionPermissive:
		return models.DecisionAllow, nil
	case models.PermissionStandard:
		switch input.Action {
		case models.ActionReadMemory, models.ActionInvokeTool:
			return models.DecisionAllow, nil
		}
		return models.DecisionDeny, nil
	case models.PermissionRestrictive:
		switch input.Action {
		case models.ActionReadMemory:
			return models.DecisionAllow, nil
		case models.ActionInvokeTool:
			return models.DecisionRequireApproval, nil
		}
		return models.DecisionDeny, nil
	default:
		return models.DecisionDeny, nil
	}
}

// WriteAudit records a governance decision with a fresh entry id.
func (e *Engine) WriteAudit(ctx context.Context, agentID, sessionID string, decision models.PolicyDecision, reason string) error {
	return e.audits.WriteAudit(ctx, &models.AuditEntry{
		AuditEntryID: models.NewAuditID(),
		AgentID:      agentID,
		SessionID:    sessionID,
		Decision:     decision,
		Reason:       reason,
		CreatedAt:    e.now(),
	})
}
