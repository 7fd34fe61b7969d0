package models

import "time"

// PolicyDecision is the outcome of a governance evaluation.
type PolicyDecision string

const (
	DecisionAllow           PolicyDecision = "allow"
	DecisionDeny            PolicyDecision = "deny"
	DecisionRequireApproval PolicyDecision = "require_approval"
)

// Audit reason codes written by the turn workflow and tool wrapper. The code
// is the stable machine-readable part of an audit entry.
const (
	ReasonTurnAccepted         = "turn_processing_accepted"
	ReasonTurnPolicyDenied     = "turn_processing_policy_denied"
	ReasonTurnRequiresApproval = "turn_processing_requires_approval"
	ReasonTurnBudgetExceeded   = "turn_processing_token_budget_exceeded"
	ReasonTurnModelError       = "turn_processing_model_error"
)

// AuditEntry is a durable record of one governance decision.
type AuditEntry struct {
	AuditEntryID string         `json:"audit_entry_id"`
	AgentID      string         `json:"agent_id"`
	SessionID    string         `json:"session_id,omitempty"`
	Decision     PolicyDecision `json:"decision"`
	Reason       string         `json:"reason"`
	CreatedAt    time.Time      `json:"created_at"`
}

// PolicyInput describes the action a caller wants evaluated.
type PolicyInput struct {
	AgentID   string `json:"agent_id"`
	SessionID string `json:"session_id,omitempty"`
	Action    string `json:"action"`
	ToolName  string `json:"tool_name,omitempty"`
}

// Policy action names.
const (
	ActionReadMemory = "ReadMemory"
	ActionInvokeTool = "InvokeTool"
)
