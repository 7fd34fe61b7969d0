package policy

import (
	"context"
	"fmt"
	"time"

	"github.com/stewardhq/steward/pkg/models"
)

// Daily tool invocation caps per permission mode.
const (
	quotaPermissive  = 1000
	quotaStandard    = 200
	quotaRestrictive = 20
)

// CheckToolQuota fails with ToolQuotaExceeded when the agent has used up its
// daily invocations of the tool. Usage is derived from successful invocation
// audits since UTC midnight; no separate counter table exists.
func (e *Engine) CheckToolQuota(ctx context.Context, agentID, toolName string, now time.Time) error {
	state, err := e.agents.GetAgentState(ctx, agentID)
	if err != nil {
		return fmt.Errorf("load agent state: %w", err)
	}
	if state == nil {
		return &models.ToolQuotaExceededError{AgentID: agentID, ToolName: toolName, Remaining: 0}
	}

	cap := quotaStandard
	switch state.PermissionMode {
	case models.PermissionPermissive:
		cap = quotaPermissive
	case models.PermissionRestrictive:
		cap = quotaRestrictive
	}

	dayStart := time.Date(now.UTC().Year(), now.UTC().Month(), now.UTC().Day(), 0, 0, 0, 0, time.UTC)
	used, err := e.audits.CountAuditsSince(ctx, agentID, ToolInvokedReason(toolName), dayStart)
	if err != nil {
		return fmt.Errorf("count tool invocations: %w", err)
	}
	remaining := cap - used
	if remaining <= 0 {
		return &models.ToolQuotaExceededError{AgentID: agentID, ToolName: toolName, Remaining: 0}
	}
	return nil
}

// Tool audit reason codes.
func ToolInvokedReason(tool string) string        { return "tool_invoked:" + tool }
func ToolPolicyDeniedReason(tool string) string   { return "tool_policy_denied:" + tool }
func ToolApprovalReason(tool string) string       { return "tool_requires_approval:" + tool }
func ToolQuotaExceededReason(tool string) string  { return "tool_quota_exceeded:" + tool }
func ToolExecutionFailedReason(tool, code string) string {
	return "tool_execution_failed:" + tool + ":" + code
}
