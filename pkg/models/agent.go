package models

import "time"

// PermissionMode controls how strictly governance policy treats an agent.
type PermissionMode string

const (
	PermissionPermissive  PermissionMode = "permissive"
	PermissionStandard    PermissionMode = "standard"
	PermissionRestrictive PermissionMode = "restrictive"
)

// QuotaPeriod is the window over which a token budget applies.
type QuotaPeriod string

const (
	QuotaDaily    QuotaPeriod = "daily"
	QuotaMonthly  QuotaPeriod = "monthly"
	QuotaYearly   QuotaPeriod = "yearly"
	QuotaLifetime QuotaPeriod = "lifetime"
)

// AgentState is the durable governance record for one agent.
// Invariant: TokensConsumed never exceeds TokenBudget.
type AgentState struct {
	AgentID        string         `json:"agent_id"`
	PermissionMode PermissionMode `json:"permission_mode"`
	TokenBudget    int            `json:"token_budget"`
	QuotaPeriod    QuotaPeriod    `json:"quota_period"`
	TokensConsumed int            `json:"tokens_consumed"`
	BudgetResetAt  *time.Time     `json:"budget_reset_at,omitempty"`
}

// DefaultAgentState returns the state bootstrapped for an agent that has
// never been configured explicitly.
func DefaultAgentState(agentID string) *AgentState {
	return &AgentState{
		AgentID:        agentID,
		PermissionMode: PermissionStandard,
		TokenBudget:    200_000,
		QuotaPeriod:    QuotaDaily,
		TokensConsumed: 0,
	}
}

// Remaining returns the unconsumed portion of the budget, never negative.
func (a *AgentState) Remaining() int {
	r := a.TokenBudget - a.TokensConsumed
	if r < 0 {
		return 0
	}
	return r
}

// NextReset advances a reset instant by one quota period.
func (p QuotaPeriod) NextReset(from time.Time) time.Time {
	switch p {
	case QuotaDaily:
		return from.AddDate(0, 0, 1)
	case QuotaMonthly:
		return from.AddDate(0, 1, 0)
	case QuotaYearly:
		return from.AddDate(1, 0, 0)
	default:
		// Lifetime budgets never reset; push the boundary far out.
		return from.AddDate(100, 0, 0)
	}
}
