package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/stewardhq/steward/pkg/models"
)

// GetAgentState returns the agent's governance state, or nil if unknown.
func (s *Store) GetAgentState(ctx context.Context, agentID string) (*models.AgentState, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT agent_id, permission_mode, token_budget, quota_period, tokens_consumed, budget_reset_at
		FROM agents WHERE agent_id = ?`, agentID)
	return scanAgentState(row)
}

// UpsertAgentState inserts or replaces the agent's governance state.
func (s *Store) UpsertAgentState(ctx context.Context, state *models.AgentState) error {
	if state == nil || state.AgentID == "" {
		return fmt.Errorf("agent state requires an agent id")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO agents (agent_id, permission_mode, token_budget, quota_period, tokens_consumed, budget_reset_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(agent_id) DO UPDATE SET
			permission_mode = excluded.permission_mode,
			token_budget    = excluded.token_budget,
			quota_period    = excluded.quota_period,
			tokens_consumed = excluded.tokens_consumed,
			budget_reset_at = excluded.budget_reset_at`,
		state.AgentID, string(state.PermissionMode), state.TokenBudget,
		string(state.QuotaPeriod), state.TokensConsumed, formatNullableTime(state.BudgetResetAt))
	if err != nil {
		return fmt.Errorf("upsert agent %s: %w", state.AgentID, err)
	}
	return nil
}

// ConsumeTokenBudget atomically charges requested tokens against the agent's
// budget. When the reset boundary has passed, consumption is zeroed and the
// boundary advanced by one quota period before the charge is applied.
func (s *Store) ConsumeTokenBudget(ctx context.Context, agentID string, requested int, now time.Time) error {
	if requested < 0 {
		return fmt.Errorf("requested tokens must be non-negative")
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, `
			SELECT agent_id, permission_mode, token_budget, quota_period, tokens_consumed, budget_reset_at
			FROM agents WHERE agent_id = ?`, agentID)
		state, err := scanAgentState(row)
		if err != nil {
			return err
		}
		if state == nil {
			return fmt.Errorf("consume budget: unknown agent %s", agentID)
		}

		if state.BudgetResetAt != nil && !now.Before(*state.BudgetResetAt) {
			state.TokensConsumed = 0
			next := state.QuotaPeriod.NextReset(*state.BudgetResetAt)
			// Skip over windows that already elapsed while idle.
			for !now.Before(next) {
				next = state.QuotaPeriod.NextReset(next)
			}
			state.BudgetResetAt = &next
		}

		if requested > state.Remaining() {
			return &models.TokenBudgetExceededError{
				AgentID:   agentID,
				Requested: requested,
				Remaining: state.Remaining(),
			}
		}
		state.TokensConsumed += requested

		_, err = tx.ExecContext(ctx, `
			UPDATE agents SET tokens_consumed = ?, budget_reset_at = ? WHERE agent_id = ?`,
			state.TokensConsumed, formatNullableTime(state.BudgetResetAt), agentID)
		if err != nil {
			return fmt.Errorf("charge budget for %s: %w", agentID, err)
		}
		return nil
	})
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAgentState(row rowScanner) (*models.AgentState, error) {
	var (
		state   models.AgentState
		mode    string
		period  string
		resetAt sql.NullString
	)
	err := row.Scan(&state.AgentID, &mode, &state.TokenBudget, &period, &state.TokensConsumed, &resetAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan agent state: %w", err)
	}
	state.PermissionMode = models.PermissionMode(mode)
	state.QuotaPeriod = models.QuotaPeriod(period)
	if state.BudgetResetAt, err = parseNullableTime(resetAt); err != nil {
		return nil, fmt.Errorf("parse budget_reset_at: %w", err)
	}
	return &state, nil
}
