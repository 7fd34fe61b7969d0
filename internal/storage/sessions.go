package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/stewardhq/steward/pkg/models"
)

// StartSession creates the session if absent. Re-starting an existing session
// is a no-op so channel bootstrap stays idempotent.
func (s *Store) StartSession(ctx context.Context, state *models.SessionState) error {
	if state == nil || state.SessionID == "" {
		return fmt.Errorf("session state requires a session id")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (session_id, conversation_id, token_capacity, tokens_used)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(session_id) DO NOTHING`,
		state.SessionID, state.ConversationID, state.TokenCapacity, state.TokensUsed)
	if err != nil {
		return fmt.Errorf("start session %s: %w", state.SessionID, err)
	}
	return nil
}

// GetSession returns the session state, or nil if unknown.
func (s *Store) GetSession(ctx context.Context, sessionID string) (*models.SessionState, error) {
	var state models.SessionState
	err := s.db.QueryRowContext(ctx, `
		SELECT session_id, conversation_id, token_capacity, tokens_used
		FROM sessions WHERE session_id = ?`, sessionID).
		Scan(&state.SessionID, &state.ConversationID, &state.TokenCapacity, &state.TokensUsed)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get session %s: %w", sessionID, err)
	}
	return &state, nil
}

// AppendTurn appends a turn to its session. Idempotent on turn_id: a second
// append of the same turn leaves the table unchanged. The turn index is
// assigned inside the transaction so indexes stay dense per session.
func (s *Store) AppendTurn(ctx context.Context, turn *models.TurnRecord) error {
	if turn == nil || turn.TurnID == "" {
		return fmt.Errorf("turn requires a turn id")
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		var exists int
		err := tx.QueryRowContext(ctx, `SELECT 1 FROM turns WHERE turn_id = ?`, turn.TurnID).Scan(&exists)
		if err == nil {
			return nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("check turn %s: %w", turn.TurnID, err)
		}

		var sessionExists int
		err = tx.QueryRowContext(ctx, `SELECT 1 FROM sessions WHERE session_id = ?`, turn.SessionID).Scan(&sessionExists)
		if errors.Is(err, sql.ErrNoRows) {
			return &models.SessionNotFoundError{SessionID: turn.SessionID}
		}
		if err != nil {
			return fmt.Errorf("check session %s: %w", turn.SessionID, err)
		}

		var next int
		err = tx.QueryRowContext(ctx, `
			SELECT COALESCE(MAX(turn_index) + 1, 0) FROM turns WHERE session_id = ?`, turn.SessionID).Scan(&next)
		if err != nil {
			return fmt.Errorf("next turn index for %s: %w", turn.SessionID, err)
		}
		turn.TurnIndex = next

		blocks, err := json.Marshal(turn.Message.ContentBlocks)
		if err != nil {
			return fmt.Errorf("marshal content blocks: %w", err)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO turns (turn_id, session_id, conversation_id, turn_index,
				participant_role, participant_agent_id, message_id, message_role,
				message_content, content_blocks, model_finish_reason, model_usage_json, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			turn.TurnID, turn.SessionID, turn.ConversationID, turn.TurnIndex,
			string(turn.ParticipantRole), turn.ParticipantAgentID,
			turn.Message.MessageID, string(turn.Message.Role), turn.Message.Content,
			string(blocks), turn.ModelFinishReason, turn.ModelUsageJSON, formatTime(turn.CreatedAt))
		if err != nil {
			return fmt.Errorf("append turn %s: %w", turn.TurnID, err)
		}
		return nil
	})
}

// UpdateContextWindow adds deltaTokens to the session's usage, rejecting
// updates that would push usage past capacity or below zero.
func (s *Store) UpdateContextWindow(ctx context.Context, sessionID string, deltaTokens int) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		var capacity, used int
		err := tx.QueryRowContext(ctx, `
			SELECT token_capacity, tokens_used FROM sessions WHERE session_id = ?`, sessionID).
			Scan(&capacity, &used)
		if errors.Is(err, sql.ErrNoRows) {
			return &models.SessionNotFoundError{SessionID: sessionID}
		}
		if err != nil {
			return fmt.Errorf("read session %s: %w", sessionID, err)
		}

		attempted := used + deltaTokens
		if attempted > capacity {
			return &models.ContextWindowExceededError{SessionID: sessionID, Capacity: capacity, Attempted: attempted}
		}
		if attempted < 0 {
			attempted = 0
		}

		_, err = tx.ExecContext(ctx, `UPDATE sessions SET tokens_used = ? WHERE session_id = ?`, attempted, sessionID)
		if err != nil {
			return fmt.Errorf("update session %s: %w", sessionID, err)
		}
		return nil
	})
}

// ListTurns returns every turn of the session ordered by (turn_index, turn_id).
func (s *Store) ListTurns(ctx context.Context, sessionID string) ([]*models.TurnRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT turn_id, session_id, conversation_id, turn_index, participant_role,
			participant_agent_id, message_id, message_role, message_content,
			content_blocks, model_finish_reason, model_usage_json, created_at
		FROM turns WHERE session_id = ?
		ORDER BY turn_index ASC, turn_id ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list turns for %s: %w", sessionID, err)
	}
	defer rows.Close()

	var turns []*models.TurnRecord
	for rows.Next() {
		var (
			turn      models.TurnRecord
			role      string
			msgRole   string
			blocks    string
			createdAt string
		)
		if err := rows.Scan(&turn.TurnID, &turn.SessionID, &turn.ConversationID, &turn.TurnIndex,
			&role, &turn.ParticipantAgentID, &turn.Message.MessageID, &msgRole,
			&turn.Message.Content, &blocks, &turn.ModelFinishReason, &turn.ModelUsageJSON, &createdAt); err != nil {
			return nil, fmt.Errorf("scan turn: %w", err)
		}
		turn.ParticipantRole = models.Role(role)
		turn.Message.Role = models.Role(msgRole)
		if err := json.Unmarshal([]byte(blocks), &turn.Message.ContentBlocks); err != nil {
			return nil, fmt.Errorf("unmarshal content blocks for %s: %w", turn.TurnID, err)
		}
		if turn.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, fmt.Errorf("parse created_at for %s: %w", turn.TurnID, err)
		}
		turns = append(turns, &turn)
	}
	return turns, rows.Err()
}
