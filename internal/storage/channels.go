package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/stewardhq/steward/pkg/models"
)

// CreateChannel inserts the channel binding if absent. Re-creating an
// existing channel is a no-op; the active pair is never rotated here.
func (s *Store) CreateChannel(ctx context.Context, record *models.ChannelRecord) error {
	if record == nil || record.ChannelID == "" {
		return fmt.Errorf("channel requires an id")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO channels (channel_id, channel_type, agent_id, active_session_id,
			active_conversation_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(channel_id) DO NOTHING`,
		record.ChannelID, string(record.ChannelType), record.AgentID,
		record.ActiveSessionID, record.ActiveConversationID, formatTime(record.CreatedAt))
	if err != nil {
		return fmt.Errorf("create channel %s: %w", record.ChannelID, err)
	}
	return nil
}

// GetChannel returns the channel binding, or nil if unknown.
func (s *Store) GetChannel(ctx context.Context, channelID string) (*models.ChannelRecord, error) {
	var (
		record      models.ChannelRecord
		channelType string
		createdAt   string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT channel_id, channel_type, agent_id, active_session_id, active_conversation_id, created_at
		FROM channels WHERE channel_id = ?`, channelID).
		Scan(&record.ChannelID, &channelType, &record.AgentID,
			&record.ActiveSessionID, &record.ActiveConversationID, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get channel %s: %w", channelID, err)
	}
	record.ChannelType = models.ChannelType(channelType)
	if record.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parse channel created_at: %w", err)
	}
	return &record, nil
}
