package models

import "time"

// ChannelType identifies the surface a channel was created from.
type ChannelType string

const (
	ChannelCLI  ChannelType = "CLI"
	ChannelHTTP ChannelType = "HTTP"
)

// ChannelRecord binds an external caller to its agent, session and
// conversation. Exactly one channel owns one active session at a time.
type ChannelRecord struct {
	ChannelID            string      `json:"channel_id"`
	ChannelType          ChannelType `json:"channel_type"`
	AgentID              string      `json:"agent_id"`
	ActiveSessionID      string      `json:"active_session_id"`
	ActiveConversationID string      `json:"active_conversation_id"`
	CreatedAt            time.Time   `json:"created_at"`
}
