package models

import (
	"strings"

	"github.com/google/uuid"
)

// Identifier prefixes. Every persisted identifier is an opaque string branded
// with the prefix of its record type.
const (
	AgentIDPrefix     = "agent:"
	SessionIDPrefix   = "session:"
	ConversationIDPrefix = "conv:"
	TurnIDPrefix      = "turn:"
	ChannelIDPrefix   = "channel:"
	ScheduleIDPrefix  = "schedule:"
	ExecutionIDPrefix = "execution:"
	MessageIDPrefix   = "message:"
	AuditIDPrefix     = "audit:"
	MemoryIDPrefix    = "mem:"
)

// NewTurnID mints a fresh turn identifier.
func NewTurnID() string { return TurnIDPrefix + uuid.NewString() }

// NewMessageID mints a fresh message identifier.
func NewMessageID() string { return MessageIDPrefix + uuid.NewString() }

// NewAuditID mints a fresh audit entry identifier.
func NewAuditID() string { return AuditIDPrefix + uuid.NewString() }

// NewExecutionID mints a fresh scheduled execution identifier.
func NewExecutionID() string { return ExecutionIDPrefix + uuid.NewString() }

// NewMemoryID mints a fresh memory item identifier.
func NewMemoryID() string { return MemoryIDPrefix + uuid.NewString() }

// NewScheduleID mints a fresh schedule identifier.
func NewScheduleID() string { return ScheduleIDPrefix + uuid.NewString() }

// SessionIDForChannel derives the session bound to a channel.
func SessionIDForChannel(channelID string) string {
	return SessionIDPrefix + channelID
}

// ConversationIDForChannel derives the conversation bound to a channel.
func ConversationIDForChannel(channelID string) string {
	return ConversationIDPrefix + channelID
}

// AssistantTurnID derives the assistant-half identifier of a turn.
func AssistantTurnID(userTurnID string) string {
	return userTurnID + ":assistant"
}

// Branded reports whether id carries the given prefix.
func Branded(id, prefix string) bool {
	return strings.HasPrefix(id, prefix) && len(id) > len(prefix)
}
