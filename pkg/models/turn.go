package models

import (
	"encoding/json"
	"time"
)

// Role indicates the author type of a turn or message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// BlockType discriminates the content block union.
type BlockType string

const (
	BlockText       BlockType = "text"
	BlockToolUse    BlockType = "tool_use"
	BlockToolResult BlockType = "tool_result"
	BlockImage      BlockType = "image"
)

// ContentBlock is one typed piece of message content. Exactly the fields for
// the block's Type are populated; the rest stay zero.
type ContentBlock struct {
	Type BlockType `json:"type"`

	// Text block.
	Text string `json:"text,omitempty"`

	// Tool use / tool result blocks.
	ToolCallID string          `json:"tool_call_id,omitempty"`
	ToolName   string          `json:"tool_name,omitempty"`
	InputJSON  json.RawMessage `json:"input_json,omitempty"`
	OutputJSON json.RawMessage `json:"output_json,omitempty"`
	IsError    bool            `json:"is_error,omitempty"`

	// Image block.
	MediaType string `json:"media_type,omitempty"`
	Source    string `json:"source,omitempty"`
	AltText   string `json:"alt_text,omitempty"`
}

// TextBlock builds a text content block.
func TextBlock(text string) ContentBlock {
	return ContentBlock{Type: BlockText, Text: text}
}

// ToolUseBlock builds a tool invocation block.
func ToolUseBlock(callID, name string, input json.RawMessage) ContentBlock {
	return ContentBlock{Type: BlockToolUse, ToolCallID: callID, ToolName: name, InputJSON: input}
}

// ToolResultBlock builds a tool result block.
func ToolResultBlock(callID, name string, output json.RawMessage, isError bool) ContentBlock {
	return ContentBlock{Type: BlockToolResult, ToolCallID: callID, ToolName: name, OutputJSON: output, IsError: isError}
}

// ImageBlock builds an image block.
func ImageBlock(mediaType, source, altText string) ContentBlock {
	return ContentBlock{Type: BlockImage, MediaType: mediaType, Source: source, AltText: altText}
}

// TurnMessage is the message payload carried by a turn record.
type TurnMessage struct {
	MessageID     string         `json:"message_id"`
	Role          Role           `json:"role"`
	Content       string         `json:"content"`
	ContentBlocks []ContentBlock `json:"content_blocks,omitempty"`
}

// TurnRecord is one half of a turn (user or assistant), append-only once
// persisted. (SessionID, TurnIndex) is unique and dense per session.
type TurnRecord struct {
	TurnID             string      `json:"turn_id"`
	SessionID          string      `json:"session_id"`
	ConversationID     string      `json:"conversation_id"`
	TurnIndex          int         `json:"turn_index"`
	ParticipantRole    Role        `json:"participant_role"`
	ParticipantAgentID string      `json:"participant_agent_id"`
	Message            TurnMessage `json:"message"`
	ModelFinishReason  string      `json:"model_finish_reason,omitempty"`
	ModelUsageJSON     string      `json:"model_usage_json,omitempty"`
	CreatedAt          time.Time   `json:"created_at"`
}

// SessionState is the bounded conversation state for one session.
// Invariant: 0 <= TokensUsed <= TokenCapacity.
type SessionState struct {
	SessionID      string `json:"session_id"`
	ConversationID string `json:"conversation_id"`
	TokenCapacity  int    `json:"token_capacity"`
	TokensUsed     int    `json:"tokens_used"`
}
