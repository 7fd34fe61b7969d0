package models

import (
	"encoding/json"
	"math"
)

// TurnEventType discriminates the streamed turn event union.
type TurnEventType string

const (
	EventTurnStarted    TurnEventType = "turn.started"
	EventAssistantDelta TurnEventType = "assistant.delta"
	EventToolCall       TurnEventType = "tool.call"
	EventToolResult     TurnEventType = "tool.result"
	EventTurnCompleted  TurnEventType = "turn.completed"
	EventTurnFailed     TurnEventType = "turn.failed"
)

// FailureSequence is the sequence number carried by turn.failed events; it
// sorts after every ordinary event.
const FailureSequence = math.MaxInt32

// TurnEvent is one element of a turn's event stream. Sequence starts at 1 and
// is strictly increasing within a stream.
type TurnEvent struct {
	Type     TurnEventType `json:"type"`
	Sequence int           `json:"sequence"`
	TurnID   string        `json:"turn_id"`

	// assistant.delta
	Delta string `json:"delta,omitempty"`

	// tool.call / tool.result
	ToolCallID string          `json:"tool_call_id,omitempty"`
	ToolName   string          `json:"tool_name,omitempty"`
	InputJSON  json.RawMessage `json:"input_json,omitempty"`
	OutputJSON json.RawMessage `json:"output_json,omitempty"`
	IsError    bool            `json:"is_error,omitempty"`

	// turn.completed
	Accepted          bool   `json:"accepted,omitempty"`
	AuditReasonCode   string `json:"audit_reason_code,omitempty"`
	ModelFinishReason string `json:"model_finish_reason,omitempty"`

	// turn.failed
	ErrorCode string `json:"error_code,omitempty"`
	Message   string `json:"message,omitempty"`
}

// ProcessTurnResult is the terminal value of one turn workflow run. Running
// the workflow twice for the same turn yields an identical result.
type ProcessTurnResult struct {
	TurnID                 string         `json:"turn_id"`
	Accepted               bool           `json:"accepted"`
	AuditReasonCode        string         `json:"audit_reason_code"`
	AssistantContent       string         `json:"assistant_content"`
	AssistantContentBlocks []ContentBlock `json:"assistant_content_blocks,omitempty"`
	ModelFinishReason      string         `json:"model_finish_reason,omitempty"`
	ModelUsageJSON         string         `json:"model_usage_json,omitempty"`
}
