// Package providers adapts LLM vendor SDKs to the single non-streaming
// completion surface the turn workflow consumes.
package providers

import (
	"context"
	"encoding/json"
)

// PartType discriminates completion output parts.
type PartType string

const (
	PartText       PartType = "text"
	PartToolCall   PartType = "tool-call"
	PartToolResult PartType = "tool-result"
	PartFile       PartType = "file"
)

// Part is one typed piece of model output.
type Part struct {
	Type PartType `json:"type"`

	Text string `json:"text,omitempty"`

	ToolCallID string          `json:"tool_call_id,omitempty"`
	ToolName   string          `json:"tool_name,omitempty"`
	InputJSON  json.RawMessage `json:"input_json,omitempty"`
	OutputJSON json.RawMessage `json:"output_json,omitempty"`
	IsError    bool            `json:"is_error,omitempty"`

	MediaType string `json:"media_type,omitempty"`
	Source    string `json:"source,omitempty"`
}

// Message is one chat history entry sent to the model.
type Message struct {
	Role    string `json:"role"` // system, user, assistant, tool
	Content string `json:"content"`
	Parts   []Part `json:"parts,omitempty"`
}

// ToolSpec describes one callable tool to the model.
type ToolSpec struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Schema      json.RawMessage `json:"schema"`
}

// Request is one completion call.
type Request struct {
	Model           string     `json:"model"`
	SystemPrompt    string     `json:"system_prompt,omitempty"`
	Messages        []Message  `json:"messages"`
	Tools           []ToolSpec `json:"tools,omitempty"`
	Temperature     float64    `json:"temperature,omitempty"`
	MaxOutputTokens int        `json:"max_output_tokens,omitempty"`
	TopP            float64    `json:"top_p,omitempty"`
	Seed            int        `json:"seed,omitempty"`
}

// Usage is the token accounting reported by the vendor.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Response is the collected completion result.
type Response struct {
	Text         string `json:"text"`
	Parts        []Part `json:"parts,omitempty"`
	FinishReason string `json:"finish_reason,omitempty"`
	Usage        Usage  `json:"usage"`
}

// Provider is one configured LLM backend.
type Provider interface {
	Name() string
	Complete(ctx context.Context, req *Request) (*Response, error)
}
