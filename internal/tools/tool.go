// Package tools provides the built-in LLM-callable tools and the registry
// that wraps every invocation in governance checks.
package tools

import (
	"context"
	"encoding/json"
)

// Kind enumerates the built-in tool variants. Tools are a closed sum, not a
// string-keyed bag of functions; the registry produces the variant plus its
// wrapped handler for an execution context.
type Kind string

const (
	KindClockNow  Kind = "time.now"
	KindCalculate Kind = "math.calculate"
	KindEchoText  Kind = "echo.text"
)

// Kinds lists every built-in tool.
func Kinds() []Kind { return []Kind{KindClockNow, KindCalculate, KindEchoText} }

// Tool is one executable agent tool.
type Tool interface {
	// Name returns the tool name for LLM function calling.
	Name() string

	// Description tells the LLM when to use the tool.
	Description() string

	// Schema is the JSON Schema for the tool's parameters.
	Schema() json.RawMessage

	// Execute runs the tool with params matching Schema.
	Execute(ctx context.Context, params json.RawMessage) (*Result, error)
}

// Result is a tool's output. Failures the LLM should see are communicated
// with IsError rather than a Go error.
type Result struct {
	Content string `json:"content"`
	IsError bool   `json:"is_error,omitempty"`
}

// errorResult builds an error-shaped result.
func errorResult(msg string) *Result {
	return &Result{Content: msg, IsError: true}
}

// forKind constructs the bare (unwrapped) tool variant.
func forKind(kind Kind) Tool {
	switch kind {
	case KindClockNow:
		return &clockTool{}
	case KindCalculate:
		return &calculatorTool{}
	case KindEchoText:
		return &echoTool{}
	default:
		return nil
	}
}
