package models

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Error codes stable across the service boundary. The code of a typed error
// is its tag; callers match with errors.As and render Code() to clients.
const (
	CodeTokenBudgetExceeded   = "TokenBudgetExceeded"
	CodeContextWindowExceeded = "ContextWindowExceeded"
	CodeSessionNotFound       = "SessionNotFound"
	CodeToolQuotaExceeded     = "ToolQuotaExceeded"
	CodeSandboxViolation      = "SandboxViolation"
	CodeChannelNotFound       = "ChannelNotFound"
	CodeTurnPolicyDenied      = "TurnPolicyDenied"
	CodeTurnModelFailure      = "TurnModelFailure"
	CodeMailboxFull           = "MailboxFull"
	CodeAlreadyProcessing     = "AlreadyProcessingMessage"
	CodePersistenceError      = "PersistenceError"
	CodeAgentProfileNotFound  = "AgentProfileNotFound"
	CodeInternalServerError   = "InternalServerError"
)

// Coded is implemented by every typed domain error.
type Coded interface {
	error
	Code() string
}

// TokenBudgetExceededError is returned when a budget charge cannot be met.
type TokenBudgetExceededError struct {
	AgentID   string `json:"agent_id"`
	Requested int    `json:"requested"`
	Remaining int    `json:"remaining"`
}

func (e *TokenBudgetExceededError) Error() string {
	return fmt.Sprintf("token budget exceeded for %s: requested %d, remaining %d", e.AgentID, e.Requested, e.Remaining)
}

func (e *TokenBudgetExceededError) Code() string { return CodeTokenBudgetExceeded }

// ContextWindowExceededError is returned when a session cannot absorb more tokens.
type ContextWindowExceededError struct {
	SessionID string `json:"session_id"`
	Capacity  int    `json:"capacity"`
	Attempted int    `json:"attempted"`
}

func (e *ContextWindowExceededError) Error() string {
	return fmt.Sprintf("context window exceeded for %s: capacity %d, attempted %d", e.SessionID, e.Capacity, e.Attempted)
}

func (e *ContextWindowExceededError) Code() string { return CodeContextWindowExceeded }

// SessionNotFoundError is returned for operations against an unknown session.
type SessionNotFoundError struct {
	SessionID string `json:"session_id"`
}

func (e *SessionNotFoundError) Error() string {
	return fmt.Sprintf("session not found: %s", e.SessionID)
}

func (e *SessionNotFoundError) Code() string { return CodeSessionNotFound }

// ToolQuotaExceededError is returned when an agent runs out of tool invocations.
type ToolQuotaExceededError struct {
	AgentID   string `json:"agent_id"`
	ToolName  string `json:"tool_name"`
	Remaining int    `json:"remaining"`
}

func (e *ToolQuotaExceededError) Error() string {
	return fmt.Sprintf("tool quota exceeded for %s on %s: remaining %d", e.AgentID, e.ToolName, e.Remaining)
}

func (e *ToolQuotaExceededError) Code() string { return CodeToolQuotaExceeded }

// SandboxViolationError is raised when a sandboxed operation escapes its bounds.
type SandboxViolationError struct {
	AgentID   string `json:"agent_id"`
	Operation string `json:"operation"`
	Detail    string `json:"detail,omitempty"`
}

func (e *SandboxViolationError) Error() string {
	return fmt.Sprintf("sandbox violation in %s: %s", e.Operation, e.Detail)
}

func (e *SandboxViolationError) Code() string { return CodeSandboxViolation }

// ChannelNotFoundError is returned for operations against an unknown channel.
type ChannelNotFoundError struct {
	ChannelID string `json:"channel_id"`
}

func (e *ChannelNotFoundError) Error() string {
	return fmt.Sprintf("channel not found: %s", e.ChannelID)
}

func (e *ChannelNotFoundError) Code() string { return CodeChannelNotFound }

// TurnPolicyDeniedError is returned when governance blocks a turn.
type TurnPolicyDeniedError struct {
	TurnID string `json:"turn_id"`
	Reason string `json:"reason"`
}

func (e *TurnPolicyDeniedError) Error() string {
	return fmt.Sprintf("turn %s denied by policy: %s", e.TurnID, e.Reason)
}

func (e *TurnPolicyDeniedError) Code() string { return CodeTurnPolicyDenied }

// TurnModelFailureError is returned when model invocation or persistence of
// its result fails.
type TurnModelFailureError struct {
	TurnID string `json:"turn_id"`
	Reason string `json:"reason"`
}

func (e *TurnModelFailureError) Error() string {
	return fmt.Sprintf("turn %s model failure: %s", e.TurnID, e.Reason)
}

func (e *TurnModelFailureError) Code() string { return CodeTurnModelFailure }

// AgentProfileNotFoundError is returned when configuration has no profile for
// an agent and no fallback applies.
type AgentProfileNotFoundError struct {
	AgentID string `json:"agent_id"`
}

func (e *AgentProfileNotFoundError) Error() string {
	return fmt.Sprintf("agent profile not found: %s", e.AgentID)
}

func (e *AgentProfileNotFoundError) Code() string { return CodeAgentProfileNotFound }

// ErrorCode extracts the stable code from any error. Unknown errors map to
// InternalServerError.
func ErrorCode(err error) string {
	var coded Coded
	if errors.As(err, &coded) {
		return coded.Code()
	}
	return CodeInternalServerError
}

// wireError is the serialized form used by the workflow journal and by
// streamed turn.failed events.
type wireError struct {
	Code    string          `json:"code"`
	Message string          `json:"message"`
	Fields  json.RawMessage `json:"fields,omitempty"`
}

// EncodeError serializes an error so it can replay from the journal with its
// type intact.
func EncodeError(err error) []byte {
	we := wireError{Code: ErrorCode(err), Message: err.Error()}
	var coded Coded
	if errors.As(err, &coded) {
		if fields, merr := json.Marshal(coded); merr == nil {
			we.Fields = fields
		}
	}
	out, _ := json.Marshal(we)
	return out
}

// DecodeError reconstructs a typed error from its serialized form. Codes
// without a typed representation decode to a generic coded error.
func DecodeError(data []byte) error {
	var we wireError
	if err := json.Unmarshal(data, &we); err != nil || we.Code == "" {
		return &GenericError{CodeTag: CodeInternalServerError, Message: string(data)}
	}
	target := typedErrorFor(we.Code)
	if target != nil && len(we.Fields) > 0 {
		if err := json.Unmarshal(we.Fields, target); err == nil {
			return target.(error)
		}
	}
	return &GenericError{CodeTag: we.Code, Message: we.Message}
}

func typedErrorFor(code string) any {
	switch code {
	case CodeTokenBudgetExceeded:
		return &TokenBudgetExceededError{}
	case CodeContextWindowExceeded:
		return &ContextWindowExceededError{}
	case CodeSessionNotFound:
		return &SessionNotFoundError{}
	case CodeToolQuotaExceeded:
		return &ToolQuotaExceededError{}
	case CodeSandboxViolation:
		return &SandboxViolationError{}
	case CodeChannelNotFound:
		return &ChannelNotFoundError{}
	case CodeTurnPolicyDenied:
		return &TurnPolicyDeniedError{}
	case CodeTurnModelFailure:
		return &TurnModelFailureError{}
	case CodeAgentProfileNotFound:
		return &AgentProfileNotFoundError{}
	default:
		return nil
	}
}

// GenericError carries a stable code without a dedicated type.
type GenericError struct {
	CodeTag string `json:"code"`
	Message string `json:"message"`
}

func (e *GenericError) Error() string { return e.Message }

// Code returns the stable code tag.
func (e *GenericError) Code() string { return e.CodeTag }
