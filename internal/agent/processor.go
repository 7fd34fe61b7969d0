// Package agent runs the turn workflow: policy, budget, persistence, model
// invocation and audit, each step journalled so a restarted or repeated run
// replays prior outcomes instead of re-executing effects.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/stewardhq/steward/internal/config"
	"github.com/stewardhq/steward/internal/policy"
	"github.com/stewardhq/steward/internal/providers"
	"github.com/stewardhq/steward/internal/storage"
	"github.com/stewardhq/steward/internal/tools"
	"github.com/stewardhq/steward/internal/workflow"
	"github.com/stewardhq/steward/pkg/models"
)

// Turn workflow activity names. Together with the turn id they key the
// journal entries for one turn.
const (
	activityEvaluatePolicy       = "EvaluatePolicy"
	activityCheckTokenBudget     = "CheckTokenBudget"
	activityPersistUserTurn      = "PersistUserTurn"
	activityInvokeModel          = "InvokeModel"
	activityPersistAssistantTurn = "PersistAssistantTurn"
	activityWriteAuditAccept     = "WriteAuditAccept"
)

// maxToolRounds bounds the model/tool round-trips within one turn.
const maxToolRounds = 4

// ProviderSet resolves configured provider names to live backends.
type ProviderSet map[string]providers.Provider

// TurnInput is one turn request as dispatched by the channel facade.
type TurnInput struct {
	TurnID         string    `json:"turn_id"`
	SessionID      string    `json:"session_id"`
	ConversationID string    `json:"conversation_id"`
	AgentID        string    `json:"agent_id"`
	Content        string    `json:"content"`
	InputTokens    int       `json:"input_tokens"`
	CreatedAt      time.Time `json:"created_at"`
}

// EstimateTokens approximates the token cost of a text payload. Rough by
// intent; real usage is reconciled from the provider's reported counts.
func EstimateTokens(content string) int {
	n := utf8.RuneCountInString(content) / 4
	if n < 1 {
		n = 1
	}
	return n
}

// Processor executes turn workflows over the storage ports and a set of LLM
// backends. It is stateless between turns; all durable progress lives in the
// workflow journal.
type Processor struct {
	agents    storage.AgentStatePort
	sessions  storage.SessionTurnPort
	engine    *policy.Engine
	registry  *tools.Registry
	providers ProviderSet
	cfg       *config.Config
	logger    *slog.Logger
	now       func() time.Time
}

// ProcessorOption configures the processor.
type ProcessorOption func(*Processor)

// WithLogger configures the processor logger.
func WithLogger(logger *slog.Logger) ProcessorOption {
	return func(p *Processor) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithNow overrides the clock for tests.
func WithNow(now func() time.Time) ProcessorOption {
	return func(p *Processor) {
		if now != nil {
			p.now = now
		}
	}
}

// NewProcessor creates a turn processor.
func NewProcessor(
	agents storage.AgentStatePort,
	sessions storage.SessionTurnPort,
	engine *policy.Engine,
	registry *tools.Registry,
	providerSet ProviderSet,
	cfg *config.Config,
	opts ...ProcessorOption,
) *Processor {
	p := &Processor{
		agents:    agents,
		sessions:  sessions,
		engine:    engine,
		registry:  registry,
		providers: providerSet,
		cfg:       cfg,
		logger:    slog.Default().With("component", "agent"),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ProcessTurn runs the full turn workflow for input. Repeating the call with
// the same turn id replays the journalled outcome: the result is identical and
// no effect runs twice.
func (p *Processor) ProcessTurn(ctx context.Context, journal workflow.Journal, input TurnInput) (*models.ProcessTurnResult, error) {
	runner := workflow.NewRunner(input.TurnID, journal, p.logger)
	key := input.TurnID

	// Step 1: governance gate on the turn itself.
	if err := runner.Execute(ctx, activityEvaluatePolicy, key, nil, func(ctx context.Context) (any, error) {
		decision, err := p.engine.EvaluatePolicy(ctx, models.PolicyInput{
			AgentID:   input.AgentID,
			SessionID: input.SessionID,
			Action:    models.ActionReadMemory,
		})
		if err != nil {
			return nil, err
		}
		switch decision {
		case models.DecisionAllow:
			return nil, nil
		case models.DecisionRequireApproval:
			if aerr := p.engine.WriteAudit(ctx, input.AgentID, input.SessionID,
				models.DecisionRequireApproval, models.ReasonTurnRequiresApproval); aerr != nil {
				return nil, aerr
			}
			return nil, &models.TurnPolicyDeniedError{TurnID: input.TurnID, Reason: models.ReasonTurnRequiresApproval}
		default:
			if aerr := p.engine.WriteAudit(ctx, input.AgentID, input.SessionID,
				models.DecisionDeny, models.ReasonTurnPolicyDenied); aerr != nil {
				return nil, aerr
			}
			return nil, &models.TurnPolicyDeniedError{TurnID: input.TurnID, Reason: models.ReasonTurnPolicyDenied}
		}
	}); err != nil {
		return nil, err
	}

	// Step 2: charge the agent's token budget up front.
	if err := runner.Execute(ctx, activityCheckTokenBudget, key, nil, func(ctx context.Context) (any, error) {
		if berr := p.agents.ConsumeTokenBudget(ctx, input.AgentID, input.InputTokens, input.CreatedAt); berr != nil {
			if aerr := p.engine.WriteAudit(ctx, input.AgentID, input.SessionID,
				models.DecisionDeny, models.ReasonTurnBudgetExceeded); aerr != nil {
				return nil, aerr
			}
			return nil, berr
		}
		return nil, nil
	}); err != nil {
		return nil, err
	}

	// Step 3: reserve context window space and append the user half.
	if err := runner.Execute(ctx, activityPersistUserTurn, key, nil, func(ctx context.Context) (any, error) {
		if werr := p.sessions.UpdateContextWindow(ctx, input.SessionID, input.InputTokens); werr != nil {
			return nil, werr
		}
		return nil, p.sessions.AppendTurn(ctx, &models.TurnRecord{
			TurnID:             input.TurnID,
			SessionID:          input.SessionID,
			ConversationID:     input.ConversationID,
			ParticipantRole:    models.RoleUser,
			ParticipantAgentID: input.AgentID,
			Message: models.TurnMessage{
				MessageID:     models.NewMessageID(),
				Role:          models.RoleUser,
				Content:       input.Content,
				ContentBlocks: []models.ContentBlock{models.TextBlock(input.Content)},
			},
			CreatedAt: input.CreatedAt,
		})
	}); err != nil {
		return nil, err
	}

	// Step 4: model invocation, with governed tool round-trips.
	var completion providers.Response
	if err := runner.Execute(ctx, activityInvokeModel, key, &completion, func(ctx context.Context) (any, error) {
		resp, merr := p.invokeModel(ctx, input)
		if merr != nil {
			if aerr := p.engine.WriteAudit(ctx, input.AgentID, input.SessionID,
				models.DecisionDeny, models.ReasonTurnModelError); aerr != nil {
				return nil, aerr
			}
			return nil, &models.TurnModelFailureError{TurnID: input.TurnID, Reason: merr.Error()}
		}
		return resp, nil
	}); err != nil {
		return nil, err
	}

	// Step 5: pure conversion of provider parts to domain content blocks.
	blocks := ConvertParts(completion.Parts)
	usageJSON, err := json.Marshal(completion.Usage)
	if err != nil {
		return nil, fmt.Errorf("encode model usage: %w", err)
	}

	// Step 6: append the assistant half under the derived turn id.
	assistantTurnID := models.AssistantTurnID(input.TurnID)
	if err := runner.Execute(ctx, activityPersistAssistantTurn, key, nil, func(ctx context.Context) (any, error) {
		return nil, p.sessions.AppendTurn(ctx, &models.TurnRecord{
			TurnID:             assistantTurnID,
			SessionID:          input.SessionID,
			ConversationID:     input.ConversationID,
			ParticipantRole:    models.RoleAssistant,
			ParticipantAgentID: input.AgentID,
			Message: models.TurnMessage{
				MessageID:     models.NewMessageID(),
				Role:          models.RoleAssistant,
				Content:       completion.Text,
				ContentBlocks: blocks,
			},
			ModelFinishReason: completion.FinishReason,
			ModelUsageJSON:    string(usageJSON),
			CreatedAt:         p.now(),
		})
	}); err != nil {
		return nil, &models.TurnModelFailureError{TurnID: input.TurnID, Reason: err.Error()}
	}

	// Step 7: the accepting audit entry.
	if err := runner.Execute(ctx, activityWriteAuditAccept, key, nil, func(ctx context.Context) (any, error) {
		return nil, p.engine.WriteAudit(ctx, input.AgentID, input.SessionID,
			models.DecisionAllow, models.ReasonTurnAccepted)
	}); err != nil {
		return nil, err
	}

	return &models.ProcessTurnResult{
		TurnID:                 input.TurnID,
		Accepted:               true,
		AuditReasonCode:        models.ReasonTurnAccepted,
		AssistantContent:       completion.Text,
		AssistantContentBlocks: blocks,
		ModelFinishReason:      completion.FinishReason,
		ModelUsageJSON:         string(usageJSON),
	}, nil
}

// invokeModel runs the completion call, executing governed tool invocations
// and feeding their results back until the model stops calling tools or the
// round budget runs out. Parts accumulate in stream order across rounds.
func (p *Processor) invokeModel(ctx context.Context, input TurnInput) (*providers.Response, error) {
	profile := p.cfg.GetAgent(input.AgentID, p.logger)
	provider, ok := p.providers[profile.Model.Provider]
	if !ok {
		return nil, fmt.Errorf("no provider configured for %q", profile.Model.Provider)
	}

	toolkit := p.registry.Toolkit(tools.ExecutionContext{
		AgentID:   input.AgentID,
		SessionID: input.SessionID,
	})
	byName := make(map[string]tools.Tool, len(toolkit))
	specs := make([]providers.ToolSpec, 0, len(toolkit))
	for _, tool := range toolkit {
		byName[tool.Name()] = tool
		specs = append(specs, providers.ToolSpec{
			Name:        tool.Name(),
			Description: tool.Description(),
			Schema:      tool.Schema(),
		})
	}

	history, err := p.sessions.ListTurns(ctx, input.SessionID)
	if err != nil {
		return nil, fmt.Errorf("load session history: %w", err)
	}
	messages := historyMessages(history)

	req := &providers.Request{
		Model:           profile.Model.ModelID,
		Messages:        messages,
		Tools:           specs,
		Temperature:     profile.Generation.Temperature,
		MaxOutputTokens: profile.Generation.MaxOutputTokens,
		TopP:            profile.Generation.TopP,
		Seed:            profile.Generation.Seed,
	}
	// The persona prompt travels with the first exchange only; history already
	// containing the new user turn counts as empty at one entry.
	if len(history) <= 1 {
		req.SystemPrompt = profile.Persona.SystemPrompt
	}

	final := &providers.Response{}
	for round := 0; round < maxToolRounds; round++ {
		resp, cerr := provider.Complete(ctx, req)
		if cerr != nil {
			return nil, cerr
		}
		final.Text = resp.Text
		final.FinishReason = resp.FinishReason
		final.Usage.InputTokens += resp.Usage.InputTokens
		final.Usage.OutputTokens += resp.Usage.OutputTokens
		final.Parts = append(final.Parts, resp.Parts...)

		calls := toolCalls(resp.Parts)
		if len(calls) == 0 {
			return final, nil
		}

		results := make([]providers.Part, 0, len(calls))
		for _, call := range calls {
			result := p.runTool(ctx, byName, call)
			results = append(results, result)
			final.Parts = append(final.Parts, result)
		}
		req.Messages = append(req.Messages,
			providers.Message{Role: "assistant", Content: resp.Text, Parts: calls},
			providers.Message{Role: "user", Parts: results},
		)
	}
	return final, nil
}

func (p *Processor) runTool(ctx context.Context, byName map[string]tools.Tool, call providers.Part) providers.Part {
	out := providers.Part{
		Type:       providers.PartToolResult,
		ToolCallID: call.ToolCallID,
		ToolName:   call.ToolName,
	}
	tool, ok := byName[call.ToolName]
	if !ok {
		out.IsError = true
		out.OutputJSON = toolOutputJSON("unknown tool: " + call.ToolName)
		return out
	}
	result, err := tool.Execute(ctx, call.InputJSON)
	if err != nil {
		p.logger.Warn("tool execution error", "tool", call.ToolName, "error", err)
		out.IsError = true
		out.OutputJSON = toolOutputJSON(err.Error())
		return out
	}
	out.IsError = result.IsError
	out.OutputJSON = toolOutputJSON(result.Content)
	return out
}

func toolOutputJSON(content string) json.RawMessage {
	data, _ := json.Marshal(map[string]string{"content": content})
	return data
}

func toolCalls(parts []providers.Part) []providers.Part {
	var calls []providers.Part
	for _, part := range parts {
		if part.Type == providers.PartToolCall {
			calls = append(calls, part)
		}
	}
	return calls
}

// historyMessages projects persisted turns into provider chat messages.
func historyMessages(history []*models.TurnRecord) []providers.Message {
	messages := make([]providers.Message, 0, len(history))
	for _, turn := range history {
		msg := providers.Message{
			Role:    string(turn.ParticipantRole),
			Content: turn.Message.Content,
		}
		for _, block := range turn.Message.ContentBlocks {
			switch block.Type {
			case models.BlockToolUse:
				msg.Parts = append(msg.Parts, providers.Part{
					Type:       providers.PartToolCall,
					ToolCallID: block.ToolCallID,
					ToolName:   block.ToolName,
					InputJSON:  block.InputJSON,
				})
			case models.BlockToolResult:
				msg.Parts = append(msg.Parts, providers.Part{
					Type:       providers.PartToolResult,
					ToolCallID: block.ToolCallID,
					ToolName:   block.ToolName,
					OutputJSON: block.OutputJSON,
					IsError:    block.IsError,
				})
			}
		}
		messages = append(messages, msg)
	}
	return messages
}

// ConvertParts maps provider output parts onto the persisted content block
// union. Unrecognized part types are dropped.
func ConvertParts(parts []providers.Part) []models.ContentBlock {
	var blocks []models.ContentBlock
	for _, part := range parts {
		switch part.Type {
		case providers.PartText:
			blocks = append(blocks, models.TextBlock(part.Text))
		case providers.PartToolCall:
			blocks = append(blocks, models.ToolUseBlock(part.ToolCallID, part.ToolName, part.InputJSON))
		case providers.PartToolResult:
			blocks = append(blocks, models.ToolResultBlock(part.ToolCallID, part.ToolName, part.OutputJSON, part.IsError))
		case providers.PartFile:
			if len(part.MediaType) >= 6 && part.MediaType[:6] == "image/" {
				blocks = append(blocks, models.ImageBlock(part.MediaType, part.Source, ""))
			}
		}
	}
	return blocks
}
