package agent

import "github.com/stewardhq/steward/pkg/models"

// ProjectEvents converts a completed turn result into its canonical event
// sequence: turn.started, then one event per content block, then
// turn.completed. Sequence numbers start at 1 and increase by one per event.
// Image blocks are persisted but not streamed.
func ProjectEvents(result *models.ProcessTurnResult) []models.TurnEvent {
	seq := 0
	next := func() int {
		seq++
		return seq
	}

	events := []models.TurnEvent{{
		Type:     models.EventTurnStarted,
		Sequence: next(),
		TurnID:   result.TurnID,
	}}
	for _, block := range result.AssistantContentBlocks {
		switch block.Type {
		case models.BlockText:
			events = append(events, models.TurnEvent{
				Type:     models.EventAssistantDelta,
				Sequence: next(),
				TurnID:   result.TurnID,
				Delta:    block.Text,
			})
		case models.BlockToolUse:
			events = append(events, models.TurnEvent{
				Type:       models.EventToolCall,
				Sequence:   next(),
				TurnID:     result.TurnID,
				ToolCallID: block.ToolCallID,
				ToolName:   block.ToolName,
				InputJSON:  block.InputJSON,
			})
		case models.BlockToolResult:
			events = append(events, models.TurnEvent{
				Type:       models.EventToolResult,
				Sequence:   next(),
				TurnID:     result.TurnID,
				ToolCallID: block.ToolCallID,
				ToolName:   block.ToolName,
				OutputJSON: block.OutputJSON,
				IsError:    block.IsError,
			})
		}
	}
	events = append(events, models.TurnEvent{
		Type:              models.EventTurnCompleted,
		Sequence:          next(),
		TurnID:            result.TurnID,
		Accepted:          result.Accepted,
		AuditReasonCode:   result.AuditReasonCode,
		ModelFinishReason: result.ModelFinishReason,
	})
	return events
}

// FailureEvent is the terminal event of a failed turn. It sorts after every
// ordinary event.
func FailureEvent(turnID string, err error) models.TurnEvent {
	return models.TurnEvent{
		Type:      models.EventTurnFailed,
		Sequence:  models.FailureSequence,
		TurnID:    turnID,
		ErrorCode: models.ErrorCode(err),
		Message:   err.Error(),
	}
}
