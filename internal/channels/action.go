package channels

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/stewardhq/steward/internal/scheduler"
	"github.com/stewardhq/steward/pkg/models"
)

// promptActionPrefix tags schedule actions that dispatch a turn:
// "prompt:{agentId}:{text}".
const promptActionPrefix = "prompt:"

// PromptActionExecutor runs scheduled prompt actions through the channel
// facade. Each agent gets one scheduler-owned channel, created on first use,
// so scheduled turns share the regular workflow, governance included.
type PromptActionExecutor struct {
	facade *Facade
	logger *slog.Logger
}

// NewPromptActionExecutor creates the executor.
func NewPromptActionExecutor(facade *Facade, logger *slog.Logger) *PromptActionExecutor {
	if logger == nil {
		logger = slog.Default().With("component", "scheduler_actions")
	}
	return &PromptActionExecutor{facade: facade, logger: logger}
}

// SchedulerChannelID derives the scheduler-owned channel for an agent.
func SchedulerChannelID(agentID string) string {
	return "sched-" + strings.TrimPrefix(agentID, models.AgentIDPrefix)
}

// Execute dispatches one ticket's prompt and drains the event stream. The
// execution fails on unknown action forms and on turn failure.
func (e *PromptActionExecutor) Execute(ctx context.Context, ticket *scheduler.Ticket) error {
	agentID, text, err := parsePromptAction(ticket.ActionRef)
	if err != nil {
		return err
	}

	channelID := SchedulerChannelID(agentID)
	if err := e.facade.CreateChannel(ctx, channelID, models.ChannelCLI, agentID); err != nil {
		return fmt.Errorf("ensure scheduler channel: %w", err)
	}

	turnID, stream, err := e.facade.SendMessage(ctx, channelID, text)
	if err != nil {
		return err
	}
	for item := range stream {
		if item.Err != nil {
			return MapTransportError(turnID, item.Err)
		}
	}
	e.logger.Info("scheduled prompt completed",
		"schedule_id", ticket.ScheduleID, "execution_id", ticket.ExecutionID, "turn_id", turnID)
	return nil
}

func parsePromptAction(actionRef string) (agentID, text string, err error) {
	if !strings.HasPrefix(actionRef, promptActionPrefix) {
		return "", "", fmt.Errorf("unsupported action ref %q", actionRef)
	}
	rest := strings.TrimPrefix(actionRef, promptActionPrefix)
	// Agent ids are branded "agent:..."; the brand's colon is not a separator.
	brand := ""
	if strings.HasPrefix(rest, models.AgentIDPrefix) {
		brand = models.AgentIDPrefix
		rest = strings.TrimPrefix(rest, models.AgentIDPrefix)
	}
	name, text, ok := strings.Cut(rest, ":")
	if !ok || name == "" || text == "" {
		return "", "", fmt.Errorf("malformed prompt action ref %q", actionRef)
	}
	return brand + name, text, nil
}
