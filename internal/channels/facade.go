// Package channels binds external callers to sessions. A channel is an
// entity: creation is a persisted RPC so repeats are no-ops, message sends
// stream turn events relayed from the session entity, and history reads come
// straight from storage.
package channels

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/stewardhq/steward/internal/agent"
	"github.com/stewardhq/steward/internal/entity"
	"github.com/stewardhq/steward/internal/storage"
	"github.com/stewardhq/steward/pkg/models"
)

// Channel entity address space.
const (
	EntityTypeChannel = "channel"

	MethodCreateChannel = "createChannel"
	MethodSendMessage   = "sendMessage"
	MethodGetHistory    = "getHistory"
)

// Session bootstrap defaults shared by channel creation.
const defaultTokenCapacity = 200_000

// CreateChannelRequest is the createChannel payload.
type CreateChannelRequest struct {
	ChannelType models.ChannelType `json:"channel_type"`
	AgentID     string             `json:"agent_id"`
}

// CreateChannelReply acknowledges channel creation.
type CreateChannelReply struct {
	OK bool `json:"ok"`
}

// SendMessageRequest is the sendMessage payload. The turn id is minted by the
// facade before dispatch so callers can correlate failure events.
type SendMessageRequest struct {
	TurnID  string `json:"turn_id"`
	Content string `json:"content"`
}

// channelHandler serves one channel's operations under the entity runtime.
type channelHandler struct {
	channelID string
	runtime   *entity.Runtime
	channels  storage.ChannelPort
	agents    storage.AgentStatePort
	sessions  storage.SessionTurnPort
	logger    *slog.Logger
	now       func() time.Time
}

// NewChannelFactory returns the entity factory for channel handlers.
func NewChannelFactory(
	runtime *entity.Runtime,
	channels storage.ChannelPort,
	agents storage.AgentStatePort,
	sessions storage.SessionTurnPort,
	logger *slog.Logger,
	now func() time.Time,
) entity.Factory {
	if logger == nil {
		logger = slog.Default().With("component", "channels")
	}
	if now == nil {
		now = time.Now
	}
	return func(key string) entity.Handler {
		return &channelHandler{
			channelID: key,
			runtime:   runtime,
			channels:  channels,
			agents:    agents,
			sessions:  sessions,
			logger:    logger.With("channel_id", key),
			now:       now,
		}
	}
}

func (h *channelHandler) Invoke(ctx context.Context, method string, payload []byte) ([]byte, error) {
	switch method {
	case MethodCreateChannel:
		var req CreateChannelRequest
		if err := json.Unmarshal(payload, &req); err != nil {
			return nil, fmt.Errorf("decode create request: %w", err)
		}
		if err := h.create(ctx, req); err != nil {
			return nil, err
		}
		return json.Marshal(CreateChannelReply{OK: true})
	case MethodGetHistory:
		return h.history(ctx)
	default:
		return nil, fmt.Errorf("channel entity has no call method %q", method)
	}
}

// create bootstraps agent state, session and channel record, in that order.
// An existing channel only re-checks its agent's state.
func (h *channelHandler) create(ctx context.Context, req CreateChannelRequest) error {
	existing, err := h.channels.GetChannel(ctx, h.channelID)
	if err != nil {
		return err
	}
	agentID := req.AgentID
	if existing != nil {
		agentID = existing.AgentID
	}
	if err := h.ensureAgentState(ctx, agentID); err != nil {
		return err
	}
	if existing != nil {
		return nil
	}

	sessionID := models.SessionIDForChannel(h.channelID)
	conversationID := models.ConversationIDForChannel(h.channelID)
	if err := h.sessions.StartSession(ctx, &models.SessionState{
		SessionID:      sessionID,
		ConversationID: conversationID,
		TokenCapacity:  defaultTokenCapacity,
		TokensUsed:     0,
	}); err != nil {
		return err
	}
	return h.channels.CreateChannel(ctx, &models.ChannelRecord{
		ChannelID:            h.channelID,
		ChannelType:          req.ChannelType,
		AgentID:              req.AgentID,
		ActiveSessionID:      sessionID,
		ActiveConversationID: conversationID,
		CreatedAt:            h.now(),
	})
}

func (h *channelHandler) ensureAgentState(ctx context.Context, agentID string) error {
	state, err := h.agents.GetAgentState(ctx, agentID)
	if err != nil {
		return err
	}
	if state != nil {
		return nil
	}
	return h.agents.UpsertAgentState(ctx, models.DefaultAgentState(agentID))
}

func (h *channelHandler) history(ctx context.Context) ([]byte, error) {
	record, err := h.channels.GetChannel(ctx, h.channelID)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, &models.ChannelNotFoundError{ChannelID: h.channelID}
	}
	turns, err := h.sessions.ListTurns(ctx, record.ActiveSessionID)
	if err != nil {
		return nil, err
	}
	if turns == nil {
		turns = []*models.TurnRecord{}
	}
	return json.Marshal(turns)
}

// InvokeStream relays sendMessage to the session entity's turn stream.
func (h *channelHandler) InvokeStream(ctx context.Context, method string, payload []byte, sink *entity.Sink) error {
	if method != MethodSendMessage {
		return fmt.Errorf("channel entity has no stream method %q", method)
	}
	var req SendMessageRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return fmt.Errorf("decode send request: %w", err)
	}

	record, err := h.channels.GetChannel(ctx, h.channelID)
	if err != nil {
		return err
	}
	if record == nil {
		return &models.ChannelNotFoundError{ChannelID: h.channelID}
	}

	input := agent.TurnInput{
		TurnID:         req.TurnID,
		SessionID:      record.ActiveSessionID,
		ConversationID: record.ActiveConversationID,
		AgentID:        record.AgentID,
		Content:        req.Content,
		InputTokens:    agent.EstimateTokens(req.Content),
		CreatedAt:      h.now(),
	}
	turnPayload, err := json.Marshal(input)
	if err != nil {
		return fmt.Errorf("encode turn input: %w", err)
	}

	stream, err := h.runtime.Stream(ctx,
		entity.Ref{Type: agent.EntityTypeSession, Key: record.ActiveSessionID},
		agent.MethodProcessTurn, req.TurnID, turnPayload)
	if err != nil {
		return MapTransportError(req.TurnID, err)
	}
	for item := range stream {
		if item.Err != nil {
			return MapTransportError(req.TurnID, item.Err)
		}
		if serr := sink.Send(json.RawMessage(item.Value)); serr != nil {
			return serr
		}
	}
	return nil
}

// MapTransportError converts entity-runtime delivery failures into the turn
// failure the client sees. Domain errors pass through unchanged.
func MapTransportError(turnID string, err error) error {
	var mailbox *entity.MailboxFullError
	if errors.As(err, &mailbox) {
		return &models.TurnModelFailureError{TurnID: turnID, Reason: "session_entity_mailbox_full"}
	}
	var busy *entity.AlreadyProcessingError
	if errors.As(err, &busy) {
		return &models.TurnModelFailureError{TurnID: turnID, Reason: "turn_already_processing"}
	}
	var coded models.Coded
	if errors.As(err, &coded) {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return &models.TurnModelFailureError{TurnID: turnID, Reason: err.Error()}
}

// Facade is the calling surface the gateway and CLI use. All operations ride
// the entity runtime so per-channel ordering holds.
type Facade struct {
	runtime *entity.Runtime
	logger  *slog.Logger
}

// NewFacade creates the facade over a runtime with the channel entity type
// registered.
func NewFacade(runtime *entity.Runtime, logger *slog.Logger) *Facade {
	if logger == nil {
		logger = slog.Default().With("component", "channels")
	}
	return &Facade{runtime: runtime, logger: logger}
}

// CreateChannel creates (or idempotently re-creates) a channel bound to
// agentID. Repeats with the same agent return the first reply.
func (f *Facade) CreateChannel(ctx context.Context, channelID string, channelType models.ChannelType, agentID string) error {
	payload, err := json.Marshal(CreateChannelRequest{ChannelType: channelType, AgentID: agentID})
	if err != nil {
		return err
	}
	primaryKey := "create:" + agentID
	_, err = f.runtime.CallPersisted(ctx,
		entity.Ref{Type: EntityTypeChannel, Key: channelID},
		MethodCreateChannel, primaryKey, payload)
	return err
}

// SendMessage dispatches one user message and returns the minted turn id plus
// the relayed event stream. The terminal stream error, if any, is already
// mapped to a domain error.
func (f *Facade) SendMessage(ctx context.Context, channelID, content string) (string, <-chan entity.StreamItem, error) {
	turnID := models.NewTurnID()
	payload, err := json.Marshal(SendMessageRequest{TurnID: turnID, Content: content})
	if err != nil {
		return "", nil, err
	}
	stream, err := f.runtime.Stream(ctx,
		entity.Ref{Type: EntityTypeChannel, Key: channelID},
		MethodSendMessage, turnID, payload)
	if err != nil {
		return turnID, nil, MapTransportError(turnID, err)
	}
	return turnID, stream, nil
}

// GetHistory returns the channel's session turns in order.
func (f *Facade) GetHistory(ctx context.Context, channelID string) ([]*models.TurnRecord, error) {
	payload, err := f.runtime.Call(ctx,
		entity.Ref{Type: EntityTypeChannel, Key: channelID},
		MethodGetHistory, nil)
	if err != nil {
		return nil, err
	}
	var turns []*models.TurnRecord
	if err := json.Unmarshal(payload, &turns); err != nil {
		return nil, fmt.Errorf("decode history: %w", err)
	}
	return turns, nil
}
