package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/stewardhq/steward/internal/entity"
	"github.com/stewardhq/steward/internal/workflow"
)

// Session entity address space.
const (
	EntityTypeSession = "session"
	MethodProcessTurn = "processTurn"
)

// sessionHandler serves one session's turns. The entity runtime serializes
// invocations, so the session's history is only ever appended by one turn at
// a time.
type sessionHandler struct {
	sessionID string
	processor *Processor
	journal   workflow.Journal
	logger    *slog.Logger
}

// NewSessionFactory returns the entity factory for session handlers.
func NewSessionFactory(processor *Processor, journal workflow.Journal, logger *slog.Logger) entity.Factory {
	if logger == nil {
		logger = slog.Default().With("component", "session")
	}
	return func(key string) entity.Handler {
		return &sessionHandler{
			sessionID: key,
			processor: processor,
			journal:   journal,
			logger:    logger.With("session_id", key),
		}
	}
}

// Invoke rejects non-streaming methods; turns always stream.
func (h *sessionHandler) Invoke(ctx context.Context, method string, payload []byte) ([]byte, error) {
	return nil, fmt.Errorf("session entity has no call method %q", method)
}

// InvokeStream runs the turn workflow and streams the projected events. A
// workflow error becomes the stream's terminal error; journalled activities
// that already committed stay committed.
func (h *sessionHandler) InvokeStream(ctx context.Context, method string, payload []byte, sink *entity.Sink) error {
	if method != MethodProcessTurn {
		return fmt.Errorf("session entity has no stream method %q", method)
	}
	var input TurnInput
	if err := json.Unmarshal(payload, &input); err != nil {
		return fmt.Errorf("decode turn input: %w", err)
	}
	input.SessionID = h.sessionID

	result, err := h.processor.ProcessTurn(ctx, h.journal, input)
	if err != nil {
		h.logger.Warn("turn workflow failed", "turn_id", input.TurnID, "error", err)
		return err
	}
	for _, event := range ProjectEvents(result) {
		if serr := sink.Send(event); serr != nil {
			return serr
		}
	}
	return nil
}
