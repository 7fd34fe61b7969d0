package storage

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stewardhq/steward/pkg/models"
)

func startTestSession(t *testing.T, store *Store, sessionID string, capacity int) {
	t.Helper()
	err := store.StartSession(context.Background(), &models.SessionState{
		SessionID:      sessionID,
		ConversationID: "conv:test",
		TokenCapacity:  capacity,
	})
	if err != nil {
		t.Fatalf("start session: %v", err)
	}
}

func userTurn(sessionID, turnID, content string) *models.TurnRecord {
	return &models.TurnRecord{
		TurnID:             turnID,
		SessionID:          sessionID,
		ConversationID:     "conv:test",
		ParticipantRole:    models.RoleUser,
		ParticipantAgentID: "agent:default",
		Message: models.TurnMessage{
			MessageID:     models.NewMessageID(),
			Role:          models.RoleUser,
			Content:       content,
			ContentBlocks: []models.ContentBlock{models.TextBlock(content)},
		},
	}
}

func TestStartSessionIdempotent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	startTestSession(t, store, "session:s1", 1000)

	// Re-starting must not clobber the original capacity.
	if err := store.StartSession(ctx, &models.SessionState{
		SessionID:     "session:s1",
		TokenCapacity: 5,
	}); err != nil {
		t.Fatalf("second start: %v", err)
	}
	state, err := store.GetSession(ctx, "session:s1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if state.TokenCapacity != 1000 {
		t.Errorf("capacity = %d, want 1000", state.TokenCapacity)
	}
}

func TestAppendTurnIdempotent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	startTestSession(t, store, "session:s1", 1000)

	turn := userTurn("session:s1", "turn:t1", "hello")
	if err := store.AppendTurn(ctx, turn); err != nil {
		t.Fatalf("first append: %v", err)
	}
	if err := store.AppendTurn(ctx, userTurn("session:s1", "turn:t1", "different body")); err != nil {
		t.Fatalf("second append: %v", err)
	}

	turns, err := store.ListTurns(ctx, "session:s1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(turns) != 1 {
		t.Fatalf("len(turns) = %d, want 1", len(turns))
	}
	if turns[0].Message.Content != "hello" {
		t.Errorf("content = %q, want original %q", turns[0].Message.Content, "hello")
	}
}

func TestAppendTurnDenseIndexes(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	startTestSession(t, store, "session:s1", 1000)
	startTestSession(t, store, "session:s2", 1000)

	for i := 0; i < 5; i++ {
		turnID := fmt.Sprintf("turn:s1-%d", i)
		if err := store.AppendTurn(ctx, userTurn("session:s1", turnID, "msg")); err != nil {
			t.Fatalf("append %s: %v", turnID, err)
		}
	}
	// A turn in another session must not disturb s1's sequence.
	if err := store.AppendTurn(ctx, userTurn("session:s2", "turn:s2-0", "msg")); err != nil {
		t.Fatalf("append other session: %v", err)
	}

	turns, err := store.ListTurns(ctx, "session:s1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(turns) != 5 {
		t.Fatalf("len(turns) = %d, want 5", len(turns))
	}
	for i, turn := range turns {
		if turn.TurnIndex != i {
			t.Errorf("turns[%d].TurnIndex = %d, want %d", i, turn.TurnIndex, i)
		}
	}
}

func TestAppendTurnSessionNotFound(t *testing.T) {
	store := newTestStore(t)
	err := store.AppendTurn(context.Background(), userTurn("session:missing", "turn:t1", "hi"))
	var notFound *models.SessionNotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("want SessionNotFoundError, got %v", err)
	}
}

func TestUpdateContextWindow(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	startTestSession(t, store, "session:s1", 100)

	if err := store.UpdateContextWindow(ctx, "session:s1", 60); err != nil {
		t.Fatalf("add 60: %v", err)
	}

	err := store.UpdateContextWindow(ctx, "session:s1", 50)
	var exceeded *models.ContextWindowExceededError
	if !errors.As(err, &exceeded) {
		t.Fatalf("want ContextWindowExceededError, got %v", err)
	}
	if exceeded.Capacity != 100 || exceeded.Attempted != 110 {
		t.Errorf("error fields = %+v, want capacity 100 attempted 110", exceeded)
	}

	// Usage unchanged after the rejected update; negative deltas clamp at zero.
	state, err := store.GetSession(ctx, "session:s1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if state.TokensUsed != 60 {
		t.Errorf("tokens used = %d, want 60", state.TokensUsed)
	}
	if err := store.UpdateContextWindow(ctx, "session:s1", -200); err != nil {
		t.Fatalf("negative delta: %v", err)
	}
	state, _ = store.GetSession(ctx, "session:s1")
	if state.TokensUsed != 0 {
		t.Errorf("tokens used after clamp = %d, want 0", state.TokensUsed)
	}

	err = store.UpdateContextWindow(ctx, "session:missing", 1)
	var notFound *models.SessionNotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("want SessionNotFoundError, got %v", err)
	}
}
