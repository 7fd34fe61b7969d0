package storage

import (
	"context"
	"testing"

	"github.com/stewardhq/steward/pkg/models"
)

func TestWriteAuditIdempotent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	createdAt := mustTime(t, "2026-02-01T10:00:00Z")

	entry := &models.AuditEntry{
		AuditEntryID: "audit-1",
		AgentID:      "agent:a1",
		SessionID:    "session:s1",
		Decision:     models.DecisionAllow,
		Reason:       models.ReasonTurnAccepted,
		CreatedAt:    createdAt,
	}
	if err := store.WriteAudit(ctx, entry); err != nil {
		t.Fatalf("write: %v", err)
	}
	// Replay writes the same entry id again; the row must not duplicate.
	dup := *entry
	dup.Reason = models.ReasonTurnModelError
	if err := store.WriteAudit(ctx, &dup); err != nil {
		t.Fatalf("duplicate write: %v", err)
	}

	entries, err := store.ListAudits(ctx, "agent:a1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("len(entries) = %d, want 1", len(entries))
	}
	got := entries[0]
	if got.Reason != models.ReasonTurnAccepted {
		t.Errorf("reason = %s, want original", got.Reason)
	}
	if got.Decision != models.DecisionAllow || got.SessionID != "session:s1" {
		t.Errorf("entry = %+v", got)
	}
	if !got.CreatedAt.Equal(createdAt) {
		t.Errorf("created_at = %v, want %v", got.CreatedAt, createdAt)
	}
}

func TestCountAuditsSince(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	write := func(id, agentID, reason, at string) {
		t.Helper()
		if err := store.WriteAudit(ctx, &models.AuditEntry{
			AuditEntryID: id,
			AgentID:      agentID,
			Decision:     models.DecisionAllow,
			Reason:       reason,
			CreatedAt:    mustTime(t, at),
		}); err != nil {
			t.Fatalf("write %s: %v", id, err)
		}
	}
	write("a", "agent:a1", "tool_invoked:echo.text", "2026-02-01T09:00:00Z")
	write("b", "agent:a1", "tool_invoked:echo.text", "2026-02-01T10:00:00Z")
	write("c", "agent:a1", "tool_invoked:echo.text", "2026-02-01T11:00:00Z")
	write("d", "agent:a1", "tool_invoked:math.calculate", "2026-02-01T11:00:00Z")
	write("e", "agent:a2", "tool_invoked:echo.text", "2026-02-01T11:00:00Z")

	// Since is inclusive; other reasons and other agents are excluded.
	count, err := store.CountAuditsSince(ctx, "agent:a1", "tool_invoked:echo.text", mustTime(t, "2026-02-01T10:00:00Z"))
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 2 {
		t.Errorf("count = %d, want 2", count)
	}
}
