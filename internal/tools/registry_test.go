package tools

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stewardhq/steward/internal/policy"
	"github.com/stewardhq/steward/internal/storage"
	"github.com/stewardhq/steward/pkg/models"
)

func newTestRegistry(t *testing.T, now time.Time) (*Registry, *storage.Store) {
	t.Helper()
	store, err := storage.Open(context.Background(), filepath.Join(t.TempDir(), "steward.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	clock := func() time.Time { return now }
	engine := policy.NewEngine(store, store, policy.WithNow(clock))
	registry, err := NewRegistry(engine, WithNow(clock))
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	return registry, store
}

func seedToolAgent(t *testing.T, store *storage.Store, agentID string, mode models.PermissionMode) {
	t.Helper()
	if err := store.UpsertAgentState(context.Background(), &models.AgentState{
		AgentID:        agentID,
		PermissionMode: mode,
		TokenBudget:    1000,
		QuotaPeriod:    models.QuotaDaily,
	}); err != nil {
		t.Fatalf("seed agent: %v", err)
	}
}

func findTool(t *testing.T, registry *Registry, agentID, name string) Tool {
	t.Helper()
	for _, tool := range registry.Toolkit(ExecutionContext{AgentID: agentID, SessionID: "session:s1"}) {
		if tool.Name() == name {
			return tool
		}
	}
	t.Fatalf("tool %s not in toolkit", name)
	return nil
}

func echoParams(t *testing.T, text string) json.RawMessage {
	t.Helper()
	params, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		t.Fatalf("marshal params: %v", err)
	}
	return params
}

func lastAudit(t *testing.T, store *storage.Store, agentID string) *models.AuditEntry {
	t.Helper()
	audits, err := store.ListAudits(context.Background(), agentID)
	if err != nil {
		t.Fatalf("list audits: %v", err)
	}
	if len(audits) == 0 {
		t.Fatal("no audits recorded")
	}
	return audits[len(audits)-1]
}

func TestGovernedToolAllowed(t *testing.T) {
	now := time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)
	registry, store := newTestRegistry(t, now)
	seedToolAgent(t, store, "agent:a1", models.PermissionStandard)

	tool := findTool(t, registry, "agent:a1", "echo.text")
	result, err := tool.Execute(context.Background(), echoParams(t, "hi"))
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if result.IsError || result.Content != "hi" {
		t.Errorf("result = %+v", result)
	}

	audit := lastAudit(t, store, "agent:a1")
	if audit.Decision != models.DecisionAllow || audit.Reason != policy.ToolInvokedReason("echo.text") {
		t.Errorf("audit = %+v", audit)
	}
}

func TestGovernedToolDeniedUnknownAgent(t *testing.T) {
	now := time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)
	registry, store := newTestRegistry(t, now)

	tool := findTool(t, registry, "agent:ghost", "echo.text")
	result, err := tool.Execute(context.Background(), echoParams(t, "hi"))
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !result.IsError {
		t.Fatalf("result = %+v, want error result", result)
	}

	audit := lastAudit(t, store, "agent:ghost")
	if audit.Decision != models.DecisionDeny || audit.Reason != policy.ToolPolicyDeniedReason("echo.text") {
		t.Errorf("audit = %+v", audit)
	}
}

func TestGovernedToolRequiresApproval(t *testing.T) {
	now := time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)
	registry, store := newTestRegistry(t, now)
	seedToolAgent(t, store, "agent:a1", models.PermissionRestrictive)

	tool := findTool(t, registry, "agent:a1", "echo.text")
	result, err := tool.Execute(context.Background(), echoParams(t, "hi"))
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !result.IsError {
		t.Fatalf("result = %+v, want approval error result", result)
	}

	audit := lastAudit(t, store, "agent:a1")
	if audit.Decision != models.DecisionRequireApproval || audit.Reason != policy.ToolApprovalReason("echo.text") {
		t.Errorf("audit = %+v", audit)
	}
}

func TestGovernedToolQuotaExhausted(t *testing.T) {
	now := time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)
	registry, store := newTestRegistry(t, now)
	seedToolAgent(t, store, "agent:a1", models.PermissionStandard)

	// Simulate a day's worth of successful invocations: quota is derived from
	// invocation audits since UTC midnight.
	ctx := context.Background()
	for i := 0; i < 200; i++ {
		if err := store.WriteAudit(ctx, &models.AuditEntry{
			AuditEntryID: models.NewAuditID(),
			AgentID:      "agent:a1",
			Decision:     models.DecisionAllow,
			Reason:       policy.ToolInvokedReason("echo.text"),
			CreatedAt:    now.Add(-time.Hour),
		}); err != nil {
			t.Fatalf("seed audit %d: %v", i, err)
		}
	}

	tool := findTool(t, registry, "agent:a1", "echo.text")
	result, err := tool.Execute(ctx, echoParams(t, "hi"))
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !result.IsError || result.Content != "tool quota exceeded" {
		t.Fatalf("result = %+v, want quota error result", result)
	}
	audit := lastAudit(t, store, "agent:a1")
	if audit.Decision != models.DecisionDeny || audit.Reason != policy.ToolQuotaExceededReason("echo.text") {
		t.Errorf("audit = %+v", audit)
	}

	// Other tools are counted independently.
	other := findTool(t, registry, "agent:a1", "math.calculate")
	params, _ := json.Marshal(map[string]string{"expression": "1+1"})
	result, err = other.Execute(ctx, params)
	if err != nil {
		t.Fatalf("execute other: %v", err)
	}
	if result.IsError {
		t.Errorf("other tool result = %+v", result)
	}
}

func TestGovernedToolRejectsBadParams(t *testing.T) {
	now := time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)
	registry, store := newTestRegistry(t, now)
	seedToolAgent(t, store, "agent:a1", models.PermissionStandard)

	tool := findTool(t, registry, "agent:a1", "echo.text")
	result, err := tool.Execute(context.Background(), json.RawMessage(`{"bogus":1}`))
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !result.IsError {
		t.Fatalf("result = %+v, want schema error result", result)
	}
	// Validation failures never reach the audit log.
	audits, err := store.ListAudits(context.Background(), "agent:a1")
	if err != nil {
		t.Fatalf("list audits: %v", err)
	}
	if len(audits) != 0 {
		t.Errorf("audits = %d, want 0", len(audits))
	}
}
