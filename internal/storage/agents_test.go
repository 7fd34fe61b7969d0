package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stewardhq/steward/pkg/models"
)

func TestConsumeTokenBudget(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := mustTime(t, "2026-01-10T09:00:00Z")

	if err := store.UpsertAgentState(ctx, &models.AgentState{
		AgentID:        "agent:a1",
		PermissionMode: models.PermissionStandard,
		TokenBudget:    200,
		QuotaPeriod:    models.QuotaDaily,
	}); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	if err := store.ConsumeTokenBudget(ctx, "agent:a1", 50, now); err != nil {
		t.Fatalf("consume 50: %v", err)
	}
	state, err := store.GetAgentState(ctx, "agent:a1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if state.TokensConsumed != 50 {
		t.Errorf("consumed = %d, want 50", state.TokensConsumed)
	}

	err = store.ConsumeTokenBudget(ctx, "agent:a1", 200, now)
	var budgetErr *models.TokenBudgetExceededError
	if !errors.As(err, &budgetErr) {
		t.Fatalf("want TokenBudgetExceededError, got %v", err)
	}
	if budgetErr.Requested != 200 || budgetErr.Remaining != 150 {
		t.Errorf("error fields = %+v, want requested 200 remaining 150", budgetErr)
	}

	// Failed charge must not change state.
	state, err = store.GetAgentState(ctx, "agent:a1")
	if err != nil {
		t.Fatalf("get after failure: %v", err)
	}
	if state.TokensConsumed != 50 {
		t.Errorf("consumed after failed charge = %d, want 50", state.TokensConsumed)
	}
}

func TestConsumeTokenBudgetResetBoundary(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	resetAt := mustTime(t, "2026-01-10T00:00:00Z")

	if err := store.UpsertAgentState(ctx, &models.AgentState{
		AgentID:        "agent:a2",
		PermissionMode: models.PermissionStandard,
		TokenBudget:    100,
		QuotaPeriod:    models.QuotaDaily,
		TokensConsumed: 95,
		BudgetResetAt:  &resetAt,
	}); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	// Three days past the boundary: consumption zeroes, boundary lands ahead.
	now := mustTime(t, "2026-01-13T08:00:00Z")
	if err := store.ConsumeTokenBudget(ctx, "agent:a2", 80, now); err != nil {
		t.Fatalf("consume after reset: %v", err)
	}
	state, err := store.GetAgentState(ctx, "agent:a2")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if state.TokensConsumed != 80 {
		t.Errorf("consumed = %d, want 80", state.TokensConsumed)
	}
	if state.BudgetResetAt == nil || !state.BudgetResetAt.After(now) {
		t.Errorf("reset boundary = %v, want after %v", state.BudgetResetAt, now)
	}
	want := mustTime(t, "2026-01-14T00:00:00Z")
	if !state.BudgetResetAt.Equal(want) {
		t.Errorf("reset boundary = %v, want %v", state.BudgetResetAt, want)
	}
}

func TestConsumeTokenBudgetUnknownAgent(t *testing.T) {
	store := newTestStore(t)
	if err := store.ConsumeTokenBudget(context.Background(), "agent:missing", 1, time.Now()); err == nil {
		t.Fatal("want error for unknown agent")
	}
}
