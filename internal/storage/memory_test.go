package storage

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stewardhq/steward/pkg/models"
)

func seedMemory(t *testing.T, store *Store, agentID string, n int, base time.Time) {
	t.Helper()
	items := make([]*models.MemoryItem, n)
	for i := 0; i < n; i++ {
		items[i] = &models.MemoryItem{
			MemoryItemID: fmt.Sprintf("mem-%03d", i),
			Tier:         models.TierSemantic,
			Scope:        models.ScopeGlobal,
			Source:       models.SourceUser,
			Content:      fmt.Sprintf("note %03d", i),
			CreatedAt:    base.Add(time.Duration(i) * time.Minute),
		}
	}
	if _, err := store.EncodeMemory(context.Background(), agentID, items, base); err != nil {
		t.Fatalf("encode: %v", err)
	}
}

func TestSearchMemoryPagination(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	base := mustTime(t, "2026-05-01T00:00:00Z")
	seedMemory(t, store, "agent:a1", 7, base)

	// Walk ascending in pages of 3: every item exactly once, stable total.
	var seen []string
	query := models.MemoryQuery{Sort: models.SortCreatedAsc, Limit: 3}
	for pages := 0; ; pages++ {
		if pages > 5 {
			t.Fatal("pagination did not terminate")
		}
		page, err := store.SearchMemory(ctx, "agent:a1", query)
		if err != nil {
			t.Fatalf("search: %v", err)
		}
		if page.TotalCount != 7 {
			t.Errorf("total = %d, want 7", page.TotalCount)
		}
		for _, item := range page.Items {
			seen = append(seen, item.MemoryItemID)
		}
		if page.Cursor == "" {
			break
		}
		query.Cursor = page.Cursor
	}
	if len(seen) != 7 {
		t.Fatalf("walked %d items, want 7: %v", len(seen), seen)
	}
	for i, id := range seen {
		want := fmt.Sprintf("mem-%03d", i)
		if id != want {
			t.Errorf("seen[%d] = %s, want %s", i, id, want)
		}
	}
}

func TestSearchMemoryDefaultSortNewestFirst(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedMemory(t, store, "agent:a1", 3, mustTime(t, "2026-05-01T00:00:00Z"))

	page, err := store.SearchMemory(ctx, "agent:a1", models.MemoryQuery{})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(page.Items) != 3 {
		t.Fatalf("len(items) = %d, want 3", len(page.Items))
	}
	if page.Items[0].MemoryItemID != "mem-002" || page.Items[2].MemoryItemID != "mem-000" {
		t.Errorf("order = %s..%s, want newest first", page.Items[0].MemoryItemID, page.Items[2].MemoryItemID)
	}
	if page.Cursor != "" {
		t.Errorf("cursor = %q, want empty on single page", page.Cursor)
	}
}

func TestSearchMemoryFilters(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := mustTime(t, "2026-05-01T00:00:00Z")

	items := []*models.MemoryItem{
		{MemoryItemID: "m1", Tier: models.TierSemantic, Scope: models.ScopeGlobal, Source: models.SourceUser, Content: "likes espresso", CreatedAt: now},
		{MemoryItemID: "m2", Tier: models.TierEpisodic, Scope: models.ScopeSession, Source: models.SourceAgent, Content: "ordered espresso beans", CreatedAt: now},
		{MemoryItemID: "m3", Tier: models.TierSemantic, Scope: models.ScopeGlobal, Source: models.SourceUser, Content: "prefers 50% humidity", CreatedAt: now},
	}
	if _, err := store.EncodeMemory(ctx, "agent:a1", items, now); err != nil {
		t.Fatalf("encode: %v", err)
	}

	page, err := store.SearchMemory(ctx, "agent:a1", models.MemoryQuery{Text: "espresso", Tier: models.TierSemantic})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(page.Items) != 1 || page.Items[0].MemoryItemID != "m1" {
		t.Fatalf("items = %v", page.Items)
	}
	if page.TotalCount != 1 {
		t.Errorf("total = %d, want 1", page.TotalCount)
	}

	// LIKE metacharacters in the query are literal text.
	page, err = store.SearchMemory(ctx, "agent:a1", models.MemoryQuery{Text: "50%"})
	if err != nil {
		t.Fatalf("search literal: %v", err)
	}
	if len(page.Items) != 1 || page.Items[0].MemoryItemID != "m3" {
		t.Fatalf("literal match items = %v", page.Items)
	}
}

func TestSearchMemoryMalformedCursor(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedMemory(t, store, "agent:a1", 2, mustTime(t, "2026-05-01T00:00:00Z"))

	page, err := store.SearchMemory(ctx, "agent:a1", models.MemoryQuery{Cursor: "not-a-cursor"})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(page.Items) != 2 {
		t.Errorf("len(items) = %d, want full first page", len(page.Items))
	}
}

func TestForgetMemory(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	base := mustTime(t, "2026-05-01T00:00:00Z")
	seedMemory(t, store, "agent:a1", 5, base)

	deleted, err := store.ForgetMemory(ctx, "agent:a1", base.Add(3*time.Minute))
	if err != nil {
		t.Fatalf("forget: %v", err)
	}
	if deleted != 3 {
		t.Errorf("deleted = %d, want 3", deleted)
	}
	page, err := store.SearchMemory(ctx, "agent:a1", models.MemoryQuery{})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if page.TotalCount != 2 {
		t.Errorf("remaining = %d, want 2", page.TotalCount)
	}
}
