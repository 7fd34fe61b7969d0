package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/stewardhq/steward/pkg/models"
)

const defaultMemoryPageSize = 50

// SearchMemory runs a substring search over the agent's memory items with
// cursor pagination. TotalCount is the full match count regardless of paging.
func (s *Store) SearchMemory(ctx context.Context, agentID string, query models.MemoryQuery) (*models.MemoryPage, error) {
	limit := query.Limit
	if limit <= 0 {
		limit = defaultMemoryPageSize
	}

	where := []string{"agent_id = ?"}
	args := []any{agentID}
	if query.Text != "" {
		where = append(where, "content LIKE ? ESCAPE '\\'")
		args = append(args, "%"+escapeLike(query.Text)+"%")
	}
	if query.Tier != "" {
		where = append(where, "tier = ?")
		args = append(args, string(query.Tier))
	}
	if query.Scope != "" {
		where = append(where, "scope = ?")
		args = append(args, string(query.Scope))
	}
	whereClause := strings.Join(where, " AND ")

	var total int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM memory_items WHERE `+whereClause, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("count memory items: %w", err)
	}

	order := "created_at DESC, rowid DESC"
	pageCond := "(created_at < ? OR (created_at = ? AND rowid < ?))"
	if query.Sort == models.SortCreatedAsc {
		order = "created_at ASC, rowid ASC"
		pageCond = "(created_at > ? OR (created_at = ? AND rowid > ?))"
	}

	pageArgs := args
	if c := decodeCursor(query.Cursor); c != nil {
		whereClause += " AND " + pageCond
		ts := formatTime(c.CreatedAt)
		pageArgs = append(pageArgs, ts, ts, c.RowID)
	}

	// One extra row decides whether another page exists.
	pageArgs = append(pageArgs, limit+1)
	rows, err := s.db.QueryContext(ctx, `
		SELECT rowid, memory_item_id, agent_id, tier, scope, source, content, metadata_json,
			generated_by_turn_id, session_id, sensitivity, created_at, updated_at
		FROM memory_items WHERE `+whereClause+` ORDER BY `+order+` LIMIT ?`, pageArgs...)
	if err != nil {
		return nil, fmt.Errorf("search memory: %w", err)
	}
	defer rows.Close()

	var (
		items  []*models.MemoryItem
		rowIDs []int64
	)
	for rows.Next() {
		var (
			rowid     int64
			item      models.MemoryItem
			tier      string
			scope     string
			source    string
			sens      string
			createdAt string
			updatedAt string
		)
		if err := rows.Scan(&rowid, &item.MemoryItemID, &item.AgentID, &tier, &scope, &source,
			&item.Content, &item.MetadataJSON, &item.GeneratedByTurnID, &item.SessionID,
			&sens, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan memory item: %w", err)
		}
		item.Tier = models.MemoryTier(tier)
		item.Scope = models.MemoryScope(scope)
		item.Source = models.MemorySource(source)
		item.Sensitivity = models.Sensitivity(sens)
		if item.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, fmt.Errorf("parse memory created_at: %w", err)
		}
		if item.UpdatedAt, err = parseTime(updatedAt); err != nil {
			return nil, fmt.Errorf("parse memory updated_at: %w", err)
		}
		items = append(items, &item)
		rowIDs = append(rowIDs, rowid)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	page := &models.MemoryPage{TotalCount: total}
	if len(items) > limit {
		items = items[:limit]
		last := items[len(items)-1]
		page.Cursor = encodeCursor(memoryCursor{CreatedAt: last.CreatedAt, RowID: rowIDs[limit-1]})
	}
	page.Items = items
	return page, nil
}

// EncodeMemory stores the given items for the agent and returns their ids.
// Items without an id are minted one; timestamps default to now.
func (s *Store) EncodeMemory(ctx context.Context, agentID string, items []*models.MemoryItem, now time.Time) ([]string, error) {
	ids := make([]string, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		if item.MemoryItemID == "" {
			item.MemoryItemID = models.NewMemoryID()
		}
		item.AgentID = agentID
		if item.CreatedAt.IsZero() {
			item.CreatedAt = now
		}
		item.UpdatedAt = now
		if item.Sensitivity == "" {
			item.Sensitivity = models.SensitivityInternal
		}
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO memory_items (memory_item_id, agent_id, tier, scope, source, content,
				metadata_json, generated_by_turn_id, session_id, sensitivity, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(memory_item_id) DO UPDATE SET
				content       = excluded.content,
				metadata_json = excluded.metadata_json,
				updated_at    = excluded.updated_at`,
			item.MemoryItemID, item.AgentID, string(item.Tier), string(item.Scope),
			string(item.Source), item.Content, item.MetadataJSON, item.GeneratedByTurnID,
			item.SessionID, string(item.Sensitivity), formatTime(item.CreatedAt), formatTime(item.UpdatedAt))
		if err != nil {
			return ids, fmt.Errorf("encode memory item %s: %w", item.MemoryItemID, err)
		}
		ids = append(ids, item.MemoryItemID)
	}
	return ids, nil
}

// ForgetMemory deletes the agent's memory items created before cutoff and
// returns the deleted count.
func (s *Store) ForgetMemory(ctx context.Context, agentID string, cutoff time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM memory_items WHERE agent_id = ? AND created_at < ?`,
		agentID, formatTime(cutoff))
	if err != nil {
		return 0, fmt.Errorf("forget memory for %s: %w", agentID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `%`, `\%`)
	s = strings.ReplaceAll(s, `_`, `\_`)
	return s
}
