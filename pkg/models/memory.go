package models

import "time"

// MemoryTier separates fact-like from event-like memory.
type MemoryTier string

const (
	TierSemantic MemoryTier = "semantic"
	TierEpisodic MemoryTier = "episodic"
)

// MemoryScope bounds where a memory item applies.
type MemoryScope string

const (
	ScopeSession MemoryScope = "session"
	ScopeProject MemoryScope = "project"
	ScopeGlobal  MemoryScope = "global"
)

// MemorySource records who produced a memory item.
type MemorySource string

const (
	SourceUser   MemorySource = "user"
	SourceSystem MemorySource = "system"
	SourceAgent  MemorySource = "agent"
)

// Sensitivity classifies how widely a memory item may be shared.
type Sensitivity string

const (
	SensitivityPublic       Sensitivity = "public"
	SensitivityInternal     Sensitivity = "internal"
	SensitivityConfidential Sensitivity = "confidential"
	SensitivityRestricted   Sensitivity = "restricted"
)

// MemoryItem is one stored memory row.
type MemoryItem struct {
	MemoryItemID      string       `json:"memory_item_id"`
	AgentID           string       `json:"agent_id"`
	Tier              MemoryTier   `json:"tier"`
	Scope             MemoryScope  `json:"scope"`
	Source            MemorySource `json:"source"`
	Content           string       `json:"content"`
	MetadataJSON      string       `json:"metadata_json,omitempty"`
	GeneratedByTurnID string       `json:"generated_by_turn_id,omitempty"`
	SessionID         string       `json:"session_id,omitempty"`
	Sensitivity       Sensitivity  `json:"sensitivity"`
	CreatedAt         time.Time    `json:"created_at"`
	UpdatedAt         time.Time    `json:"updated_at"`
}

// MemorySort orders search results.
type MemorySort string

const (
	SortCreatedDesc MemorySort = "created_desc"
	SortCreatedAsc  MemorySort = "created_asc"
)

// MemoryQuery is a substring search over an agent's memory.
type MemoryQuery struct {
	Text   string      `json:"text,omitempty"`
	Tier   MemoryTier  `json:"tier,omitempty"`
	Scope  MemoryScope `json:"scope,omitempty"`
	Sort   MemorySort  `json:"sort,omitempty"`
	Limit  int         `json:"limit,omitempty"`
	Cursor string      `json:"cursor,omitempty"`
}

// MemoryPage is one page of search results. Cursor is empty on the last page.
type MemoryPage struct {
	Items      []*MemoryItem `json:"items"`
	Cursor     string        `json:"cursor,omitempty"`
	TotalCount int           `json:"total_count"`
}
