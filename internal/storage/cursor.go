package storage

import (
	"encoding/base64"
	"encoding/json"
	"time"
)

// memoryCursor marks the position after the last row of a page. Ordering is
// (created_at, rowid) so ties on created_at still paginate deterministically.
type memoryCursor struct {
	CreatedAt time.Time `json:"created_at"`
	RowID     int64     `json:"rowid"`
}

func encodeCursor(c memoryCursor) string {
	data, err := json.Marshal(c)
	if err != nil {
		return ""
	}
	return base64.RawURLEncoding.EncodeToString(data)
}

// decodeCursor returns nil for empty or malformed cursors; callers treat nil
// as "start from the beginning".
func decodeCursor(s string) *memoryCursor {
	if s == "" {
		return nil
	}
	data, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return nil
	}
	var c memoryCursor
	if err := json.Unmarshal(data, &c); err != nil {
		return nil
	}
	if c.CreatedAt.IsZero() && c.RowID == 0 {
		return nil
	}
	return &c
}
