package tools

import (
	"context"
	"encoding/json"
	"time"
)

// clockTool reports the current time.
type clockTool struct {
	now func() time.Time
}

func (t *clockTool) Name() string { return string(KindClockNow) }

func (t *clockTool) Description() string {
	return "Returns the current date and time in ISO-8601 format. Takes no parameters."
}

func (t *clockTool) Schema() json.RawMessage {
	return json.RawMessage(`{"type":"object","properties":{},"additionalProperties":false}`)
}

func (t *clockTool) Execute(ctx context.Context, params json.RawMessage) (*Result, error) {
	now := time.Now
	if t.now != nil {
		now = t.now
	}
	return &Result{Content: now().UTC().Format(time.RFC3339)}, nil
}
