package tools

import (
	"context"
	"encoding/json"
)

// echoTool returns its input verbatim.
type echoTool struct{}

func (t *echoTool) Name() string { return string(KindEchoText) }

func (t *echoTool) Description() string {
	return "Returns the provided text verbatim."
}

func (t *echoTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"text": {"type": "string", "description": "Text to echo back"}
		},
		"required": ["text"],
		"additionalProperties": false
	}`)
}

func (t *echoTool) Execute(ctx context.Context, params json.RawMessage) (*Result, error) {
	var input struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return errorResult("invalid parameters: " + err.Error()), nil
	}
	return &Result{Content: input.Text}, nil
}
