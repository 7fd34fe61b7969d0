package providers

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"
)

// StaticProvider is a deterministic offline backend: it replies with a canned
// acknowledgement of the last user message. Useful for local development
// without credentials and as the default in tests.
type StaticProvider struct {
	Prefix string
}

// NewStaticProvider creates a static provider.
func NewStaticProvider() *StaticProvider {
	return &StaticProvider{Prefix: "You said: "}
}

// Name identifies the provider.
func (p *StaticProvider) Name() string { return "static" }

// Complete echoes the last user message.
func (p *StaticProvider) Complete(ctx context.Context, req *Request) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var last string
	for _, msg := range req.Messages {
		if msg.Role == "user" && msg.Content != "" {
			last = msg.Content
		}
	}
	if last == "" {
		return nil, fmt.Errorf("static: no user message to answer")
	}
	text := p.Prefix + strings.TrimSpace(last)
	return &Response{
		Text:         text,
		Parts:        []Part{{Type: PartText, Text: text}},
		FinishReason: "stop",
		Usage: Usage{
			InputTokens:  utf8.RuneCountInString(last) / 4,
			OutputTokens: utf8.RuneCountInString(text) / 4,
		},
	}, nil
}
