package entity

import (
	"context"
	"encoding/json"
	"fmt"
)

// StreamItem is one element of a streaming reply: either a value or the
// terminal error. The producing runtime closes the channel after the last
// item.
type StreamItem struct {
	Value json.RawMessage
	Err   error
}

// Sink is handed to streaming handlers; values pushed here are shipped to the
// caller one at a time.
type Sink struct {
	ctx context.Context
	out chan<- StreamItem
}

// Send marshals v and ships it downstream, blocking until the consumer reads
// it or the stream is cancelled.
func (s *Sink) Send(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal stream value: %w", err)
	}
	select {
	case s.out <- StreamItem{Value: data}:
		return nil
	case <-s.ctx.Done():
		return s.ctx.Err()
	}
}

// Context returns the stream's cancellation context.
func (s *Sink) Context() context.Context { return s.ctx }
