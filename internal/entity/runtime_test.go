package entity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stewardhq/steward/internal/storage"
	"github.com/stewardhq/steward/pkg/models"
)

// memDedup is an in-memory DedupStore with first-write-wins semantics.
type memDedup struct {
	entries map[string]*storage.JournalEntry
}

func newMemDedup() *memDedup {
	return &memDedup{entries: make(map[string]*storage.JournalEntry)}
}

func (d *memDedup) GetJournalEntry(_ context.Context, executionID, activityName, idempotencyKey string) (*storage.JournalEntry, error) {
	return d.entries[executionID+"|"+activityName+"|"+idempotencyKey], nil
}

func (d *memDedup) RecordJournalEntry(_ context.Context, entry *storage.JournalEntry) error {
	key := entry.ExecutionID + "|" + entry.ActivityName + "|" + entry.IdempotencyKey
	if _, ok := d.entries[key]; !ok {
		d.entries[key] = entry
	}
	return nil
}

// countingHandler replies with an invocation counter so tests can tell a fresh
// run from a replayed reply.
type countingHandler struct {
	calls atomic.Int32
}

func (h *countingHandler) Invoke(_ context.Context, method string, _ []byte) ([]byte, error) {
	n := h.calls.Add(1)
	if method == "fail" {
		return nil, &models.ChannelNotFoundError{ChannelID: "c1"}
	}
	return []byte(fmt.Sprintf(`{"call":%d}`, n)), nil
}

func (h *countingHandler) InvokeStream(_ context.Context, _ string, _ []byte, sink *Sink) error {
	for i := 0; i < 3; i++ {
		if err := sink.Send(map[string]int{"item": i}); err != nil {
			return err
		}
	}
	return nil
}

// blockingHandler holds the entity loop until released.
type blockingHandler struct {
	entered  chan struct{}
	released chan struct{}
}

func (h *blockingHandler) Invoke(ctx context.Context, _ string, _ []byte) ([]byte, error) {
	h.entered <- struct{}{}
	select {
	case <-h.released:
		return []byte(`{}`), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (h *blockingHandler) InvokeStream(ctx context.Context, _ string, _ []byte, sink *Sink) error {
	h.entered <- struct{}{}
	select {
	case <-h.released:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func TestCall(t *testing.T) {
	runtime := NewRuntime(newMemDedup())
	handler := &countingHandler{}
	runtime.Register("thing", func(key string) Handler { return handler })

	ref := Ref{Type: "thing", Key: "k1"}
	ctx := context.Background()
	for i := 1; i <= 2; i++ {
		payload, err := runtime.Call(ctx, ref, "do", nil)
		if err != nil {
			t.Fatalf("call %d: %v", i, err)
		}
		want := fmt.Sprintf(`{"call":%d}`, i)
		if string(payload) != want {
			t.Errorf("call %d reply = %s, want %s", i, payload, want)
		}
	}
}

func TestCallUnregisteredType(t *testing.T) {
	runtime := NewRuntime(newMemDedup())
	if _, err := runtime.Call(context.Background(), Ref{Type: "ghost", Key: "k"}, "do", nil); err == nil {
		t.Fatal("want error for unregistered entity type")
	}
}

func TestCallPersistedDedup(t *testing.T) {
	runtime := NewRuntime(newMemDedup())
	handler := &countingHandler{}
	runtime.Register("thing", func(key string) Handler { return handler })

	ref := Ref{Type: "thing", Key: "k1"}
	ctx := context.Background()

	first, err := runtime.CallPersisted(ctx, ref, "create", "pk-1", nil)
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	// Same primary key replays the recorded reply; the handler does not run.
	second, err := runtime.CallPersisted(ctx, ref, "create", "pk-1", nil)
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	if string(first) != string(second) {
		t.Errorf("replies differ: %s vs %s", first, second)
	}
	if n := handler.calls.Load(); n != 1 {
		t.Errorf("handler ran %d times, want 1", n)
	}

	// A different primary key is a fresh call.
	third, err := runtime.CallPersisted(ctx, ref, "create", "pk-2", nil)
	if err != nil {
		t.Fatalf("third: %v", err)
	}
	if string(third) == string(first) {
		t.Errorf("distinct key replayed old reply: %s", third)
	}
}

func TestCallPersistedReplaysTypedError(t *testing.T) {
	runtime := NewRuntime(newMemDedup())
	handler := &countingHandler{}
	runtime.Register("thing", func(key string) Handler { return handler })

	ref := Ref{Type: "thing", Key: "k1"}
	ctx := context.Background()
	for i := 0; i < 2; i++ {
		_, err := runtime.CallPersisted(ctx, ref, "fail", "pk-1", nil)
		var notFound *models.ChannelNotFoundError
		if !errors.As(err, &notFound) {
			t.Fatalf("run %d: want ChannelNotFoundError, got %v", i, err)
		}
	}
	if n := handler.calls.Load(); n != 1 {
		t.Errorf("handler ran %d times, want 1", n)
	}
}

func TestStream(t *testing.T) {
	runtime := NewRuntime(newMemDedup())
	runtime.Register("thing", func(key string) Handler { return &countingHandler{} })

	stream, err := runtime.Stream(context.Background(), Ref{Type: "thing", Key: "k1"}, "emit", "", nil)
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	var got []int
	for item := range stream {
		if item.Err != nil {
			t.Fatalf("stream item error: %v", item.Err)
		}
		var v struct {
			Item int `json:"item"`
		}
		if err := json.Unmarshal(item.Value, &v); err != nil {
			t.Fatalf("unmarshal item: %v", err)
		}
		got = append(got, v.Item)
	}
	if len(got) != 3 || got[0] != 0 || got[2] != 2 {
		t.Errorf("items = %v, want [0 1 2]", got)
	}
}

func TestStreamKeyGuard(t *testing.T) {
	runtime := NewRuntime(newMemDedup())
	handler := &blockingHandler{entered: make(chan struct{}, 1), released: make(chan struct{})}
	runtime.Register("thing", func(key string) Handler { return handler })

	ref := Ref{Type: "thing", Key: "k1"}
	ctx := context.Background()

	first, err := runtime.Stream(ctx, ref, "work", "turn:t1", nil)
	if err != nil {
		t.Fatalf("first stream: %v", err)
	}
	select {
	case <-handler.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("handler never started")
	}

	// Same key while the first is live must be rejected.
	_, err = runtime.Stream(ctx, ref, "work", "turn:t1", nil)
	var already *AlreadyProcessingError
	if !errors.As(err, &already) {
		t.Fatalf("want AlreadyProcessingError, got %v", err)
	}
	if already.MessageKey != "turn:t1" {
		t.Errorf("message key = %s", already.MessageKey)
	}

	close(handler.released)
	for range first {
	}

	// After the first stream finishes the key is free again.
	handler.released = make(chan struct{})
	close(handler.released)
	second, err := runtime.Stream(ctx, ref, "work", "turn:t1", nil)
	if err != nil {
		t.Fatalf("stream after release: %v", err)
	}
	<-handler.entered
	for range second {
	}
}

func TestMailboxFull(t *testing.T) {
	runtime := NewRuntime(newMemDedup(), WithMailboxSize(1))
	handler := &blockingHandler{entered: make(chan struct{}, 4), released: make(chan struct{})}
	runtime.Register("thing", func(key string) Handler { return handler })

	ref := Ref{Type: "thing", Key: "k1"}
	ctx := context.Background()

	// First call occupies the loop, second fills the single mailbox slot.
	done := make(chan error, 2)
	go func() {
		_, err := runtime.Call(ctx, ref, "work", nil)
		done <- err
	}()
	select {
	case <-handler.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("first call never started")
	}
	go func() {
		_, err := runtime.Call(ctx, ref, "work", nil)
		done <- err
	}()

	// Wait for the queued call to take the single mailbox slot.
	runtime.mu.Lock()
	inst := runtime.instances[ref]
	runtime.mu.Unlock()
	deadline := time.Now().Add(2 * time.Second)
	for len(inst.mailbox) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("second call never reached the mailbox")
		}
		time.Sleep(5 * time.Millisecond)
	}

	_, err := runtime.Call(ctx, ref, "work", nil)
	var full *MailboxFullError
	if !errors.As(err, &full) {
		t.Fatalf("want MailboxFullError, got %v", err)
	}
	if full.EntityType != "thing" || full.EntityKey != "k1" {
		t.Errorf("error fields = %+v", full)
	}

	close(handler.released)
	for i := 0; i < 2; i++ {
		if err := <-done; err != nil {
			t.Fatalf("blocked call %d: %v", i, err)
		}
	}
}
