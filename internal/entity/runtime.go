// Package entity is an actor-style runtime: each live entity is identified by
// (type, key), owns one bounded mailbox and one processing goroutine, and
// handles its messages strictly one at a time. Mutating calls can be
// persisted: their replies are recorded under a caller-derived primary key so
// a repeat of the same call returns the first reply without re-running the
// handler.
package entity

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/stewardhq/steward/internal/storage"
)

// Handler processes messages for one entity instance. Invocations on the
// same instance are serialized by the runtime.
type Handler interface {
	Invoke(ctx context.Context, method string, payload []byte) ([]byte, error)
	InvokeStream(ctx context.Context, method string, payload []byte, sink *Sink) error
}

// Factory builds the handler for an entity key the first time a message
// addresses it.
type Factory func(key string) Handler

// DedupStore persists replies of persisted RPCs. The workflow journal serves
// here: execution id is the entity address, activity name the method, and
// idempotency key the message's primary key.
type DedupStore interface {
	GetJournalEntry(ctx context.Context, executionID, activityName, idempotencyKey string) (*storage.JournalEntry, error)
	RecordJournalEntry(ctx context.Context, entry *storage.JournalEntry) error
}

// Ref addresses one entity.
type Ref struct {
	Type string
	Key  string
}

func (r Ref) String() string { return r.Type + "/" + r.Key }

// messageState tracks a message through the mailbox.
type messageState int32

const (
	stateEnqueued messageState = iota
	stateInFlight
	stateCompleted
	stateFailed
	stateCancelled
)

type messageKind int

const (
	kindCall messageKind = iota
	kindPersistedCall
	kindStreamCall
)

type callReply struct {
	payload []byte
	err     error
}

type envelope struct {
	kind       messageKind
	method     string
	payload    []byte
	primaryKey string
	streamKey  string
	seq        uint64
	enqueuedAt time.Time
	state      atomic.Int32

	ctx    context.Context
	reply  chan callReply
	stream chan StreamItem
}

// Runtime is the process-wide entity directory. Create one at startup and
// pass it explicitly; entities are spun up lazily and stay alive for the
// process lifetime.
type Runtime struct {
	mailboxSize int
	dedup       DedupStore
	logger      *slog.Logger
	seq         atomic.Uint64

	mu        sync.Mutex
	factories map[string]Factory
	instances map[Ref]*instance
}

// Option configures the runtime.
type Option func(*Runtime)

// WithMailboxSize bounds each entity's mailbox.
func WithMailboxSize(n int) Option {
	return func(r *Runtime) {
		if n > 0 {
			r.mailboxSize = n
		}
	}
}

// WithLogger configures the runtime logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runtime) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewRuntime creates an entity runtime backed by the given dedup store.
func NewRuntime(dedup DedupStore, opts ...Option) *Runtime {
	r := &Runtime{
		mailboxSize: 64,
		dedup:       dedup,
		logger:      slog.Default().With("component", "entity"),
		factories:   make(map[string]Factory),
		instances:   make(map[Ref]*instance),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register installs the handler factory for an entity type. Must be called
// before any message addresses that type.
func (r *Runtime) Register(entityType string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[entityType] = factory
}

type instance struct {
	ref     Ref
	handler Handler
	mailbox chan *envelope
	runtime *Runtime

	mu           sync.Mutex
	activeStream map[string]bool
}

func (r *Runtime) instanceFor(ref Ref) (*instance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if inst, ok := r.instances[ref]; ok {
		return inst, nil
	}
	factory, ok := r.factories[ref.Type]
	if !ok {
		return nil, fmt.Errorf("no handler registered for entity type %q", ref.Type)
	}
	inst := &instance{
		ref:          ref,
		handler:      factory(ref.Key),
		mailbox:      make(chan *envelope, r.mailboxSize),
		runtime:      r,
		activeStream: make(map[string]bool),
	}
	r.instances[ref] = inst
	go inst.run()
	return inst, nil
}

// Call sends a non-persisted request and waits for the reply.
func (r *Runtime) Call(ctx context.Context, ref Ref, method string, payload []byte) ([]byte, error) {
	env := &envelope{
		kind:    kindCall,
		method:  method,
		payload: payload,
		ctx:     ctx,
		reply:   make(chan callReply, 1),
	}
	if err := r.enqueue(ref, env); err != nil {
		return nil, err
	}
	select {
	case rep := <-env.reply:
		return rep.payload, rep.err
	case <-ctx.Done():
		env.state.Store(int32(stateCancelled))
		return nil, ctx.Err()
	}
}

// CallPersisted sends a request whose reply is recorded under primaryKey. A
// repeat with the same primary key returns the recorded reply; a duplicate
// queued behind an in-flight first call waits and receives the same result.
func (r *Runtime) CallPersisted(ctx context.Context, ref Ref, method, primaryKey string, payload []byte) ([]byte, error) {
	// Fast path: the reply may already be durable.
	if entry, err := r.dedup.GetJournalEntry(ctx, dedupExecutionID(ref), method, primaryKey); err == nil && entry != nil {
		return replayDedup(entry)
	}
	env := &envelope{
		kind:       kindPersistedCall,
		method:     method,
		payload:    payload,
		primaryKey: primaryKey,
		ctx:        ctx,
		reply:      make(chan callReply, 1),
	}
	if err := r.enqueue(ref, env); err != nil {
		return nil, err
	}
	select {
	case rep := <-env.reply:
		return rep.payload, rep.err
	case <-ctx.Done():
		env.state.Store(int32(stateCancelled))
		return nil, ctx.Err()
	}
}

// Stream sends a streaming request. Items arrive on the returned channel;
// the terminal item carries the handler error, if any, and the channel is
// closed afterwards. streamKey guards against concurrent duplicates: a second
// stream with the same non-empty key fails with AlreadyProcessingError while
// the first is live.
func (r *Runtime) Stream(ctx context.Context, ref Ref, method, streamKey string, payload []byte) (<-chan StreamItem, error) {
	inst, err := r.instanceFor(ref)
	if err != nil {
		return nil, err
	}
	if streamKey != "" {
		inst.mu.Lock()
		if inst.activeStream[streamKey] {
			inst.mu.Unlock()
			return nil, &AlreadyProcessingError{EntityType: ref.Type, EntityKey: ref.Key, MessageKey: streamKey}
		}
		inst.activeStream[streamKey] = true
		inst.mu.Unlock()
	}

	env := &envelope{
		kind:      kindStreamCall,
		method:    method,
		payload:   payload,
		streamKey: streamKey,
		ctx:       ctx,
		stream:    make(chan StreamItem),
	}
	if err := inst.enqueue(env); err != nil {
		if streamKey != "" {
			inst.mu.Lock()
			delete(inst.activeStream, streamKey)
			inst.mu.Unlock()
		}
		return nil, err
	}
	return env.stream, nil
}

func (r *Runtime) enqueue(ref Ref, env *envelope) error {
	inst, err := r.instanceFor(ref)
	if err != nil {
		return err
	}
	return inst.enqueue(env)
}

func (inst *instance) enqueue(env *envelope) error {
	env.seq = inst.runtime.seq.Add(1)
	env.enqueuedAt = time.Now()
	env.state.Store(int32(stateEnqueued))
	select {
	case inst.mailbox <- env:
		return nil
	default:
		return &MailboxFullError{EntityType: inst.ref.Type, EntityKey: inst.ref.Key}
	}
}

// run is the single-writer loop: messages are handled one at a time in
// enqueue order, including streaming ones, whose handlers hold the loop until
// the stream closes or is cancelled.
func (inst *instance) run() {
	logger := inst.runtime.logger.With("entity", inst.ref.String())
	for env := range inst.mailbox {
		if env.state.Load() == int32(stateCancelled) || env.ctx.Err() != nil {
			inst.finishCancelled(env)
			continue
		}
		env.state.Store(int32(stateInFlight))
		switch env.kind {
		case kindCall:
			inst.handleCall(env)
		case kindPersistedCall:
			inst.handlePersistedCall(env)
		case kindStreamCall:
			inst.handleStream(env)
		}
		if env.state.Load() == int32(stateFailed) {
			logger.Debug("message failed", "method", env.method, "seq", env.seq)
		}
	}
}

func (inst *instance) finishCancelled(env *envelope) {
	env.state.Store(int32(stateCancelled))
	switch env.kind {
	case kindStreamCall:
		inst.releaseStreamKey(env.streamKey)
		close(env.stream)
	default:
		env.reply <- callReply{err: env.ctx.Err()}
	}
}

func (inst *instance) handleCall(env *envelope) {
	payload, err := inst.handler.Invoke(env.ctx, env.method, env.payload)
	inst.reply(env, payload, err)
}

func (inst *instance) handlePersistedCall(env *envelope) {
	ctx := env.ctx
	executionID := dedupExecutionID(inst.ref)
	if entry, err := inst.runtime.dedup.GetJournalEntry(ctx, executionID, env.method, env.primaryKey); err == nil && entry != nil {
		payload, rerr := replayDedup(entry)
		inst.reply(env, payload, rerr)
		return
	}

	payload, err := inst.handler.Invoke(ctx, env.method, env.payload)
	record := &storage.JournalEntry{
		ExecutionID:    executionID,
		ActivityName:   env.method,
		IdempotencyKey: env.primaryKey,
	}
	if err != nil {
		record.Status = storage.JournalFailed
		record.SerializedError = encodeDedupError(err)
	} else {
		record.Status = storage.JournalComplete
		record.SerializedResult = payload
	}
	if recErr := inst.runtime.dedup.RecordJournalEntry(ctx, record); recErr != nil {
		inst.runtime.logger.Warn("persist rpc reply failed",
			"entity", inst.ref.String(), "method", env.method, "error", recErr)
	}
	inst.reply(env, payload, err)
}

func (inst *instance) handleStream(env *envelope) {
	sink := &Sink{ctx: env.ctx, out: env.stream}
	err := inst.handler.InvokeStream(env.ctx, env.method, env.payload, sink)
	if err != nil {
		env.state.Store(int32(stateFailed))
		select {
		case env.stream <- StreamItem{Err: err}:
		case <-env.ctx.Done():
		}
	} else {
		env.state.Store(int32(stateCompleted))
	}
	inst.releaseStreamKey(env.streamKey)
	close(env.stream)
}

func (inst *instance) releaseStreamKey(key string) {
	if key == "" {
		return
	}
	inst.mu.Lock()
	delete(inst.activeStream, key)
	inst.mu.Unlock()
}

func (inst *instance) reply(env *envelope, payload []byte, err error) {
	if err != nil {
		env.state.Store(int32(stateFailed))
	} else {
		env.state.Store(int32(stateCompleted))
	}
	env.reply <- callReply{payload: payload, err: err}
}

func dedupExecutionID(ref Ref) string {
	return "entity:" + ref.Type + ":" + ref.Key
}
