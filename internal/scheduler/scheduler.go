// Package scheduler dispatches recurring background actions: it materializes
// due windows per schedule, enforces concurrency policy against an in-memory
// in-flight set, and records every execution durably.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/stewardhq/steward/pkg/models"
)

// Scheduler owns the in-flight ticket map and the replaced set. Both are
// process-local; the durable source of truth is the executions table.
type Scheduler struct {
	store    SchedulePort
	executor ActionExecutor
	logger   *slog.Logger
	now      func() time.Time

	mu       sync.Mutex
	inflight map[string]map[string]*Ticket // scheduleID -> executionID -> ticket
	replaced map[string]bool               // executionID -> replaced before completion

	wg sync.WaitGroup
}

// Option configures the scheduler.
type Option func(*Scheduler)

// WithLogger configures the scheduler logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithNow overrides the clock for tests.
func WithNow(now func() time.Time) Option {
	return func(s *Scheduler) {
		if now != nil {
			s.now = now
		}
	}
}

// New creates a scheduler. The executor may be nil when only claim/complete
// mechanics are exercised (tests); DispatchDue then records claims as failed.
func New(store SchedulePort, executor ActionExecutor, opts ...Option) *Scheduler {
	s := &Scheduler{
		store:    store,
		executor: executor,
		logger:   slog.Default().With("component", "scheduler"),
		now:      time.Now,
		inflight: make(map[string]map[string]*Ticket),
		replaced: make(map[string]bool),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Claim applies the schedule's concurrency policy to one due window and, if
// the window survives, installs a ticket. Checking the in-flight set,
// evaluating the policy, and installing the ticket happen atomically.
// Returns nil when the window was skipped; the skip is recorded durably.
func (s *Scheduler) Claim(ctx context.Context, rec *models.ScheduleRecord, dueAt time.Time, source models.TriggerSource) (*Ticket, error) {
	now := s.now()

	s.mu.Lock()
	existing := s.inflight[rec.ScheduleID]

	var replacedTickets []*Ticket
	switch {
	case len(existing) == 0:
		// Nothing in flight; claim unconditionally.
	case rec.Concurrency == models.ConcurrencyForbid:
		s.mu.Unlock()
		skip := &models.ScheduledExecutionRecord{
			ExecutionID:   models.NewExecutionID(),
			ScheduleID:    rec.ScheduleID,
			DueAt:         dueAt,
			TriggerSource: source,
			Outcome:       models.OutcomeSkipped,
			StartedAt:     now,
			SkipReason:    models.SkipConcurrencyForbid,
		}
		if err := s.store.RecordExecution(ctx, skip); err != nil {
			return nil, fmt.Errorf("record forbid skip: %w", err)
		}
		return nil, nil
	case rec.Concurrency == models.ConcurrencyReplace:
		for id, t := range existing {
			s.replaced[id] = true
			replacedTickets = append(replacedTickets, t)
			delete(existing, id)
		}
	}

	ticket := &Ticket{
		ExecutionID:   models.NewExecutionID(),
		ScheduleID:    rec.ScheduleID,
		DueAt:         dueAt,
		TriggerSource: source,
		StartedAt:     now,
		ActionRef:     rec.ActionRef,
	}
	if s.inflight[rec.ScheduleID] == nil {
		s.inflight[rec.ScheduleID] = make(map[string]*Ticket)
	}
	s.inflight[rec.ScheduleID][ticket.ExecutionID] = ticket
	s.mu.Unlock()

	for _, t := range replacedTickets {
		ended := now
		skip := &models.ScheduledExecutionRecord{
			ExecutionID:   t.ExecutionID,
			ScheduleID:    t.ScheduleID,
			DueAt:         t.DueAt,
			TriggerSource: t.TriggerSource,
			Outcome:       models.OutcomeSkipped,
			StartedAt:     t.StartedAt,
			EndedAt:       &ended,
			SkipReason:    models.SkipConcurrencyReplace,
		}
		if err := s.store.RecordExecution(ctx, skip); err != nil {
			s.logger.Error("record replace skip failed", "schedule_id", t.ScheduleID, "error", err)
		}
	}
	return ticket, nil
}

// CompleteExecution removes the ticket from the in-flight set and records the
// execution. Returns false without recording when the ticket was replaced or
// is not in flight.
func (s *Scheduler) CompleteExecution(ctx context.Context, ticket *Ticket, outcome models.ExecutionOutcome, endedAt time.Time) (bool, error) {
	if ticket == nil {
		return false, nil
	}
	s.mu.Lock()
	if s.replaced[ticket.ExecutionID] {
		delete(s.replaced, ticket.ExecutionID)
		s.mu.Unlock()
		return false, nil
	}
	tickets, ok := s.inflight[ticket.ScheduleID]
	if !ok || tickets[ticket.ExecutionID] == nil {
		s.mu.Unlock()
		return false, nil
	}
	delete(tickets, ticket.ExecutionID)
	if len(tickets) == 0 {
		delete(s.inflight, ticket.ScheduleID)
	}
	s.mu.Unlock()

	exec := &models.ScheduledExecutionRecord{
		ExecutionID:   ticket.ExecutionID,
		ScheduleID:    ticket.ScheduleID,
		DueAt:         ticket.DueAt,
		TriggerSource: ticket.TriggerSource,
		Outcome:       outcome,
		StartedAt:     ticket.StartedAt,
		EndedAt:       &endedAt,
	}
	if err := s.store.RecordExecution(ctx, exec); err != nil {
		return true, fmt.Errorf("record execution %s: %w", ticket.ExecutionID, err)
	}
	return true, nil
}

// InFlightCount returns how many tickets the schedule currently holds.
func (s *Scheduler) InFlightCount(scheduleID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.inflight[scheduleID])
}

// TriggerNow fires one manual execution of the schedule. Inactive schedules
// record a skip and return nil.
func (s *Scheduler) TriggerNow(ctx context.Context, scheduleID string) (*Ticket, error) {
	rec, err := s.store.GetSchedule(ctx, scheduleID)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, fmt.Errorf("unknown schedule %s", scheduleID)
	}
	now := s.now()
	if rec.Status != models.ScheduleActive {
		ended := now
		skip := &models.ScheduledExecutionRecord{
			ExecutionID:   models.NewExecutionID(),
			ScheduleID:    scheduleID,
			DueAt:         now,
			TriggerSource: models.SourceManual,
			Outcome:       models.OutcomeSkipped,
			StartedAt:     now,
			EndedAt:       &ended,
			SkipReason:    models.SkipManualTriggerInactive,
		}
		if err := s.store.RecordExecution(ctx, skip); err != nil {
			return nil, fmt.Errorf("record inactive skip: %w", err)
		}
		return nil, nil
	}

	ticket, err := s.Claim(ctx, rec, now, models.SourceManual)
	if err != nil || ticket == nil {
		return nil, err
	}
	s.runTicket(ctx, ticket)
	return ticket, nil
}

// DispatchDue materializes all due windows at now, sorts candidates by
// (dueAt, scheduleId), and claims and runs each surviving one.
func (s *Scheduler) DispatchDue(ctx context.Context, now time.Time) error {
	records, err := s.store.ListDueSchedules(ctx, now)
	if err != nil {
		return fmt.Errorf("list due schedules: %w", err)
	}

	type candidate struct {
		rec   *models.ScheduleRecord
		dueAt time.Time
	}
	var candidates []candidate
	for _, rec := range records {
		for _, w := range DueWindows(rec, now) {
			candidates = append(candidates, candidate{rec: rec, dueAt: w})
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		if !candidates[i].dueAt.Equal(candidates[j].dueAt) {
			return candidates[i].dueAt.Before(candidates[j].dueAt)
		}
		return candidates[i].rec.ScheduleID < candidates[j].rec.ScheduleID
	})

	for _, c := range candidates {
		ticket, err := s.Claim(ctx, c.rec, c.dueAt, triggerSourceFor(c.rec.Trigger))
		if err != nil {
			s.logger.Error("claim failed", "schedule_id", c.rec.ScheduleID, "error", err)
			continue
		}
		if ticket == nil {
			continue
		}
		s.runTicket(ctx, ticket)
	}
	return nil
}

// runTicket executes the ticket's action asynchronously and reports completion.
// The action outlives the dispatch deadline, so it runs detached from the
// tick's cancellation.
func (s *Scheduler) runTicket(ctx context.Context, ticket *Ticket) {
	ctx = context.WithoutCancel(ctx)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		outcome := models.OutcomeSucceeded
		if s.executor == nil {
			outcome = models.OutcomeFailed
		} else if err := s.executor.Execute(ctx, ticket); err != nil {
			s.logger.Error("action failed",
				"schedule_id", ticket.ScheduleID, "action_ref", ticket.ActionRef, "error", err)
			outcome = models.OutcomeFailed
		}
		if _, err := s.CompleteExecution(ctx, ticket, outcome, s.now()); err != nil {
			s.logger.Error("complete execution failed", "execution_id", ticket.ExecutionID, "error", err)
		}
	}()
}

// Wait blocks until all in-flight actions have completed. Used on shutdown
// and in tests.
func (s *Scheduler) Wait() { s.wg.Wait() }
