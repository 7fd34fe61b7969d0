package scheduler

import (
	"context"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stewardhq/steward/internal/storage"
	"github.com/stewardhq/steward/pkg/models"
)

func newSchedulerTestStore(t *testing.T) *storage.Store {
	t.Helper()
	store, err := storage.Open(context.Background(), filepath.Join(t.TempDir(), "steward.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func upsertTestSchedule(t *testing.T, store *storage.Store, rec *models.ScheduleRecord) {
	t.Helper()
	if err := store.UpsertSchedule(context.Background(), rec); err != nil {
		t.Fatalf("upsert schedule: %v", err)
	}
}

func testSchedule(concurrency models.ConcurrencyPolicy, status models.ScheduleStatus, next time.Time) *models.ScheduleRecord {
	return &models.ScheduleRecord{
		ScheduleID:      "sched-1",
		OwnerAgentID:    "agent:a1",
		Recurrence:      models.RecurrencePattern{IntervalSeconds: 60},
		Trigger:         models.TriggerInterval,
		ActionRef:       "prompt:agent:a1:check inbox",
		Status:          status,
		Concurrency:     concurrency,
		NextExecutionAt: &next,
	}
}

func outcomesByID(t *testing.T, store *storage.Store, scheduleID string) map[string]*models.ScheduledExecutionRecord {
	t.Helper()
	execs, err := store.ListExecutions(context.Background(), scheduleID)
	if err != nil {
		t.Fatalf("list executions: %v", err)
	}
	byID := make(map[string]*models.ScheduledExecutionRecord, len(execs))
	for _, exec := range execs {
		byID[exec.ExecutionID] = exec
	}
	return byID
}

func TestClaimForbid(t *testing.T) {
	store := newSchedulerTestStore(t)
	now := time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC)
	rec := testSchedule(models.ConcurrencyForbid, models.ScheduleActive, now)
	upsertTestSchedule(t, store, rec)
	sched := New(store, nil, WithNow(func() time.Time { return now }))
	ctx := context.Background()

	first, err := sched.Claim(ctx, rec, now, models.SourceIntervalTick)
	if err != nil {
		t.Fatalf("first claim: %v", err)
	}
	if first == nil {
		t.Fatal("first claim returned no ticket")
	}
	if sched.InFlightCount("sched-1") != 1 {
		t.Errorf("in-flight = %d, want 1", sched.InFlightCount("sched-1"))
	}

	// Forbid: the overlapping window is skipped and recorded.
	second, err := sched.Claim(ctx, rec, now.Add(time.Minute), models.SourceIntervalTick)
	if err != nil {
		t.Fatalf("second claim: %v", err)
	}
	if second != nil {
		t.Fatal("second claim returned a ticket under forbid")
	}
	if sched.InFlightCount("sched-1") != 1 {
		t.Errorf("in-flight after skip = %d, want 1", sched.InFlightCount("sched-1"))
	}

	ok, err := sched.CompleteExecution(ctx, first, models.OutcomeSucceeded, now.Add(2*time.Second))
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if !ok {
		t.Error("complete returned false for a live ticket")
	}
	if sched.InFlightCount("sched-1") != 0 {
		t.Errorf("in-flight after complete = %d, want 0", sched.InFlightCount("sched-1"))
	}

	byID := outcomesByID(t, store, "sched-1")
	if len(byID) != 2 {
		t.Fatalf("executions = %d, want 2", len(byID))
	}
	done := byID[first.ExecutionID]
	if done == nil || done.Outcome != models.OutcomeSucceeded {
		t.Errorf("first execution = %+v, want succeeded", done)
	}
	delete(byID, first.ExecutionID)
	for _, skip := range byID {
		if skip.Outcome != models.OutcomeSkipped || skip.SkipReason != models.SkipConcurrencyForbid {
			t.Errorf("skip row = %+v, want skipped/concurrency_forbid", skip)
		}
	}
}

func TestClaimReplace(t *testing.T) {
	store := newSchedulerTestStore(t)
	now := time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC)
	rec := testSchedule(models.ConcurrencyReplace, models.ScheduleActive, now)
	upsertTestSchedule(t, store, rec)
	sched := New(store, nil, WithNow(func() time.Time { return now }))
	ctx := context.Background()

	first, err := sched.Claim(ctx, rec, now, models.SourceIntervalTick)
	if err != nil {
		t.Fatalf("first claim: %v", err)
	}
	second, err := sched.Claim(ctx, rec, now.Add(time.Minute), models.SourceIntervalTick)
	if err != nil {
		t.Fatalf("second claim: %v", err)
	}
	if first == nil || second == nil {
		t.Fatal("replace must hand out both tickets")
	}

	// The replaced ticket cannot complete.
	ok, err := sched.CompleteExecution(ctx, first, models.OutcomeSucceeded, now.Add(time.Second))
	if err != nil {
		t.Fatalf("complete replaced: %v", err)
	}
	if ok {
		t.Error("replaced ticket completed")
	}
	ok, err = sched.CompleteExecution(ctx, second, models.OutcomeSucceeded, now.Add(2*time.Second))
	if err != nil {
		t.Fatalf("complete live: %v", err)
	}
	if !ok {
		t.Error("live ticket did not complete")
	}

	byID := outcomesByID(t, store, "sched-1")
	if len(byID) != 2 {
		t.Fatalf("executions = %d, want 2", len(byID))
	}
	replaced := byID[first.ExecutionID]
	if replaced == nil || replaced.Outcome != models.OutcomeSkipped || replaced.SkipReason != models.SkipConcurrencyReplace {
		t.Errorf("replaced row = %+v, want skipped/concurrency_replace", replaced)
	}
	succeeded := byID[second.ExecutionID]
	if succeeded == nil || succeeded.Outcome != models.OutcomeSucceeded {
		t.Errorf("succeeded row = %+v", succeeded)
	}
}

func TestTriggerNowInactive(t *testing.T) {
	store := newSchedulerTestStore(t)
	now := time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC)
	upsertTestSchedule(t, store, testSchedule(models.ConcurrencyAllow, models.SchedulePaused, now))
	sched := New(store, nil, WithNow(func() time.Time { return now }))

	ticket, err := sched.TriggerNow(context.Background(), "sched-1")
	if err != nil {
		t.Fatalf("trigger: %v", err)
	}
	if ticket != nil {
		t.Fatal("inactive schedule handed out a ticket")
	}

	execs, err := store.ListExecutions(context.Background(), "sched-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(execs) != 1 {
		t.Fatalf("executions = %d, want 1", len(execs))
	}
	if execs[0].Outcome != models.OutcomeSkipped || execs[0].SkipReason != models.SkipManualTriggerInactive {
		t.Errorf("row = %+v, want skipped/manual_trigger_inactive", execs[0])
	}
	if execs[0].TriggerSource != models.SourceManual {
		t.Errorf("source = %s, want manual", execs[0].TriggerSource)
	}
}

func TestDispatchDueRunsAction(t *testing.T) {
	store := newSchedulerTestStore(t)
	now := time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC)
	upsertTestSchedule(t, store, testSchedule(models.ConcurrencyAllow, models.ScheduleActive, now.Add(-time.Minute)))

	var ran atomic.Int32
	var gotRef atomic.Value
	executor := ActionExecutorFunc(func(ctx context.Context, ticket *Ticket) error {
		ran.Add(1)
		gotRef.Store(ticket.ActionRef)
		return nil
	})
	sched := New(store, executor, WithNow(func() time.Time { return now }))

	if err := sched.DispatchDue(context.Background(), now); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	sched.Wait()

	if n := ran.Load(); n != 1 {
		t.Fatalf("action ran %d times, want 1", n)
	}
	if ref, _ := gotRef.Load().(string); ref != "prompt:agent:a1:check inbox" {
		t.Errorf("action ref = %q", ref)
	}

	execs, err := store.ListExecutions(context.Background(), "sched-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(execs) != 1 || execs[0].Outcome != models.OutcomeSucceeded {
		t.Fatalf("executions = %+v, want one succeeded", execs)
	}

	// The interval advanced the schedule past now; a second dispatch is a no-op.
	rec, err := store.GetSchedule(context.Background(), "sched-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if rec.NextExecutionAt == nil || !rec.NextExecutionAt.After(now) {
		t.Errorf("next = %v, want after now", rec.NextExecutionAt)
	}
	if err := sched.DispatchDue(context.Background(), now); err != nil {
		t.Fatalf("second dispatch: %v", err)
	}
	sched.Wait()
	if n := ran.Load(); n != 1 {
		t.Errorf("action ran %d times after second dispatch, want 1", n)
	}
}
