package scheduler

import (
	"time"

	"github.com/stewardhq/steward/internal/recurrence"
	"github.com/stewardhq/steward/pkg/models"
)

// safetyCap bounds window expansion for schedules that have been dormant far
// longer than their catch-up window.
const safetyCap = 10_000

// DueWindows materializes the firing times of a schedule that are due at or
// before now. Without catch-up, a due schedule yields a single window at now.
// With catch-up, elapsed windows inside the catch-up horizon are kept, capped
// at the schedule's per-tick maximum oldest-first; later windows wait for the
// next tick.
func DueWindows(rec *models.ScheduleRecord, now time.Time) []time.Time {
	if rec == nil || rec.Status != models.ScheduleActive || rec.Trigger == models.TriggerEvent {
		return nil
	}
	if rec.NextExecutionAt == nil || rec.NextExecutionAt.After(now) {
		return nil
	}

	if !rec.AllowsCatchUp {
		return []time.Time{now}
	}

	var windows []time.Time
	w := *rec.NextExecutionAt
	for !w.After(now) && len(windows) < safetyCap {
		windows = append(windows, w)
		next, ok := recurrence.Next(rec.Recurrence, rec.Trigger, w)
		if !ok || !next.After(w) {
			break
		}
		w = next
	}

	horizon := now.Add(-time.Duration(rec.CatchUpWindowSecs) * time.Second)
	kept := windows[:0]
	for _, w := range windows {
		if !w.Before(horizon) {
			kept = append(kept, w)
		}
	}

	if max := rec.MaxCatchUpRuns; max > 0 && len(kept) > max {
		kept = kept[:max]
	}
	return kept
}

// triggerSourceFor maps a trigger kind to the execution's trigger source.
func triggerSourceFor(trigger models.TriggerKind) models.TriggerSource {
	switch trigger {
	case models.TriggerCron:
		return models.SourceCronTick
	case models.TriggerInterval:
		return models.SourceIntervalTick
	default:
		return models.SourceEvent
	}
}
