// Package recurrence computes schedule firing times from cron expressions and
// fixed intervals.
package recurrence

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/stewardhq/steward/pkg/models"
)

var cronParser = cron.NewParser(
	cron.SecondOptional |
		cron.Minute |
		cron.Hour |
		cron.Dom |
		cron.Month |
		cron.Dow |
		cron.Descriptor,
)

// Validate checks that the pattern is well formed for the trigger kind:
// exactly one of cron expression / interval is set for cron and interval
// triggers, and the cron expression parses.
func Validate(pattern models.RecurrencePattern, trigger models.TriggerKind) error {
	hasCron := strings.TrimSpace(pattern.CronExpression) != ""
	hasInterval := pattern.IntervalSeconds > 0
	switch trigger {
	case models.TriggerCron:
		if !hasCron || hasInterval {
			return fmt.Errorf("cron trigger requires a cron expression and no interval")
		}
		if _, err := cronParser.Parse(pattern.CronExpression); err != nil {
			return fmt.Errorf("invalid cron expression: %w", err)
		}
	case models.TriggerInterval:
		if !hasInterval || hasCron {
			return fmt.Errorf("interval trigger requires an interval and no cron expression")
		}
	case models.TriggerEvent:
		// Event schedules fire externally; no pattern required.
	default:
		return fmt.Errorf("unknown trigger kind %q", trigger)
	}
	return nil
}

// Next returns the first firing time strictly after the given instant, or
// false for event triggers and malformed patterns.
func Next(pattern models.RecurrencePattern, trigger models.TriggerKind, after time.Time) (time.Time, bool) {
	switch trigger {
	case models.TriggerInterval:
		if pattern.IntervalSeconds <= 0 {
			return time.Time{}, false
		}
		return after.Add(time.Duration(pattern.IntervalSeconds) * time.Second), true
	case models.TriggerCron:
		schedule, err := cronParser.Parse(pattern.CronExpression)
		if err != nil {
			return time.Time{}, false
		}
		next := schedule.Next(after)
		return next, !next.IsZero()
	default:
		return time.Time{}, false
	}
}
