package scheduler

import (
	"context"
	"time"
)

// DefaultTickInterval is how often the loop pulls due schedules.
const DefaultTickInterval = 10 * time.Second

// RunLoop ticks until ctx is cancelled. Dispatch errors are logged and never
// interrupt subsequent ticks; each dispatch gets a coarse deadline of one
// tick interval.
func (s *Scheduler) RunLoop(ctx context.Context, tickInterval time.Duration) {
	if tickInterval <= 0 {
		tickInterval = DefaultTickInterval
	}
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	s.logger.Info("scheduler loop started", "tick_interval", tickInterval)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler loop stopping")
			s.wg.Wait()
			return
		case <-ticker.C:
			tickCtx, cancel := context.WithTimeout(ctx, tickInterval)
			if err := s.DispatchDue(tickCtx, s.now()); err != nil {
				s.logger.Error("dispatch tick failed", "error", err)
			}
			cancel()
		}
	}
}
