package policy

import (
	"context"
	"fmt"
	"time"

	"github.com/stewardhq/steward/pkg/models"
)

// sandboxDeadline bounds any single sandboxed operation.
const sandboxDeadline = 30 * time.Second

// EnforceSandbox runs op under a deadline and converts panics into
// SandboxViolation so a misbehaving tool cannot take the runtime down.
func (e *Engine) EnforceSandbox(ctx context.Context, agentID, operation string, op func(ctx context.Context) error) (err error) {
	opCtx, cancel := context.WithTimeout(ctx, sandboxDeadline)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("sandboxed operation panicked",
				"agent_id", agentID, "operation", operation, "panic", r)
			err = &models.SandboxViolationError{
				AgentID:   agentID,
				Operation: operation,
				Detail:    fmt.Sprintf("panic: %v", r),
			}
		}
	}()

	if err := op(opCtx); err != nil {
		if opCtx.Err() != nil {
			return &models.SandboxViolationError{
				AgentID:   agentID,
				Operation: operation,
				Detail:    "deadline exceeded",
			}
		}
		return err
	}
	return nil
}
