package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/stewardhq/steward/internal/policy"
	"github.com/stewardhq/steward/pkg/models"
)

// Registry builds governed toolkits. Every tool invocation produced by a
// toolkit goes through policy evaluation, quota check, sandboxed execution,
// and an audit write, in that order.
type Registry struct {
	engine *policy.Engine
	logger *slog.Logger
	now    func() time.Time

	schemas map[Kind]*jsonschema.Schema
}

// Option configures the registry.
type Option func(*Registry)

// WithLogger configures the registry logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithNow overrides the clock for tests.
func WithNow(now func() time.Time) Option {
	return func(r *Registry) {
		if now != nil {
			r.now = now
		}
	}
}

// NewRegistry creates the registry and compiles every builtin's parameter
// schema once up front.
func NewRegistry(engine *policy.Engine, opts ...Option) (*Registry, error) {
	r := &Registry{
		engine:  engine,
		logger:  slog.Default().With("component", "tools"),
		now:     time.Now,
		schemas: make(map[Kind]*jsonschema.Schema),
	}
	for _, opt := range opts {
		opt(r)
	}
	for _, kind := range Kinds() {
		tool := forKind(kind)
		schema, err := jsonschema.CompileString(string(kind)+".json", string(tool.Schema()))
		if err != nil {
			return nil, fmt.Errorf("compile schema for %s: %w", kind, err)
		}
		r.schemas[kind] = schema
	}
	return r, nil
}

// ExecutionContext binds a toolkit to the agent and session it serves.
type ExecutionContext struct {
	AgentID   string
	SessionID string
}

// Toolkit returns every builtin wrapped for the given execution context.
func (r *Registry) Toolkit(ec ExecutionContext) []Tool {
	kit := make([]Tool, 0, len(Kinds()))
	for _, kind := range Kinds() {
		kit = append(kit, &governedTool{
			registry: r,
			ec:       ec,
			kind:     kind,
			inner:    forKind(kind),
		})
	}
	return kit
}

// governedTool wraps one tool variant with the governance sequence.
type governedTool struct {
	registry *Registry
	ec       ExecutionContext
	kind     Kind
	inner    Tool
}

func (g *governedTool) Name() string            { return g.inner.Name() }
func (g *governedTool) Description() string     { return g.inner.Description() }
func (g *governedTool) Schema() json.RawMessage { return g.inner.Schema() }

func (g *governedTool) Execute(ctx context.Context, params json.RawMessage) (*Result, error) {
	r := g.registry
	engine := r.engine
	name := g.inner.Name()

	decision, err := engine.EvaluatePolicy(ctx, models.PolicyInput{
		AgentID:   g.ec.AgentID,
		SessionID: g.ec.SessionID,
		Action:    models.ActionInvokeTool,
		ToolName:  name,
	})
	if err != nil {
		return nil, fmt.Errorf("evaluate policy for %s: %w", name, err)
	}
	switch decision {
	case models.DecisionDeny:
		if err := engine.WriteAudit(ctx, g.ec.AgentID, g.ec.SessionID,
			models.DecisionDeny, policy.ToolPolicyDeniedReason(name)); err != nil {
			return nil, err
		}
		return errorResult("tool invocation denied by policy"), nil
	case models.DecisionRequireApproval:
		if err := engine.WriteAudit(ctx, g.ec.AgentID, g.ec.SessionID,
			models.DecisionRequireApproval, policy.ToolApprovalReason(name)); err != nil {
			return nil, err
		}
		return errorResult("tool invocation requires approval"), nil
	}

	if err := engine.CheckToolQuota(ctx, g.ec.AgentID, name, r.now()); err != nil {
		var quotaErr *models.ToolQuotaExceededError
		if errors.As(err, &quotaErr) {
			if aerr := engine.WriteAudit(ctx, g.ec.AgentID, g.ec.SessionID,
				models.DecisionDeny, policy.ToolQuotaExceededReason(name)); aerr != nil {
				return nil, aerr
			}
			return errorResult("tool quota exceeded"), nil
		}
		return nil, err
	}

	if len(params) > 0 {
		if err := g.validateParams(params); err != nil {
			return errorResult("invalid tool parameters: " + err.Error()), nil
		}
	}

	var result *Result
	sandboxErr := engine.EnforceSandbox(ctx, g.ec.AgentID, name, func(ctx context.Context) error {
		var execErr error
		result, execErr = g.inner.Execute(ctx, params)
		return execErr
	})
	if sandboxErr != nil {
		code := models.ErrorCode(sandboxErr)
		if err := engine.WriteAudit(ctx, g.ec.AgentID, g.ec.SessionID,
			models.DecisionDeny, policy.ToolExecutionFailedReason(name, code)); err != nil {
			return nil, err
		}
		return errorResult("tool execution failed: " + sandboxErr.Error()), nil
	}

	if err := engine.WriteAudit(ctx, g.ec.AgentID, g.ec.SessionID,
		models.DecisionAllow, policy.ToolInvokedReason(name)); err != nil {
		return nil, err
	}
	return result, nil
}

func (g *governedTool) validateParams(params json.RawMessage) error {
	schema := g.registry.schemas[g.kind]
	if schema == nil {
		return nil
	}
	var value any
	if err := json.Unmarshal(params, &value); err != nil {
		return err
	}
	return schema.Validate(value)
}
