package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/shopd/internal/agent"
	"github.com/fyrsmithlabs/shopd/internal/engine"
)

// defaultCallTimeout bounds a single capability execution.
const defaultCallTimeout = 30 * time.Second

// Invoker executes a batch of action requests against the registry. It
// implements the orchestrator's Toolset contract: all calls in a batch run
// concurrently, every call is joined before results are returned, results
// come back in request order, and failures never propagate as errors. Any
// failure (unknown capability, malformed arguments, handler error) becomes a
// result payload carrying an error marker, which the reflection gate later
// recognizes.
type Invoker struct {
	registry    *Registry
	callTimeout time.Duration
	logger      *zap.Logger
}

// InvokerOption customizes an Invoker.
type InvokerOption func(*Invoker)

// WithCallTimeout overrides the per-call execution bound.
func WithCallTimeout(d time.Duration) InvokerOption {
	return func(inv *Invoker) {
		if d > 0 {
			inv.callTimeout = d
		}
	}
}

// NewInvoker creates the tool invocation layer over a registry.
func NewInvoker(registry *Registry, logger *zap.Logger, opts ...InvokerOption) *Invoker {
	if logger == nil {
		logger = zap.NewNop()
	}
	inv := &Invoker{
		registry:    registry,
		callTimeout: defaultCallTimeout,
		logger:      logger,
	}
	for _, opt := range opts {
		opt(inv)
	}
	return inv
}

// Definitions returns the tool schemas bound to a task type.
func (inv *Invoker) Definitions(task agent.TaskType) []engine.ToolDef {
	return inv.registry.Definitions(task)
}

// Dispatch executes one batch of action requests concurrently and returns
// their results in request order.
func (inv *Invoker) Dispatch(ctx context.Context, calls []engine.ToolCall) []agent.ToolResult {
	results := make([]agent.ToolResult, len(calls))

	var wg sync.WaitGroup
	for i, call := range calls {
		wg.Add(1)
		go func(i int, call engine.ToolCall) {
			defer wg.Done()
			results[i] = inv.invoke(ctx, call)
		}(i, call)
	}
	wg.Wait()

	return results
}

// invoke executes a single call, translating every failure mode into an
// error-marker result.
func (inv *Invoker) invoke(ctx context.Context, call engine.ToolCall) agent.ToolResult {
	def, ok := inv.registry.Lookup(call.Name)
	if !ok {
		inv.logger.Warn("unknown tool requested", zap.String("tool", call.Name))
		return errorResult(call, fmt.Sprintf("unknown tool: %s", call.Name))
	}

	args := map[string]any{}
	if call.Arguments != "" {
		if err := json.Unmarshal([]byte(call.Arguments), &args); err != nil {
			inv.logger.Warn("tool arguments malformed",
				zap.String("tool", call.Name),
				zap.Error(err))
			return errorResult(call, fmt.Sprintf("invalid arguments: %v", err))
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, inv.callTimeout)
	defer cancel()

	start := time.Now()
	payload, err := def.Handler(callCtx, args)
	if err != nil {
		inv.logger.Warn("tool call failed",
			zap.String("tool", call.Name),
			zap.Duration("duration", time.Since(start)),
			zap.Error(err))
		return errorResult(call, err.Error())
	}

	inv.logger.Debug("tool call completed",
		zap.String("tool", call.Name),
		zap.Duration("duration", time.Since(start)))

	return agent.ToolResult{
		CallID:  call.ID,
		Name:    call.Name,
		Content: string(payload),
	}
}

func errorResult(call engine.ToolCall, msg string) agent.ToolResult {
	marker, _ := json.Marshal(map[string]string{"error": msg})
	return agent.ToolResult{
		CallID:  call.ID,
		Name:    call.Name,
		Content: string(marker),
		IsError: true,
	}
}
