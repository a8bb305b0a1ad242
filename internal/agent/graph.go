package agent

import (
	"context"
	"encoding/json"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/shopd/internal/engine"
)

const instrumentationName = "github.com/fyrsmithlabs/shopd/internal/agent"

// node is a control-flow position in the orchestration state machine.
type node int

const (
	nodeRouting node = iota
	nodeExecuting
	nodeTooling
	nodeReflecting
	nodeTerminated
)

// GraphConfig tunes the orchestration graph.
type GraphConfig struct {
	// MaxIterations bounds executor invocations per run. It is the sole
	// non-approval, non-error termination guarantee and is enforced both
	// before entering the tool layer and inside the reflection gate.
	MaxIterations int
}

// Graph composes the supervisor, task executor, tool layer, and reflection
// gate into a bounded execution loop with a single run-one-turn entry point.
//
// Within one run, execution is strictly sequential: no node begins before the
// previous node's transcript and context mutations are visible.
type Graph struct {
	supervisor *Supervisor
	executor   *Executor
	tools      Toolset
	gate       *ReflectionGate

	maxIterations int
	logger        *zap.Logger
	tracer        trace.Tracer
}

// NewGraph wires the orchestration nodes around a reasoning engine and a
// toolset.
func NewGraph(eng engine.Engine, tools Toolset, cfg GraphConfig, logger *zap.Logger) *Graph {
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = DefaultMaxIterations
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Graph{
		supervisor:    NewSupervisor(eng, logger),
		executor:      NewExecutor(eng, tools, logger),
		tools:         tools,
		gate:          NewReflectionGate(cfg.MaxIterations),
		maxIterations: cfg.MaxIterations,
		logger:        logger,
		tracer:        otel.Tracer(instrumentationName),
	}
}

// Run drives one turn through the state machine until termination. The
// returned error is a run-level failure (reasoning provider unavailable);
// tool failures never surface here, they flow through the transcript as
// error-marker results.
func (g *Graph) Run(ctx context.Context, state *TurnState) error {
	ctx, span := g.tracer.Start(ctx, "agent.run",
		trace.WithAttributes(attribute.String("thread_id", state.ThreadID)))
	defer span.End()

	current := nodeRouting
	for current != nodeTerminated {
		var err error
		current, err = g.step(ctx, current, state)
		if err != nil {
			state.Failure = err
			span.RecordError(err)
			return err
		}
	}

	span.SetAttributes(
		attribute.String("task", string(state.ActiveTask)),
		attribute.Int("iterations", state.IterationCount),
		attribute.Bool("requires_approval", state.ApprovalRequired),
	)
	return nil
}

// step executes one node and returns the next one.
func (g *Graph) step(ctx context.Context, current node, state *TurnState) (node, error) {
	switch current {
	case nodeRouting:
		g.supervisor.Route(ctx, state)
		return nodeExecuting, nil

	case nodeExecuting:
		if err := g.executor.Execute(ctx, state); err != nil {
			return nodeTerminated, err
		}
		last := state.LastEvent()
		switch {
		case state.ApprovalRequired:
			return nodeReflecting, nil
		case state.IterationCount >= g.maxIterations:
			g.logger.Warn("iteration limit reached",
				zap.String("thread_id", state.ThreadID),
				zap.Int("iterations", state.IterationCount))
			return nodeReflecting, nil
		case last != nil && len(last.ToolCalls) > 0:
			return nodeTooling, nil
		default:
			return nodeReflecting, nil
		}

	case nodeTooling:
		g.dispatchTools(ctx, state)
		return nodeExecuting, nil

	case nodeReflecting:
		// An approval-gated turn goes straight back to the user.
		if state.ApprovalRequired {
			return nodeTerminated, nil
		}
		g.gate.Reflect(state)
		if state.ShouldRetry {
			g.logger.Info("reflection retry",
				zap.String("thread_id", state.ThreadID),
				zap.String("task", string(state.ActiveTask)),
				zap.Int("iteration", state.IterationCount))
			return nodeExecuting, nil
		}
		return nodeTerminated, nil
	}

	return nodeTerminated, nil
}

// dispatchTools executes the pending action requests of the last assistant
// event and appends their results in request order. All calls are joined
// before execution resumes.
func (g *Graph) dispatchTools(ctx context.Context, state *TurnState) {
	last := state.LastEvent()
	if last == nil || len(last.ToolCalls) == 0 {
		return
	}

	ctx, span := g.tracer.Start(ctx, "agent.tools",
		trace.WithAttributes(attribute.Int("calls", len(last.ToolCalls))))
	defer span.End()

	results := g.tools.Dispatch(ctx, last.ToolCalls)
	for _, res := range results {
		state.Append(Event{
			Role:       engine.RoleTool,
			Content:    res.Content,
			ToolCallID: res.CallID,
			ToolName:   res.Name,
		})
		if !res.IsError {
			g.harvestOrderState(state, res)
		}
	}
}

// harvestOrderState captures the draft-order id and cart snapshot from
// successful order-service results so they survive into session context.
func (g *Graph) harvestOrderState(state *TurnState, res ToolResult) {
	switch res.Name {
	case "create_cart", "add_to_cart", "remove_from_cart",
		"update_cart_item_quantity", "get_order_details", "checkout_order":
	default:
		return
	}

	var order struct {
		OrderID string `json:"orderId"`
		Items   []any  `json:"items"`
	}
	if err := json.Unmarshal([]byte(res.Content), &order); err != nil {
		return
	}

	if order.OrderID != "" && state.DraftOrderID == "" {
		state.DraftOrderID = order.OrderID
	}
	if len(order.Items) > 0 {
		state.CartSnapshot = order.Items
	}
}
