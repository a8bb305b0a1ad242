package agent

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/shopd/internal/engine"
	"github.com/fyrsmithlabs/shopd/internal/events"
)

// ContextStore persists session context and pending approvals across runs.
// Implemented by the Redis-backed memory store.
type ContextStore interface {
	GetContext(ctx context.Context, threadID string) (map[string]any, error)
	MergeContext(ctx context.Context, threadID string, updates map[string]any) error
	SaveApproval(ctx context.Context, token string, payload map[string]any) error
	ConsumeApproval(ctx context.Context, token string) (map[string]any, error)
}

// OrderService is the subset of the order domain service the runner invokes
// directly for the approval shortcut paths.
type OrderService interface {
	ApproveOrder(ctx context.Context, orderID string) (json.RawMessage, error)
	CancelOrder(ctx context.Context, orderID, reason string) (json.RawMessage, error)
}

// Notifier emits best-effort side-channel events.
type Notifier interface {
	Publish(ctx context.Context, subject, eventType string, data any, correlationID string) string
}

// TurnRequest is one inbound user message.
type TurnRequest struct {
	Message  string
	UserID   string
	ThreadID string
}

// ApprovalRequest is an explicit user decision on a pending purchase.
type ApprovalRequest struct {
	ThreadID string
	UserID   string
	Approved bool
	OrderID  string
}

// TurnResult is the outcome of one run.
type TurnResult struct {
	Response         string
	ThreadID         string
	RequiresApproval bool
	ApprovalPayload  map[string]any
	ActiveTask       TaskType
}

// Runner is the run entry point: it loads session context, drives the graph
// to termination, persists context deltas, and short-circuits explicit
// purchase approvals and rejections past the graph entirely.
//
// Runner methods never return an error to the caller; every failure becomes
// a user-visible apology plus a structured log entry.
type Runner struct {
	graph  *Graph
	store  ContextStore
	orders OrderService
	events Notifier
	logger *zap.Logger
}

// NewRunner creates the run entry point.
func NewRunner(graph *Graph, store ContextStore, orders OrderService, notifier Notifier, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		graph:  graph,
		store:  store,
		orders: orders,
		events: notifier,
		logger: logger,
	}
}

// HandleTurn processes one user message end to end.
func (r *Runner) HandleTurn(ctx context.Context, req TurnRequest) (result TurnResult) {
	result = TurnResult{Response: failureResponse, ThreadID: req.ThreadID}

	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("run panicked",
				zap.String("thread_id", req.ThreadID),
				zap.Any("panic", rec))
			result = TurnResult{Response: failureResponse, ThreadID: req.ThreadID}
		}
	}()

	sessionContext, err := r.store.GetContext(ctx, req.ThreadID)
	if err != nil {
		r.logger.Warn("context load failed, starting empty",
			zap.String("thread_id", req.ThreadID),
			zap.Error(err))
		sessionContext = nil
	}
	if sessionContext == nil {
		sessionContext = map[string]any{}
	}
	sessionContext["user_id"] = req.UserID

	state := NewTurnState(req.Message, req.UserID, req.ThreadID, sessionContext)

	if err := r.graph.Run(ctx, state); err != nil {
		r.logger.Error("run failed",
			zap.String("thread_id", req.ThreadID),
			zap.String("task", string(state.ActiveTask)),
			zap.Error(err))
		return TurnResult{Response: failureResponse, ThreadID: req.ThreadID, ActiveTask: state.ActiveTask}
	}

	r.persistDeltas(ctx, state)

	if state.ApprovalRequired {
		if err := r.store.SaveApproval(ctx, req.ThreadID, state.ApprovalPayload); err != nil {
			r.logger.Warn("approval token save failed",
				zap.String("thread_id", req.ThreadID),
				zap.Error(err))
		}
	}

	r.events.Publish(ctx, events.SubjectTurnCompleted, events.EventTypeTurnCompleted, map[string]any{
		"threadId":         state.ThreadID,
		"userId":           state.UserID,
		"task":             string(state.ActiveTask),
		"iterations":       state.IterationCount,
		"requiresApproval": state.ApprovalRequired,
	}, state.ThreadID)

	return TurnResult{
		Response:         r.extractResponse(state),
		ThreadID:         state.ThreadID,
		RequiresApproval: state.ApprovalRequired,
		ApprovalPayload:  state.ApprovalPayload,
		ActiveTask:       state.ActiveTask,
	}
}

// HandleApproval applies an explicit purchase decision, bypassing routing and
// the graph. The pending approval token is consumed first so a single
// decision applies at most once.
func (r *Runner) HandleApproval(ctx context.Context, req ApprovalRequest) TurnResult {
	pending, err := r.store.ConsumeApproval(ctx, req.ThreadID)
	if err != nil {
		r.logger.Warn("approval token consume failed",
			zap.String("thread_id", req.ThreadID),
			zap.Error(err))
	}

	orderID := req.OrderID
	if orderID == "" && pending != nil {
		if id, ok := pending["order_id"].(string); ok {
			orderID = id
		}
	}

	result := TurnResult{ThreadID: req.ThreadID, ActiveTask: TaskCheckout}

	switch {
	case req.Approved && orderID != "":
		if _, err := r.orders.ApproveOrder(ctx, orderID); err != nil {
			r.logger.Error("order approval failed",
				zap.String("thread_id", req.ThreadID),
				zap.String("order_id", orderID),
				zap.Error(err))
			result.Response = "주문 승인 중 오류가 발생했습니다. 다시 시도해 주세요."
			return result
		}
		result.Response = fmt.Sprintf("주문이 승인되어 처리를 시작합니다. 주문 ID: %s\n결제 및 재고 확인이 진행됩니다.", orderID)
		if err := r.store.MergeContext(ctx, req.ThreadID, map[string]any{"current_order_id": orderID}); err != nil {
			r.logger.Warn("context merge failed",
				zap.String("thread_id", req.ThreadID),
				zap.Error(err))
		}

	case req.Approved:
		result.Response = "승인할 주문을 찾을 수 없습니다. 주문 번호를 확인해 주세요."

	default:
		if orderID != "" {
			if _, err := r.orders.CancelOrder(ctx, orderID, "사용자 거부"); err != nil {
				r.logger.Warn("order cancel failed",
					zap.String("thread_id", req.ThreadID),
					zap.String("order_id", orderID),
					zap.Error(err))
			}
		}
		result.Response = rejectionResponse
	}

	r.events.Publish(ctx, events.SubjectApprovalDecided, events.EventTypeApprovalDecide, map[string]any{
		"threadId": req.ThreadID,
		"userId":   req.UserID,
		"orderId":  orderID,
		"approved": req.Approved,
	}, req.ThreadID)

	return result
}

// extractResponse returns the last assistant-authored message with content,
// falling back to a fixed apology when none exists.
func (r *Runner) extractResponse(state *TurnState) string {
	for i := len(state.Transcript) - 1; i >= 0; i-- {
		ev := state.Transcript[i]
		if ev.Role == engine.RoleAssistant && ev.Content != "" {
			return ev.Content
		}
	}
	return apologyResponse
}

func (r *Runner) persistDeltas(ctx context.Context, state *TurnState) {
	deltas := state.ContextDeltas()
	if len(deltas) == 0 {
		return
	}
	if err := r.store.MergeContext(ctx, state.ThreadID, deltas); err != nil {
		r.logger.Warn("context merge failed",
			zap.String("thread_id", state.ThreadID),
			zap.Error(err))
	}
}
