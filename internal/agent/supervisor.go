package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/shopd/internal/engine"
)

// routingHistoryWindow is how many transcript events the router sees.
const routingHistoryWindow = 10

// Supervisor classifies an inbound turn into exactly one task type.
//
// It asks the reasoning provider for a strict {"task", "reasoning"} JSON
// object; when that fails for any reason (provider failure, malformed
// output, unknown task) a deterministic keyword scan takes over. Route
// never fails and always yields a member of the closed task set.
type Supervisor struct {
	engine engine.Engine
	logger *zap.Logger
}

// NewSupervisor creates the routing node.
func NewSupervisor(eng engine.Engine, logger *zap.Logger) *Supervisor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Supervisor{engine: eng, logger: logger}
}

// routeDecision is the structured response demanded from the provider.
type routeDecision struct {
	Task      string `json:"task"`
	Reasoning string `json:"reasoning"`
}

// Route selects the task type for the current turn and records it on the
// state. It does not mutate the transcript.
func (s *Supervisor) Route(ctx context.Context, state *TurnState) {
	task, reasoning := s.decide(ctx, state)

	state.SelectedTask = task
	state.ActiveTask = task

	s.logger.Info("supervisor routing",
		zap.String("thread_id", state.ThreadID),
		zap.String("task", string(task)),
		zap.String("reasoning", reasoning))
}

func (s *Supervisor) decide(ctx context.Context, state *TurnState) (TaskType, string) {
	messages := []engine.Message{{Role: engine.RoleSystem, Content: supervisorPrompt}}

	if block := s.contextBlock(state); block != "" {
		messages = append(messages, engine.Message{
			Role:    engine.RoleSystem,
			Content: "현재 상태:" + block,
		})
	}

	messages = append(messages, historyMessages(state.Recent(routingHistoryWindow))...)

	resp, err := s.engine.Complete(ctx, engine.Request{
		Messages:  messages,
		ForceJSON: true,
	})
	if err != nil {
		s.logger.Warn("routing completion failed, using fallback",
			zap.String("thread_id", state.ThreadID),
			zap.Error(err))
		return fallbackTask(lastUserMessage(state)), "fallback routing"
	}

	var decision routeDecision
	if err := json.Unmarshal([]byte(resp.Content), &decision); err == nil {
		if task := TaskType(decision.Task); task.Valid() {
			return task, decision.Reasoning
		}
	}

	return fallbackTask(resp.Content), "fallback routing"
}

// contextBlock projects session facts relevant to routing: draft order id,
// cart size, last search, budget.
func (s *Supervisor) contextBlock(state *TurnState) string {
	var b strings.Builder
	if state.DraftOrderID != "" {
		fmt.Fprintf(&b, "\n현재 주문 ID: %s", state.DraftOrderID)
	}
	if len(state.CartSnapshot) > 0 {
		fmt.Fprintf(&b, "\n장바구니 상품 수: %d", len(state.CartSnapshot))
	}
	if last, ok := state.Context["last_search"].(string); ok && last != "" {
		fmt.Fprintf(&b, "\n이전 검색: %s", last)
	}
	if budget, ok := state.Context["budget"]; ok {
		fmt.Fprintf(&b, "\n예산: %v원", budget)
	}
	return b.String()
}

// fallbackTask is the total heuristic decoder: a keyword scan over raw text
// that always yields a valid task, defaulting to search.
func fallbackTask(text string) TaskType {
	lower := strings.ToLower(text)
	switch {
	case strings.Contains(lower, "review") || strings.Contains(lower, "리뷰"):
		return TaskReview
	case strings.Contains(lower, "cart") || strings.Contains(lower, "장바구니"):
		return TaskCart
	case strings.Contains(lower, "order") || strings.Contains(lower, "payment") ||
		strings.Contains(lower, "주문") || strings.Contains(lower, "결제"):
		return TaskCheckout
	case strings.Contains(lower, "cancel") || strings.Contains(lower, "refund") ||
		strings.Contains(lower, "취소") || strings.Contains(lower, "환불"):
		return TaskSupport
	default:
		return TaskSearch
	}
}

func lastUserMessage(state *TurnState) string {
	for i := len(state.Transcript) - 1; i >= 0; i-- {
		if state.Transcript[i].Role == engine.RoleUser {
			return state.Transcript[i].Content
		}
	}
	return ""
}

// historyMessages converts transcript events into provider messages.
func historyMessages(events []Event) []engine.Message {
	out := make([]engine.Message, 0, len(events))
	for _, ev := range events {
		out = append(out, engine.Message{
			Role:       ev.Role,
			Content:    ev.Content,
			ToolCalls:  ev.ToolCalls,
			ToolCallID: ev.ToolCallID,
		})
	}
	return out
}
