package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/shopd/internal/engine"
)

// executorHistoryWindow is how many transcript events an executor sees.
const executorHistoryWindow = 15

// executorTemperature keeps task responses near-deterministic.
const executorTemperature = 0.1

// Executor runs one task-executor invocation: it assembles the provider
// input from the task instruction, session context, recent transcript, and
// any corrective hint, invokes the provider bound to the task's toolset, and
// appends the resulting assistant event.
//
// Each invocation increments the iteration count by exactly one. Provider
// failures terminate the run; retry policy lives in the reflection gate,
// across invocations, never inside one.
type Executor struct {
	engine engine.Engine
	tools  Toolset
	logger *zap.Logger
}

// NewExecutor creates the task execution node.
func NewExecutor(eng engine.Engine, tools Toolset, logger *zap.Logger) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{engine: eng, tools: tools, logger: logger}
}

// Execute runs the active task's executor once against the current state.
func (e *Executor) Execute(ctx context.Context, state *TurnState) error {
	task := state.ActiveTask
	prompt, ok := taskPrompts[task]
	if !ok {
		return fmt.Errorf("no instruction for task %q", task)
	}

	messages := e.buildMessages(prompt, state)

	resp, err := e.engine.Complete(ctx, engine.Request{
		Messages:    messages,
		Tools:       e.tools.Definitions(task),
		Temperature: executorTemperature,
	})

	state.IterationCount++

	if err != nil {
		return fmt.Errorf("task %s completion: %w", task, err)
	}

	state.Append(Event{
		Role:      engine.RoleAssistant,
		Content:   resp.Content,
		ToolCalls: resp.ToolCalls,
	})

	e.detectApproval(state, resp)

	e.logger.Debug("executor turn",
		zap.String("thread_id", state.ThreadID),
		zap.String("task", string(task)),
		zap.Int("iteration", state.IterationCount),
		zap.Int("tool_calls", len(resp.ToolCalls)),
		zap.Bool("requires_approval", state.ApprovalRequired))

	return nil
}

func (e *Executor) buildMessages(prompt string, state *TurnState) []engine.Message {
	messages := []engine.Message{{Role: engine.RoleSystem, Content: prompt}}

	if len(state.Context) > 0 {
		if ctxJSON, err := json.Marshal(state.Context); err == nil {
			messages = append(messages, engine.Message{
				Role:    engine.RoleSystem,
				Content: "사용자 컨텍스트: " + string(ctxJSON),
			})
		}
	}

	if state.DraftOrderID != "" {
		messages = append(messages, engine.Message{
			Role:    engine.RoleSystem,
			Content: "현재 주문 ID: " + state.DraftOrderID,
		})
	}

	messages = append(messages, historyMessages(state.Recent(executorHistoryWindow))...)

	if state.RetryHint != "" {
		messages = append(messages, engine.Message{
			Role:    engine.RoleSystem,
			Content: retryHintPreamble + state.RetryHint + retryHintDirective,
		})
	}

	return messages
}

// detectApproval flags an approval-requiring outcome on the checkout task.
//
// The trigger is heuristic: confirmation-request language in the free-text
// response while a draft order exists. False negatives fail closed: no
// approval is flagged and the loop continues or ends. A false positive never
// commits anything by itself; commitment is a separate, explicitly
// user-approved call.
func (e *Executor) detectApproval(state *TurnState, resp engine.Response) {
	if state.ActiveTask != TaskCheckout || resp.Content == "" {
		return
	}
	if state.DraftOrderID == "" {
		return
	}

	lower := strings.ToLower(resp.Content)
	if !strings.Contains(lower, "승인") && !strings.Contains(lower, "확인") &&
		!strings.Contains(lower, "approve") && !strings.Contains(lower, "confirm") {
		return
	}

	state.ApprovalRequired = true
	state.ApprovalPayload = map[string]any{
		"order_id": state.DraftOrderID,
		"action":   "purchase_approval",
	}
}
