package agent

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/shopd/internal/engine"
)

func newExecutorState(task TaskType) *TurnState {
	state := NewTurnState("테스트 메시지", "u1", "t1", nil)
	state.ActiveTask = task
	return state
}

func TestExecutor_Execute_AppendsAssistantEvent(t *testing.T) {
	eng := &fakeEngine{script: []scriptedCompletion{reply("검색 결과입니다")}}
	ex := NewExecutor(eng, newFakeToolset(), zap.NewNop())

	state := newExecutorState(TaskSearch)
	require.NoError(t, ex.Execute(context.Background(), state))

	assert.Equal(t, 1, state.IterationCount)
	last := state.LastEvent()
	require.NotNil(t, last)
	assert.Equal(t, engine.RoleAssistant, last.Role)
	assert.Equal(t, "검색 결과입니다", last.Content)
}

func TestExecutor_Execute_IterationCountsFailures(t *testing.T) {
	eng := &fakeEngine{script: []scriptedCompletion{replyErr("provider down")}}
	ex := NewExecutor(eng, newFakeToolset(), zap.NewNop())

	state := newExecutorState(TaskSearch)
	err := ex.Execute(context.Background(), state)

	require.Error(t, err)
	// A failed invocation still consumes iteration budget.
	assert.Equal(t, 1, state.IterationCount)
	// No assistant event is appended on failure.
	assert.Len(t, state.Transcript, 1)
}

func TestExecutor_Execute_UnknownTask(t *testing.T) {
	ex := NewExecutor(&fakeEngine{}, newFakeToolset(), zap.NewNop())

	state := newExecutorState(TaskType("billing"))
	err := ex.Execute(context.Background(), state)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "billing")
}

func TestExecutor_Execute_RetryHintInjected(t *testing.T) {
	eng := &fakeEngine{script: []scriptedCompletion{reply("재시도했습니다")}}
	ex := NewExecutor(eng, newFakeToolset(), zap.NewNop())

	state := newExecutorState(TaskSearch)
	state.RetryHint = retryHintText
	require.NoError(t, ex.Execute(context.Background(), state))

	req := eng.call(0)
	last := req.Messages[len(req.Messages)-1]
	assert.Equal(t, engine.RoleSystem, last.Role)
	assert.Contains(t, last.Content, retryHintText)
}

func TestExecutor_Execute_DraftOrderInPrompt(t *testing.T) {
	eng := &fakeEngine{script: []scriptedCompletion{reply("ok")}}
	ex := NewExecutor(eng, newFakeToolset(), zap.NewNop())

	state := newExecutorState(TaskCheckout)
	state.DraftOrderID = "order-42"
	require.NoError(t, ex.Execute(context.Background(), state))

	var found bool
	for _, msg := range eng.call(0).Messages {
		if msg.Role == engine.RoleSystem && msg.Content == "현재 주문 ID: order-42" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestExecutor_DetectApproval(t *testing.T) {
	tests := []struct {
		name     string
		task     TaskType
		draftID  string
		content  string
		expected bool
	}{
		{"checkout with draft and approval keyword", TaskCheckout, "order-1", "주문을 승인하시겠습니까?", true},
		{"checkout with confirm keyword", TaskCheckout, "order-1", "please confirm your purchase", true},
		{"checkout without draft order", TaskCheckout, "", "승인하시겠습니까?", false},
		{"checkout without keyword", TaskCheckout, "order-1", "주문 내역을 정리했습니다", false},
		{"non-checkout task never gates", TaskCart, "order-1", "승인하시겠습니까?", false},
		{"empty content", TaskCheckout, "order-1", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			eng := &fakeEngine{script: []scriptedCompletion{reply(tt.content)}}
			ex := NewExecutor(eng, newFakeToolset(), zap.NewNop())

			state := newExecutorState(tt.task)
			state.DraftOrderID = tt.draftID
			require.NoError(t, ex.Execute(context.Background(), state))

			assert.Equal(t, tt.expected, state.ApprovalRequired)
			if tt.expected {
				require.NotNil(t, state.ApprovalPayload)
				assert.Equal(t, tt.draftID, state.ApprovalPayload["order_id"])
				assert.Equal(t, "purchase_approval", state.ApprovalPayload["action"])
			}
		})
	}
}

func TestExecutor_Execute_ToolDefinitionsBoundToTask(t *testing.T) {
	eng := &fakeEngine{script: []scriptedCompletion{reply("ok")}}
	tools := newFakeToolset()
	ex := NewExecutor(eng, tools, zap.NewNop())

	state := newExecutorState(TaskReview)
	require.NoError(t, ex.Execute(context.Background(), state))

	require.Len(t, eng.call(0).Tools, 1)
	assert.Equal(t, "noop", eng.call(0).Tools[0].Name)
}
