package agent

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/shopd/internal/engine"
)

func TestGraph_Run_PlainAnswer(t *testing.T) {
	eng := &fakeEngine{script: []scriptedCompletion{
		routeAs(TaskSearch),
		reply("나이키 운동화 3종을 찾았습니다"),
	}}
	graph := NewGraph(eng, newFakeToolset(), GraphConfig{}, zap.NewNop())

	state := NewTurnState("운동화 추천해줘", "u1", "t1", nil)
	require.NoError(t, graph.Run(context.Background(), state))

	assert.Equal(t, TaskSearch, state.ActiveTask)
	assert.Equal(t, 1, state.IterationCount)
	assert.False(t, state.ApprovalRequired)

	last := state.LastEvent()
	require.NotNil(t, last)
	assert.Equal(t, "나이키 운동화 3종을 찾았습니다", last.Content)
}

func TestGraph_Run_ToolLoop(t *testing.T) {
	eng := &fakeEngine{script: []scriptedCompletion{
		routeAs(TaskSearch),
		replyWithTools("", engine.ToolCall{ID: "c1", Name: "search_products", Arguments: `{"keyword":"신발"}`}),
		reply("검색 결과를 정리했습니다"),
	}}
	tools := newFakeToolset()
	tools.onCall("search_products", `{"products": [{"name": "Air Max"}]}`, false)

	graph := NewGraph(eng, tools, GraphConfig{}, zap.NewNop())
	state := NewTurnState("신발 찾아줘", "u1", "t1", nil)
	require.NoError(t, graph.Run(context.Background(), state))

	assert.Equal(t, 2, state.IterationCount)

	// Transcript: user, assistant(tool call), tool result, assistant answer.
	require.Len(t, state.Transcript, 4)
	assert.Equal(t, engine.RoleTool, state.Transcript[2].Role)
	assert.Equal(t, "c1", state.Transcript[2].ToolCallID)
	assert.Equal(t, "검색 결과를 정리했습니다", state.Transcript[3].Content)
}

func TestGraph_Run_ToolErrorTriggersRetry(t *testing.T) {
	eng := &fakeEngine{script: []scriptedCompletion{
		routeAs(TaskSearch),
		replyWithTools("", engine.ToolCall{ID: "c1", Name: "search_products", Arguments: `{}`}),
		reply(""), // executor gives up after the error result
		reply("다른 키워드로 다시 찾았습니다"),
	}}
	tools := newFakeToolset()
	tools.onCall("search_products", `{"error": "search service unavailable"}`, true)

	graph := NewGraph(eng, tools, GraphConfig{}, zap.NewNop())
	state := NewTurnState("신발 찾아줘", "u1", "t1", nil)
	require.NoError(t, graph.Run(context.Background(), state))

	// Executor turns: tool call, empty answer, then retries until the error
	// marker leaves the reflection window.
	assert.Equal(t, 4, state.IterationCount)
	assert.Equal(t, "다른 키워드로 다시 찾았습니다", state.LastEvent().Content)

	// The retry hint reached the provider on the last call.
	lastReq := eng.call(eng.callCount() - 1)
	lastMsg := lastReq.Messages[len(lastReq.Messages)-1]
	assert.Contains(t, lastMsg.Content, retryHintText)
}

func TestGraph_Run_IterationBound(t *testing.T) {
	// The provider keeps demanding tool calls forever.
	eng := &fakeEngine{script: []scriptedCompletion{
		routeAs(TaskSearch),
		replyWithTools("", engine.ToolCall{ID: "c", Name: "search_products", Arguments: `{}`}),
	}}
	tools := newFakeToolset()
	tools.onCall("search_products", `{"products": []}`, false)

	graph := NewGraph(eng, tools, GraphConfig{MaxIterations: 5}, zap.NewNop())
	state := NewTurnState("신발", "u1", "t1", nil)
	require.NoError(t, graph.Run(context.Background(), state))

	assert.Equal(t, 5, state.IterationCount)
}

func TestGraph_Run_ApprovalShortCircuits(t *testing.T) {
	eng := &fakeEngine{script: []scriptedCompletion{
		routeAs(TaskCheckout),
		reply("총 59,000원입니다. 주문을 승인하시겠습니까?"),
	}}
	graph := NewGraph(eng, newFakeToolset(), GraphConfig{}, zap.NewNop())

	state := NewTurnState("결제할게요", "u1", "t1", map[string]any{
		"current_order_id": "order-9",
	})
	require.NoError(t, graph.Run(context.Background(), state))

	assert.True(t, state.ApprovalRequired)
	require.NotNil(t, state.ApprovalPayload)
	assert.Equal(t, "order-9", state.ApprovalPayload["order_id"])
	// Approval terminates the run immediately, no reflection retry.
	assert.Equal(t, 1, state.IterationCount)
}

func TestGraph_Run_EngineFailurePropagates(t *testing.T) {
	eng := &fakeEngine{script: []scriptedCompletion{
		routeAs(TaskSearch),
		replyErr("provider down"),
	}}
	graph := NewGraph(eng, newFakeToolset(), GraphConfig{}, zap.NewNop())

	state := NewTurnState("신발", "u1", "t1", nil)
	err := graph.Run(context.Background(), state)

	require.Error(t, err)
	assert.Equal(t, err, state.Failure)
}

func TestGraph_Run_HarvestsOrderState(t *testing.T) {
	eng := &fakeEngine{script: []scriptedCompletion{
		routeAs(TaskCart),
		replyWithTools("", engine.ToolCall{ID: "c1", Name: "create_cart", Arguments: `{"user_id":"u1"}`}),
		reply("장바구니를 만들었습니다"),
	}}
	tools := newFakeToolset()
	tools.onCall("create_cart", `{"orderId": "order-55", "items": [{"productName": "Air Max"}]}`, false)

	graph := NewGraph(eng, tools, GraphConfig{}, zap.NewNop())
	state := NewTurnState("장바구니 만들어줘", "u1", "t1", nil)
	require.NoError(t, graph.Run(context.Background(), state))

	assert.Equal(t, "order-55", state.DraftOrderID)
	require.Len(t, state.CartSnapshot, 1)

	deltas := state.ContextDeltas()
	assert.Equal(t, "order-55", deltas["current_order_id"])
}

func TestGraph_Run_HarvestKeepsExistingDraftOrder(t *testing.T) {
	eng := &fakeEngine{script: []scriptedCompletion{
		routeAs(TaskCart),
		replyWithTools("", engine.ToolCall{ID: "c1", Name: "get_order_details", Arguments: `{"order_id":"order-1"}`}),
		reply("주문 내역입니다"),
	}}
	tools := newFakeToolset()
	tools.onCall("get_order_details", `{"orderId": "order-other", "items": []}`, false)

	graph := NewGraph(eng, tools, GraphConfig{}, zap.NewNop())
	state := NewTurnState("내 장바구니 보여줘", "u1", "t1", map[string]any{
		"current_order_id": "order-1",
	})
	require.NoError(t, graph.Run(context.Background(), state))

	// An established draft order id is never silently replaced.
	assert.Equal(t, "order-1", state.DraftOrderID)
}
