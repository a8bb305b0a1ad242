package agent

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/shopd/internal/events"
)

type fakeStore struct {
	contexts  map[string]map[string]any
	approvals map[string]map[string]any

	getErr   error
	mergeErr error

	merged []map[string]any
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		contexts:  map[string]map[string]any{},
		approvals: map[string]map[string]any{},
	}
}

func (f *fakeStore) GetContext(_ context.Context, threadID string) (map[string]any, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.contexts[threadID], nil
}

func (f *fakeStore) MergeContext(_ context.Context, threadID string, updates map[string]any) error {
	if f.mergeErr != nil {
		return f.mergeErr
	}
	f.merged = append(f.merged, updates)
	current := f.contexts[threadID]
	if current == nil {
		current = map[string]any{}
		f.contexts[threadID] = current
	}
	for k, v := range updates {
		current[k] = v
	}
	return nil
}

func (f *fakeStore) SaveApproval(_ context.Context, token string, payload map[string]any) error {
	f.approvals[token] = payload
	return nil
}

func (f *fakeStore) ConsumeApproval(_ context.Context, token string) (map[string]any, error) {
	payload, ok := f.approvals[token]
	if !ok {
		return nil, nil
	}
	delete(f.approvals, token)
	return payload, nil
}

type fakeOrders struct {
	approved  []string
	cancelled []string

	approveErr error
}

func (f *fakeOrders) ApproveOrder(_ context.Context, orderID string) (json.RawMessage, error) {
	if f.approveErr != nil {
		return nil, f.approveErr
	}
	f.approved = append(f.approved, orderID)
	return json.RawMessage(`{"orderId": "` + orderID + `", "status": "CONFIRMED"}`), nil
}

func (f *fakeOrders) CancelOrder(_ context.Context, orderID, reason string) (json.RawMessage, error) {
	f.cancelled = append(f.cancelled, orderID)
	return json.RawMessage(`{"orderId": "` + orderID + `", "status": "CANCELLED"}`), nil
}

type publishedEvent struct {
	subject   string
	eventType string
	data      any
}

type fakeNotifier struct {
	published []publishedEvent
}

func (f *fakeNotifier) Publish(_ context.Context, subject, eventType string, data any, _ string) string {
	f.published = append(f.published, publishedEvent{subject: subject, eventType: eventType, data: data})
	return "evt-1"
}

func newTestRunner(eng *fakeEngine, store *fakeStore, orders *fakeOrders, notifier *fakeNotifier) *Runner {
	graph := NewGraph(eng, newFakeToolset(), GraphConfig{}, zap.NewNop())
	return NewRunner(graph, store, orders, notifier, zap.NewNop())
}

func TestRunner_HandleTurn_HappyPath(t *testing.T) {
	eng := &fakeEngine{script: []scriptedCompletion{
		routeAs(TaskSearch),
		reply("운동화 3종을 찾았습니다"),
	}}
	store := newFakeStore()
	notifier := &fakeNotifier{}
	runner := newTestRunner(eng, store, &fakeOrders{}, notifier)

	result := runner.HandleTurn(context.Background(), TurnRequest{
		Message: "운동화 찾아줘", UserID: "u1", ThreadID: "t1",
	})

	assert.Equal(t, "운동화 3종을 찾았습니다", result.Response)
	assert.Equal(t, "t1", result.ThreadID)
	assert.False(t, result.RequiresApproval)
	assert.Equal(t, TaskSearch, result.ActiveTask)

	require.Len(t, notifier.published, 1)
	assert.Equal(t, events.SubjectTurnCompleted, notifier.published[0].subject)
	assert.Equal(t, events.EventTypeTurnCompleted, notifier.published[0].eventType)
}

func TestRunner_HandleTurn_ContextLoadFailureStartsEmpty(t *testing.T) {
	eng := &fakeEngine{script: []scriptedCompletion{
		routeAs(TaskSearch),
		reply("답변입니다"),
	}}
	store := newFakeStore()
	store.getErr = errors.New("redis down")
	runner := newTestRunner(eng, store, &fakeOrders{}, &fakeNotifier{})

	result := runner.HandleTurn(context.Background(), TurnRequest{
		Message: "안녕", UserID: "u1", ThreadID: "t1",
	})

	// A storage failure degrades to an empty session, not a failed turn.
	assert.Equal(t, "답변입니다", result.Response)
}

func TestRunner_HandleTurn_GraphFailureReturnsFixedResponse(t *testing.T) {
	eng := &fakeEngine{script: []scriptedCompletion{
		routeAs(TaskSearch),
		replyErr("provider down"),
	}}
	runner := newTestRunner(eng, newFakeStore(), &fakeOrders{}, &fakeNotifier{})

	result := runner.HandleTurn(context.Background(), TurnRequest{
		Message: "안녕", UserID: "u1", ThreadID: "t1",
	})

	assert.Equal(t, failureResponse, result.Response)
	assert.Equal(t, TaskSearch, result.ActiveTask)
}

func TestRunner_HandleTurn_NoAssistantContentYieldsApology(t *testing.T) {
	eng := &fakeEngine{script: []scriptedCompletion{
		routeAs(TaskSearch),
		reply(""),
	}}
	runner := newTestRunner(eng, newFakeStore(), &fakeOrders{}, &fakeNotifier{})

	result := runner.HandleTurn(context.Background(), TurnRequest{
		Message: "안녕", UserID: "u1", ThreadID: "t1",
	})

	assert.Equal(t, apologyResponse, result.Response)
}

func TestRunner_HandleTurn_ApprovalPersistsToken(t *testing.T) {
	eng := &fakeEngine{script: []scriptedCompletion{
		routeAs(TaskCheckout),
		reply("주문을 승인하시겠습니까?"),
	}}
	store := newFakeStore()
	store.contexts["t1"] = map[string]any{"current_order_id": "order-3"}
	runner := newTestRunner(eng, store, &fakeOrders{}, &fakeNotifier{})

	result := runner.HandleTurn(context.Background(), TurnRequest{
		Message: "결제할게요", UserID: "u1", ThreadID: "t1",
	})

	assert.True(t, result.RequiresApproval)
	require.NotNil(t, store.approvals["t1"])
	assert.Equal(t, "order-3", store.approvals["t1"]["order_id"])
}

func TestRunner_HandleTurn_PersistsContextDeltas(t *testing.T) {
	eng := &fakeEngine{script: []scriptedCompletion{
		routeAs(TaskCheckout),
		reply("확인했습니다. 승인하시겠습니까?"),
	}}
	store := newFakeStore()
	store.contexts["t1"] = map[string]any{"current_order_id": "order-8"}
	runner := newTestRunner(eng, store, &fakeOrders{}, &fakeNotifier{})

	runner.HandleTurn(context.Background(), TurnRequest{
		Message: "결제", UserID: "u1", ThreadID: "t1",
	})

	require.NotEmpty(t, store.merged)
	assert.Equal(t, "order-8", store.merged[0]["current_order_id"])
}

func TestRunner_HandleApproval_ApprovedCommitsOrder(t *testing.T) {
	store := newFakeStore()
	store.approvals["t1"] = map[string]any{"order_id": "order-5", "action": "purchase_approval"}
	orders := &fakeOrders{}
	notifier := &fakeNotifier{}
	eng := &fakeEngine{}
	runner := newTestRunner(eng, store, orders, notifier)

	result := runner.HandleApproval(context.Background(), ApprovalRequest{
		ThreadID: "t1", UserID: "u1", Approved: true,
	})

	// Approval bypasses routing and execution entirely.
	assert.Equal(t, 0, eng.callCount())
	assert.Equal(t, []string{"order-5"}, orders.approved)
	assert.Contains(t, result.Response, "order-5")
	assert.Contains(t, result.Response, "주문이 승인되어")
	assert.Equal(t, TaskCheckout, result.ActiveTask)

	// The committed order id lands in session context.
	assert.Equal(t, "order-5", store.contexts["t1"]["current_order_id"])

	require.Len(t, notifier.published, 1)
	assert.Equal(t, events.SubjectApprovalDecided, notifier.published[0].subject)
}

func TestRunner_HandleApproval_TokenConsumedOnce(t *testing.T) {
	store := newFakeStore()
	store.approvals["t1"] = map[string]any{"order_id": "order-5"}
	orders := &fakeOrders{}
	runner := newTestRunner(&fakeEngine{}, store, orders, &fakeNotifier{})

	first := runner.HandleApproval(context.Background(), ApprovalRequest{ThreadID: "t1", Approved: true})
	second := runner.HandleApproval(context.Background(), ApprovalRequest{ThreadID: "t1", Approved: true})

	assert.Contains(t, first.Response, "order-5")
	// The second decision finds no pending order and commits nothing.
	assert.Contains(t, second.Response, "승인할 주문을 찾을 수 없습니다")
	assert.Equal(t, []string{"order-5"}, orders.approved)
}

func TestRunner_HandleApproval_ExplicitOrderIDWins(t *testing.T) {
	store := newFakeStore()
	store.approvals["t1"] = map[string]any{"order_id": "order-pending"}
	orders := &fakeOrders{}
	runner := newTestRunner(&fakeEngine{}, store, orders, &fakeNotifier{})

	runner.HandleApproval(context.Background(), ApprovalRequest{
		ThreadID: "t1", Approved: true, OrderID: "order-explicit",
	})

	assert.Equal(t, []string{"order-explicit"}, orders.approved)
}

func TestRunner_HandleApproval_RejectionCancelsOrder(t *testing.T) {
	store := newFakeStore()
	store.approvals["t1"] = map[string]any{"order_id": "order-7"}
	orders := &fakeOrders{}
	runner := newTestRunner(&fakeEngine{}, store, orders, &fakeNotifier{})

	result := runner.HandleApproval(context.Background(), ApprovalRequest{
		ThreadID: "t1", Approved: false,
	})

	assert.Equal(t, rejectionResponse, result.Response)
	assert.Equal(t, []string{"order-7"}, orders.cancelled)
	assert.Empty(t, orders.approved)
}

func TestRunner_HandleApproval_ApproveServiceFailure(t *testing.T) {
	store := newFakeStore()
	store.approvals["t1"] = map[string]any{"order_id": "order-9"}
	orders := &fakeOrders{approveErr: errors.New("order service down")}
	runner := newTestRunner(&fakeEngine{}, store, orders, &fakeNotifier{})

	result := runner.HandleApproval(context.Background(), ApprovalRequest{
		ThreadID: "t1", Approved: true,
	})

	assert.Contains(t, result.Response, "오류가 발생했습니다")
	assert.Empty(t, orders.approved)
}
