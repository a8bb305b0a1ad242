// Package agent implements the conversational orchestration core: supervisor
// routing, per-task execution with bound tools, self-reflection retries, and
// the approval gate for purchase commitment.
package agent

import (
	"context"
	"encoding/json"

	"github.com/fyrsmithlabs/shopd/internal/engine"
)

// DefaultMaxIterations bounds task executor invocations within one run.
const DefaultMaxIterations = 15

// TaskType identifies one of the specialized task executors.
type TaskType string

const (
	TaskSearch   TaskType = "search"
	TaskReview   TaskType = "review"
	TaskCart     TaskType = "cart"
	TaskCheckout TaskType = "checkout"
	TaskSupport  TaskType = "support"
)

// AllTasks returns the closed set of task types.
func AllTasks() []TaskType {
	return []TaskType{TaskSearch, TaskReview, TaskCart, TaskCheckout, TaskSupport}
}

// Valid reports whether t is a member of the closed task set.
func (t TaskType) Valid() bool {
	switch t {
	case TaskSearch, TaskReview, TaskCart, TaskCheckout, TaskSupport:
		return true
	}
	return false
}

// Event is one transcript entry: a user message, an assistant message
// (optionally carrying tool-call requests), or a tool result.
type Event struct {
	Role       engine.Role
	Content    string
	ToolCalls  []engine.ToolCall
	ToolCallID string
	ToolName   string
}

// ToolResult is the outcome of dispatching one tool call. Content is always
// JSON; failures carry the {"error": ...} marker instead of an exception.
type ToolResult struct {
	CallID  string
	Name    string
	Content string
	IsError bool
}

// Toolset binds task types to invocable capabilities.
//
// Dispatch executes one executor turn's calls; implementations may run them
// concurrently but must return results in request order, one result per call,
// and must never return an error; failures become error-marker results.
type Toolset interface {
	Definitions(task TaskType) []engine.ToolDef
	Dispatch(ctx context.Context, calls []engine.ToolCall) []ToolResult
}

// TurnState is the only mutable object of a single orchestration run. It is
// constructed fresh per inbound message, threaded through every graph node,
// and discarded at run end after its context deltas are persisted.
type TurnState struct {
	Transcript []Event

	UserID   string
	ThreadID string

	SelectedTask TaskType
	ActiveTask   TaskType

	// Context holds durable session facts loaded from storage; keys are
	// developer-defined, values opaque to the core.
	Context map[string]any

	DraftOrderID string
	CartSnapshot []any

	ApprovalRequired bool
	ApprovalPayload  map[string]any

	IterationCount int

	RetryHint   string
	ShouldRetry bool

	Failure error
}

// NewTurnState builds the initial state for an inbound message and the
// previously persisted session context.
func NewTurnState(message, userID, threadID string, sessionContext map[string]any) *TurnState {
	if sessionContext == nil {
		sessionContext = map[string]any{}
	}

	state := &TurnState{
		Transcript: []Event{{Role: engine.RoleUser, Content: message}},
		UserID:     userID,
		ThreadID:   threadID,
		Context:    sessionContext,
	}

	if id, ok := sessionContext["current_order_id"].(string); ok {
		state.DraftOrderID = id
	}
	if items, ok := sessionContext["cart_items"].([]any); ok {
		state.CartSnapshot = items
	}

	return state
}

// Append adds an event to the transcript. The transcript is append-only
// within a run; its ordering is the sole conversational ordering guarantee.
func (s *TurnState) Append(ev Event) {
	s.Transcript = append(s.Transcript, ev)
}

// LastEvent returns the most recent transcript event, nil when empty.
func (s *TurnState) LastEvent() *Event {
	if len(s.Transcript) == 0 {
		return nil
	}
	return &s.Transcript[len(s.Transcript)-1]
}

// Recent returns at most n of the latest transcript events.
func (s *TurnState) Recent(n int) []Event {
	if len(s.Transcript) <= n {
		return s.Transcript
	}
	return s.Transcript[len(s.Transcript)-n:]
}

// ContextDeltas returns the session-context updates to persist at run end.
func (s *TurnState) ContextDeltas() map[string]any {
	deltas := map[string]any{}
	if s.DraftOrderID != "" {
		deltas["current_order_id"] = s.DraftOrderID
	}
	if len(s.CartSnapshot) > 0 {
		deltas["cart_items"] = s.CartSnapshot
	}
	return deltas
}

// hasErrorMarker reports whether a tool-result body carries the structured
// error marker {"error": ...} produced by the tool invocation layer.
func hasErrorMarker(content string) bool {
	var body map[string]json.RawMessage
	if err := json.Unmarshal([]byte(content), &body); err != nil {
		return false
	}
	_, ok := body["error"]
	return ok
}
