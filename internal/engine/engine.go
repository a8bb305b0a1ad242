// Package engine abstracts the conversational reasoning provider.
//
// The orchestration core treats the provider as opaque: an ordered list of
// messages plus optional bound tool schemas go in, free text and/or structured
// tool-call requests come out. No other contract is assumed.
package engine

import "context"

// Role identifies the author of a message sent to the reasoning provider.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is one entry in a completion request.
type Message struct {
	Role    Role
	Content string

	// ToolCalls carries structured action requests on assistant messages.
	ToolCalls []ToolCall

	// ToolCallID links a tool-result message to the call that produced it.
	ToolCallID string
}

// ToolCall is a provider-issued request to invoke an external capability.
// Arguments is the raw JSON argument object as emitted by the provider.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string
}

// ToolDef describes one invocable capability bound to a completion request.
// Parameters is a JSON-schema object describing the argument shape.
type ToolDef struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// Request is a single completion invocation.
type Request struct {
	Messages []Message
	Tools    []ToolDef

	// ForceJSON constrains the provider to emit a single JSON object.
	// Used by the supervisor router's structured-output contract.
	ForceJSON bool

	Temperature float64
}

// Response is the provider's answer: free text, tool-call requests, or both.
type Response struct {
	Content   string
	ToolCalls []ToolCall
}

// Engine is the reasoning provider contract.
type Engine interface {
	Complete(ctx context.Context, req Request) (Response, error)
}
