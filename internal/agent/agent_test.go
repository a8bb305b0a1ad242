package agent

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/fyrsmithlabs/shopd/internal/engine"
)

// fakeEngine returns scripted completions in order. Once the script runs out
// it keeps returning the final entry, so bounded-loop tests can spin freely.
type fakeEngine struct {
	mu     sync.Mutex
	script []scriptedCompletion
	calls  []engine.Request
}

type scriptedCompletion struct {
	resp engine.Response
	err  error
}

func reply(content string) scriptedCompletion {
	return scriptedCompletion{resp: engine.Response{Content: content}}
}

func replyWithTools(content string, calls ...engine.ToolCall) scriptedCompletion {
	return scriptedCompletion{resp: engine.Response{Content: content, ToolCalls: calls}}
}

func replyErr(msg string) scriptedCompletion {
	return scriptedCompletion{err: errors.New(msg)}
}

func (f *fakeEngine) Complete(_ context.Context, req engine.Request) (engine.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = append(f.calls, req)

	if len(f.script) == 0 {
		return engine.Response{}, errors.New("fake engine: no scripted completion")
	}

	idx := len(f.calls) - 1
	if idx >= len(f.script) {
		idx = len(f.script) - 1
	}
	step := f.script[idx]
	return step.resp, step.err
}

func (f *fakeEngine) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeEngine) call(i int) engine.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[i]
}

// fakeToolset answers every dispatched call from a name-keyed result table.
type fakeToolset struct {
	mu      sync.Mutex
	results map[string]ToolResult
	batches [][]engine.ToolCall
}

func newFakeToolset() *fakeToolset {
	return &fakeToolset{results: map[string]ToolResult{}}
}

func (f *fakeToolset) onCall(name, content string, isError bool) {
	f.results[name] = ToolResult{Name: name, Content: content, IsError: isError}
}

func (f *fakeToolset) Definitions(task TaskType) []engine.ToolDef {
	return []engine.ToolDef{{
		Name:        "noop",
		Description: "test tool",
		Parameters:  map[string]any{"type": "object"},
	}}
}

func (f *fakeToolset) Dispatch(_ context.Context, calls []engine.ToolCall) []ToolResult {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.batches = append(f.batches, calls)

	out := make([]ToolResult, 0, len(calls))
	for _, call := range calls {
		res, ok := f.results[call.Name]
		if !ok {
			marker, _ := json.Marshal(map[string]string{"error": "unknown tool: " + call.Name})
			res = ToolResult{Name: call.Name, Content: string(marker), IsError: true}
		}
		res.CallID = call.ID
		out = append(out, res)
	}
	return out
}

// routeAs builds the JSON routing decision the supervisor expects.
func routeAs(task TaskType) scriptedCompletion {
	decision, _ := json.Marshal(map[string]string{
		"task":      string(task),
		"reasoning": "test routing",
	})
	return reply(string(decision))
}
