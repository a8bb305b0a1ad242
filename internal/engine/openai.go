package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
	"golang.org/x/time/rate"
)

const (
	defaultModel       = "gpt-4o-mini"
	defaultTimeout     = 30 * time.Second
	defaultMaxRetries  = 2
	defaultBaseBackoff = 500 * time.Millisecond
	defaultRateLimit   = 5.0
	defaultBurst       = 10
)

// OpenAIConfig configures the OpenAI-backed engine.
type OpenAIConfig struct {
	APIKey  string
	Model   string
	BaseURL string
	Timeout time.Duration

	// RequestsPerSecond and Burst bound the client-side request rate.
	RequestsPerSecond float64
	Burst             int

	MaxRetries int
}

// OpenAI implements Engine via the OpenAI chat completions API.
type OpenAI struct {
	client     openai.Client
	model      shared.ChatModel
	limiter    *rate.Limiter
	maxRetries int
}

// NewOpenAI creates an OpenAI-backed engine.
func NewOpenAI(cfg OpenAIConfig) (*OpenAI, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai API key required")
	}

	model := cfg.Model
	if model == "" {
		model = defaultModel
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = defaultRateLimit
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = defaultBurst
	}
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithRequestTimeout(timeout),
		// The SDK retries internally as well; keep our own loop authoritative.
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &OpenAI{
		client:     openai.NewClient(opts...),
		model:      shared.ChatModel(model),
		limiter:    rate.NewLimiter(rate.Limit(rps), burst),
		maxRetries: maxRetries,
	}, nil
}

// Complete sends a completion request, retrying transient provider errors
// with exponential backoff.
func (o *OpenAI) Complete(ctx context.Context, req Request) (Response, error) {
	if len(req.Messages) == 0 {
		return Response{}, errors.New("messages are required")
	}

	if err := o.limiter.Wait(ctx); err != nil {
		return Response{}, fmt.Errorf("rate limiter: %w", err)
	}

	params := o.buildParams(req)

	var lastErr error
	for attempt := 0; attempt <= o.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := defaultBaseBackoff * time.Duration(1<<(attempt-1))
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return Response{}, ctx.Err()
			}
		}

		completion, err := o.client.Chat.Completions.New(ctx, params)
		if err == nil {
			return translateCompletion(completion), nil
		}

		lastErr = err
		if !isRetryable(err) {
			return Response{}, fmt.Errorf("openai completion: %w", err)
		}
	}

	return Response{}, fmt.Errorf("openai completion: max retries exceeded: %w", lastErr)
}

func (o *OpenAI) buildParams(req Request) openai.ChatCompletionNewParams {
	params := openai.ChatCompletionNewParams{
		Model:       o.model,
		Messages:    buildMessages(req.Messages),
		Temperature: openai.Float(req.Temperature),
	}

	if req.ForceJSON {
		obj := shared.NewResponseFormatJSONObjectParam()
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{OfJSONObject: &obj}
	}

	if tools := buildTools(req.Tools); len(tools) > 0 {
		params.Tools = tools
	}

	return params
}

// buildMessages maps the engine message list onto the chat completions wire
// shapes. Assistant messages carrying tool calls keep their call IDs so
// tool-result messages can reference them positionally.
func buildMessages(messages []Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			out = append(out, openai.SystemMessage(m.Content))
		case RoleUser:
			out = append(out, openai.UserMessage(m.Content))
		case RoleTool:
			if m.ToolCallID == "" {
				continue
			}
			content := m.Content
			if content == "" {
				content = "{}"
			}
			out = append(out, openai.ToolMessage(content, m.ToolCallID))
		case RoleAssistant:
			if len(m.ToolCalls) == 0 {
				out = append(out, openai.AssistantMessage(m.Content))
				continue
			}
			calls := make([]openai.ChatCompletionMessageToolCallParam, 0, len(m.ToolCalls))
			for _, tc := range m.ToolCalls {
				args := tc.Arguments
				if args == "" {
					args = "{}"
				}
				calls = append(calls, openai.ChatCompletionMessageToolCallParam{
					ID: tc.ID,
					Function: openai.ChatCompletionMessageToolCallFunctionParam{
						Name:      tc.Name,
						Arguments: args,
					},
				})
			}
			assistant := openai.ChatCompletionAssistantMessageParam{ToolCalls: calls}
			if m.Content != "" {
				assistant.Content = openai.ChatCompletionAssistantMessageParamContentUnion{
					OfString: openai.String(m.Content),
				}
			}
			out = append(out, openai.ChatCompletionMessageParamUnion{OfAssistant: &assistant})
		}
	}
	return out
}

func buildTools(defs []ToolDef) []openai.ChatCompletionToolParam {
	out := make([]openai.ChatCompletionToolParam, 0, len(defs))
	for _, def := range defs {
		if def.Name == "" {
			continue
		}
		fn := shared.FunctionDefinitionParam{
			Name:        def.Name,
			Description: openai.String(def.Description),
		}
		if len(def.Parameters) > 0 {
			fn.Parameters = shared.FunctionParameters(def.Parameters)
		}
		out = append(out, openai.ChatCompletionToolParam{Function: fn})
	}
	return out
}

func translateCompletion(completion *openai.ChatCompletion) Response {
	var resp Response
	if completion == nil || len(completion.Choices) == 0 {
		return resp
	}

	msg := completion.Choices[0].Message
	resp.Content = msg.Content
	for _, tc := range msg.ToolCalls {
		resp.ToolCalls = append(resp.ToolCalls, ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}
	return resp
}

// isRetryable reports whether a provider error is transient. Rate limits and
// server-side failures retry; everything else surfaces immediately.
func isRetryable(err error) bool {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429 || apiErr.StatusCode >= 500
	}
	// Transport-level failures (connection reset, timeout) arrive as plain
	// errors from the HTTP client.
	return errors.Is(err, context.DeadlineExceeded)
}
