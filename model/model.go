package model

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/hupe1980/searchagent/core"
)

// ToolDefinition declaratively exposes a callable function to the model.
type ToolDefinition struct {
	Type     string             `json:"type"` // "function"
	Function FunctionDefinition `json:"function"`
}

// FunctionDefinition describes an individual function (tool) exposed to the model.
// Parameters is a JSON Schema object (draft agnostic, minimal subset expected).
type FunctionDefinition struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Parameters  map[string]interface{} `json:"parameters"` // JSON Schema
}

// Request captures the normalized model input for one round: the full
// conversation transcript so far plus the bound tool schemas.
type Request struct {
	Contents []core.Content   `json:"contents"`
	Tools    []ToolDefinition `json:"tools,omitempty"`
}

// TokenUsage captures token usage statistics for a response.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response is the complete model output for one round. Content carries the
// assistant text and/or the structured tool call requests in emission order.
type Response struct {
	ID           string       `json:"id"`
	Content      core.Content `json:"content"`
	FinishReason string       `json:"finish_reason"` // "stop", "length", "tool_calls", etc.
	Usage        *TokenUsage  `json:"usage,omitempty"`
}

// Info contains metadata about a model implementation.
type Info struct {
	Name          string `json:"name"`
	Provider      string `json:"provider"` // "openai", "anthropic", "mock", etc.
	SupportsTools bool   `json:"supports_tools"`
}

// Model is the minimal interface required by the agent loop to drive generation.
type Model interface {
	// Generate performs one chat-completion call with the given transcript
	// and bound tools. Implementations must honor ctx cancellation.
	Generate(ctx context.Context, req Request) (*Response, error)

	// Info returns information about the model implementation.
	Info() Info
}

// MockModel is a lightweight in-memory Model useful for tests & examples.
//
// Two modes are supported: a queue of scripted turns consumed in order
// (AddTextTurn / AddToolCallTurn / AddErrorTurn), or a GenerateFunc hook that
// computes a response per request. The hook takes precedence when set.
// Safe for concurrent use.
type MockModel struct {
	mu    sync.Mutex
	info  Info
	turns []mockTurn

	// GenerateFunc, when non-nil, fully replaces the scripted queue.
	GenerateFunc func(ctx context.Context, req Request) (*Response, error)
}

type mockTurn struct {
	resp *Response
	err  error
}

// NewMockModel constructs a MockModel with basic tool support enabled.
func NewMockModel(name, provider string) *MockModel {
	return &MockModel{
		info: Info{
			Name:          name,
			Provider:      provider,
			SupportsTools: true,
		},
	}
}

// AddTextTurn queues a final-answer turn with plain assistant text.
func (m *MockModel) AddTextTurn(text string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.turns = append(m.turns, mockTurn{resp: &Response{
		ID:           core.NewID(),
		Content:      core.NewAssistantContent(text),
		FinishReason: "stop",
	}})
}

// AddToolCallTurn queues a turn requesting the given tool calls in order.
// Calls without an ID are assigned one.
func (m *MockModel) AddToolCallTurn(calls ...core.FunctionCall) {
	parts := make([]core.Part, 0, len(calls))
	for _, call := range calls {
		if call.ID == "" {
			call.ID = core.NewID()
		}
		if call.Arguments == "" {
			call.Arguments = "{}"
		}
		parts = append(parts, core.FunctionCallPart{FunctionCall: call})
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.turns = append(m.turns, mockTurn{resp: &Response{
		ID:           core.NewID(),
		Content:      core.Content{Role: core.RoleAssistant, Parts: parts},
		FinishReason: "tool_calls",
	}})
}

// AddErrorTurn queues a turn that fails with err, simulating a provider fault.
func (m *MockModel) AddErrorTurn(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.turns = append(m.turns, mockTurn{err: err})
}

// Generate implements Model. With an empty queue and no GenerateFunc it
// echoes the last user message, which keeps simple examples self-contained.
func (m *MockModel) Generate(ctx context.Context, req Request) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if m.GenerateFunc != nil {
		return m.GenerateFunc(ctx, req)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.turns) > 0 {
		turn := m.turns[0]
		m.turns = m.turns[1:]
		if turn.err != nil {
			return nil, turn.err
		}
		return turn.resp, nil
	}

	var lastUser string
	for _, c := range req.Contents {
		if c.Role == core.RoleUser {
			lastUser = c.Text()
		}
	}
	return &Response{
		ID:           core.NewID(),
		Content:      core.NewAssistantContent(fmt.Sprintf("Mock response to: %s", lastUser)),
		FinishReason: "stop",
	}, nil
}

// Info implements Model interface.
func (m *MockModel) Info() Info { return m.info }

// ArgumentsJSON is a convenience for building FunctionCall argument payloads
// in tests and examples.
func ArgumentsJSON(args map[string]any) string {
	b, err := json.Marshal(args)
	if err != nil {
		return "{}"
	}
	return string(b)
}
