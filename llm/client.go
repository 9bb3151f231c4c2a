package llm

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/quillagent/quill/errors"
	"github.com/quillagent/quill/session"
	"github.com/quillagent/quill/tools"
)

// LLMClient is the interface for interacting with a language model backend.
// The returned assistant message carries either a terminal text answer or one
// or more tool calls, plus token usage when the provider reports it.
type LLMClient interface {
	Chat(ctx context.Context, messages []session.Message, availableTools []tools.Tool) (*session.Message, error)
}

// NewClient builds the client named in the config. The name doubles as the
// label attached to the client's errors.
func NewClient(ctx context.Context, name, model string) (LLMClient, error) {
	switch name {
	case "anthropic":
		return NewAnthropicClient(ctx, model)
	case "openai":
		return NewOpenAIClient(ctx, model)
	case "gemini":
		return NewGeminiClient(ctx, model)
	case "bedrock":
		return NewBedrockClient(ctx, model)
	default:
		return nil, errors.New("unknown llm client '%s' (want anthropic, openai, gemini, or bedrock)", name)
	}
}

// newCallID mints a tool-call identifier for providers that do not assign
// their own.
func newCallID() string {
	return "call_" + uuid.NewString()
}

// schemaForTool converts a tool's ParameterSpecs into a JSON-schema object of
// the shape every provider accepts for tool declarations.
func schemaForTool(t tools.Tool) (map[string]interface{}, []string) {
	props := map[string]interface{}{}
	var required []string
	for _, p := range t.Parameters() {
		typ := p.Type
		if typ == "" {
			typ = "string"
		}
		prop := map[string]interface{}{"type": typ}
		if p.Description != "" {
			prop["description"] = p.Description
		}
		if p.Default != nil {
			prop["default"] = p.Default
		}
		props[p.Name] = prop
		if p.Required {
			required = append(required, p.Name)
		}
	}
	return props, required
}

// MockClient is a scripted backend for tests. Each call pops the next
// response; when the script is exhausted it echoes the last user message.
type MockClient struct {
	Responses []*session.Message
	Errs      []error
	Calls     int
}

func (m *MockClient) Chat(ctx context.Context, messages []session.Message, availableTools []tools.Tool) (*session.Message, error) {
	idx := m.Calls
	m.Calls++
	if idx < len(m.Errs) && m.Errs[idx] != nil {
		return nil, m.Errs[idx]
	}
	if idx < len(m.Responses) {
		return m.Responses[idx], nil
	}
	last := ""
	if len(messages) > 0 {
		last = messages[len(messages)-1].Content
	}
	return &session.Message{
		Role:    "assistant",
		Content: fmt.Sprintf("echo: %s", last),
	}, nil
}
