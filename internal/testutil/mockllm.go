package testutil

import (
	"context"
	"strings"
	"sync"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
)

// MockModelName is the provider-qualified name of the mock model.
const MockModelName = "mock/test-model"

// MockLLM provides deterministic model responses for testing. It
// matches the last user message against registered patterns and returns
// the corresponding response.
//
// Tool requests are only emitted when the request offers tools, so a
// second-phase call (no tools) always resolves to text. Thread-safe.
type MockLLM struct {
	mu         sync.Mutex
	responses  []mockRule
	fallback   string
	calls      []MockCall
	failAfter  int // calls beyond this count fail with failErr
	failErr    error
	emptyAfter int // calls beyond this count return empty text (0 = never)
}

type mockRule struct {
	pattern  string            // substring match in user message
	response string            // text response
	tools    []*ai.ToolRequest // tool calls to request (nil = text only)
}

// MockCall records a single call to the mock model.
type MockCall struct {
	UserMessage   string             // last user message text
	Response      string             // response text returned
	ToolsOffered  int                // number of tools in the request
	System        string             // system prompt text, if any
	ToolResponses []*ai.ToolResponse // tool results carried in the request messages
}

// NewMockLLM creates a mock model with the given fallback response.
func NewMockLLM(fallback string) *MockLLM {
	return &MockLLM{fallback: fallback}
}

// AddResponse registers a pattern-response pair. Patterns are matched
// case-insensitively in registration order; first match wins.
func (m *MockLLM) AddResponse(pattern, response string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = append(m.responses, mockRule{
		pattern:  strings.ToLower(pattern),
		response: response,
	})
}

// AddToolResponse registers a pattern that triggers tool requests when
// the model call offers tools.
func (m *MockLLM) AddToolResponse(pattern string, tools []*ai.ToolRequest, textResponse string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = append(m.responses, mockRule{
		pattern:  strings.ToLower(pattern),
		response: textResponse,
		tools:    tools,
	})
}

// FailAfter makes every call beyond the first n return err. The failing
// call is still recorded.
func (m *MockLLM) FailAfter(n int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failAfter = n
	m.failErr = err
}

// EmptyAfter makes every call beyond the first n return empty text.
func (m *MockLLM) EmptyAfter(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.emptyAfter = n
}

// Calls returns a copy of all recorded calls.
func (m *MockLLM) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]MockCall, len(m.calls))
	copy(cp, m.calls)
	return cp
}

// Reset clears recorded calls, keeping registered responses.
func (m *MockLLM) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
}

// RegisterModel registers the mock as a Genkit model named
// "mock/test-model".
func (m *MockLLM) RegisterModel(g *genkit.Genkit) ai.Model {
	return genkit.DefineModel(g, MockModelName, &ai.ModelOptions{
		Label: "Mock Test Model",
		Supports: &ai.ModelSupports{
			Multiturn:  true,
			Tools:      true,
			SystemRole: true,
			Media:      false,
		},
	}, m.generate)
}

func (m *MockLLM) generate(ctx context.Context, req *ai.ModelRequest, cb ai.ModelStreamCallback) (*ai.ModelResponse, error) {
	var userText, systemText string
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == ai.RoleUser {
			userText = req.Messages[i].Text()
			break
		}
	}
	var toolResponses []*ai.ToolResponse
	for _, msg := range req.Messages {
		if msg.Role == ai.RoleSystem {
			systemText = msg.Text()
		}
		if msg.Role == ai.RoleTool {
			for _, part := range msg.Content {
				if part.ToolResponse != nil {
					toolResponses = append(toolResponses, part.ToolResponse)
				}
			}
		}
	}

	m.mu.Lock()
	var matched *mockRule
	lower := strings.ToLower(userText)
	for i := range m.responses {
		if strings.Contains(lower, m.responses[i].pattern) {
			matched = &m.responses[i]
			break
		}
	}

	responseText := m.fallback
	if matched != nil {
		responseText = matched.response
	}

	callCount := len(m.calls) + 1
	if m.emptyAfter > 0 && callCount > m.emptyAfter {
		responseText = ""
	}
	failing := m.failErr != nil && callCount > m.failAfter

	m.calls = append(m.calls, MockCall{
		UserMessage:   userText,
		Response:      responseText,
		ToolsOffered:  len(req.Tools),
		System:        systemText,
		ToolResponses: toolResponses,
	})
	failErr := m.failErr
	m.mu.Unlock()

	if failing {
		return nil, failErr
	}

	if cb != nil {
		_ = cb(ctx, &ai.ModelResponseChunk{
			Content: []*ai.Part{ai.NewTextPart(responseText)},
		})
	}

	var parts []*ai.Part
	if matched != nil && len(matched.tools) > 0 && len(req.Tools) > 0 {
		for _, tr := range matched.tools {
			parts = append(parts, &ai.Part{
				Kind:        ai.PartToolRequest,
				ToolRequest: tr,
			})
		}
	}
	parts = append(parts, ai.NewTextPart(responseText))

	return &ai.ModelResponse{
		Request: req,
		Message: &ai.Message{
			Role:    ai.RoleModel,
			Content: parts,
		},
	}, nil
}
