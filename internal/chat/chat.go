// Package chat implements the conversation orchestrator: the two-phase
// tool-calling loop, per-turn context assembly, and the session turn
// manager the API layer drives.
package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"golang.org/x/time/rate"

	"github.com/nimbuslabs/nimbus/internal/log"
	"github.com/nimbuslabs/nimbus/internal/tools"
)

const (
	// llmCallTimeout bounds each individual model call.
	llmCallTimeout = 30 * time.Second

	// fallbackResponseMessage is returned when the model produces no text.
	fallbackResponseMessage = "I'm sorry, I couldn't come up with a response. Could you rephrase your question?"
)

// Config contains the Agent's dependencies.
type Config struct {
	Genkit   *genkit.Genkit
	Registry *tools.Registry
	ToolRefs []ai.ToolRef
	Logger   log.Logger

	ModelName   string // provider-qualified, e.g. "openai/gpt-4o"
	Temperature float32
	MaxTokens   int

	RateLimiter *rate.Limiter // nil = default limiter
}

func (cfg Config) validate() error {
	if cfg.Genkit == nil {
		return fmt.Errorf("genkit instance is required")
	}
	if cfg.Registry == nil {
		return fmt.Errorf("tool registry is required")
	}
	if cfg.Logger == nil {
		return fmt.Errorf("logger is required")
	}
	if cfg.ModelName == "" {
		return fmt.Errorf("model name is required")
	}
	return nil
}

// Agent runs the two-phase conversation loop.
//
// Phase one offers tools to the model and asks Genkit to return tool
// requests instead of executing them. The agent runs the requests
// through the registry itself, then makes a second call carrying the
// tool results so the model can compose its answer. The second call
// advertises no tools, which bounds every turn at one round of calls.
//
// Agent is stateless; all fields are read-only after construction.
type Agent struct {
	g           *genkit.Genkit
	registry    *tools.Registry
	toolRefs    []ai.ToolRef
	logger      log.Logger
	modelName   string
	temperature float32
	maxTokens   int
	rateLimiter *rate.Limiter
	toolNames   string // cached for logging
}

// Response is the outcome of one conversation turn.
type Response struct {
	Text      string
	ToolsUsed []string
	Weather   map[string]any // payload of the first successful weather tool call, if any
}

// New creates an Agent.
func New(cfg Config) (*Agent, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	rl := cfg.RateLimiter
	if rl == nil {
		rl = rate.NewLimiter(10, 30)
	}

	names := make([]string, 0, len(cfg.Registry.List()))
	for _, d := range cfg.Registry.List() {
		names = append(names, d.Name)
	}

	a := &Agent{
		g:           cfg.Genkit,
		registry:    cfg.Registry,
		toolRefs:    cfg.ToolRefs,
		logger:      cfg.Logger,
		modelName:   cfg.ModelName,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		rateLimiter: rl,
		toolNames:   strings.Join(names, ", "),
	}

	a.logger.Info("chat agent initialized",
		"model", a.modelName,
		"tools", a.toolNames)
	return a, nil
}

// Converse runs one turn: system prompt, prior history, and the new
// user message in; final text and tool outcomes out.
func (a *Agent) Converse(ctx context.Context, systemPrompt string, history []*ai.Message, userMessage string) (*Response, error) {
	messages := deepCopyMessages(history)

	first, err := a.generate(ctx,
		ai.WithModelName(a.modelName),
		ai.WithSystem(systemPrompt),
		ai.WithMessages(messages...),
		ai.WithPrompt(userMessage),
		ai.WithTools(a.toolRefs...),
		ai.WithReturnToolRequests(true),
		ai.WithConfig(&ai.GenerationCommonConfig{
			Temperature:     float64(a.temperature),
			MaxOutputTokens: a.maxTokens,
		}),
	)
	if err != nil {
		return nil, classifyModelError(err)
	}

	requests := first.ToolRequests()
	if len(requests) == 0 {
		text := strings.TrimSpace(first.Text())
		if text == "" {
			a.logger.Warn("model returned empty response with no tool requests")
			text = fallbackResponseMessage
		}
		return &Response{Text: text}, nil
	}

	toolsUsed, weather, responseParts, err := a.executeTools(ctx, requests)
	if err != nil {
		return nil, err
	}

	// Second call: the model sees its own tool requests and their
	// results, with no tools offered.
	followup := append(messages, ai.NewUserMessage(ai.NewTextPart(userMessage)))
	if first.Message != nil {
		followup = append(followup, first.Message)
	}
	followup = append(followup, &ai.Message{
		Role:    ai.RoleTool,
		Content: responseParts,
	})

	second, err := a.generate(ctx,
		ai.WithModelName(a.modelName),
		ai.WithSystem(systemPrompt),
		ai.WithMessages(followup...),
		ai.WithConfig(&ai.GenerationCommonConfig{
			Temperature:     float64(a.temperature),
			MaxOutputTokens: a.maxTokens,
		}),
	)

	var text string
	if err != nil {
		// Degrade to the first call's text rather than failing the
		// whole turn after tools already ran.
		firstText := strings.TrimSpace(first.Text())
		if firstText == "" {
			return nil, classifyModelError(err)
		}
		a.logger.Warn("second model call failed, using first-phase text", "error", err)
		text = firstText
	} else {
		text = strings.TrimSpace(second.Text())
		if text == "" {
			// An empty second answer degrades the same way a failed one
			// does: first-phase text before the canned message.
			text = strings.TrimSpace(first.Text())
		}
	}
	if text == "" {
		text = fallbackResponseMessage
	}

	return &Response{
		Text:      text,
		ToolsUsed: toolsUsed,
		Weather:   weather,
	}, nil
}

// executeTools runs each requested tool through the registry and builds
// the tool-response parts for the second model call. The first
// successful weather payload wins; later ones are ignored.
func (a *Agent) executeTools(ctx context.Context, requests []*ai.ToolRequest) ([]string, map[string]any, []*ai.Part, error) {
	var (
		toolsUsed []string
		weather   map[string]any
		parts     []*ai.Part
	)

	for _, req := range requests {
		args := coerceArgs(req.Input)
		if args == nil {
			a.logger.Warn("malformed tool arguments, substituting empty object", "tool", req.Name)
			args = map[string]any{}
		}

		// Call only fails on context cancellation; propagate it as-is so
		// the API layer does not mistake it for a model failure.
		result, err := a.registry.Call(ctx, req.Name, args)
		if err != nil {
			return nil, nil, nil, err
		}

		toolsUsed = append(toolsUsed, req.Name)
		if weather == nil && result.Status == tools.StatusSuccess && tools.WeatherTools[req.Name] {
			if _, ok := result.Data["temperature"]; ok {
				weather = result.Data
			}
		}

		parts = append(parts, ai.NewToolResponsePart(&ai.ToolResponse{
			Name:   req.Name,
			Ref:    req.Ref,
			Output: result,
		}))
	}
	return toolsUsed, weather, parts, nil
}

// coerceArgs normalizes a tool request's input into argument form.
// Returns nil when the input cannot be interpreted as an object.
func coerceArgs(input any) map[string]any {
	switch v := input.(type) {
	case nil:
		return map[string]any{}
	case map[string]any:
		return v
	case string:
		var args map[string]any
		if err := json.Unmarshal([]byte(v), &args); err != nil {
			return nil
		}
		return args
	default:
		// Structured input from the provider; roundtrip through JSON.
		raw, err := json.Marshal(v)
		if err != nil {
			return nil
		}
		var args map[string]any
		if err := json.Unmarshal(raw, &args); err != nil {
			return nil
		}
		return args
	}
}

// generate runs one model call with a per-call timeout behind the
// proactive rate limiter. A failed call is never retried here; whether
// the turn is worth repeating is the HTTP caller's decision.
func (a *Agent) generate(ctx context.Context, opts ...ai.GenerateOption) (*ai.ModelResponse, error) {
	if a.rateLimiter != nil {
		if err := a.rateLimiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit wait: %w", err)
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, llmCallTimeout)
	defer cancel()

	start := time.Now()
	resp, err := genkit.Generate(callCtx, a.g, opts...)
	if err != nil {
		return nil, fmt.Errorf("generate: %w", err)
	}
	a.logger.Debug("model call succeeded", "elapsed", time.Since(start))
	return resp, nil
}

// deepCopyMessages creates independent copies of message structs.
//
// Genkit's renderMessages() modifies msg.Content in place, so concurrent
// turns sharing message objects race without this. Verified against
// github.com/firebase/genkit/go v1.4.0.
func deepCopyMessages(msgs []*ai.Message) []*ai.Message {
	if msgs == nil {
		return nil
	}
	copied := make([]*ai.Message, len(msgs))
	for i, msg := range msgs {
		parts := make([]*ai.Part, len(msg.Content))
		for j, part := range msg.Content {
			parts[j] = deepCopyPart(part)
		}
		copied[i] = &ai.Message{
			Role:     msg.Role,
			Content:  parts,
			Metadata: shallowCopyMap(msg.Metadata),
		}
	}
	return copied
}

// deepCopyPart copies a part. ToolRequest.Input and ToolResponse.Output
// are copied by reference; Genkit only mutates the Content slice.
func deepCopyPart(p *ai.Part) *ai.Part {
	if p == nil {
		return nil
	}
	cp := &ai.Part{
		Kind:        p.Kind,
		ContentType: p.ContentType,
		Text:        p.Text,
		Custom:      shallowCopyMap(p.Custom),
		Metadata:    shallowCopyMap(p.Metadata),
	}
	if p.ToolRequest != nil {
		cp.ToolRequest = &ai.ToolRequest{
			Name:  p.ToolRequest.Name,
			Ref:   p.ToolRequest.Ref,
			Input: p.ToolRequest.Input,
		}
	}
	if p.ToolResponse != nil {
		cp.ToolResponse = &ai.ToolResponse{
			Name:   p.ToolResponse.Name,
			Ref:    p.ToolResponse.Ref,
			Output: p.ToolResponse.Output,
		}
	}
	return cp
}

func shallowCopyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	cp := make(map[string]any, len(m))
	for k, v := range m {
		cp[k] = v
	}
	return cp
}
