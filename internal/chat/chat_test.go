package chat_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"golang.org/x/time/rate"

	"github.com/nimbuslabs/nimbus/internal/chat"
	"github.com/nimbuslabs/nimbus/internal/log"
	"github.com/nimbuslabs/nimbus/internal/testutil"
	"github.com/nimbuslabs/nimbus/internal/tools"
)

type weatherInput struct {
	City string `json:"city"`
}

// testHarness bundles a mock model, a fake weather tool, and an agent
// wired against both.
type testHarness struct {
	mock  *testutil.MockLLM
	agent *chat.Agent
}

// newHarness builds an agent whose only tool is a canned get_weather.
// weatherResult controls what the tool returns.
func newHarness(t *testing.T, weatherResult tools.Result) *testHarness {
	t.Helper()
	return newHarnessWithHandler(t, func(_ context.Context, in weatherInput) tools.Result {
		if in.City == "" {
			return tools.Errorf(tools.ErrCodeValidation, "city is required")
		}
		return weatherResult
	})
}

func newHarnessWithHandler(t *testing.T, handler func(context.Context, weatherInput) tools.Result) *testHarness {
	t.Helper()
	ctx := context.Background()

	g := genkit.Init(ctx)
	mock := testutil.NewMockLLM("")
	mock.RegisterModel(g)

	registry := tools.NewRegistry(nil)
	if err := tools.Register(registry, tools.ToolGetWeather, "Current weather.", handler); err != nil {
		t.Fatalf("registering tool: %v", err)
	}

	ref := genkit.DefineTool(g, tools.ToolGetWeather, "Current weather.",
		func(tc *ai.ToolContext, in weatherInput) (tools.Result, error) {
			return handler(tc, in), nil
		})

	agent, err := chat.New(chat.Config{
		Genkit:      g,
		Registry:    registry,
		ToolRefs:    []ai.ToolRef{ref},
		Logger:      log.NewNop(),
		ModelName:   testutil.MockModelName,
		Temperature: 0.7,
		MaxTokens:   500,
		RateLimiter: rate.NewLimiter(rate.Inf, 0),
	})
	if err != nil {
		t.Fatalf("creating agent: %v", err)
	}

	return &testHarness{mock: mock, agent: agent}
}

func sunnyTokyo() tools.Result {
	return tools.Success("Current weather in Tokyo, Japan", map[string]any{
		"city":        "Tokyo",
		"temperature": 22.5,
		"conditions":  "Clear sky",
	})
}

func TestConverseDirectAnswer(t *testing.T) {
	h := newHarness(t, sunnyTokyo())
	h.mock.AddResponse("hello", "Hi! Ask me about the weather.")

	resp, err := h.agent.Converse(context.Background(), "system", nil, "hello there")
	if err != nil {
		t.Fatalf("Converse failed: %v", err)
	}
	if resp.Text != "Hi! Ask me about the weather." {
		t.Errorf("unexpected text: %q", resp.Text)
	}
	if len(resp.ToolsUsed) != 0 || resp.Weather != nil {
		t.Errorf("direct answer should not report tools: %+v", resp)
	}
	if calls := h.mock.Calls(); len(calls) != 1 {
		t.Errorf("expected a single model call, got %d", len(calls))
	}
}

func TestConverseTwoPhaseToolCall(t *testing.T) {
	h := newHarness(t, sunnyTokyo())
	h.mock.AddToolResponse("weather in tokyo",
		[]*ai.ToolRequest{{
			Name:  tools.ToolGetWeather,
			Ref:   "call-1",
			Input: map[string]any{"city": "Tokyo"},
		}},
		"It's 22.5°C and clear in Tokyo.")

	resp, err := h.agent.Converse(context.Background(), "system", nil, "What's the weather in Tokyo?")
	if err != nil {
		t.Fatalf("Converse failed: %v", err)
	}

	if resp.Text != "It's 22.5°C and clear in Tokyo." {
		t.Errorf("unexpected text: %q", resp.Text)
	}
	if len(resp.ToolsUsed) != 1 || resp.ToolsUsed[0] != tools.ToolGetWeather {
		t.Errorf("unexpected tools used: %v", resp.ToolsUsed)
	}
	if resp.Weather == nil || resp.Weather["temperature"] != 22.5 {
		t.Errorf("expected weather payload captured, got %v", resp.Weather)
	}

	calls := h.mock.Calls()
	if len(calls) != 2 {
		t.Fatalf("expected two model calls, got %d", len(calls))
	}
	if calls[0].ToolsOffered == 0 {
		t.Error("first call must offer tools")
	}
	if calls[1].ToolsOffered != 0 {
		t.Error("second call must not offer tools")
	}

	// Each result fed into the second call must carry the ref of the
	// request that produced it.
	if len(calls[1].ToolResponses) != 1 {
		t.Fatalf("expected one tool response in second call, got %d", len(calls[1].ToolResponses))
	}
	tr := calls[1].ToolResponses[0]
	if tr.Ref != "call-1" || tr.Name != tools.ToolGetWeather {
		t.Errorf("tool response not correlated: ref=%q name=%q", tr.Ref, tr.Name)
	}
}

func TestConverseToolFailureStillAnswers(t *testing.T) {
	h := newHarness(t, tools.Errorf(tools.ErrCodeNetwork, "upstream down"))
	h.mock.AddToolResponse("weather in tokyo",
		[]*ai.ToolRequest{{
			Name:  tools.ToolGetWeather,
			Ref:   "call-1",
			Input: map[string]any{"city": "Tokyo"},
		}},
		"I couldn't reach the weather service, sorry.")

	resp, err := h.agent.Converse(context.Background(), "system", nil, "weather in tokyo?")
	if err != nil {
		t.Fatalf("tool failure must not fail the turn: %v", err)
	}
	if resp.Weather != nil {
		t.Errorf("failed tool call must not produce weather data: %v", resp.Weather)
	}
	if len(resp.ToolsUsed) != 1 {
		t.Errorf("attempted tool should still be reported: %v", resp.ToolsUsed)
	}
}

func TestConverseWeatherRequiresTemperature(t *testing.T) {
	h := newHarness(t, tools.Success("ok", map[string]any{"city": "Tokyo"}))
	h.mock.AddToolResponse("weather in tokyo",
		[]*ai.ToolRequest{{
			Name:  tools.ToolGetWeather,
			Ref:   "call-1",
			Input: map[string]any{"city": "Tokyo"},
		}},
		"Here's what I found.")

	resp, err := h.agent.Converse(context.Background(), "system", nil, "weather in tokyo?")
	if err != nil {
		t.Fatalf("Converse failed: %v", err)
	}
	if resp.Weather != nil {
		t.Errorf("payload without temperature must not be captured: %v", resp.Weather)
	}
}

func TestConverseMalformedToolArgs(t *testing.T) {
	h := newHarness(t, sunnyTokyo())
	h.mock.AddToolResponse("weather",
		[]*ai.ToolRequest{{
			Name:  tools.ToolGetWeather,
			Ref:   "call-1",
			Input: "{{{not json",
		}},
		"Something went wrong with that lookup.")

	// Malformed arguments degrade to an empty object; the tool's own
	// validation produces an error result and the turn still succeeds.
	resp, err := h.agent.Converse(context.Background(), "system", nil, "weather please")
	if err != nil {
		t.Fatalf("malformed args must not fail the turn: %v", err)
	}
	if resp.Weather != nil {
		t.Errorf("no weather expected: %v", resp.Weather)
	}
	if len(resp.ToolsUsed) != 1 {
		t.Errorf("tool attempt should be reported: %v", resp.ToolsUsed)
	}
}

func TestConverseEmptyResponseFallback(t *testing.T) {
	h := newHarness(t, sunnyTokyo())
	// No patterns registered and an empty fallback: the model returns
	// empty text with no tool requests.
	resp, err := h.agent.Converse(context.Background(), "system", nil, "anything")
	if err != nil {
		t.Fatalf("Converse failed: %v", err)
	}
	if !strings.Contains(resp.Text, "rephrase") {
		t.Errorf("expected fallback message, got %q", resp.Text)
	}
}

func TestConverseEmptySecondAnswerUsesFirstText(t *testing.T) {
	h := newHarness(t, sunnyTokyo())
	h.mock.AddToolResponse("weather in tokyo",
		[]*ai.ToolRequest{{
			Name:  tools.ToolGetWeather,
			Ref:   "call-1",
			Input: map[string]any{"city": "Tokyo"},
		}},
		"Let me check the weather in Tokyo.")
	h.mock.EmptyAfter(1)

	resp, err := h.agent.Converse(context.Background(), "system", nil, "weather in tokyo?")
	if err != nil {
		t.Fatalf("Converse failed: %v", err)
	}
	if resp.Text != "Let me check the weather in Tokyo." {
		t.Errorf("empty second answer must fall back to first-phase text, got %q", resp.Text)
	}
	if len(resp.ToolsUsed) != 1 {
		t.Errorf("tool outcome lost in fallback: %v", resp.ToolsUsed)
	}
}

func TestConverseSecondCallFailureFallsBack(t *testing.T) {
	h := newHarness(t, sunnyTokyo())
	h.mock.AddToolResponse("weather in tokyo",
		[]*ai.ToolRequest{{
			Name:  tools.ToolGetWeather,
			Ref:   "call-1",
			Input: map[string]any{"city": "Tokyo"},
		}},
		"Checking Tokyo now.")
	h.mock.FailAfter(1, errors.New("502 bad gateway"))

	resp, err := h.agent.Converse(context.Background(), "system", nil, "weather in tokyo?")
	if err != nil {
		t.Fatalf("second call failure must degrade, not fail: %v", err)
	}
	if resp.Text != "Checking Tokyo now." {
		t.Errorf("expected first-phase text, got %q", resp.Text)
	}
	if resp.Weather == nil || resp.Weather["temperature"] != 22.5 {
		t.Errorf("weather payload lost in fallback: %v", resp.Weather)
	}
}

func TestConverseModelFailureNotRetried(t *testing.T) {
	h := newHarness(t, sunnyTokyo())
	h.mock.FailAfter(0, errors.New("503 service unavailable"))

	_, err := h.agent.Converse(context.Background(), "system", nil, "hello")
	if !errors.Is(err, chat.ErrModelUnavailable) {
		t.Fatalf("expected ErrModelUnavailable, got %v", err)
	}
	if calls := h.mock.Calls(); len(calls) != 1 {
		t.Errorf("a failed call must not be retried, got %d invocations", len(calls))
	}
}

func TestConverseToolCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h := newHarnessWithHandler(t, func(context.Context, weatherInput) tools.Result {
		cancel()
		return sunnyTokyo()
	})
	h.mock.AddToolResponse("weather",
		[]*ai.ToolRequest{{
			Name:  tools.ToolGetWeather,
			Ref:   "call-1",
			Input: map[string]any{"city": "Tokyo"},
		}},
		"unused")

	_, err := h.agent.Converse(ctx, "system", nil, "weather please")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if errors.Is(err, chat.ErrExecutionFailed) {
		t.Error("cancellation must not be reported as an execution failure")
	}
}

func TestConverseCarriesHistory(t *testing.T) {
	h := newHarness(t, sunnyTokyo())
	h.mock.AddResponse("follow-up", "As I said, it's sunny.")

	history := []*ai.Message{
		ai.NewUserMessage(ai.NewTextPart("weather in tokyo?")),
		ai.NewModelMessage(ai.NewTextPart("It's sunny in Tokyo.")),
	}
	resp, err := h.agent.Converse(context.Background(), "system prompt text", history, "a follow-up question")
	if err != nil {
		t.Fatalf("Converse failed: %v", err)
	}
	if resp.Text != "As I said, it's sunny." {
		t.Errorf("unexpected text: %q", resp.Text)
	}

	calls := h.mock.Calls()
	if len(calls) != 1 {
		t.Fatalf("expected one call, got %d", len(calls))
	}
	if calls[0].System == "" {
		t.Error("system prompt was not forwarded")
	}
}

func TestSummarize(t *testing.T) {
	h := newHarness(t, sunnyTokyo())
	h.mock.AddResponse("summarize this conversation", "The user asked about Tokyo weather.")

	summary, err := h.agent.Summarize(context.Background(), "User: weather in tokyo\nAssistant: Sunny.")
	if err != nil {
		t.Fatalf("Summarize failed: %v", err)
	}
	if summary != "The user asked about Tokyo weather." {
		t.Errorf("unexpected summary: %q", summary)
	}
}
