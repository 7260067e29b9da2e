package chat

import (
	"context"
	"fmt"
	"sync"

	"github.com/firebase/genkit/go/core"
	"github.com/firebase/genkit/go/genkit"
	"github.com/google/uuid"
)

// Input is the request payload for the chat flow.
type Input struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id,omitempty"` // empty = new session
	City      string `json:"city,omitempty"`       // optional preferred-city hint
}

// Output is the response payload from the chat flow.
type Output struct {
	Response  string         `json:"response"`
	SessionID string         `json:"session_id"`
	ToolsUsed []string       `json:"tools_used,omitempty"`
	Weather   map[string]any `json:"weather_data,omitempty"`
}

// FlowName is the registered name of the chat flow in Genkit.
const FlowName = "nimbus/chat"

// Flow is the chat flow type, exported for genkit.Handler in the API
// package.
type Flow = core.Flow[Input, Output, struct{}]

// Flow registration is global in Genkit and panics on re-registration,
// so the flow is a package-level singleton.
var (
	flowOnce sync.Once
	flow     *Flow
)

// NewFlow returns the chat flow singleton, defining it on first call.
func NewFlow(g *genkit.Genkit, manager *Manager) *Flow {
	flowOnce.Do(func() {
		flow = defineFlow(g, manager)
	})
	return flow
}

// ResetFlowForTesting resets the singleton so tests can define the flow
// with their own configuration. Not safe for concurrent use.
func ResetFlowForTesting() {
	flowOnce = sync.Once{}
	flow = nil
}

func defineFlow(g *genkit.Genkit, manager *Manager) *Flow {
	return genkit.DefineFlow(g, FlowName,
		func(ctx context.Context, input Input) (Output, error) {
			sessionID := uuid.Nil
			if input.SessionID != "" {
				var err error
				sessionID, err = uuid.Parse(input.SessionID)
				if err != nil {
					return Output{}, fmt.Errorf("%w: %w", ErrInvalidSession, err)
				}
			}

			result, err := manager.HandleTurn(ctx, sessionID, input.Message, input.City)
			if err != nil {
				return Output{SessionID: input.SessionID}, err
			}
			return Output{
				Response:  result.Reply,
				SessionID: result.SessionID.String(),
				ToolsUsed: result.ToolsUsed,
				Weather:   result.Weather,
			}, nil
		},
	)
}
