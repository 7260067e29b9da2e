package chat

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/google/uuid"

	"github.com/nimbuslabs/nimbus/internal/log"
	"github.com/nimbuslabs/nimbus/internal/session"
)

// MaxMessageLength caps user message length in characters.
const MaxMessageLength = 1000

// Store is the session persistence the manager depends on.
type Store interface {
	FindOrCreate(ctx context.Context, id uuid.UUID) (*session.Session, error)
	History(ctx context.Context, id uuid.UUID) ([]session.Message, error)
	AppendMessages(ctx context.Context, id uuid.UUID, messages []session.Message) error
	SetPreferredCityIfUnset(ctx context.Context, id uuid.UUID, city string) (bool, error)
}

// Conversationalist is the model-facing surface the manager drives.
// Satisfied by *Agent.
type Conversationalist interface {
	Converse(ctx context.Context, systemPrompt string, history []*ai.Message, userMessage string) (*Response, error)
	Summarize(ctx context.Context, transcript string) (string, error)
}

// Manager ties sessions and the agent together: one HandleTurn call is
// one complete conversation turn.
type Manager struct {
	store         Store
	agent         Conversationalist
	contextWindow int
	logger        log.Logger
	now           func() time.Time
}

// TurnResult is what a completed turn reports back to the API layer.
type TurnResult struct {
	SessionID uuid.UUID      `json:"session_id"`
	Reply     string         `json:"response"`
	ToolsUsed []string       `json:"tools_used,omitempty"`
	Weather   map[string]any `json:"weather_data,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// NewManager creates a turn manager. contextWindow bounds how many
// stored messages each turn sends to the model.
func NewManager(store Store, agent Conversationalist, contextWindow int, logger log.Logger) *Manager {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Manager{
		store:         store,
		agent:         agent,
		contextWindow: contextWindow,
		logger:        logger,
		now:           time.Now,
	}
}

// HandleTurn runs one conversation turn against a session.
//
// The session is created transparently when absent or expired. An
// explicit cityHint fills the preferred city when none is set yet.
// History and preferences feed the system prompt; the user and
// assistant messages are persisted in a single batch only after the
// turn succeeds, so a failed turn leaves the session unchanged.
func (m *Manager) HandleTurn(ctx context.Context, sessionID uuid.UUID, message, cityHint string) (*TurnResult, error) {
	if len(message) == 0 {
		return nil, ErrEmptyMessage
	}
	if len([]rune(message)) > MaxMessageLength {
		return nil, fmt.Errorf("%w: limit is %d characters", ErrMessageTooLong, MaxMessageLength)
	}

	sess, err := m.store.FindOrCreate(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("finding session: %w", err)
	}

	if cityHint = strings.TrimSpace(cityHint); cityHint != "" && sess.PreferredCity == "" {
		set, err := m.store.SetPreferredCityIfUnset(ctx, sess.ID, cityHint)
		if err != nil {
			m.logger.Warn("applying city hint", "error", err)
		} else if set {
			sess.PreferredCity = cityHint
		}
	}

	history, err := m.store.History(ctx, sess.ID)
	if err != nil {
		return nil, fmt.Errorf("loading history: %w", err)
	}

	systemPrompt := BuildSystemPrompt(sess, RecentCities(history), m.now())
	modelHistory := ToModelMessages(history, m.contextWindow)

	start := m.now()
	resp, err := m.agent.Converse(ctx, systemPrompt, modelHistory, message)
	if err != nil {
		return nil, err
	}

	m.logger.Info("turn completed",
		"session_id", sess.ID,
		"tools_used", resp.ToolsUsed,
		"elapsed", m.now().Sub(start))

	assistantMeta := map[string]any{}
	if len(resp.ToolsUsed) > 0 {
		assistantMeta["tools_used"] = resp.ToolsUsed
	}
	if resp.Weather != nil {
		assistantMeta["weather_data"] = resp.Weather
	}
	if len(assistantMeta) == 0 {
		assistantMeta = nil
	}

	err = m.store.AppendMessages(ctx, sess.ID, []session.Message{
		{Role: session.RoleUser, Content: message},
		{Role: session.RoleAssistant, Content: resp.Text, Metadata: assistantMeta},
	})
	if err != nil {
		return nil, fmt.Errorf("persisting turn: %w", err)
	}

	// Best-effort city inference; never overrides an explicit choice
	// and never fails the turn.
	if sess.PreferredCity == "" {
		if city := InferPreferredCity(message); city != "" {
			if _, err := m.store.SetPreferredCityIfUnset(ctx, sess.ID, city); err != nil {
				m.logger.Warn("recording inferred city", "error", err)
			}
		}
	}

	return &TurnResult{
		SessionID: sess.ID,
		Reply:     resp.Text,
		ToolsUsed: resp.ToolsUsed,
		Weather:   resp.Weather,
		Timestamp: m.now().UTC(),
	}, nil
}
