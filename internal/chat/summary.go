package chat

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/google/uuid"

	"github.com/nimbuslabs/nimbus/internal/session"
)

const (
	summaryTimeout       = 15 * time.Second
	summaryInputMaxRunes = 4000
)

const summaryPrompt = `Summarize this conversation between a user and a weather assistant in 2-3 sentences.
Mention the cities and topics discussed. Return ONLY the summary text.

Conversation:
%s

Summary:`

// Summarize generates a short summary of a conversation transcript.
func (a *Agent) Summarize(ctx context.Context, transcript string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, summaryTimeout)
	defer cancel()

	runes := []rune(transcript)
	if len(runes) > summaryInputMaxRunes {
		transcript = string(runes[len(runes)-summaryInputMaxRunes:])
	}

	resp, err := genkit.Generate(ctx, a.g,
		ai.WithModelName(a.modelName),
		ai.WithPrompt(summaryPrompt, transcript),
	)
	if err != nil {
		return "", classifyModelError(err)
	}
	return strings.TrimSpace(resp.Text()), nil
}

// Summary summarizes a session's conversation. Empty sessions yield an
// empty summary without a model call.
func (m *Manager) Summary(ctx context.Context, sessionID uuid.UUID) (string, error) {
	history, err := m.store.History(ctx, sessionID)
	if err != nil {
		return "", err
	}

	transcript := formatTranscript(history)
	if transcript == "" {
		return "", nil
	}
	return m.agent.Summarize(ctx, transcript)
}

func formatTranscript(history []session.Message) string {
	var b strings.Builder
	for _, msg := range history {
		switch msg.Role {
		case session.RoleUser:
			fmt.Fprintf(&b, "User: %s\n", msg.Content)
		case session.RoleAssistant:
			fmt.Fprintf(&b, "Assistant: %s\n", msg.Content)
		}
	}
	return strings.TrimSpace(b.String())
}
