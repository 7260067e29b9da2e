package chat

import (
	"strings"
	"testing"
	"time"

	"github.com/nimbuslabs/nimbus/internal/session"
)

func userMsg(content string) session.Message {
	return session.Message{Role: session.RoleUser, Content: content}
}

func assistantMsg(content string) session.Message {
	return session.Message{Role: session.RoleAssistant, Content: content}
}

func TestRecentCities(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		history []session.Message
		want    []string
	}{
		{
			name:    "empty history",
			history: nil,
			want:    nil,
		},
		{
			name: "weather in pattern",
			history: []session.Message{
				userMsg("What's the weather in Tokyo?"),
			},
			want: []string{"Tokyo"},
		},
		{
			name: "forecast for pattern",
			history: []session.Message{
				userMsg("Give me the forecast for paris please"),
			},
			want: []string{"Paris"},
		},
		{
			name: "how is it in pattern",
			history: []session.Message{
				userMsg("How's it looking in berlin?"),
			},
			want: []string{"Berlin"},
		},
		{
			name: "temperature at pattern",
			history: []session.Message{
				userMsg("temperature at Oslo right now"),
			},
			want: []string{"Oslo"},
		},
		{
			name: "newest first and deduplicated",
			history: []session.Message{
				userMsg("weather in tokyo"),
				assistantMsg("Sunny."),
				userMsg("weather in london"),
				assistantMsg("Rainy."),
				userMsg("weather in tokyo again? I mean the weather in tokyo"),
			},
			want: []string{"Tokyo", "London"},
		},
		{
			name: "capped at three",
			history: []session.Message{
				userMsg("weather in tokyo"),
				userMsg("weather in london"),
				userMsg("weather in paris"),
				userMsg("weather in berlin"),
			},
			want: []string{"Berlin", "Paris", "London"},
		},
		{
			name: "assistant messages ignored",
			history: []session.Message{
				assistantMsg("The weather in Madrid is sunny."),
			},
			want: nil,
		},
		{
			name: "no city mention",
			history: []session.Message{
				userMsg("thanks, that was helpful"),
			},
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := RecentCities(tt.history)
			if len(got) != len(tt.want) {
				t.Fatalf("RecentCities = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("RecentCities[%d] = %q, want %q", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestRecentCitiesWindowLimit(t *testing.T) {
	t.Parallel()

	// A city mentioned more than ten user messages ago is out of scope.
	history := []session.Message{userMsg("weather in oldtown")}
	for i := 0; i < recentCityMessages; i++ {
		history = append(history, userMsg("just chatting"))
	}

	if got := RecentCities(history); len(got) != 0 {
		t.Errorf("expected stale city dropped, got %v", got)
	}
}

func TestBuildSystemPrompt(t *testing.T) {
	t.Parallel()
	now := time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC)

	sess := &session.Session{PreferredCity: "Tokyo"}
	prompt := BuildSystemPrompt(sess, []string{"London", "Paris"}, now)

	for _, want := range []string{
		"weather assistant",
		"Sunday, June 15, 2025",
		"preferred city is Tokyo",
		"London, Paris",
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q:\n%s", want, prompt)
		}
	}
}

func TestBuildSystemPromptWithoutContext(t *testing.T) {
	t.Parallel()
	now := time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC)

	prompt := BuildSystemPrompt(&session.Session{}, nil, now)
	if strings.Contains(prompt, "preferred city") {
		t.Error("prompt should not mention an unset preferred city")
	}
	if strings.Contains(prompt, "mentioned recently") {
		t.Error("prompt should not mention recent cities when there are none")
	}
}

func TestToModelMessages(t *testing.T) {
	t.Parallel()

	history := []session.Message{
		userMsg("one"),
		assistantMsg("two"),
		{Role: session.RoleTool, Content: "tool output"},
		userMsg("three"),
		assistantMsg("four"),
	}

	msgs := ToModelMessages(history, 20)
	if len(msgs) != 4 {
		t.Fatalf("expected tool messages skipped, got %d messages", len(msgs))
	}
	if msgs[0].Content[0].Text != "one" || msgs[3].Content[0].Text != "four" {
		t.Errorf("unexpected message order")
	}
}

func TestToModelMessagesWindow(t *testing.T) {
	t.Parallel()

	var history []session.Message
	for i := 0; i < 30; i++ {
		history = append(history, userMsg("message"), assistantMsg("reply"))
	}

	msgs := ToModelMessages(history, 20)
	if len(msgs) != 20 {
		t.Fatalf("expected window of 20, got %d", len(msgs))
	}
}
