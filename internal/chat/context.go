package chat

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/firebase/genkit/go/ai"

	"github.com/nimbuslabs/nimbus/internal/session"
)

const (
	// recentCityMessages bounds how far back city extraction looks.
	recentCityMessages = 10

	// maxRecentCities caps the cities injected into the system prompt.
	maxRecentCities = 3
)

// cityPatterns match city mentions in user messages. Matching is done
// on the lowercased message; captures are title-cased afterwards.
var cityPatterns = []*regexp.Regexp{
	regexp.MustCompile(`weather (?:in|at|for) (\w+)`),
	regexp.MustCompile(`how.*(?:in|at) (\w+)`),
	regexp.MustCompile(`temperature (?:in|at|for) (\w+)`),
	regexp.MustCompile(`forecast (?:in|at|for) (\w+)`),
}

// RecentCities extracts up to three distinct cities from the most
// recent user messages, newest first.
func RecentCities(history []session.Message) []string {
	var userMessages []string
	for i := len(history) - 1; i >= 0 && len(userMessages) < recentCityMessages; i-- {
		if history[i].Role == session.RoleUser {
			userMessages = append(userMessages, history[i].Content)
		}
	}

	var cities []string
	seen := make(map[string]bool)
	for _, msg := range userMessages {
		lower := strings.ToLower(msg)
		for _, pattern := range cityPatterns {
			for _, match := range pattern.FindAllStringSubmatch(lower, -1) {
				city := titleCase(match[1])
				if seen[city] {
					continue
				}
				seen[city] = true
				cities = append(cities, city)
				if len(cities) == maxRecentCities {
					return cities
				}
			}
		}
	}
	return cities
}

func titleCase(word string) string {
	if word == "" {
		return word
	}
	return strings.ToUpper(word[:1]) + strings.ToLower(word[1:])
}

// BuildSystemPrompt assembles the per-turn system prompt from the
// session's preferences and recent conversation context.
func BuildSystemPrompt(sess *session.Session, recentCities []string, now time.Time) string {
	var b strings.Builder
	b.WriteString("You are Nimbus, a friendly weather assistant. ")
	b.WriteString("You help users with weather conditions, forecasts, and related questions. ")
	b.WriteString("Use the available tools to fetch real data instead of guessing. ")
	b.WriteString("When a tool fails, tell the user what went wrong and suggest an alternative. ")
	b.WriteString("Keep answers concise and conversational.\n")

	fmt.Fprintf(&b, "\nToday's date is %s.\n", now.Format("Monday, January 2, 2006"))

	if sess != nil && sess.PreferredCity != "" {
		fmt.Fprintf(&b, "\nThe user's preferred city is %s. Use it when they don't name a city.\n", sess.PreferredCity)
	}
	if len(recentCities) > 0 {
		fmt.Fprintf(&b, "\nCities mentioned recently in this conversation: %s.\n",
			strings.Join(recentCities, ", "))
	}
	return b.String()
}

// ToModelMessages converts stored history into model messages, keeping
// only the newest window of user and assistant turns.
func ToModelMessages(history []session.Message, window int) []*ai.Message {
	if window <= 0 {
		window = len(history)
	}

	var conversational []session.Message
	for _, msg := range history {
		if msg.Role == session.RoleUser || msg.Role == session.RoleAssistant {
			conversational = append(conversational, msg)
		}
	}
	if len(conversational) > window {
		conversational = conversational[len(conversational)-window:]
	}

	messages := make([]*ai.Message, 0, len(conversational))
	for _, msg := range conversational {
		switch msg.Role {
		case session.RoleUser:
			messages = append(messages, ai.NewUserMessage(ai.NewTextPart(msg.Content)))
		case session.RoleAssistant:
			messages = append(messages, ai.NewModelMessage(ai.NewTextPart(msg.Content)))
		}
	}
	return messages
}
