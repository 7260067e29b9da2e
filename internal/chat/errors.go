package chat

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for conversation turns. The API layer maps these to
// HTTP statuses with errors.Is.
var (
	// ErrInvalidSession indicates the session ID is malformed.
	ErrInvalidSession = errors.New("invalid session")

	// ErrEmptyMessage indicates a blank user message.
	ErrEmptyMessage = errors.New("message is empty")

	// ErrMessageTooLong indicates the message exceeds the length cap.
	ErrMessageTooLong = errors.New("message too long")

	// ErrRateLimited indicates the model provider rejected the call for
	// quota reasons.
	ErrRateLimited = errors.New("model rate limited")

	// ErrUnauthenticated indicates a rejected or missing API key.
	ErrUnauthenticated = errors.New("model authentication failed")

	// ErrModelUnavailable indicates a transient provider failure.
	ErrModelUnavailable = errors.New("model unavailable")

	// ErrExecutionFailed wraps unclassified generation failures.
	ErrExecutionFailed = errors.New("execution failed")
)

// Provider error substrings, matched case-insensitively. Genkit and the
// provider SDKs do not expose typed errors for these failures, so string
// matching is the only classification signal available. Re-evaluate if
// Genkit grows structured error types.
var (
	rateLimitPatterns   = []string{"rate limit", "quota exceeded", "429", "too many requests"}
	authPatterns        = []string{"401", "403", "unauthorized", "invalid api key", "permission denied", "authentication"}
	unavailablePatterns = []string{"500", "502", "503", "504", "unavailable", "overloaded", "connection reset", "timeout", "temporary"}
)

// classifyModelError wraps a provider error with the matching sentinel.
// Order matters: rate limiting and auth failures carry status codes that
// also appear in the transient group.
func classifyModelError(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	switch {
	case containsAny(msg, rateLimitPatterns...):
		return fmt.Errorf("%w: %w", ErrRateLimited, err)
	case containsAny(msg, authPatterns...):
		return fmt.Errorf("%w: %w", ErrUnauthenticated, err)
	case containsAny(msg, unavailablePatterns...):
		return fmt.Errorf("%w: %w", ErrModelUnavailable, err)
	default:
		return fmt.Errorf("%w: %w", ErrExecutionFailed, err)
	}
}

// containsAny checks if s contains any of the substrings (case-insensitive).
func containsAny(s string, substrs ...string) bool {
	lower := strings.ToLower(s)
	for _, sub := range substrs {
		if strings.Contains(lower, strings.ToLower(sub)) {
			return true
		}
	}
	return false
}
