// Package session provides TTL-bounded session persistence for
// conversation state.
//
// Sessions and their messages live in PostgreSQL. Every write refreshes
// the session's expiry; reads treat expired rows as absent. Expired rows
// are swept opportunistically when a caller recreates the same ID.
package session

import (
	"time"

	"github.com/google/uuid"
)

// Role constants define valid message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
	RoleSystem    = "system"
)

// Session represents a conversation session (application-level type).
type Session struct {
	ID            uuid.UUID      `json:"session_id"`
	CreatedAt     time.Time      `json:"created_at"`
	LastActivity  time.Time      `json:"last_activity"`
	ExpiresAt     time.Time      `json:"expires_at"`
	MessageCount  int            `json:"message_count"`
	PreferredCity string         `json:"preferred_city,omitempty"`
	Preferences   map[string]any `json:"preferences,omitempty"`
}

// Message represents a single conversation message.
type Message struct {
	ID             uuid.UUID      `json:"id"`
	SessionID      uuid.UUID      `json:"session_id"`
	Role           string         `json:"role"` // "user" | "assistant" | "tool" | "system"
	Content        string         `json:"content"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	SequenceNumber int            `json:"sequence_number"`
	CreatedAt      time.Time      `json:"timestamp"`
}
