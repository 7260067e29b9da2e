package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/nimbuslabs/nimbus/internal/chat"
	"github.com/nimbuslabs/nimbus/internal/log"
	"github.com/nimbuslabs/nimbus/internal/session"
)

// maxRequestBody caps JSON request bodies well above the 1000-rune
// message limit.
const maxRequestBody = 64 << 10

type chatHandler struct {
	manager TurnHandler
	logger  log.Logger
}

// ChatRequest is the body of POST /api/v1/chat. SessionID is optional,
// an empty value starts a new session. City is an optional hint that
// fills the session's preferred city when none is set.
type ChatRequest struct {
	SessionID string `json:"session_id,omitempty"`
	Message   string `json:"message"`
	City      string `json:"city,omitempty"`
}

func (h *chatHandler) send(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if !decodeBody(w, r, &req, h.logger) {
		return
	}

	sessionID := uuid.Nil
	if req.SessionID != "" {
		var err error
		sessionID, err = uuid.Parse(req.SessionID)
		if err != nil {
			writeError(w, http.StatusBadRequest,
				"invalid_session", "session_id must be a valid UUID", h.logger)
			return
		}
	}

	result, err := h.manager.HandleTurn(r.Context(), sessionID, req.Message, req.City)
	if err != nil {
		status, code := statusForError(err)
		h.logger.Warn("chat turn failed", "error", err, "status", status)
		writeError(w, status, code, userMessageFor(code), h.logger)
		return
	}

	writeJSON(w, http.StatusOK, result, h.logger)
}

// decodeBody reads a JSON body into dst and writes a 400 on failure.
// Returns false when a response has already been written.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any, logger log.Logger) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest,
			"invalid_request", "Request body must be valid JSON", logger)
		return false
	}
	return true
}

// statusForError maps domain errors to HTTP status and error code.
// Upstream model failures surface as 503 so clients know to retry,
// not as a 500 that pages an operator.
func statusForError(err error) (int, string) {
	switch {
	case errors.Is(err, chat.ErrEmptyMessage):
		return http.StatusBadRequest, "empty_message"
	case errors.Is(err, chat.ErrMessageTooLong):
		return http.StatusBadRequest, "message_too_long"
	case errors.Is(err, chat.ErrInvalidSession):
		return http.StatusBadRequest, "invalid_session"
	case errors.Is(err, session.ErrNotFound):
		return http.StatusNotFound, "session_not_found"
	case errors.Is(err, chat.ErrRateLimited):
		return http.StatusServiceUnavailable, "model_rate_limited"
	case errors.Is(err, chat.ErrUnauthenticated):
		return http.StatusServiceUnavailable, "model_unauthenticated"
	case errors.Is(err, chat.ErrModelUnavailable):
		return http.StatusServiceUnavailable, "model_unavailable"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

// userMessageFor keeps upstream error detail out of client responses.
func userMessageFor(code string) string {
	switch code {
	case "empty_message":
		return "Message must not be empty"
	case "message_too_long":
		return "Message exceeds the maximum length of 1000 characters"
	case "invalid_session":
		return "session_id must be a valid UUID"
	case "session_not_found":
		return "Session not found or expired"
	case "model_rate_limited":
		return "The assistant is receiving too many requests, try again shortly"
	case "model_unauthenticated":
		return "The assistant is misconfigured, contact the operator"
	case "model_unavailable":
		return "The assistant is temporarily unavailable, try again shortly"
	default:
		return "Internal server error"
	}
}
