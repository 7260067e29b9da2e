package api

import (
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/nimbuslabs/nimbus/internal/log"
	"github.com/nimbuslabs/nimbus/internal/session"
)

type sessionHandler struct {
	store   SessionStore
	manager TurnHandler
	logger  log.Logger
}

// CreateSessionRequest optionally pins the new session's ID. Useful
// for clients that mint IDs locally.
type CreateSessionRequest struct {
	SessionID string `json:"session_id,omitempty"`
}

// PreferencesRequest updates stored preferences. A null preferred_city
// keeps the current value, an empty string clears it.
type PreferencesRequest struct {
	PreferredCity *string        `json:"preferred_city"`
	Preferences   map[string]any `json:"preferences,omitempty"`
}

func (h *sessionHandler) create(w http.ResponseWriter, r *http.Request) {
	id := uuid.Nil
	if r.ContentLength != 0 {
		var req CreateSessionRequest
		if !decodeBody(w, r, &req, h.logger) {
			return
		}
		if req.SessionID != "" {
			var err error
			id, err = uuid.Parse(req.SessionID)
			if err != nil {
				writeError(w, http.StatusBadRequest,
					"invalid_session", "session_id must be a valid UUID", h.logger)
				return
			}
		}
	}

	sess, err := h.store.Create(r.Context(), id)
	if err != nil {
		h.logger.Error("failed to create session", "error", err)
		writeError(w, http.StatusInternalServerError,
			"internal_error", "Failed to create session", h.logger)
		return
	}

	writeJSON(w, http.StatusCreated, sess, h.logger)
}

func (h *sessionHandler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathSessionID(w, r, h.logger)
	if !ok {
		return
	}

	sess, err := h.store.Get(r.Context(), id)
	if err != nil {
		h.respondStoreError(w, err, "failed to load session")
		return
	}

	writeJSON(w, http.StatusOK, sess, h.logger)
}

func (h *sessionHandler) history(w http.ResponseWriter, r *http.Request) {
	id, ok := pathSessionID(w, r, h.logger)
	if !ok {
		return
	}

	messages, err := h.store.History(r.Context(), id)
	if err != nil {
		h.respondStoreError(w, err, "failed to load history")
		return
	}
	if messages == nil {
		messages = []session.Message{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"session_id": id,
		"messages":   messages,
		"count":      len(messages),
	}, h.logger)
}

func (h *sessionHandler) updatePreferences(w http.ResponseWriter, r *http.Request) {
	id, ok := pathSessionID(w, r, h.logger)
	if !ok {
		return
	}

	var req PreferencesRequest
	if !decodeBody(w, r, &req, h.logger) {
		return
	}

	sess, err := h.store.UpdatePreferences(r.Context(), id, req.PreferredCity, req.Preferences)
	if err != nil {
		h.respondStoreError(w, err, "failed to update preferences")
		return
	}

	writeJSON(w, http.StatusOK, sess, h.logger)
}

func (h *sessionHandler) summary(w http.ResponseWriter, r *http.Request) {
	id, ok := pathSessionID(w, r, h.logger)
	if !ok {
		return
	}

	summary, err := h.manager.Summary(r.Context(), id)
	if err != nil {
		status, code := statusForError(err)
		h.logger.Warn("summary failed", "session_id", id, "error", err)
		writeError(w, status, code, userMessageFor(code), h.logger)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"session_id": id,
		"summary":    summary,
	}, h.logger)
}

func (h *sessionHandler) delete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathSessionID(w, r, h.logger)
	if !ok {
		return
	}

	if err := h.store.Delete(r.Context(), id); err != nil {
		h.respondStoreError(w, err, "failed to delete session")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *sessionHandler) respondStoreError(w http.ResponseWriter, err error, logMsg string) {
	if errors.Is(err, session.ErrNotFound) {
		writeError(w, http.StatusNotFound,
			"session_not_found", "Session not found or expired", h.logger)
		return
	}
	h.logger.Error(logMsg, "error", err)
	writeError(w, http.StatusInternalServerError,
		"internal_error", "Internal server error", h.logger)
}

// pathSessionID parses the {id} path segment. Returns false when a 400
// was already written.
func pathSessionID(w http.ResponseWriter, r *http.Request, logger log.Logger) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest,
			"invalid_session", "session ID must be a valid UUID", logger)
		return uuid.Nil, false
	}
	return id, true
}
