package api

import (
	"context"
	"net/http"
	"time"

	"github.com/nimbuslabs/nimbus/internal/log"
)

type healthHandler struct {
	db     Pinger
	logger log.Logger
}

func (h *healthHandler) liveness(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"}, h.logger)
}

// readiness checks the database. Without a database handle the server
// can still serve chat turns against a degraded store, so that case is
// reported but not failed.
func (h *healthHandler) readiness(w http.ResponseWriter, r *http.Request) {
	if h.db == nil {
		writeJSON(w, http.StatusOK, map[string]string{
			"status":   "ok",
			"database": "not configured",
		}, h.logger)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := h.db.Ping(ctx); err != nil {
		h.logger.Warn("readiness check failed", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status":   "unavailable",
			"database": "unreachable",
		}, h.logger)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":   "ok",
		"database": "ok",
	}, h.logger)
}
