package api

import (
	"net/http"

	"github.com/nimbuslabs/nimbus/internal/log"
)

type toolsHandler struct {
	registry ToolLister
	logger   log.Logger
}

func (h *toolsHandler) list(w http.ResponseWriter, r *http.Request) {
	descriptors := h.registry.List()
	writeJSON(w, http.StatusOK, map[string]any{
		"tools": descriptors,
		"count": len(descriptors),
	}, h.logger)
}
