// Package api exposes the conversational weather assistant over HTTP.
//
// The surface is a small JSON API: one chat endpoint driving the
// two-phase tool-calling turn, CRUD around sessions, and introspection
// of the registered tools. Liveness and readiness probes sit outside
// the middleware stack so they stay cheap and unthrottled.
package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/nimbuslabs/nimbus/internal/chat"
	"github.com/nimbuslabs/nimbus/internal/log"
	"github.com/nimbuslabs/nimbus/internal/session"
	"github.com/nimbuslabs/nimbus/internal/tools"
)

// TurnHandler runs conversation turns and summaries. *chat.Manager
// implements it.
type TurnHandler interface {
	HandleTurn(ctx context.Context, sessionID uuid.UUID, message, cityHint string) (*chat.TurnResult, error)
	Summary(ctx context.Context, sessionID uuid.UUID) (string, error)
}

// SessionStore is the session persistence surface the API needs.
// *session.Store implements it.
type SessionStore interface {
	Create(ctx context.Context, id uuid.UUID) (*session.Session, error)
	Get(ctx context.Context, id uuid.UUID) (*session.Session, error)
	History(ctx context.Context, id uuid.UUID) ([]session.Message, error)
	UpdatePreferences(ctx context.Context, id uuid.UUID, city *string, prefs map[string]any) (*session.Session, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// ToolLister enumerates registered tools. *tools.Registry implements it.
type ToolLister interface {
	List() []tools.Descriptor
}

// Pinger reports backend connectivity for the readiness probe.
// *pgxpool.Pool implements it.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Config wires the server's dependencies and HTTP policies.
type Config struct {
	Manager  TurnHandler
	Sessions SessionStore
	Tools    ToolLister
	DB       Pinger // optional, readiness reports degraded without it
	Logger   log.Logger

	CORSOrigins []string
	RateLimit   float64 // requests per second per IP, 0 = default
	RateBurst   int
	TrustProxy  bool
}

// Server is the HTTP front of the assistant.
type Server struct {
	mux *http.ServeMux
}

// NewServer builds the route table and middleware stack.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Manager == nil {
		return nil, errors.New("api: manager is required")
	}
	if cfg.Sessions == nil {
		return nil, errors.New("api: session store is required")
	}
	if cfg.Tools == nil {
		return nil, errors.New("api: tool registry is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = log.NewNop()
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = 1.0
	}

	logger := cfg.Logger

	chatH := &chatHandler{manager: cfg.Manager, logger: logger}
	sessH := &sessionHandler{store: cfg.Sessions, manager: cfg.Manager, logger: logger}
	toolsH := &toolsHandler{registry: cfg.Tools, logger: logger}
	healthH := &healthHandler{db: cfg.DB, logger: logger}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/chat", chatH.send)
	mux.HandleFunc("POST /api/v1/sessions", sessH.create)
	mux.HandleFunc("GET /api/v1/sessions/{id}", sessH.get)
	mux.HandleFunc("DELETE /api/v1/sessions/{id}", sessH.delete)
	mux.HandleFunc("GET /api/v1/sessions/{id}/history", sessH.history)
	mux.HandleFunc("PUT /api/v1/sessions/{id}/preferences", sessH.updatePreferences)
	mux.HandleFunc("GET /api/v1/sessions/{id}/summary", sessH.summary)
	mux.HandleFunc("GET /api/v1/tools", toolsH.list)

	// Stack is built innermost-out: rate limiting closest to the
	// handlers, recovery outermost so it catches everything.
	limiter := newRateLimiter(cfg.RateLimit, cfg.RateBurst)
	var handler http.Handler = mux
	handler = rateLimitMiddleware(handler, limiter, cfg.TrustProxy, logger)
	handler = corsMiddleware(handler, cfg.CORSOrigins)
	handler = loggingMiddleware(handler, logger, cfg.TrustProxy)
	handler = requestIDMiddleware(handler)
	handler = recoveryMiddleware(handler, logger)

	top := http.NewServeMux()
	top.HandleFunc("GET /health", healthH.liveness)
	top.HandleFunc("GET /ready", healthH.readiness)
	top.Handle("/", handler)

	return &Server{mux: top}, nil
}

// Handler returns the root handler for http.Server.
func (s *Server) Handler() http.Handler {
	return s.mux
}
