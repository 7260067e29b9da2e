// Package app wires the application together: configuration, tracing,
// the database pool, the Genkit runtime, tools, the session store, and
// the conversation manager. Setup returns a ready App; Close releases
// everything in reverse order.
package app

import (
	"github.com/firebase/genkit/go/genkit"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nimbuslabs/nimbus/internal/api"
	"github.com/nimbuslabs/nimbus/internal/chat"
	"github.com/nimbuslabs/nimbus/internal/config"
	"github.com/nimbuslabs/nimbus/internal/log"
	"github.com/nimbuslabs/nimbus/internal/session"
	"github.com/nimbuslabs/nimbus/internal/tools"
)

// App is the application container.
type App struct {
	Config *config.Config
	Logger log.Logger

	Genkit   *genkit.Genkit
	DBPool   *pgxpool.Pool
	Sessions *session.Store
	Registry *tools.Registry
	Agent    *chat.Agent
	Manager  *chat.Manager
	Flow     *chat.Flow
	Server   *api.Server

	otelCleanup func()
	dbCleanup   func()
}

// Close releases all resources. Safe to call on a partially
// initialized App.
func (a *App) Close() error {
	if a.Logger != nil {
		a.Logger.Info("shutting down application")
	}

	if a.dbCleanup != nil {
		a.dbCleanup()
	}
	if a.otelCleanup != nil {
		a.otelCleanup()
	}
	return nil
}
