package cmd

import (
	"fmt"

	"github.com/nimbuslabs/nimbus/db"
	"github.com/nimbuslabs/nimbus/internal/config"
	"github.com/nimbuslabs/nimbus/internal/log"
)

// runMigrate applies pending database migrations and exits. Serve runs
// migrations on startup too; this command exists for deploy pipelines
// that migrate before rolling instances.
func runMigrate(logger log.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if err := db.Migrate(cfg.PostgresURL()); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	logger.Info("migrations applied",
		"host", cfg.PostgresHost,
		"database", cfg.PostgresDBName,
	)
	return nil
}
