// Package cmd provides the nimbus CLI commands.
//
// Commands:
//   - serve: HTTP API server for the weather assistant
//   - migrate: apply database migrations and exit
//   - version: print build information
//
// Signal handling and graceful shutdown are implemented via context
// cancellation.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/nimbuslabs/nimbus/internal/log"
)

// Execute is the main entry point for the nimbus binary.
func Execute() error {
	logger := newLogger()

	if len(os.Args) < 2 {
		runHelp()
		return nil
	}

	switch os.Args[1] {
	case "serve":
		return runServe(logger)
	case "migrate":
		return runMigrate(logger)
	case "version", "--version", "-v":
		runVersion()
		return nil
	case "help", "--help", "-h":
		runHelp()
		return nil
	default:
		return fmt.Errorf("unknown command: %s", os.Args[1])
	}
}

// newLogger builds the process logger. DEBUG enables debug level,
// NIMBUS_LOG_JSON switches to JSON output for log collectors.
func newLogger() log.Logger {
	cfg := log.Config{Level: slog.LevelInfo}
	if os.Getenv("DEBUG") != "" {
		cfg.Level = slog.LevelDebug
	}
	if os.Getenv("NIMBUS_LOG_JSON") != "" {
		cfg.JSON = true
	}
	return log.New(cfg)
}

// runHelp displays the help message.
func runHelp() {
	fmt.Println("Nimbus - conversational weather assistant backend")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  nimbus serve [addr]  Start HTTP API server (default: 127.0.0.1:3400)")
	fmt.Println("  nimbus migrate       Apply database migrations and exit")
	fmt.Println("  nimbus --version     Show version information")
	fmt.Println("  nimbus --help        Show this help")
	fmt.Println()
	fmt.Println("Environment Variables:")
	fmt.Println("  OPENAI_API_KEY       API key for the openai provider (default)")
	fmt.Println("  GEMINI_API_KEY       API key for the googleai provider")
	fmt.Println("  NIMBUS_PROVIDER      AI provider: openai, googleai, ollama")
	fmt.Println("  DATABASE_URL         PostgreSQL connection URL")
	fmt.Println("  DEBUG                Enable debug logging")
	fmt.Println()
	fmt.Println("Configuration file: ~/.nimbus/config.yaml")
}
