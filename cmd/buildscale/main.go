// Package main provides the CLI entry point for the BuildScale workbench server.
//
// BuildScale is a multi-tenant collaborative workbench: every workspace owns a
// versioned file tree stored in Postgres plus a blob store, and chat files
// inside that tree drive AI agent turns streamed back over SSE and WebSocket.
//
// # Basic Usage
//
// Start the server:
//
//	buildscale serve --config buildscale.yaml
//
// Manage database migrations:
//
//	buildscale migrate up
//	buildscale migrate status
//
// Create the first account without going through the API:
//
//	buildscale users create --email ada@example.com --name "Ada Lovelace"
//
// # Environment Variables
//
//   - BUILDSCALE_CONFIG: Path to the configuration file (default: buildscale.yaml)
//
// The configuration file expands ${VAR} references before parsing, so secrets
// can stay in the environment:
//
//	database:
//	  url: ${DATABASE_URL}
//	llm:
//	  providers:
//	    openai:
//	      api_key: ${OPENAI_API_KEY}
package main

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/quanhua92/buildscale-ai-sub000/internal/config"
	"github.com/quanhua92/buildscale-ai-sub000/internal/storage"
)

// defaultConfigName is the config file looked up in the working directory
// when neither --config nor BUILDSCALE_CONFIG is set.
const defaultConfigName = "buildscale.yaml"

// Build information - populated by ldflags during build.
//
// Example build command:
//
//	go build -ldflags "-X main.version=v1.0.0 -X main.commit=$(git rev-parse HEAD) -X main.date=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
var (
	version = "dev"     // Semantic version (e.g., "v1.0.0")
	commit  = "none"    // Git commit SHA
	date    = "unknown" // Build timestamp
)

// main is the entry point for the BuildScale CLI.
// It sets up the root command and all subcommands, then executes based on CLI args.
func main() {
	// Configure structured logging with JSON output for production parsing.
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// Build the command tree.
	rootCmd := buildRootCmd()

	// Execute the CLI - Cobra handles argument parsing and command routing.
	if err := rootCmd.Execute(); err != nil {
		slog.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

// buildRootCmd creates the root command with all subcommands attached.
// This is separated from main() to facilitate testing.
func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "buildscale",
		Short: "BuildScale - collaborative AI workbench server",
		Long: `BuildScale serves multi-tenant workspaces where versioned files and
chat-driven AI agents share one tree.

Storage: Postgres for metadata and versions, filesystem or S3 for content
LLM providers: OpenAI, OpenRouter, Anthropic, Google, AWS Bedrock
Streaming: per-chat SSE and WebSocket event feeds`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		// SilenceUsage prevents printing usage on every error.
		SilenceUsage: true,
	}

	// Attach all subcommands.
	rootCmd.AddCommand(
		buildServeCmd(),
		buildMigrateCmd(),
		buildUsersCmd(),
	)

	return rootCmd
}

// resolveConfigPath applies the BUILDSCALE_CONFIG override when the flag was
// left at its default. An explicitly passed --config always wins.
func resolveConfigPath(path string) string {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" || trimmed == defaultConfigName {
		if env := strings.TrimSpace(os.Getenv("BUILDSCALE_CONFIG")); env != "" {
			return env
		}
	}
	if trimmed == "" {
		return defaultConfigName
	}
	return path
}

// openDB connects to Postgres with the pool settings from the config,
// falling back to defaults for anything unset.
func openDB(cfg *config.Config) (*sql.DB, error) {
	if cfg == nil || strings.TrimSpace(cfg.Database.URL) == "" {
		return nil, fmt.Errorf("database url is required")
	}
	pool := storage.DefaultPoolConfig()
	if cfg.Database.MaxConnections > 0 {
		pool.MaxOpenConns = cfg.Database.MaxConnections
	}
	if cfg.Database.ConnMaxLifetime > 0 {
		pool.ConnMaxLifetime = cfg.Database.ConnMaxLifetime
	}
	return storage.Open(cfg.Database.URL, pool)
}
