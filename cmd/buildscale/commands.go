// Package main provides the CLI entry point for the BuildScale workbench server.
//
// commands.go contains the cobra command definitions and their flag
// configurations. Each command builder creates a command and wires it to its
// handler.
package main

import (
	"github.com/spf13/cobra"
)

// =============================================================================
// Serve Command
// =============================================================================

// buildServeCmd creates the "serve" command that starts the workbench server.
// This is the primary command for running BuildScale in production.
func buildServeCmd() *cobra.Command {
	var (
		configPath string
		debug      bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the BuildScale server",
		Long: `Start the BuildScale server with all configured backends.

The server will:
1. Load configuration from the specified file (or buildscale.yaml)
2. Connect to Postgres and the configured blob store
3. Initialize LLM providers and the agent runtime
4. Start the HTTP API with SSE and WebSocket streaming
5. Start the maintenance sweeper and the config watcher

Graceful shutdown is handled on SIGINT/SIGTERM signals.`,
		Example: `  # Start with default config
  buildscale serve

  # Start with custom config
  buildscale serve --config /etc/buildscale/production.yaml

  # Start with debug logging
  buildscale serve --debug`,
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath = resolveConfigPath(configPath)
			return runServe(cmd.Context(), configPath, debug)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigName,
		"Path to YAML configuration file")
	cmd.Flags().BoolVarP(&debug, "debug", "d", false,
		"Enable debug logging (verbose output)")

	return cmd
}

// =============================================================================
// Users Commands
// =============================================================================

// buildUsersCmd creates the "users" command group.
func buildUsersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "users",
		Short: "Manage user accounts",
	}
	cmd.AddCommand(buildUsersCreateCmd())
	return cmd
}

func buildUsersCreateCmd() *cobra.Command {
	var (
		configPath  string
		email       string
		displayName string
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a user account and its personal workspace",
		Long: `Create a user account directly against the database.

The password is prompted interactively and never echoed. A personal
workspace is created for the new user, the same as self-service
registration through the API.`,
		Example: `  # Create the first account
  buildscale users create --email ada@example.com --name "Ada Lovelace"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath = resolveConfigPath(configPath)
			return runUsersCreate(cmd, configPath, email, displayName)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigName, "Path to YAML configuration file")
	cmd.Flags().StringVar(&email, "email", "", "Email address for the new account")
	cmd.Flags().StringVar(&displayName, "name", "", "Display name for the new account")
	_ = cmd.MarkFlagRequired("email")

	return cmd
}
