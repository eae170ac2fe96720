package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/quanhua92/buildscale-ai-sub000/internal/config"
	"github.com/quanhua92/buildscale-ai-sub000/internal/identity"
	"github.com/quanhua92/buildscale-ai-sub000/internal/observability"
)

// =============================================================================
// Users Command Handlers
// =============================================================================

// runUsersCreate handles the users create command.
func runUsersCreate(cmd *cobra.Command, configPath, email, displayName string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	db, err := openDB(cfg)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	reader := bufio.NewReader(cmd.InOrStdin())
	password := promptPassword(reader, "Password")
	if password == "" {
		return fmt.Errorf("password must not be empty")
	}
	if confirm := promptPassword(reader, "Confirm password"); confirm != password {
		return fmt.Errorf("passwords do not match")
	}

	logger := observability.NewLogger(observability.LogConfig{
		Level:  "warn",
		Format: "text",
	})
	users := identity.NewService(identity.NewPostgresStore(db), logger)

	user, workspace, err := users.Register(cmd.Context(), email, password, displayName)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "User created: %s (%s)\n", user.Email, user.ID)
	fmt.Fprintf(out, "Personal workspace: %s (%s)\n", workspace.Name, workspace.ID)
	return nil
}

// promptPassword prompts for a password without showing input.
func promptPassword(reader *bufio.Reader, label string) string {
	fmt.Printf("%s: ", label)
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		text, err := term.ReadPassword(fd)
		fmt.Println()
		if err == nil {
			return strings.TrimSpace(string(text))
		}
	}
	text, err := reader.ReadString('\n')
	if err != nil {
		return ""
	}
	return strings.TrimSpace(text)
}
