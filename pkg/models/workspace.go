package models

import (
	"encoding/json"
	"time"
)

// WorkspaceVisibility controls who can discover a workspace.
type WorkspaceVisibility string

const (
	// VisibilityPrivate hides the workspace from non-members.
	VisibilityPrivate WorkspaceVisibility = "private"

	// VisibilityShared lets invited users discover the workspace.
	VisibilityShared WorkspaceVisibility = "shared"
)

// Workspace is the tenant boundary. Every file, message, session, and tool
// invocation is scoped to exactly one workspace; no operation crosses it.
type Workspace struct {
	// ID is the unique workspace identifier.
	ID string `json:"id"`

	// Name is the display name.
	Name string `json:"name"`

	// Slug is a URL-safe variant of Name, unique per owner.
	Slug string `json:"slug"`

	// OwnerID is the creating user. The owner always holds the owner role.
	OwnerID string `json:"owner_id"`

	// Visibility controls discovery.
	Visibility WorkspaceVisibility `json:"visibility"`

	// Settings is an opaque per-workspace settings document.
	Settings json.RawMessage `json:"settings,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
