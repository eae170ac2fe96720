// Package models defines the core data types for the BuildScale workbench.
package models

import (
	"encoding/json"
	"time"
)

// FileType identifies the kind of a catalog file.
type FileType string

const (
	// FileTypeFolder is a directory node. Folders never carry version content.
	FileTypeFolder FileType = "folder"

	// FileTypeDocument is a plain text or markdown document.
	FileTypeDocument FileType = "document"

	// FileTypeChat is a conversation log. Chats are always virtual and hold
	// an ordered message list plus exactly one agent session.
	FileTypeChat FileType = "chat"

	// FileTypePlan is an agent plan document. Plans are the only files a
	// plan-mode agent may mutate.
	FileTypePlan FileType = "plan"

	// FileTypeCanvas is a structured canvas document.
	FileTypeCanvas FileType = "canvas"
)

// Valid reports whether the file type is one of the known kinds.
func (t FileType) Valid() bool {
	switch t {
	case FileTypeFolder, FileTypeDocument, FileTypeChat, FileTypePlan, FileTypeCanvas:
		return true
	}
	return false
}

// FilePermission controls who may modify a file.
type FilePermission string

const (
	// PermissionPrivate restricts the file to its creator.
	PermissionPrivate FilePermission = "private"

	// PermissionWorkspace grants access to all workspace members.
	PermissionWorkspace FilePermission = "workspace"
)

// File is a catalog entry in the virtual filesystem. Content lives in
// FileVersion rows; the File row carries identity and placement only.
type File struct {
	// ID is the unique file identifier.
	ID string `json:"id"`

	// WorkspaceID scopes the file to exactly one workspace.
	WorkspaceID string `json:"workspace_id"`

	// ParentID references the containing folder, nil for root children.
	ParentID *string `json:"parent_id,omitempty"`

	// Path is the canonical absolute path ("/docs/readme.md"). Paths are
	// normalized before storage; (workspace_id, path) is unique among
	// non-deleted rows.
	Path string `json:"path"`

	// Name is the last path segment.
	Name string `json:"name"`

	// Slug is a URL-safe variant of Name.
	Slug string `json:"slug"`

	// FileType is the kind of node.
	FileType FileType `json:"file_type"`

	// IsVirtual marks system-managed files. Virtual files are readable but
	// rejected by every mutating tool.
	IsVirtual bool `json:"is_virtual"`

	// IsRemote marks files whose authoritative content lives outside the
	// blob store.
	IsRemote bool `json:"is_remote"`

	// Permission controls member access.
	Permission FilePermission `json:"permission"`

	// CreatedBy is the id of the creating user.
	CreatedBy string `json:"created_by"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// DeletedAt is the soft-delete marker. Deleted files are invisible to
	// every lookup and free their path for reuse.
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
}

// IsFolder reports whether the file is a folder node.
func (f *File) IsFolder() bool { return f.FileType == FileTypeFolder }

// IsDeleted reports whether the file has been soft-deleted.
func (f *File) IsDeleted() bool { return f.DeletedAt != nil }

// DefaultBranch is the branch label new versions are appended to.
const DefaultBranch = "main"

// FileVersion is an immutable snapshot of a non-folder file's content.
// Versions are append-only; the latest version is the row with the highest
// id on the "main" branch.
type FileVersion struct {
	// ID is a monotonically increasing version identifier.
	ID int64 `json:"id"`

	// FileID references the owning file.
	FileID string `json:"file_id"`

	// Branch is the branch label, "main" unless stated otherwise.
	Branch string `json:"branch"`

	// Content is the full file content at this version.
	Content string `json:"content"`

	// AppData is an opaque application sidecar attached to the version.
	AppData json.RawMessage `json:"app_data,omitempty"`

	// Hash is the deterministic content hash. It is the sole handle used
	// to detect concurrent modification (compare-and-swap on edit).
	Hash string `json:"hash"`

	// AuthorID is the user or agent that produced the version.
	AuthorID string `json:"author_id"`

	CreatedAt time.Time `json:"created_at"`
}
