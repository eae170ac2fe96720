package tools

import (
	"context"
	"encoding/json"

	"github.com/quanhua92/buildscale-ai-sub000/internal/vfs"
)

// --- write ---

type writeTool struct{ d *deps }

type writeArgs struct {
	Path    string `json:"path" jsonschema:"description=File path to create or overwrite"`
	Content string `json:"content" jsonschema:"description=Full file content"`
}

func (t *writeTool) Name() string { return "write" }

func (t *writeTool) Description() string {
	return "Write a file as a new version, creating it and its parent folders when needed."
}

func (t *writeTool) Schema() json.RawMessage { return reflectSchema(&writeArgs{}) }

func (t *writeTool) Execute(ctx context.Context, inv Invocation, args json.RawMessage) *Response {
	var in writeArgs
	if err := json.Unmarshal(args, &in); err != nil {
		return fail("decode arguments: %v", err)
	}
	p, err := argPath(in.Path)
	if err != nil {
		return failErr(err)
	}
	if resp := t.d.guardPlan(ctx, inv, p); resp != nil {
		return resp
	}
	file, version, err := t.d.files.Write(ctx, inv.WorkspaceID, p, in.Content, inv.UserID)
	if err != nil {
		return failErr(err)
	}
	return ok(map[string]any{
		"path":       file.Path,
		"kind":       file.FileType,
		"version_id": version.ID,
		"hash":       version.Hash,
		"bytes":      len(in.Content),
	})
}

// --- edit ---

type editTool struct{ d *deps }

type editArgs struct {
	Path string `json:"path" jsonschema:"description=File path to edit"`

	Old string `json:"old,omitempty" jsonschema:"description=Exact text to replace; must occur exactly once"`
	New string `json:"new,omitempty" jsonschema:"description=Replacement text"`

	InsertLine    *int   `json:"insert_line,omitempty" jsonschema:"description=0-based line to insert before; past the end appends"`
	InsertContent string `json:"insert_content,omitempty" jsonschema:"description=Text to insert"`

	LastReadHash string `json:"last_read_hash,omitempty" jsonschema:"description=Hash from a prior read; the edit fails if the file changed since"`
}

func (t *editTool) Name() string { return "edit" }

func (t *editTool) Description() string {
	return "Edit a file by exact replacement (old/new) or line insertion (insert_line/insert_content). Pass last_read_hash to fail on concurrent changes."
}

func (t *editTool) Schema() json.RawMessage { return reflectSchema(&editArgs{}) }

func (t *editTool) Execute(ctx context.Context, inv Invocation, args json.RawMessage) *Response {
	var in editArgs
	if err := json.Unmarshal(args, &in); err != nil {
		return fail("decode arguments: %v", err)
	}
	p, err := argPath(in.Path)
	if err != nil {
		return failErr(err)
	}

	replace := in.Old != "" || in.New != ""
	insert := in.InsertLine != nil
	switch {
	case replace && insert:
		return fail("pass either old/new or insert_line/insert_content, not both")
	case !replace && !insert:
		return fail("pass old/new for replacement or insert_line/insert_content for insertion")
	}

	if resp := t.d.guardPlan(ctx, inv, p); resp != nil {
		return resp
	}

	op := vfs.EditOp{Old: in.Old, New: in.New}
	if insert {
		op = vfs.EditOp{InsertLine: in.InsertLine, InsertContent: in.InsertContent}
	}
	version, err := t.d.files.Edit(ctx, inv.WorkspaceID, p, op, inv.UserID, in.LastReadHash)
	if err != nil {
		return failErr(err)
	}
	return ok(map[string]any{
		"path":       p,
		"version_id": version.ID,
		"hash":       version.Hash,
	})
}

// --- rm ---

type rmTool struct{ d *deps }

type rmArgs struct {
	Path string `json:"path" jsonschema:"description=Path to delete"`
}

func (t *rmTool) Name() string { return "rm" }

func (t *rmTool) Description() string {
	return "Delete a file, or a folder together with its subtree."
}

func (t *rmTool) Schema() json.RawMessage { return reflectSchema(&rmArgs{}) }

func (t *rmTool) Execute(ctx context.Context, inv Invocation, args json.RawMessage) *Response {
	var in rmArgs
	if err := json.Unmarshal(args, &in); err != nil {
		return fail("decode arguments: %v", err)
	}
	p, err := argPath(in.Path)
	if err != nil {
		return failErr(err)
	}
	if resp := t.d.guardPlan(ctx, inv, p); resp != nil {
		return resp
	}
	removed, err := t.d.files.Remove(ctx, inv.WorkspaceID, p)
	if err != nil {
		return failErr(err)
	}
	return ok(map[string]any{"path": p, "removed": removed})
}

// --- mv ---

type mvTool struct{ d *deps }

type mvArgs struct {
	Src string `json:"src" jsonschema:"description=Current path"`
	Dst string `json:"dst" jsonschema:"description=New path; must not exist"`
}

func (t *mvTool) Name() string { return "mv" }

func (t *mvTool) Description() string {
	return "Rename or move a file, keeping its version history."
}

func (t *mvTool) Schema() json.RawMessage { return reflectSchema(&mvArgs{}) }

func (t *mvTool) Execute(ctx context.Context, inv Invocation, args json.RawMessage) *Response {
	var in mvArgs
	if err := json.Unmarshal(args, &in); err != nil {
		return fail("decode arguments: %v", err)
	}
	src, err := argPath(in.Src)
	if err != nil {
		return failErr(err)
	}
	dst, err := argPath(in.Dst)
	if err != nil {
		return failErr(err)
	}
	if resp := t.d.guardPlan(ctx, inv, src, dst); resp != nil {
		return resp
	}
	moved, err := t.d.files.Move(ctx, inv.WorkspaceID, src, dst)
	if err != nil {
		return failErr(err)
	}
	return ok(map[string]any{"src": src, "dst": moved.Path})
}

// --- touch ---

type touchTool struct{ d *deps }

type touchArgs struct {
	Path string `json:"path" jsonschema:"description=Path to create or freshen"`
}

func (t *touchTool) Name() string { return "touch" }

func (t *touchTool) Description() string {
	return "Create an empty file if absent, otherwise update its modification time."
}

func (t *touchTool) Schema() json.RawMessage { return reflectSchema(&touchArgs{}) }

func (t *touchTool) Execute(ctx context.Context, inv Invocation, args json.RawMessage) *Response {
	var in touchArgs
	if err := json.Unmarshal(args, &in); err != nil {
		return fail("decode arguments: %v", err)
	}
	p, err := argPath(in.Path)
	if err != nil {
		return failErr(err)
	}
	if resp := t.d.guardPlan(ctx, inv, p); resp != nil {
		return resp
	}
	file, err := t.d.files.Touch(ctx, inv.WorkspaceID, p, inv.UserID)
	if err != nil {
		return failErr(err)
	}
	return ok(map[string]any{
		"path":       file.Path,
		"kind":       file.FileType,
		"updated_at": file.UpdatedAt,
	})
}

// --- mkdir ---

type mkdirTool struct{ d *deps }

type mkdirArgs struct {
	Path string `json:"path" jsonschema:"description=Folder path to create"`
}

func (t *mkdirTool) Name() string { return "mkdir" }

func (t *mkdirTool) Description() string {
	return "Create a folder and any missing ancestors. Existing folders are left as they are."
}

func (t *mkdirTool) Schema() json.RawMessage { return reflectSchema(&mkdirArgs{}) }

func (t *mkdirTool) Execute(ctx context.Context, inv Invocation, args json.RawMessage) *Response {
	var in mkdirArgs
	if err := json.Unmarshal(args, &in); err != nil {
		return fail("decode arguments: %v", err)
	}
	p, err := argPath(in.Path)
	if err != nil {
		return failErr(err)
	}
	if resp := t.d.guardPlan(ctx, inv, p); resp != nil {
		return resp
	}
	folder, err := t.d.files.Mkdir(ctx, inv.WorkspaceID, p, inv.UserID)
	if err != nil {
		return failErr(err)
	}
	return ok(map[string]any{"path": folder.Path})
}
