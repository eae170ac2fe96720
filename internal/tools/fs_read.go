package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/quanhua92/buildscale-ai-sub000/internal/vfs"
	"github.com/quanhua92/buildscale-ai-sub000/pkg/models"
)

// Batch read cap shared by cat and read_multiple_files.
const maxBatchFiles = 20

// --- ls ---

type lsTool struct{ d *deps }

type lsArgs struct {
	Path      string `json:"path" jsonschema:"description=Folder path to list; / is the workspace root"`
	Recursive bool   `json:"recursive,omitempty" jsonschema:"description=Include the whole subtree instead of direct children"`
}

func (t *lsTool) Name() string { return "ls" }

func (t *lsTool) Description() string {
	return "List folder entries with name, kind, size and updated_at."
}

func (t *lsTool) Schema() json.RawMessage { return reflectSchema(&lsArgs{}) }

func (t *lsTool) Execute(ctx context.Context, inv Invocation, args json.RawMessage) *Response {
	var in lsArgs
	if err := json.Unmarshal(args, &in); err != nil {
		return fail("decode arguments: %v", err)
	}
	p, err := argPath(in.Path)
	if err != nil {
		return failErr(err)
	}
	entries, err := t.d.files.List(ctx, inv.WorkspaceID, p, in.Recursive)
	if err != nil {
		return failErr(err)
	}
	return ok(map[string]any{
		"path":    p,
		"entries": entries,
		"count":   len(entries),
	})
}

// --- read ---

type readTool struct{ d *deps }

type readArgs struct {
	Path   string `json:"path" jsonschema:"description=File path to read"`
	Offset int    `json:"offset,omitempty" jsonschema:"description=1-based first line; negative counts from the end"`
	Limit  int    `json:"limit,omitempty" jsonschema:"description=Maximum number of lines to return"`
}

// readResult is the payload of a successful read. Hash identifies the
// content state for a later edit's last_read_hash.
type readResult struct {
	Path       string `json:"path"`
	Content    string `json:"content"`
	StartLine  int    `json:"start_line"`
	TotalLines int    `json:"total_lines"`
	Hash       string `json:"hash"`
	VersionID  int64  `json:"version_id,omitempty"`
}

func (t *readTool) Name() string { return "read" }

func (t *readTool) Description() string {
	return "Read a file's latest content, optionally a line slice. Returns total_lines and the content hash for edit."
}

func (t *readTool) Schema() json.RawMessage { return reflectSchema(&readArgs{}) }

func (t *readTool) Execute(ctx context.Context, inv Invocation, args json.RawMessage) *Response {
	var in readArgs
	if err := json.Unmarshal(args, &in); err != nil {
		return fail("decode arguments: %v", err)
	}
	res, err := t.d.readOne(ctx, inv, in.Path, in.Offset, in.Limit)
	if err != nil {
		return failErr(err)
	}
	return ok(res)
}

// readOne resolves a path and reads its latest content, applying the
// shared offset and limit line-slice semantics.
func (d *deps) readOne(ctx context.Context, inv Invocation, rawPath string, offset, limit int) (*readResult, error) {
	p, err := argPath(rawPath)
	if err != nil {
		return nil, err
	}
	f, err := d.files.Resolve(ctx, inv.WorkspaceID, p)
	if err != nil {
		return nil, err
	}
	content, versionID, err := d.files.LatestContent(ctx, f)
	if err != nil {
		return nil, err
	}

	lines := splitLines(content)
	res := &readResult{
		Path:       p,
		Content:    content,
		StartLine:  1,
		TotalLines: len(lines),
		Hash:       vfs.HashContent(content),
		VersionID:  versionID,
	}
	if offset != 0 || limit > 0 {
		sel, start := sliceLines(lines, offset, limit)
		res.Content = strings.Join(sel, "\n")
		res.StartLine = start
	}
	return res, nil
}

// --- read_multiple_files ---

type readMultipleTool struct{ d *deps }

type readMultipleArgs struct {
	Paths []string `json:"paths" jsonschema:"description=File paths to read"`
}

type readBatchEntry struct {
	Path       string `json:"path"`
	Success    bool   `json:"success"`
	Content    string `json:"content,omitempty"`
	TotalLines int    `json:"total_lines,omitempty"`
	Hash       string `json:"hash,omitempty"`
	Error      string `json:"error,omitempty"`
}

func (t *readMultipleTool) Name() string { return "read_multiple_files" }

func (t *readMultipleTool) Description() string {
	return "Read several files at once; each entry succeeds or fails independently."
}

func (t *readMultipleTool) Schema() json.RawMessage { return reflectSchema(&readMultipleArgs{}) }

func (t *readMultipleTool) Execute(ctx context.Context, inv Invocation, args json.RawMessage) *Response {
	var in readMultipleArgs
	if err := json.Unmarshal(args, &in); err != nil {
		return fail("decode arguments: %v", err)
	}
	if len(in.Paths) == 0 {
		return fail("at least one path is required")
	}
	if len(in.Paths) > maxBatchFiles {
		return fail("read_multiple_files accepts at most %d files, got %d", maxBatchFiles, len(in.Paths))
	}

	entries := make([]readBatchEntry, 0, len(in.Paths))
	for _, raw := range in.Paths {
		res, err := t.d.readOne(ctx, inv, raw, 0, 0)
		if err != nil {
			entries = append(entries, readBatchEntry{Path: raw, Error: err.Error()})
			continue
		}
		entries = append(entries, readBatchEntry{
			Path:       res.Path,
			Success:    true,
			Content:    res.Content,
			TotalLines: res.TotalLines,
			Hash:       res.Hash,
		})
	}
	return ok(map[string]any{"files": entries})
}

// --- cat ---

type catTool struct{ d *deps }

type catArgs struct {
	Paths        []string `json:"paths" jsonschema:"description=Files to concatenate; at most 20"`
	ShowHeaders  bool     `json:"show_headers,omitempty" jsonschema:"description=Print a ==> path <== header before each file"`
	NumberLines  bool     `json:"number_lines,omitempty" jsonschema:"description=Prefix lines with their true file position"`
	ShowEnds     bool     `json:"show_ends,omitempty" jsonschema:"description=Append $ to each line"`
	ShowTabs     bool     `json:"show_tabs,omitempty" jsonschema:"description=Render tabs as ^I"`
	SqueezeBlank bool     `json:"squeeze_blank,omitempty" jsonschema:"description=Collapse runs of blank lines"`
	Offset       int      `json:"offset,omitempty" jsonschema:"description=1-based first line per file; negative counts from the end"`
	Limit        int      `json:"limit,omitempty" jsonschema:"description=Maximum lines per file"`
}

type catEntry struct {
	Path    string `json:"path"`
	Success bool   `json:"success"`
	Lines   int    `json:"lines,omitempty"`
	Error   string `json:"error,omitempty"`
}

func (t *catTool) Name() string { return "cat" }

func (t *catTool) Description() string {
	return "Concatenate up to 20 files with cat-style formatting flags. Line numbers reflect true file positions."
}

func (t *catTool) Schema() json.RawMessage { return reflectSchema(&catArgs{}) }

func (t *catTool) Execute(ctx context.Context, inv Invocation, args json.RawMessage) *Response {
	var in catArgs
	if err := json.Unmarshal(args, &in); err != nil {
		return fail("decode arguments: %v", err)
	}
	if len(in.Paths) == 0 {
		return fail("at least one path is required")
	}
	if len(in.Paths) > maxBatchFiles {
		return fail("cat accepts at most %d files, got %d", maxBatchFiles, len(in.Paths))
	}

	var out strings.Builder
	entries := make([]catEntry, 0, len(in.Paths))
	for _, raw := range in.Paths {
		res, err := t.d.readOne(ctx, inv, raw, in.Offset, in.Limit)
		if err != nil {
			entries = append(entries, catEntry{Path: raw, Error: err.Error()})
			continue
		}
		lines := splitLines(res.Content)
		formatCat(&out, res.Path, lines, res.StartLine, in)
		entries = append(entries, catEntry{Path: res.Path, Success: true, Lines: len(lines)})
	}
	return ok(map[string]any{
		"content": out.String(),
		"files":   entries,
	})
}

// formatCat renders one file block. Numbering uses the true position
// of each line, so slices and squeezed blanks keep their original
// line numbers.
func formatCat(out *strings.Builder, path string, lines []string, start int, in catArgs) {
	if in.ShowHeaders {
		if out.Len() > 0 {
			out.WriteByte('\n')
		}
		fmt.Fprintf(out, "==> %s <==\n", path)
	}
	prevBlank := false
	for i, line := range lines {
		if in.SqueezeBlank && line == "" && prevBlank {
			continue
		}
		prevBlank = line == ""
		if in.ShowTabs {
			line = strings.ReplaceAll(line, "\t", "^I")
		}
		if in.NumberLines {
			fmt.Fprintf(out, "%6d\t", start+i)
		}
		out.WriteString(line)
		if in.ShowEnds {
			out.WriteByte('$')
		}
		out.WriteByte('\n')
	}
}

// --- file_info ---

type fileInfoTool struct{ d *deps }

type fileInfoArgs struct {
	Path string `json:"path" jsonschema:"description=Path to inspect"`
}

type fileInfoResult struct {
	Path       string                `json:"path"`
	Name       string                `json:"name"`
	Kind       models.FileType       `json:"kind"`
	Size       int64                 `json:"size"`
	Hash       string                `json:"hash,omitempty"`
	VersionID  int64                 `json:"version_id,omitempty"`
	IsVirtual  bool                  `json:"is_virtual"`
	Permission models.FilePermission `json:"permission"`
	CreatedBy  string                `json:"created_by,omitempty"`
	CreatedAt  time.Time             `json:"created_at"`
	UpdatedAt  time.Time             `json:"updated_at"`
}

func (t *fileInfoTool) Name() string { return "file_info" }

func (t *fileInfoTool) Description() string {
	return "Return file metadata plus the latest-version hash and size."
}

func (t *fileInfoTool) Schema() json.RawMessage { return reflectSchema(&fileInfoArgs{}) }

func (t *fileInfoTool) Execute(ctx context.Context, inv Invocation, args json.RawMessage) *Response {
	var in fileInfoArgs
	if err := json.Unmarshal(args, &in); err != nil {
		return fail("decode arguments: %v", err)
	}
	p, err := argPath(in.Path)
	if err != nil {
		return failErr(err)
	}
	f, err := t.d.files.Resolve(ctx, inv.WorkspaceID, p)
	if err != nil {
		return failErr(err)
	}

	info := fileInfoResult{
		Path:       f.Path,
		Name:       f.Name,
		Kind:       f.FileType,
		IsVirtual:  f.IsVirtual,
		Permission: f.Permission,
		CreatedBy:  f.CreatedBy,
		CreatedAt:  f.CreatedAt,
		UpdatedAt:  f.UpdatedAt,
	}
	if !f.IsFolder() {
		content, versionID, err := t.d.files.LatestContent(ctx, f)
		if err != nil {
			return failErr(err)
		}
		info.Size = int64(len(content))
		info.Hash = vfs.HashContent(content)
		info.VersionID = versionID
	}
	return ok(info)
}
