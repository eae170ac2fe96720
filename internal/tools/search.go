package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"regexp"
	"strings"

	"github.com/quanhua92/buildscale-ai-sub000/internal/vfs"
	"github.com/quanhua92/buildscale-ai-sub000/pkg/models"
)

// Default match cap for grep. limit:0 lifts it.
const grepDefaultLimit = 50

// --- grep ---

type grepTool struct{ d *deps }

type grepArgs struct {
	Pattern       string `json:"pattern" jsonschema:"description=Regular expression matched against each line"`
	PathPattern   string `json:"path_pattern,omitempty" jsonschema:"description=Glob restricting which files are searched"`
	Context       int    `json:"context,omitempty" jsonschema:"description=Lines of context before and after each match"`
	BeforeContext int    `json:"before_context,omitempty" jsonschema:"description=Lines of context before each match; overrides context"`
	AfterContext  int    `json:"after_context,omitempty" jsonschema:"description=Lines of context after each match; overrides context"`
	Limit         *int   `json:"limit,omitempty" jsonschema:"description=Maximum matches; 0 means unlimited; default 50"`
}

type grepMatch struct {
	Path          string   `json:"path"`
	LineNumber    int      `json:"line_number"`
	Line          string   `json:"line"`
	BeforeContext []string `json:"before_context,omitempty"`
	AfterContext  []string `json:"after_context,omitempty"`
}

func (t *grepTool) Name() string { return "grep" }

func (t *grepTool) Description() string {
	return "Search file contents with a regular expression. Returns matching lines with optional context; capped at 50 matches unless limit is set."
}

func (t *grepTool) Schema() json.RawMessage { return reflectSchema(&grepArgs{}) }

func (t *grepTool) Execute(ctx context.Context, inv Invocation, args json.RawMessage) *Response {
	var in grepArgs
	if err := json.Unmarshal(args, &in); err != nil {
		return fail("decode arguments: %v", err)
	}
	if strings.TrimSpace(in.Pattern) == "" {
		return fail("pattern is required")
	}
	re, err := regexp.Compile(in.Pattern)
	if err != nil {
		return fail("invalid pattern: %v", err)
	}
	if in.PathPattern != "" {
		if err := globValid(in.PathPattern); err != nil {
			return failErr(err)
		}
	}

	before, after := in.BeforeContext, in.AfterContext
	if in.Context > 0 {
		if before == 0 {
			before = in.Context
		}
		if after == 0 {
			after = in.Context
		}
	}
	limit := grepDefaultLimit
	if in.Limit != nil {
		limit = *in.Limit
	}
	unlimited := limit <= 0

	entries, err := t.d.files.List(ctx, inv.WorkspaceID, "/", true)
	if err != nil {
		return failErr(err)
	}

	var (
		matches   []grepMatch
		searched  int
		skipped   int
		truncated bool
	)
scan:
	for _, e := range entries {
		if e.Kind == models.FileTypeFolder {
			continue
		}
		if in.PathPattern != "" && !matchGlob(in.PathPattern, e.Path) {
			continue
		}
		_, content, err := t.d.files.ReadPath(ctx, inv.WorkspaceID, e.Path)
		if err != nil {
			skipped++
			continue
		}
		searched++
		lines := splitLines(content)
		for i, line := range lines {
			if !re.MatchString(line) {
				continue
			}
			if !unlimited && len(matches) >= limit {
				truncated = true
				break scan
			}
			m := grepMatch{Path: e.Path, LineNumber: i + 1, Line: line}
			if before > 0 {
				lo := i - before
				if lo < 0 {
					lo = 0
				}
				m.BeforeContext = append([]string(nil), lines[lo:i]...)
			}
			if after > 0 {
				hi := i + 1 + after
				if hi > len(lines) {
					hi = len(lines)
				}
				m.AfterContext = append([]string(nil), lines[i+1:hi]...)
			}
			matches = append(matches, m)
		}
	}

	return ok(map[string]any{
		"pattern":        in.Pattern,
		"matches":        matches,
		"count":          len(matches),
		"truncated":      truncated,
		"files_searched": searched,
		"files_skipped":  skipped,
	})
}

// --- glob ---

type globTool struct{ d *deps }

type globArgs struct {
	Pattern string `json:"pattern" jsonschema:"description=Glob pattern; ** spans folders and a slashless pattern matches base names"`
}

func (t *globTool) Name() string { return "glob" }

func (t *globTool) Description() string {
	return "Find files whose paths match a glob pattern."
}

func (t *globTool) Schema() json.RawMessage { return reflectSchema(&globArgs{}) }

func (t *globTool) Execute(ctx context.Context, inv Invocation, args json.RawMessage) *Response {
	var in globArgs
	if err := json.Unmarshal(args, &in); err != nil {
		return fail("decode arguments: %v", err)
	}
	if strings.TrimSpace(in.Pattern) == "" {
		return fail("pattern is required")
	}
	if err := globValid(in.Pattern); err != nil {
		return failErr(err)
	}

	entries, err := t.d.files.List(ctx, inv.WorkspaceID, "/", true)
	if err != nil {
		return failErr(err)
	}
	matches := make([]vfs.Entry, 0, 16)
	for _, e := range entries {
		if matchGlob(in.Pattern, e.Path) {
			matches = append(matches, e)
		}
	}
	return ok(map[string]any{
		"pattern": in.Pattern,
		"matches": matches,
		"count":   len(matches),
	})
}

// --- find ---

type findTool struct{ d *deps }

type findArgs struct {
	Name      string `json:"name,omitempty" jsonschema:"description=Glob matched against entry names"`
	Path      string `json:"path,omitempty" jsonschema:"description=Folder to search under; defaults to the root"`
	FileType  string `json:"file_type,omitempty" jsonschema:"description=Restrict to one kind,enum=folder,enum=document,enum=chat,enum=plan,enum=canvas"`
	MinSize   int64  `json:"min_size,omitempty" jsonschema:"description=Minimum size in bytes"`
	MaxSize   int64  `json:"max_size,omitempty" jsonschema:"description=Maximum size in bytes; 0 means no cap"`
	Recursive *bool  `json:"recursive,omitempty" jsonschema:"description=Search the whole subtree; default true"`
}

func (t *findTool) Name() string { return "find" }

func (t *findTool) Description() string {
	return "Find entries by name, kind and size under a folder. Walks the catalog in-process."
}

func (t *findTool) Schema() json.RawMessage { return reflectSchema(&findArgs{}) }

func (t *findTool) Execute(ctx context.Context, inv Invocation, args json.RawMessage) *Response {
	var in findArgs
	if err := json.Unmarshal(args, &in); err != nil {
		return fail("decode arguments: %v", err)
	}

	root := "/"
	if strings.TrimSpace(in.Path) != "" {
		p, err := argPath(in.Path)
		if err != nil {
			return failErr(err)
		}
		root = p
	}
	if in.Name != "" {
		if _, err := path.Match(in.Name, "probe"); err != nil {
			return fail("invalid name pattern %q", in.Name)
		}
	}
	if in.FileType != "" && !models.FileType(in.FileType).Valid() {
		return fail("unknown file_type %q", in.FileType)
	}
	recursive := true
	if in.Recursive != nil {
		recursive = *in.Recursive
	}

	entries, err := t.d.files.List(ctx, inv.WorkspaceID, root, recursive)
	if err != nil {
		return failErr(err)
	}
	matches := make([]vfs.Entry, 0, 16)
	for _, e := range entries {
		if in.Name != "" {
			if matched, _ := path.Match(in.Name, e.Name); !matched {
				continue
			}
		}
		if in.FileType != "" && string(e.Kind) != in.FileType {
			continue
		}
		if e.Size < in.MinSize {
			continue
		}
		if in.MaxSize > 0 && e.Size > in.MaxSize {
			continue
		}
		matches = append(matches, e)
	}
	return ok(map[string]any{
		"path":    root,
		"matches": matches,
		"count":   len(matches),
	})
}

// --- glob matching ---

// matchGlob matches a workspace path against a glob pattern. "*" and
// "?" stay inside one path segment while "**" spans any number of
// segments. An unrooted pattern without a slash matches base names
// anywhere in the tree; all others match the full path from the root.
func matchGlob(pattern, p string) bool {
	rooted := strings.HasPrefix(pattern, "/")
	pattern = strings.Trim(pattern, "/")
	if !rooted && !strings.Contains(pattern, "/") {
		matched, err := path.Match(pattern, vfs.BaseName(p))
		return err == nil && matched
	}
	return matchSegments(strings.Split(pattern, "/"), strings.Split(strings.TrimPrefix(p, "/"), "/"))
}

func matchSegments(pattern, segs []string) bool {
	for len(pattern) > 0 {
		if pattern[0] == "**" {
			if matchSegments(pattern[1:], segs) {
				return true
			}
			if len(segs) == 0 {
				return false
			}
			segs = segs[1:]
			continue
		}
		if len(segs) == 0 {
			return false
		}
		if matched, err := path.Match(pattern[0], segs[0]); err != nil || !matched {
			return false
		}
		pattern, segs = pattern[1:], segs[1:]
	}
	return len(segs) == 0
}

// globValid rejects patterns path.Match cannot parse before any
// matching happens, so a bad pattern fails loudly instead of matching
// nothing.
func globValid(pattern string) error {
	for _, seg := range strings.Split(strings.Trim(pattern, "/"), "/") {
		if seg == "**" {
			continue
		}
		if _, err := path.Match(seg, "probe"); err != nil {
			return fmt.Errorf("invalid glob pattern %q", pattern)
		}
	}
	return nil
}
