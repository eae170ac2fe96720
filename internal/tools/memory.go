package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/quanhua92/buildscale-ai-sub000/internal/apperr"
	"github.com/quanhua92/buildscale-ai-sub000/pkg/models"
)

// Memory files live under two fixed scopes inside the workspace tree.
const (
	memoryGlobalRoot = "/memories/global"
	memoryUserRoot   = "/memories/user"
)

func userMemoryRoot(userID string) string {
	return memoryUserRoot + "/" + userID
}

// memoryFrontmatter is the record parsed from the head of every memory
// file. The grammar is strict: unknown keys fail the parse.
type memoryFrontmatter struct {
	Title    string   `yaml:"title"`
	Tags     []string `yaml:"tags,omitempty"`
	Category string   `yaml:"category,omitempty"`

	// No omitempty: yaml.v3 treats every time.Time as empty because
	// its fields are unexported, which would drop the stamp entirely.
	UpdatedAt time.Time `yaml:"updated_at"`
}

// parseMemory splits "---\n{yaml}\n---\n{body}" into the frontmatter
// record and the body.
func parseMemory(content string) (memoryFrontmatter, string, error) {
	var fm memoryFrontmatter
	if !strings.HasPrefix(content, "---\n") {
		return fm, "", fmt.Errorf("missing frontmatter header")
	}
	rest := content[len("---\n"):]

	var block, body string
	if idx := strings.Index(rest, "\n---\n"); idx >= 0 {
		block, body = rest[:idx], rest[idx+len("\n---\n"):]
	} else if strings.HasSuffix(rest, "\n---") {
		block = rest[:len(rest)-len("\n---")]
	} else {
		return fm, "", fmt.Errorf("unterminated frontmatter")
	}

	dec := yaml.NewDecoder(strings.NewReader(block))
	dec.KnownFields(true)
	if err := dec.Decode(&fm); err != nil && !errors.Is(err, io.EOF) {
		return fm, "", fmt.Errorf("invalid frontmatter: %w", err)
	}
	return fm, body, nil
}

// renderMemory is the inverse of parseMemory.
func renderMemory(fm memoryFrontmatter, body string) (string, error) {
	block, err := yaml.Marshal(fm)
	if err != nil {
		return "", fmt.Errorf("encode frontmatter: %w", err)
	}
	var b strings.Builder
	b.WriteString("---\n")
	b.Write(block)
	b.WriteString("---\n")
	b.WriteString(body)
	if body != "" && !strings.HasSuffix(body, "\n") {
		b.WriteByte('\n')
	}
	return b.String(), nil
}

// memoryScope classifies a path as one of the caller's memory scopes.
// Another user's memories are out of reach.
func memoryScope(inv Invocation, p string) (string, error) {
	if p == memoryGlobalRoot || strings.HasPrefix(p, memoryGlobalRoot+"/") {
		return "global", nil
	}
	own := userMemoryRoot(inv.UserID)
	if p == own || strings.HasPrefix(p, own+"/") {
		return "user", nil
	}
	if strings.HasPrefix(p, memoryUserRoot+"/") {
		return "", fmt.Errorf("memory path outside your scope: %s", p)
	}
	return "", fmt.Errorf("not a memory path: %s", p)
}

// --- memory_list ---

type memoryListTool struct{ d *deps }

type memoryListArgs struct {
	Scope string `json:"scope,omitempty" jsonschema:"description=Limit to one scope,enum=user,enum=global"`
}

type memoryRecord struct {
	Path      string    `json:"path"`
	Scope     string    `json:"scope"`
	Title     string    `json:"title,omitempty"`
	Tags      []string  `json:"tags,omitempty"`
	Category  string    `json:"category,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
	Error     string    `json:"error,omitempty"`
}

func (t *memoryListTool) Name() string { return "memory_list" }

func (t *memoryListTool) Description() string {
	return "List stored memories across the user and global scopes with their title, tags and category."
}

func (t *memoryListTool) Schema() json.RawMessage { return reflectSchema(&memoryListArgs{}) }

func (t *memoryListTool) Execute(ctx context.Context, inv Invocation, args json.RawMessage) *Response {
	var in memoryListArgs
	if err := json.Unmarshal(args, &in); err != nil {
		return fail("decode arguments: %v", err)
	}

	type scopedRoot struct{ scope, root string }
	roots := []scopedRoot{
		{"user", userMemoryRoot(inv.UserID)},
		{"global", memoryGlobalRoot},
	}
	if in.Scope != "" {
		if in.Scope == "global" {
			roots = roots[1:]
		} else {
			roots = roots[:1]
		}
	}

	records := make([]memoryRecord, 0, 16)
	for _, r := range roots {
		entries, err := t.d.files.List(ctx, inv.WorkspaceID, r.root, true)
		if apperr.IsKind(err, apperr.KindNotFound) {
			continue
		}
		if err != nil {
			return failErr(err)
		}
		for _, e := range entries {
			if e.Kind == models.FileTypeFolder {
				continue
			}
			rec := memoryRecord{Path: e.Path, Scope: r.scope, UpdatedAt: e.UpdatedAt}
			_, content, err := t.d.files.ReadPath(ctx, inv.WorkspaceID, e.Path)
			if err != nil {
				rec.Error = err.Error()
				records = append(records, rec)
				continue
			}
			fm, _, err := parseMemory(content)
			if err != nil {
				rec.Error = err.Error()
				records = append(records, rec)
				continue
			}
			rec.Title = fm.Title
			rec.Tags = fm.Tags
			rec.Category = fm.Category
			if !fm.UpdatedAt.IsZero() {
				rec.UpdatedAt = fm.UpdatedAt
			}
			records = append(records, rec)
		}
	}
	return ok(map[string]any{
		"memories": records,
		"count":    len(records),
	})
}

// --- memory_read ---

type memoryReadTool struct{ d *deps }

type memoryReadArgs struct {
	Path string `json:"path" jsonschema:"description=Memory file path as returned by memory_list"`
}

func (t *memoryReadTool) Name() string { return "memory_read" }

func (t *memoryReadTool) Description() string {
	return "Read one memory: its frontmatter record and body."
}

func (t *memoryReadTool) Schema() json.RawMessage { return reflectSchema(&memoryReadArgs{}) }

func (t *memoryReadTool) Execute(ctx context.Context, inv Invocation, args json.RawMessage) *Response {
	var in memoryReadArgs
	if err := json.Unmarshal(args, &in); err != nil {
		return fail("decode arguments: %v", err)
	}
	p, err := argPath(in.Path)
	if err != nil {
		return failErr(err)
	}
	scope, err := memoryScope(inv, p)
	if err != nil {
		return failErr(err)
	}
	_, content, err := t.d.files.ReadPath(ctx, inv.WorkspaceID, p)
	if err != nil {
		return failErr(err)
	}
	fm, body, err := parseMemory(content)
	if err != nil {
		return failErr(err)
	}
	return ok(map[string]any{
		"path":       p,
		"scope":      scope,
		"title":      fm.Title,
		"tags":       fm.Tags,
		"category":   fm.Category,
		"updated_at": fm.UpdatedAt,
		"content":    body,
	})
}

// --- memory_write ---

type memoryWriteTool struct{ d *deps }

type memoryWriteArgs struct {
	Scope    string   `json:"scope" jsonschema:"description=Where the memory lives,enum=user,enum=global"`
	Path     string   `json:"path" jsonschema:"description=Path inside the scope such as projects/alpha.md"`
	Title    string   `json:"title" jsonschema:"description=Short memory title"`
	Content  string   `json:"content" jsonschema:"description=Memory body"`
	Tags     []string `json:"tags,omitempty" jsonschema:"description=Labels for later retrieval"`
	Category string   `json:"category,omitempty" jsonschema:"description=Grouping label"`
}

func (t *memoryWriteTool) Name() string { return "memory_write" }

func (t *memoryWriteTool) Description() string {
	return "Store a memory with frontmatter (title, tags, category, updated_at) in the user or global scope."
}

func (t *memoryWriteTool) Schema() json.RawMessage { return reflectSchema(&memoryWriteArgs{}) }

func (t *memoryWriteTool) Execute(ctx context.Context, inv Invocation, args json.RawMessage) *Response {
	var in memoryWriteArgs
	if err := json.Unmarshal(args, &in); err != nil {
		return fail("decode arguments: %v", err)
	}
	rel, err := argPath(in.Path)
	if err != nil {
		return failErr(err)
	}
	root := userMemoryRoot(inv.UserID)
	if in.Scope == "global" {
		root = memoryGlobalRoot
	}
	full := root + rel

	if resp := t.d.guardPlan(ctx, inv, full); resp != nil {
		return resp
	}

	now := t.d.now().UTC()
	content, err := renderMemory(memoryFrontmatter{
		Title:     in.Title,
		Tags:      in.Tags,
		Category:  in.Category,
		UpdatedAt: now,
	}, in.Content)
	if err != nil {
		return failErr(err)
	}
	file, version, err := t.d.files.Write(ctx, inv.WorkspaceID, full, content, inv.UserID)
	if err != nil {
		return failErr(err)
	}
	return ok(map[string]any{
		"path":       file.Path,
		"scope":      in.Scope,
		"version_id": version.ID,
		"hash":       version.Hash,
		"updated_at": now,
	})
}
