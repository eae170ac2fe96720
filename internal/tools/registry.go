package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/quanhua92/buildscale-ai-sub000/internal/llm"
	"github.com/quanhua92/buildscale-ai-sub000/internal/vfs"
)

// Argument payload cap. Anything larger is rejected before validation.
const maxArgsBytes = 10 << 20

// Registry holds the catalog and dispatches executions. Registration
// compiles each tool's schema once; Execute validates arguments against
// the compiled schema before the tool runs.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*entry
}

type entry struct {
	tool   Tool
	schema *jsonschema.Schema
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*entry)}
}

// NewCatalog builds the full built-in tool set over a filesystem
// handle.
func NewCatalog(files *vfs.Service) *Registry {
	d := &deps{files: files, now: time.Now}
	r := NewRegistry()
	for _, t := range []Tool{
		&lsTool{d},
		&readTool{d},
		&readMultipleTool{d},
		&catTool{d},
		&writeTool{d},
		&editTool{d},
		&rmTool{d},
		&mvTool{d},
		&touchTool{d},
		&mkdirTool{d},
		&grepTool{d},
		&globTool{d},
		&findTool{d},
		&fileInfoTool{d},
		&askUserTool{},
		&exitPlanModeTool{d},
		&memoryListTool{d},
		&memoryReadTool{d},
		&memoryWriteTool{d},
	} {
		if err := r.Register(t); err != nil {
			panic(fmt.Sprintf("tools: register %s: %v", t.Name(), err))
		}
	}
	return r
}

// Register adds a tool, replacing any previous tool of the same name.
// The tool's schema must compile.
func (r *Registry) Register(t Tool) error {
	compiled, err := jsonschema.CompileString(t.Name()+".schema.json", string(t.Schema()))
	if err != nil {
		return fmt.Errorf("compile schema for %s: %w", t.Name(), err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[t.Name()] = &entry{tool: t, schema: compiled}
	return nil
}

// Get returns a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	if !ok {
		return nil, false
	}
	return e.tool, true
}

// Names returns the registered tool names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Defs returns the catalog as provider tool definitions, sorted by
// name so prompt payloads are deterministic.
func (r *Registry) Defs() []llm.ToolDef {
	r.mu.RLock()
	defer r.mu.RUnlock()
	defs := make([]llm.ToolDef, 0, len(r.entries))
	for _, e := range r.entries {
		defs = append(defs, llm.ToolDef{
			Name:        e.tool.Name(),
			Description: e.tool.Description(),
			Schema:      e.tool.Schema(),
		})
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs
}

// Execute validates the arguments and runs the named tool. All
// failures, including unknown tools and schema violations, come back
// as failed Responses so the model sees them in-band.
func (r *Registry) Execute(ctx context.Context, inv Invocation, name string, args json.RawMessage) *Response {
	if inv.WorkspaceID == "" {
		return fail("workspace is required")
	}
	if len(args) > maxArgsBytes {
		return fail("arguments exceed %d bytes", maxArgsBytes)
	}

	r.mu.RLock()
	e, found := r.entries[name]
	r.mu.RUnlock()
	if !found {
		return fail("unknown tool: %s", name)
	}

	if len(args) == 0 || string(args) == "null" {
		args = json.RawMessage(`{}`)
	}
	var decoded any
	if err := json.Unmarshal(args, &decoded); err != nil {
		return fail("arguments are not valid JSON: %v", err)
	}
	if err := e.schema.Validate(decoded); err != nil {
		return fail("invalid arguments for %s: %v", name, err)
	}

	return e.tool.Execute(ctx, inv, args)
}
