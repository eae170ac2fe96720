// Package tools is the closed catalog of operations the agent can
// call. Every tool declares a name, a description, and a JSON Schema
// for its arguments; the Registry validates arguments against the
// schema before dispatch. Tools never see the filesystem directly:
// they run against a vfs.Service handle pre-scoped by the Invocation's
// workspace.
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

// Invocation is the execution context threaded from the actor into
// every tool call. Tools take the workspace from here and never from
// arguments.
type Invocation struct {
	WorkspaceID string
	UserID      string
	Config      models.ToolConfig
}

// Response is the outcome of one tool execution. Failures are carried
// in-band: Success false plus a message the model can act on.
type Response struct {
	Success bool   `json:"success"`
	Result  any    `json:"result,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Tool is one catalog entry.
type Tool interface {
	Name() string
	Description() string

	// Schema is the JSON Schema of the argument object.
	Schema() json.RawMessage

	// Execute runs the tool. Argument and state problems come back as
	// failed Responses, never as panics or Go errors.
	Execute(ctx context.Context, inv Invocation, args json.RawMessage) *Response
}

// deps is the shared state behind the built-in tools.
type deps struct {
	files *vfs.Service
	now   func() time.Time
}

func ok(result any) *Response {
	return &Response{Success: true, Result: result}
}

func fail(format string, args ...any) *Response {
	return &Response{Success: false, Error: fmt.Sprintf(format, args...)}
}

// failErr converts an operation error into a failed Response, keeping
// the message the service layer produced.
func failErr(err error) *Response {
	return &Response{Success: false, Error: err.Error()}
}

// argPath validates and canonicalizes a caller-supplied path. Paths
// containing ".." are rejected before normalization so traversal can
// never reach the normalizer's popping logic.
func argPath(p string) (string, error) {
	if strings.TrimSpace(p) == "" {
		return "", fmt.Errorf("path is required")
	}
	for _, seg := range strings.Split(p, "/") {
		if seg == ".." {
			return "", fmt.Errorf("path must not contain %q: %s", "..", p)
		}
	}
	return vfs.Normalize(p), nil
}

// planModeDenied is the fixed error every mutating tool returns while
// plan mode is active and the target is not a plan file. The wording is
// part of the tool contract; the model keys off it.
const planModeDenied = "plan mode is active: only plan files may be modified. Present the plan with ask_user, then call exit_plan_mode to apply it."

// guardPlan enforces plan-mode write isolation over a set of target
// paths. A target passes when it is the active plan, resolves to an
// existing plan file, or would be created as one.
func (d *deps) guardPlan(ctx context.Context, inv Invocation, paths ...string) *Response {
	if !inv.Config.PlanMode {
		return nil
	}
	for _, p := range paths {
		if d.isPlanTarget(ctx, inv, p) {
			continue
		}
		return fail("%s", planModeDenied)
	}
	return nil
}

func (d *deps) isPlanTarget(ctx context.Context, inv Invocation, path string) bool {
	p := vfs.Normalize(path)
	if active := inv.Config.ActivePlanPath; active != "" && vfs.Normalize(active) == p {
		return true
	}
	f, err := d.files.Resolve(ctx, inv.WorkspaceID, p)
	if err != nil {
		return vfs.InferFileType(p) == models.FileTypePlan
	}
	return f.FileType == models.FileTypePlan
}

// splitLines breaks content into lines without a phantom final line
// for trailing newlines. Empty content has zero lines.
func splitLines(content string) []string {
	if content == "" {
		return nil
	}
	lines := strings.Split(content, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

// sliceLines applies a 1-based line offset and a line-count limit.
// A negative offset counts from the end: -10 selects the last ten
// lines. Returns the selected lines and the 1-based number of the
// first one.
func sliceLines(lines []string, offset, limit int) ([]string, int) {
	total := len(lines)
	start := 1
	switch {
	case offset > 0:
		start = offset
	case offset < 0:
		start = total + offset + 1
		if start < 1 {
			start = 1
		}
	}
	if start > total {
		return nil, start
	}
	out := lines[start-1:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, start
}
