package tools

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/quanhua92/buildscale-ai-sub000/pkg/models"
)

// --- ask_user ---

// askUserTool surfaces a question to the user. The actor intercepts
// calls to it and pauses the session until the user answers; executed
// directly it just echoes the question payload.
type askUserTool struct{}

type askUserArgs struct {
	Question string   `json:"question" jsonschema:"description=Question to put to the user"`
	Choices  []string `json:"choices,omitempty" jsonschema:"description=Fixed answers to offer instead of free text"`
}

func (t *askUserTool) Name() string { return "ask_user" }

func (t *askUserTool) Description() string {
	return "Ask the user a question and wait for their answer. Use it to get a plan approved before exit_plan_mode."
}

func (t *askUserTool) Schema() json.RawMessage { return reflectSchema(&askUserArgs{}) }

func (t *askUserTool) Execute(ctx context.Context, inv Invocation, args json.RawMessage) *Response {
	var in askUserArgs
	if err := json.Unmarshal(args, &in); err != nil {
		return fail("decode arguments: %v", err)
	}
	if strings.TrimSpace(in.Question) == "" {
		return fail("question is required")
	}
	return ok(map[string]any{
		"question": in.Question,
		"choices":  in.Choices,
		"status":   "waiting_for_user",
	})
}

// --- exit_plan_mode ---

// exitPlanModeTool validates the plan handshake. The actor watches for
// a successful call and switches the session from plan to build mode.
type exitPlanModeTool struct{ d *deps }

type exitPlanModeArgs struct {
	PlanPath string `json:"plan_path" jsonschema:"description=Path of the approved plan file"`
}

func (t *exitPlanModeTool) Name() string { return "exit_plan_mode" }

func (t *exitPlanModeTool) Description() string {
	return "Leave plan mode after the user approved the plan. The plan file must exist."
}

func (t *exitPlanModeTool) Schema() json.RawMessage { return reflectSchema(&exitPlanModeArgs{}) }

func (t *exitPlanModeTool) Execute(ctx context.Context, inv Invocation, args json.RawMessage) *Response {
	var in exitPlanModeArgs
	if err := json.Unmarshal(args, &in); err != nil {
		return fail("decode arguments: %v", err)
	}
	p, err := argPath(in.PlanPath)
	if err != nil {
		return failErr(err)
	}
	f, err := t.d.files.Resolve(ctx, inv.WorkspaceID, p)
	if err != nil {
		return failErr(err)
	}
	if f.FileType != models.FileTypePlan {
		return fail("not a plan file: %s", p)
	}
	return ok(map[string]any{
		"plan_path": f.Path,
		"mode":      "build",
	})
}
