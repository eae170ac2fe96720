package models

import "time"

// AgentType selects the persona an actor runs with.
type AgentType string

const (
	AgentAssistant AgentType = "assistant"
	AgentPlanner   AgentType = "planner"
	AgentBuilder   AgentType = "builder"
)

// SessionMode controls which files tools may mutate during a turn.
type SessionMode string

const (
	// ModeChat is unrestricted conversation.
	ModeChat SessionMode = "chat"

	// ModePlan restricts mutations to Plan files until exit_plan_mode.
	ModePlan SessionMode = "plan"

	// ModeBuild is unrestricted execution of an approved plan.
	ModeBuild SessionMode = "build"
)

// SessionStatus is the agent session state machine value.
type SessionStatus string

const (
	StatusIdle      SessionStatus = "idle"
	StatusRunning   SessionStatus = "running"
	StatusPaused    SessionStatus = "paused"
	StatusCompleted SessionStatus = "completed"
	StatusError     SessionStatus = "error"
	StatusCancelled SessionStatus = "cancelled"
)

// IsTerminal reports whether the status is Completed, Error, or Cancelled.
// Terminal sessions are reusable: GetOrCreate resets them to Idle.
func (s SessionStatus) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusError, StatusCancelled:
		return true
	}
	return false
}

// IsActive reports whether the status is Idle, Running, or Paused.
func (s SessionStatus) IsActive() bool {
	switch s {
	case StatusIdle, StatusRunning, StatusPaused:
		return true
	}
	return false
}

// AgentSession is the durable shadow of one chat actor. At most one row
// exists per chat file.
type AgentSession struct {
	// ID is the unique session identifier.
	ID string `json:"id"`

	// WorkspaceID scopes the session.
	WorkspaceID string `json:"workspace_id"`

	// ChatFileID references the owning chat file; unique.
	ChatFileID string `json:"chat_file_id"`

	// UserID is the user driving the current interaction.
	UserID string `json:"user_id"`

	// AgentType selects the persona.
	AgentType AgentType `json:"agent_type"`

	// Model is the gateway model identifier, "provider:name".
	Model string `json:"model"`

	// Mode is the tool mutation policy for turns on this session.
	Mode SessionMode `json:"mode"`

	// Status is the FSM state.
	Status SessionStatus `json:"status"`

	// CurrentTask is a short description of the in-flight work.
	CurrentTask *string `json:"current_task,omitempty"`

	// ErrorMessage holds the failure detail when Status is Error.
	ErrorMessage *string `json:"error_message,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// LastHeartbeat is refreshed by the actor on a timer while running.
	// Sessions with a heartbeat older than the staleness window and a
	// non-terminal status are reaped by the cleanup task.
	LastHeartbeat time.Time `json:"last_heartbeat"`

	// CompletedAt is set when the session enters Completed or Error.
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// ToolConfig is the execution-context object passed to every tool
// invocation within a turn.
type ToolConfig struct {
	// PlanMode restricts mutating tools to Plan files when true.
	PlanMode bool `json:"plan_mode"`

	// ActivePlanPath is the plan the current turn is executing, if any.
	ActivePlanPath string `json:"active_plan_path,omitempty"`
}
