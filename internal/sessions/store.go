// Package sessions persists the durable shadow of each chat actor: one
// AgentSession row per chat file, moved through a small status machine.
//
// The store is the single enforcement point for status transitions.
// GetOrCreate is the only way a terminal session returns to Idle; every
// other move goes through UpdateStatus, which rejects anything outside
// the legal set with a Conflict error.
package sessions

import (
	"context"
	"time"

	"github.com/quanhua92/buildscale-ai-sub000/pkg/models"
)

// StaleAfter is the heartbeat age beyond which a non-terminal session is
// considered abandoned and eligible for cleanup.
const StaleAfter = 120 * time.Second

// Store is the persistence surface for agent sessions.
type Store interface {
	// GetOrCreate starts a new interaction on a chat. If no session
	// exists for next.ChatFileID one is created in status Idle. If the
	// existing session is terminal it is reset to Idle: error message,
	// current task, and completion time are cleared, and the user,
	// agent type, model, mode, and heartbeat are taken from next. If
	// the existing session is still active the call fails with
	// Conflict identifying it.
	GetOrCreate(ctx context.Context, next *models.AgentSession) (*models.AgentSession, error)

	// Get returns a session by id.
	Get(ctx context.Context, id string) (*models.AgentSession, error)

	// GetByChatFile returns the session owning a chat file.
	GetByChatFile(ctx context.Context, chatFileID string) (*models.AgentSession, error)

	// UpdateStatus moves the session to status, recording errorMessage
	// when provided. Illegal transitions fail with Conflict. Entering
	// Completed or Error stamps completed_at.
	UpdateStatus(ctx context.Context, id string, status models.SessionStatus, errorMessage *string) (*models.AgentSession, error)

	// UpdateTask replaces the current task description. A nil task
	// leaves the column untouched.
	UpdateTask(ctx context.Context, id string, task *string) error

	// UpdateMetadata partially updates model, mode, and agent type.
	// Nil fields keep their stored values.
	UpdateMetadata(ctx context.Context, id string, model *string, mode *models.SessionMode, agentType *models.AgentType) error

	// Heartbeat refreshes last_heartbeat for a live actor.
	Heartbeat(ctx context.Context, id string) error

	// CleanupStale deletes non-terminal sessions whose heartbeat is
	// older than olderThan and returns the chat file ids of the
	// sessions it removed so their actors can be stopped.
	CleanupStale(ctx context.Context, olderThan time.Duration) ([]string, error)

	// Stats counts a workspace's sessions by status.
	Stats(ctx context.Context, workspaceID string) (map[models.SessionStatus]int64, error)
}

// legalTransitions holds the allowed status moves. Terminal statuses
// have no outgoing edges here; they re-enter the machine only through
// GetOrCreate.
var legalTransitions = map[models.SessionStatus][]models.SessionStatus{
	models.StatusIdle:    {models.StatusRunning, models.StatusCancelled},
	models.StatusRunning: {models.StatusPaused, models.StatusCompleted, models.StatusError, models.StatusCancelled},
	models.StatusPaused:  {models.StatusIdle, models.StatusCompleted, models.StatusError, models.StatusCancelled},
}

// CanTransition reports whether moving from one status to another is
// legal. Self-transitions are not.
func CanTransition(from, to models.SessionStatus) bool {
	for _, next := range legalTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
