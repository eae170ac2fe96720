// Package chat persists the append-only message log of chat files. A
// message is never mutated after insert; corrections are new messages.
// Ordering within a chat is the store-assigned Seq.
package chat

import (
	"context"

	"github.com/quanhua92/buildscale-ai-sub000/pkg/models"
)

// ListOptions bounds a history read. Zero values mean "no bound".
type ListOptions struct {
	// Limit caps the number of returned messages. 0 means DefaultListLimit.
	Limit int

	// BeforeSeq returns only messages with Seq strictly below it, for
	// paging backwards. 0 means start from the newest.
	BeforeSeq int64
}

// DefaultListLimit bounds history reads that pass no explicit limit.
const DefaultListLimit = 200

// Store is the chat message log.
type Store interface {
	// Append inserts a message and assigns the next Seq for its chat.
	// The message's ID must be set by the caller; Seq is set on return.
	Append(ctx context.Context, msg *models.ChatMessage) error

	// List returns messages in insertion order (ascending Seq). With
	// BeforeSeq set it returns the window of messages directly below it,
	// still ascending, so pages stitch together oldest-first.
	List(ctx context.Context, workspaceID, chatFileID string, opts ListOptions) ([]*models.ChatMessage, error)

	// LatestUserMessage returns the most recent user-role message.
	LatestUserMessage(ctx context.Context, workspaceID, chatFileID string) (*models.ChatMessage, error)

	// Count returns the number of messages in a chat.
	Count(ctx context.Context, workspaceID, chatFileID string) (int64, error)
}
