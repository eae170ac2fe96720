package models

import (
	"encoding/json"
	"time"
)

// MessageRole identifies the author kind of a chat message.
type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
	RoleSystem    MessageRole = "system"
	RoleTool      MessageRole = "tool"
)

// Attachment references a file from message metadata. Resolution to content
// happens at prompt-assembly time, against the pinned version when set and
// the latest version otherwise.
type Attachment struct {
	// FileID references the attached file.
	FileID string `json:"file_id"`

	// VersionID pins a specific version; nil means latest at assembly time.
	VersionID *int64 `json:"version_id,omitempty"`
}

// ToolCallRecord captures one tool invocation made during a turn.
type ToolCallRecord struct {
	// ID is the provider-assigned tool call identifier.
	ID string `json:"id"`

	// Name is the tool name from the catalog.
	Name string `json:"name"`

	// Args is the raw JSON argument object passed to the tool.
	Args json.RawMessage `json:"args,omitempty"`

	// Result is the serialized tool result, empty when the call failed.
	Result string `json:"result,omitempty"`

	// Error is the tool failure message, empty on success.
	Error string `json:"error,omitempty"`
}

// UsageRecord is the token accounting attached to a completed turn.
type UsageRecord struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`

	// CachedPromptTokens counts prompt tokens served from provider cache,
	// when the model advertises cached-prompt accounting.
	CachedPromptTokens int `json:"cached_prompt_tokens,omitempty"`

	// ReasoningTokens counts hidden reasoning tokens, when the model
	// advertises reasoning summaries.
	ReasoningTokens int `json:"reasoning_tokens,omitempty"`
}

// MessageMetadata is the structured sidecar on a chat message.
type MessageMetadata struct {
	Attachments []Attachment     `json:"attachments,omitempty"`
	ToolCalls   []ToolCallRecord `json:"tool_calls,omitempty"`
	Usage       *UsageRecord     `json:"usage,omitempty"`
}

// ChatMessage is one append-only entry in a chat file's message log.
// Ordering within a chat is strictly by insertion; content is never mutated
// after insert. Corrections are new messages.
type ChatMessage struct {
	// ID is the unique message identifier.
	ID string `json:"id"`

	// WorkspaceID scopes the message to the chat's workspace.
	WorkspaceID string `json:"workspace_id"`

	// ChatFileID references the owning chat file.
	ChatFileID string `json:"chat_file_id"`

	// Seq is the insertion sequence within the chat, assigned by the store.
	Seq int64 `json:"seq"`

	// UserID is the authoring user, nil for assistant/system/tool messages.
	UserID *string `json:"user_id,omitempty"`

	// Role is the author kind.
	Role MessageRole `json:"role"`

	// Content is the message text.
	Content string `json:"content"`

	// Metadata carries attachments, tool call records, and usage.
	Metadata MessageMetadata `json:"metadata,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}
