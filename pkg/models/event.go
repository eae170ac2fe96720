package models

import (
	"encoding/json"
	"time"
)

// EventType identifies the kind of actor event.
type EventType string

const (
	// EventChunk carries a streamed text fragment of the assistant reply.
	EventChunk EventType = "chunk"

	// EventToolCallStart announces a tool invocation before it executes.
	EventToolCallStart EventType = "tool_call_start"

	// EventToolCallEnd reports the result or error of a tool invocation.
	EventToolCallEnd EventType = "tool_call_end"

	// EventError reports a turn failure; the session has entered Error.
	EventError EventType = "error"

	// EventStopped reports a cancelled turn with the partial response.
	EventStopped EventType = "stopped"

	// EventDone reports a completed turn with its usage record.
	EventDone EventType = "done"
)

// Event is the unified envelope published on a chat's broadcast channel and
// relayed 1:1 over the push stream. Exactly one payload pointer is non-nil
// for a given Type. Events for a chat are totally ordered by the emitting
// actor; Seq is monotonic within the actor's lifetime.
type Event struct {
	// Type identifies the kind of event.
	Type EventType `json:"type"`

	// ChatFileID is the chat the event belongs to.
	ChatFileID string `json:"chat_file_id"`

	// Seq is monotonic per actor for ordering checks.
	Seq uint64 `json:"seq"`

	// Time is when the event was emitted.
	Time time.Time `json:"time"`

	Chunk   *ChunkPayload   `json:"chunk,omitempty"`
	Tool    *ToolPayload    `json:"tool,omitempty"`
	Error   *ErrorPayload   `json:"error,omitempty"`
	Stopped *StoppedPayload `json:"stopped,omitempty"`
	Done    *DonePayload    `json:"done,omitempty"`
}

// ChunkPayload carries a streamed text fragment.
type ChunkPayload struct {
	Text string `json:"text"`
}

// ToolPayload carries tool call lifecycle data. Result and Error are only
// set on tool_call_end.
type ToolPayload struct {
	Name   string          `json:"name"`
	Args   json.RawMessage `json:"args,omitempty"`
	Result string          `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// ErrorPayload carries the turn failure message.
type ErrorPayload struct {
	Message string `json:"message"`
}

// StoppedPayload carries the cancellation reason and whatever partial
// response had streamed before the stop.
type StoppedPayload struct {
	Reason  string `json:"reason"`
	Partial string `json:"partial"`
}

// DonePayload carries the usage record of a completed turn.
type DonePayload struct {
	Usage UsageRecord `json:"usage"`
}

// NewChunkEvent builds a chunk event.
func NewChunkEvent(chatFileID, text string) Event {
	return Event{Type: EventChunk, ChatFileID: chatFileID, Time: time.Now(), Chunk: &ChunkPayload{Text: text}}
}

// NewToolStartEvent builds a tool_call_start event.
func NewToolStartEvent(chatFileID, name string, args json.RawMessage) Event {
	return Event{Type: EventToolCallStart, ChatFileID: chatFileID, Time: time.Now(), Tool: &ToolPayload{Name: name, Args: args}}
}

// NewToolEndEvent builds a tool_call_end event. Exactly one of result or
// errMsg should be non-empty.
func NewToolEndEvent(chatFileID, name, result, errMsg string) Event {
	return Event{Type: EventToolCallEnd, ChatFileID: chatFileID, Time: time.Now(), Tool: &ToolPayload{Name: name, Result: result, Error: errMsg}}
}

// NewErrorEvent builds an error event.
func NewErrorEvent(chatFileID, message string) Event {
	return Event{Type: EventError, ChatFileID: chatFileID, Time: time.Now(), Error: &ErrorPayload{Message: message}}
}

// NewStoppedEvent builds a stopped event.
func NewStoppedEvent(chatFileID, reason, partial string) Event {
	return Event{Type: EventStopped, ChatFileID: chatFileID, Time: time.Now(), Stopped: &StoppedPayload{Reason: reason, Partial: partial}}
}

// NewDoneEvent builds a done event.
func NewDoneEvent(chatFileID string, usage UsageRecord) Event {
	return Event{Type: EventDone, ChatFileID: chatFileID, Time: time.Now(), Done: &DonePayload{Usage: usage}}
}
