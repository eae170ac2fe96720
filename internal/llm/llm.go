// Package llm hides provider differences behind one streaming chat
// interface. Callers ask the Gateway for a Stream, pull Items from it,
// and push tool results back; adapters under llm/providers translate to
// and from each vendor SDK.
package llm

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/quanhua92/buildscale-ai-sub000/internal/apperr"
	"github.com/quanhua92/buildscale-ai-sub000/pkg/models"
)

// ModelID is a parsed "provider:model" identifier.
type ModelID struct {
	Provider string
	Name     string
}

func (m ModelID) String() string {
	if m.Name == "" {
		return m.Provider
	}
	return m.Provider + ":" + m.Name
}

// ParseModelID splits a "provider:model" identifier. Bare names resolve
// to defaultProvider; the model part may itself contain colons
// (bedrock model ids do). Parsing never fails; unknown providers are
// rejected at stream-open time.
func ParseModelID(id, defaultProvider string) ModelID {
	id = strings.TrimSpace(id)
	provider, name, found := strings.Cut(id, ":")
	if !found {
		return ModelID{Provider: defaultProvider, Name: id}
	}
	return ModelID{Provider: strings.ToLower(strings.TrimSpace(provider)), Name: strings.TrimSpace(name)}
}

// Capabilities are per-model feature flags passed through with Final.
type Capabilities struct {
	SupportsTools            bool `json:"supports_tools"`
	SupportsReasoningSummary bool `json:"supports_reasoning_summary"`
	SupportsCachedPrompt     bool `json:"supports_cached_prompt"`
}

// ToolDef describes one callable tool offered to the model.
type ToolDef struct {
	Name        string
	Description string

	// Schema is the JSON Schema of the argument object.
	Schema json.RawMessage
}

// Message is one prior conversation entry in a Request.
type Message struct {
	Role    models.MessageRole
	Content string
}

// Request describes one streaming chat call.
type Request struct {
	// Model is the "provider:model" identifier; bare names use the
	// default provider.
	Model string

	// System is the assembled system prompt.
	System string

	// Prompt is the user message starting this turn.
	Prompt string

	// History is the prior conversation, oldest first.
	History []Message

	// Tools is the catalog offered to the model.
	Tools []ToolDef

	// MaxTokens caps the completion length; zero uses the provider
	// default.
	MaxTokens int
}

// Item is one element of a chat stream.
type Item interface {
	isItem()
}

// TextChunk is an incremental piece of assistant text.
type TextChunk struct {
	Text string
}

// ToolCallRequest asks the consumer to execute a tool and Push the
// result back.
type ToolCallRequest struct {
	ID   string
	Name string
	Args json.RawMessage
}

// ToolCallResult is a completed tool execution fed back into the
// stream to continue the model turn.
type ToolCallResult struct {
	ID      string
	Name    string
	Result  string
	IsError bool
}

// Final closes a successful stream with usage accounting and the
// model's capability flags.
type Final struct {
	Usage        models.UsageRecord
	Capabilities Capabilities
}

// ProviderError closes a failed stream with a classified upstream
// failure.
type ProviderError struct {
	Kind    apperr.Kind
	Message string
}

func (TextChunk) isItem()       {}
func (ToolCallRequest) isItem() {}
func (ToolCallResult) isItem()  {}
func (Final) isItem()           {}
func (ProviderError) isItem()   {}

// Err converts the item into the error taxonomy.
func (e ProviderError) Err() error {
	return apperr.New(e.Kind, e.Message)
}

// Chunk is one unit of a raw provider completion stream. Adapters emit
// text as it arrives, tool calls once fully accumulated, and exactly
// one terminal chunk (Done or Err).
type Chunk struct {
	Text     string
	ToolCall *ToolCall
	Usage    *models.UsageRecord
	Err      error
	Done     bool
}

// ToolCall is a fully accumulated tool invocation from the model.
type ToolCall struct {
	ID   string
	Name string
	Args json.RawMessage
}

// ToolResult is a tool execution outcome in provider message history.
type ToolResult struct {
	ID      string
	Name    string
	Content string
	IsError bool
}

// CompletionMessage is one entry of provider-facing message history.
// Assistant messages may carry tool calls; tool messages carry results.
type CompletionMessage struct {
	Role        models.MessageRole
	Content     string
	ToolCalls   []ToolCall
	ToolResults []ToolResult
}

// CompletionRequest is the provider-facing form of one model round.
type CompletionRequest struct {
	Model     string
	System    string
	Messages  []CompletionMessage
	Tools     []ToolDef
	MaxTokens int
}

// Provider adapts one vendor SDK to the raw completion stream.
// Complete returns a channel that the adapter closes after the terminal
// chunk; the channel must honor ctx cancellation.
type Provider interface {
	Name() string
	Capabilities(model string) Capabilities
	Complete(ctx context.Context, req CompletionRequest) (<-chan Chunk, error)
}
