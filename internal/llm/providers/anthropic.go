package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"

	"github.com/quanhua92/buildscale-ai-sub000/internal/config"
	"github.com/quanhua92/buildscale-ai-sub000/internal/llm"
	"github.com/quanhua92/buildscale-ai-sub000/pkg/models"
)

// anthropicDefaultMaxTokens applies when the request does not cap the
// completion; the Messages API requires an explicit limit.
const anthropicDefaultMaxTokens = 4096

// maxEmptyStreamEvents bounds consecutive no-op SSE events before the
// stream is treated as malformed.
const maxEmptyStreamEvents = 300

// Anthropic adapts the Claude Messages API. Tool input arrives as
// partial JSON deltas inside a content block and is finalized on
// content_block_stop.
type Anthropic struct {
	client anthropic.Client
	retry  retrier
}

func NewAnthropic(cfg config.ProviderConfig) (*Anthropic, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("api key is required")
	}
	options := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if strings.TrimSpace(cfg.BaseURL) != "" {
		options = append(options, option.WithBaseURL(cfg.BaseURL))
	}
	return &Anthropic{
		client: anthropic.NewClient(options...),
		retry:  newRetrier(),
	}, nil
}

func (p *Anthropic) Name() string { return "anthropic" }

func (p *Anthropic) Capabilities(model string) llm.Capabilities {
	return llm.Capabilities{
		SupportsTools:            true,
		SupportsCachedPrompt:     true,
		SupportsReasoningSummary: true,
	}
}

func (p *Anthropic) Complete(ctx context.Context, req llm.CompletionRequest) (<-chan llm.Chunk, error) {
	messages, err := convertAnthropicMessages(req.Messages)
	if err != nil {
		return nil, err
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = anthropicDefaultMaxTokens
	}
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		Messages:  messages,
		MaxTokens: int64(maxTokens),
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Type: "text", Text: req.System}}
	}
	if len(req.Tools) > 0 {
		tools, err := convertAnthropicTools(req.Tools)
		if err != nil {
			return nil, err
		}
		params.Tools = tools
	}

	var stream *ssestream.Stream[anthropic.MessageStreamEventUnion]
	err = p.retry.Do(ctx, func() error {
		stream = p.client.Messages.NewStreaming(ctx, params)
		if streamErr := stream.Err(); streamErr != nil {
			return streamErr
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	chunks := make(chan llm.Chunk)
	go p.processStream(ctx, stream, chunks)
	return chunks, nil
}

func (p *Anthropic) processStream(ctx context.Context, stream *ssestream.Stream[anthropic.MessageStreamEventUnion], chunks chan<- llm.Chunk) {
	defer close(chunks)

	var (
		currentTool *llm.ToolCall
		toolInput   strings.Builder
		usage       models.UsageRecord
		emptyEvents int
	)

	for stream.Next() {
		select {
		case <-ctx.Done():
			chunks <- llm.Chunk{Err: ctx.Err(), Done: true}
			return
		default:
		}

		event := stream.Current()
		processed := false

		switch event.Type {
		case "message_start":
			messageStart := event.AsMessageStart()
			if messageStart.Message.Usage.InputTokens > 0 {
				usage.PromptTokens = int(messageStart.Message.Usage.InputTokens)
			}
			if messageStart.Message.Usage.CacheReadInputTokens > 0 {
				usage.CachedPromptTokens = int(messageStart.Message.Usage.CacheReadInputTokens)
			}
			processed = true

		case "content_block_start":
			blockStart := event.AsContentBlockStart()
			if blockStart.ContentBlock.Type == "tool_use" {
				toolUse := blockStart.ContentBlock.AsToolUse()
				currentTool = &llm.ToolCall{ID: toolUse.ID, Name: toolUse.Name}
				toolInput.Reset()
				processed = true
			}

		case "content_block_delta":
			delta := event.AsContentBlockDelta().Delta
			switch delta.Type {
			case "text_delta":
				if delta.Text != "" {
					chunks <- llm.Chunk{Text: delta.Text}
					processed = true
				}
			case "input_json_delta":
				if delta.PartialJSON != "" {
					toolInput.WriteString(delta.PartialJSON)
					processed = true
				}
			}

		case "content_block_stop":
			if currentTool != nil {
				currentTool.Args = json.RawMessage(toolInput.String())
				chunks <- llm.Chunk{ToolCall: currentTool}
				currentTool = nil
				toolInput.Reset()
				processed = true
			}

		case "message_delta":
			messageDelta := event.AsMessageDelta()
			if messageDelta.Usage.OutputTokens > 0 {
				usage.CompletionTokens = int(messageDelta.Usage.OutputTokens)
			}
			processed = true

		case "message_stop":
			usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens
			final := usage
			chunks <- llm.Chunk{Done: true, Usage: &final}
			return

		case "error":
			chunks <- llm.Chunk{Err: errors.New("anthropic stream error"), Done: true}
			return
		}

		if processed {
			emptyEvents = 0
			continue
		}
		emptyEvents++
		if emptyEvents >= maxEmptyStreamEvents {
			chunks <- llm.Chunk{
				Err:  fmt.Errorf("stream malformed: %d consecutive empty events", emptyEvents),
				Done: true,
			}
			return
		}
	}

	if err := stream.Err(); err != nil {
		chunks <- llm.Chunk{Err: err, Done: true}
		return
	}
	chunks <- llm.Chunk{Err: errors.New("stream ended without message_stop"), Done: true}
}

func convertAnthropicMessages(messages []llm.CompletionMessage) ([]anthropic.MessageParam, error) {
	var result []anthropic.MessageParam
	for _, msg := range messages {
		var content []anthropic.ContentBlockParamUnion
		if msg.Content != "" {
			content = append(content, anthropic.NewTextBlock(msg.Content))
		}
		// Tool results ride in user-role messages on this API.
		for _, tr := range msg.ToolResults {
			content = append(content, anthropic.NewToolResultBlock(tr.ID, tr.Content, tr.IsError))
		}
		for _, call := range msg.ToolCalls {
			var input map[string]any
			if err := json.Unmarshal(call.Args, &input); err != nil {
				return nil, fmt.Errorf("invalid tool call input for %s: %w", call.Name, err)
			}
			content = append(content, anthropic.NewToolUseBlock(call.ID, input, call.Name))
		}
		if len(content) == 0 {
			continue
		}

		if msg.Role == models.RoleAssistant {
			result = append(result, anthropic.NewAssistantMessage(content...))
		} else {
			result = append(result, anthropic.NewUserMessage(content...))
		}
	}
	return result, nil
}

func convertAnthropicTools(tools []llm.ToolDef) ([]anthropic.ToolUnionParam, error) {
	var result []anthropic.ToolUnionParam
	for _, tool := range tools {
		var schema anthropic.ToolInputSchemaParam
		if err := json.Unmarshal(tool.Schema, &schema); err != nil {
			return nil, fmt.Errorf("invalid tool schema for %s: %w", tool.Name, err)
		}
		param := anthropic.ToolUnionParamOfTool(schema, tool.Name)
		if param.OfTool == nil {
			return nil, fmt.Errorf("invalid tool schema for %s", tool.Name)
		}
		param.OfTool.Description = anthropic.String(tool.Description)
		result = append(result, param)
	}
	return result, nil
}
