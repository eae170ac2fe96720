package providers

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/google/uuid"
	"google.golang.org/genai"

	"github.com/quanhua92/buildscale-ai-sub000/internal/config"
	"github.com/quanhua92/buildscale-ai-sub000/internal/llm"
	"github.com/quanhua92/buildscale-ai-sub000/pkg/models"
)

// Google adapts the Gemini API. The SDK streams via a Go iterator;
// function calls arrive whole, so no delta accumulation is needed. The
// API carries no tool call ids, so the adapter mints them for the
// feedback loop.
type Google struct {
	client *genai.Client
}

func NewGoogle(cfg config.ProviderConfig) (*Google, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("api key is required")
	}
	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, err
	}
	return &Google{client: client}, nil
}

func (p *Google) Name() string { return "google" }

func (p *Google) Capabilities(model string) llm.Capabilities {
	return llm.Capabilities{
		SupportsTools:        true,
		SupportsCachedPrompt: strings.Contains(model, "gemini"),
	}
}

func (p *Google) Complete(ctx context.Context, req llm.CompletionRequest) (<-chan llm.Chunk, error) {
	contents := convertGoogleMessages(req.Messages)
	genConfig := &genai.GenerateContentConfig{}
	if req.System != "" {
		genConfig.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: req.System}},
		}
	}
	if req.MaxTokens > 0 {
		genConfig.MaxOutputTokens = int32(req.MaxTokens)
	}
	if len(req.Tools) > 0 {
		genConfig.Tools = convertGoogleTools(req.Tools)
	}

	chunks := make(chan llm.Chunk)
	go func() {
		defer close(chunks)

		var usage *models.UsageRecord
		for resp, err := range p.client.Models.GenerateContentStream(ctx, req.Model, contents, genConfig) {
			select {
			case <-ctx.Done():
				chunks <- llm.Chunk{Err: ctx.Err(), Done: true}
				return
			default:
			}
			if err != nil {
				chunks <- llm.Chunk{Err: err, Done: true}
				return
			}
			if resp == nil {
				continue
			}

			if resp.UsageMetadata != nil {
				usage = &models.UsageRecord{
					PromptTokens:     int(resp.UsageMetadata.PromptTokenCount),
					CompletionTokens: int(resp.UsageMetadata.CandidatesTokenCount),
					TotalTokens:      int(resp.UsageMetadata.TotalTokenCount),
				}
			}
			for _, candidate := range resp.Candidates {
				if candidate == nil || candidate.Content == nil {
					continue
				}
				for _, part := range candidate.Content.Parts {
					if part == nil {
						continue
					}
					if part.Text != "" {
						chunks <- llm.Chunk{Text: part.Text}
					}
					if part.FunctionCall != nil {
						args, jsonErr := json.Marshal(part.FunctionCall.Args)
						if jsonErr != nil {
							args = []byte("{}")
						}
						chunks <- llm.Chunk{ToolCall: &llm.ToolCall{
							ID:   "call_" + uuid.NewString(),
							Name: part.FunctionCall.Name,
							Args: args,
						}}
					}
				}
			}
		}
		chunks <- llm.Chunk{Done: true, Usage: usage}
	}()
	return chunks, nil
}

func convertGoogleMessages(messages []llm.CompletionMessage) []*genai.Content {
	var result []*genai.Content
	for _, msg := range messages {
		content := &genai.Content{Role: genai.RoleUser}
		if msg.Role == models.RoleAssistant {
			content.Role = genai.RoleModel
		}

		if msg.Content != "" {
			content.Parts = append(content.Parts, &genai.Part{Text: msg.Content})
		}
		for _, call := range msg.ToolCalls {
			var args map[string]any
			if err := json.Unmarshal(call.Args, &args); err != nil {
				args = map[string]any{}
			}
			content.Parts = append(content.Parts, &genai.Part{
				FunctionCall: &genai.FunctionCall{Name: call.Name, Args: args},
			})
		}
		for _, tr := range msg.ToolResults {
			response := map[string]any{"result": tr.Content}
			if tr.IsError {
				response = map[string]any{"error": tr.Content}
			}
			content.Parts = append(content.Parts, &genai.Part{
				FunctionResponse: &genai.FunctionResponse{Name: tr.Name, Response: response},
			})
		}
		if len(content.Parts) == 0 {
			continue
		}
		result = append(result, content)
	}
	return result
}

func convertGoogleTools(tools []llm.ToolDef) []*genai.Tool {
	declarations := make([]*genai.FunctionDeclaration, 0, len(tools))
	for _, tool := range tools {
		var schemaMap map[string]any
		if err := json.Unmarshal(tool.Schema, &schemaMap); err != nil {
			continue
		}
		declarations = append(declarations, &genai.FunctionDeclaration{
			Name:        tool.Name,
			Description: tool.Description,
			Parameters:  convertGoogleSchema(schemaMap),
		})
	}
	if len(declarations) == 0 {
		return nil
	}
	return []*genai.Tool{{FunctionDeclarations: declarations}}
}

// convertGoogleSchema maps a JSON Schema object onto the SDK's typed
// schema, keeping the subset the function-calling API understands.
func convertGoogleSchema(schemaMap map[string]any) *genai.Schema {
	if schemaMap == nil {
		return nil
	}
	schema := &genai.Schema{}
	if t, ok := schemaMap["type"].(string); ok {
		schema.Type = genai.Type(strings.ToUpper(t))
	}
	if desc, ok := schemaMap["description"].(string); ok {
		schema.Description = desc
	}
	if enum, ok := schemaMap["enum"].([]any); ok {
		for _, e := range enum {
			if s, ok := e.(string); ok {
				schema.Enum = append(schema.Enum, s)
			}
		}
	}
	if props, ok := schemaMap["properties"].(map[string]any); ok {
		schema.Properties = make(map[string]*genai.Schema, len(props))
		for name, prop := range props {
			if propMap, ok := prop.(map[string]any); ok {
				schema.Properties[name] = convertGoogleSchema(propMap)
			}
		}
	}
	if required, ok := schemaMap["required"].([]any); ok {
		for _, r := range required {
			if s, ok := r.(string); ok {
				schema.Required = append(schema.Required, s)
			}
		}
	}
	if items, ok := schemaMap["items"].(map[string]any); ok {
		schema.Items = convertGoogleSchema(items)
	}
	return schema
}
