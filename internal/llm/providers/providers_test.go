package providers

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	openai "github.com/sashabaranov/go-openai"
	"google.golang.org/genai"

	"github.com/quanhua92/buildscale-ai-sub000/internal/config"
	"github.com/quanhua92/buildscale-ai-sub000/internal/llm"
	"github.com/quanhua92/buildscale-ai-sub000/pkg/models"
)

func TestBuild(t *testing.T) {
	registry, err := Build(config.LLMConfig{
		Providers: map[string]config.ProviderConfig{"mock": {}},
	})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if _, ok := registry["mock"]; !ok {
		t.Fatal("Build() registry missing mock provider")
	}

	_, err = Build(config.LLMConfig{
		Providers: map[string]config.ProviderConfig{"watson": {APIKey: "k"}},
	})
	if err == nil || !strings.Contains(err.Error(), "unknown provider") {
		t.Errorf("Build() unknown provider error = %v", err)
	}

	_, err = Build(config.LLMConfig{
		Providers: map[string]config.ProviderConfig{"openai": {}},
	})
	if err == nil {
		t.Error("Build() openai without api key should fail")
	}
}

func TestRetrier(t *testing.T) {
	r := retrier{maxRetries: 3, delay: time.Millisecond}
	ctx := context.Background()

	attempts := 0
	err := r.Do(ctx, func() error {
		attempts++
		if attempts < 3 {
			return errors.New("connection refused")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}

	// Non-retryable errors stop immediately.
	attempts = 0
	err = r.Do(ctx, func() error {
		attempts++
		return errors.New("invalid request: unknown field")
	})
	if err == nil || attempts != 1 {
		t.Errorf("Do() non-retryable: err = %v, attempts = %d", err, attempts)
	}

	// Exhaustion wraps the last error.
	attempts = 0
	err = r.Do(ctx, func() error {
		attempts++
		return errors.New("request timed out")
	})
	if err == nil || !strings.Contains(err.Error(), "max retries exceeded") {
		t.Errorf("Do() exhaustion error = %v", err)
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
}

func TestMockScriptAndEcho(t *testing.T) {
	mock := NewMock()
	mock.Enqueue(
		llm.Chunk{Text: "scripted"},
		llm.Chunk{Done: true},
	)

	ctx := context.Background()
	req := llm.CompletionRequest{
		Model:    "mock-model",
		Messages: []llm.CompletionMessage{{Role: models.RoleUser, Content: "hello"}},
	}

	chunks, err := mock.Complete(ctx, req)
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	var text string
	for chunk := range chunks {
		text += chunk.Text
	}
	if text != "scripted" {
		t.Errorf("scripted text = %q", text)
	}

	// With no scripts left, the mock echoes the last user message.
	chunks, err = mock.Complete(ctx, req)
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	text = ""
	var done bool
	for chunk := range chunks {
		text += chunk.Text
		if chunk.Done {
			done = true
			if chunk.Usage == nil {
				t.Error("echo Done chunk missing usage")
			}
		}
	}
	if !strings.Contains(text, "hello") {
		t.Errorf("echo text = %q, want it to quote the prompt", text)
	}
	if !done {
		t.Error("echo script missing Done chunk")
	}

	if got := len(mock.Requests()); got != 2 {
		t.Errorf("Requests() = %d, want 2", got)
	}
}

func TestIsReasoningModel(t *testing.T) {
	tests := []struct {
		model string
		want  bool
	}{
		{"o1-preview", true},
		{"o3-mini", true},
		{"gpt-5", true},
		{"gpt-4o", false},
		{"gpt-4-turbo", false},
	}
	for _, tt := range tests {
		if got := isReasoningModel(tt.model); got != tt.want {
			t.Errorf("isReasoningModel(%q) = %v, want %v", tt.model, got, tt.want)
		}
	}
}

func TestConvertOpenAIMessages(t *testing.T) {
	req := llm.CompletionRequest{
		System: "be helpful",
		Messages: []llm.CompletionMessage{
			{Role: models.RoleUser, Content: "what's in notes.md?"},
			{
				Role:    models.RoleAssistant,
				Content: "Let me check.",
				ToolCalls: []llm.ToolCall{
					{ID: "call_1", Name: "read", Args: json.RawMessage(`{"path":"notes.md"}`)},
				},
			},
			{
				Role: models.RoleTool,
				ToolResults: []llm.ToolResult{
					{ID: "call_1", Name: "read", Content: "milk, eggs"},
					{ID: "call_2", Name: "read", Content: "missing", IsError: true},
				},
			},
		},
	}

	got := convertOpenAIMessages(req)
	// system + user + assistant + one message per tool result
	if len(got) != 5 {
		t.Fatalf("convertOpenAIMessages() len = %d, want 5", len(got))
	}
	if got[0].Role != openai.ChatMessageRoleSystem || got[0].Content != "be helpful" {
		t.Errorf("system message = %+v", got[0])
	}
	if got[2].Role != openai.ChatMessageRoleAssistant {
		t.Errorf("assistant role = %s", got[2].Role)
	}
	if len(got[2].ToolCalls) != 1 || got[2].ToolCalls[0].Function.Name != "read" {
		t.Errorf("assistant tool calls = %+v", got[2].ToolCalls)
	}
	if got[3].Role != openai.ChatMessageRoleTool || got[3].ToolCallID != "call_1" {
		t.Errorf("tool message = %+v", got[3])
	}
	if got[4].ToolCallID != "call_2" {
		t.Errorf("second tool message = %+v", got[4])
	}
}

func TestConvertOpenAITools(t *testing.T) {
	tools := []llm.ToolDef{{
		Name:        "grep",
		Description: "search file contents",
		Schema:      json.RawMessage(`{"type":"object","properties":{"pattern":{"type":"string"}}}`),
	}}

	got := convertOpenAITools(tools)
	if len(got) != 1 {
		t.Fatalf("convertOpenAITools() len = %d, want 1", len(got))
	}
	if got[0].Type != openai.ToolTypeFunction || got[0].Function.Name != "grep" {
		t.Errorf("tool = %+v", got[0])
	}
}

func TestConvertAnthropicTools(t *testing.T) {
	tools := []llm.ToolDef{{
		Name:        "ls",
		Description: "list a directory",
		Schema:      json.RawMessage(`{"type":"object","properties":{"path":{"type":"string"}},"required":["path"]}`),
	}}

	got, err := convertAnthropicTools(tools)
	if err != nil {
		t.Fatalf("convertAnthropicTools() error = %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("convertAnthropicTools() len = %d, want 1", len(got))
	}
	if got[0].OfTool == nil {
		t.Fatal("tool union missing OfTool")
	}
	if got[0].OfTool.Name != "ls" {
		t.Errorf("tool name = %q", got[0].OfTool.Name)
	}

	if _, err := convertAnthropicTools([]llm.ToolDef{{Name: "bad", Schema: json.RawMessage(`]`)}}); err == nil {
		t.Error("convertAnthropicTools() should reject malformed schemas")
	}
}

func TestConvertGoogleMessages(t *testing.T) {
	messages := []llm.CompletionMessage{
		{Role: models.RoleUser, Content: "hi"},
		{
			Role: models.RoleAssistant,
			ToolCalls: []llm.ToolCall{
				{ID: "call_1", Name: "read", Args: json.RawMessage(`{"path":"a.md"}`)},
			},
		},
		{
			Role: models.RoleTool,
			ToolResults: []llm.ToolResult{
				{ID: "call_1", Name: "read", Content: "contents"},
			},
		},
		{Role: models.RoleAssistant}, // empty, dropped
	}

	got := convertGoogleMessages(messages)
	if len(got) != 3 {
		t.Fatalf("convertGoogleMessages() len = %d, want 3", len(got))
	}
	if got[0].Role != genai.RoleUser || got[1].Role != genai.RoleModel {
		t.Errorf("roles = %s, %s", got[0].Role, got[1].Role)
	}
	if got[1].Parts[0].FunctionCall == nil || got[1].Parts[0].FunctionCall.Name != "read" {
		t.Errorf("function call part = %+v", got[1].Parts[0])
	}
	if got[2].Parts[0].FunctionResponse == nil {
		t.Errorf("function response part = %+v", got[2].Parts[0])
	}
}

func TestConvertGoogleSchema(t *testing.T) {
	schema := convertGoogleSchema(map[string]any{
		"type":        "object",
		"description": "read arguments",
		"properties": map[string]any{
			"path":  map[string]any{"type": "string"},
			"lines": map[string]any{"type": "array", "items": map[string]any{"type": "integer"}},
		},
		"required": []any{"path"},
	})

	if schema.Type != genai.TypeObject {
		t.Errorf("Type = %s, want %s", schema.Type, genai.TypeObject)
	}
	if schema.Properties["path"] == nil || schema.Properties["path"].Type != genai.TypeString {
		t.Errorf("path property = %+v", schema.Properties["path"])
	}
	if schema.Properties["lines"].Items == nil || schema.Properties["lines"].Items.Type != genai.TypeInteger {
		t.Errorf("lines items = %+v", schema.Properties["lines"].Items)
	}
	if len(schema.Required) != 1 || schema.Required[0] != "path" {
		t.Errorf("Required = %v", schema.Required)
	}
}

func TestConvertBedrockMessages(t *testing.T) {
	messages := []llm.CompletionMessage{
		{Role: models.RoleUser, Content: "hi"},
		{
			Role:    models.RoleAssistant,
			Content: "checking",
			ToolCalls: []llm.ToolCall{
				{ID: "call_1", Name: "read", Args: json.RawMessage(`{"path":"a.md"}`)},
			},
		},
		{
			Role: models.RoleTool,
			ToolResults: []llm.ToolResult{
				{ID: "call_1", Name: "read", Content: "contents", IsError: true},
			},
		},
	}

	got := convertBedrockMessages(messages)
	if len(got) != 3 {
		t.Fatalf("convertBedrockMessages() len = %d, want 3", len(got))
	}
	if got[0].Role != types.ConversationRoleUser || got[1].Role != types.ConversationRoleAssistant {
		t.Errorf("roles = %s, %s", got[0].Role, got[1].Role)
	}
	// Tool results ride as user-role messages with a tool result block.
	if got[2].Role != types.ConversationRoleUser {
		t.Errorf("tool result role = %s", got[2].Role)
	}
	block, ok := got[2].Content[0].(*types.ContentBlockMemberToolResult)
	if !ok {
		t.Fatalf("tool result block = %T", got[2].Content[0])
	}
	if block.Value.Status != types.ToolResultStatusError {
		t.Errorf("tool result status = %s", block.Value.Status)
	}
	if len(got[1].Content) != 2 {
		t.Errorf("assistant content blocks = %d, want text + tool use", len(got[1].Content))
	}
}
