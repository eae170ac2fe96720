package providers

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/document"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

	"github.com/quanhua92/buildscale-ai-sub000/internal/config"
	"github.com/quanhua92/buildscale-ai-sub000/internal/llm"
	"github.com/quanhua92/buildscale-ai-sub000/pkg/models"
)

// Bedrock adapts AWS Bedrock via the ConverseStream API. Credentials
// come from the default AWS chain; only the region is configured here.
type Bedrock struct {
	client *bedrockruntime.Client
	retry  retrier
}

func NewBedrock(cfg config.ProviderConfig) (*Bedrock, error) {
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(),
		awsconfig.WithRegion(region))
	if err != nil {
		return nil, err
	}
	return &Bedrock{
		client: bedrockruntime.NewFromConfig(awsCfg),
		retry:  newRetrier(),
	}, nil
}

func (p *Bedrock) Name() string { return "bedrock" }

func (p *Bedrock) Capabilities(model string) llm.Capabilities {
	return llm.Capabilities{SupportsTools: true}
}

func (p *Bedrock) Complete(ctx context.Context, req llm.CompletionRequest) (<-chan llm.Chunk, error) {
	input := &bedrockruntime.ConverseStreamInput{
		ModelId:  aws.String(req.Model),
		Messages: convertBedrockMessages(req.Messages),
	}
	if req.System != "" {
		input.System = []types.SystemContentBlock{
			&types.SystemContentBlockMemberText{Value: req.System},
		}
	}
	if req.MaxTokens > 0 && req.MaxTokens <= 1<<31-1 {
		input.InferenceConfig = &types.InferenceConfiguration{
			MaxTokens: aws.Int32(int32(req.MaxTokens)),
		}
	}
	if len(req.Tools) > 0 {
		input.ToolConfig = convertBedrockTools(req.Tools)
	}

	var stream *bedrockruntime.ConverseStreamOutput
	err := p.retry.Do(ctx, func() error {
		var openErr error
		stream, openErr = p.client.ConverseStream(ctx, input)
		return openErr
	})
	if err != nil {
		return nil, err
	}

	chunks := make(chan llm.Chunk)
	go p.processStream(ctx, stream, chunks)
	return chunks, nil
}

func (p *Bedrock) processStream(ctx context.Context, stream *bedrockruntime.ConverseStreamOutput, chunks chan<- llm.Chunk) {
	defer close(chunks)

	eventStream := stream.GetStream()
	defer eventStream.Close()

	var (
		currentTool *llm.ToolCall
		toolInput   strings.Builder
		usage       *models.UsageRecord
	)

	for {
		select {
		case <-ctx.Done():
			chunks <- llm.Chunk{Err: ctx.Err(), Done: true}
			return
		case event, ok := <-eventStream.Events():
			if !ok {
				if err := eventStream.Err(); err != nil {
					chunks <- llm.Chunk{Err: err, Done: true}
					return
				}
				chunks <- llm.Chunk{Done: true, Usage: usage}
				return
			}

			switch ev := event.(type) {
			case *types.ConverseStreamOutputMemberContentBlockStart:
				if toolUse, ok := ev.Value.Start.(*types.ContentBlockStartMemberToolUse); ok {
					currentTool = &llm.ToolCall{
						ID:   aws.ToString(toolUse.Value.ToolUseId),
						Name: aws.ToString(toolUse.Value.Name),
					}
					toolInput.Reset()
				}

			case *types.ConverseStreamOutputMemberContentBlockDelta:
				switch delta := ev.Value.Delta.(type) {
				case *types.ContentBlockDeltaMemberText:
					if delta.Value != "" {
						chunks <- llm.Chunk{Text: delta.Value}
					}
				case *types.ContentBlockDeltaMemberToolUse:
					if delta.Value.Input != nil {
						toolInput.WriteString(*delta.Value.Input)
					}
				}

			case *types.ConverseStreamOutputMemberContentBlockStop:
				if currentTool != nil {
					currentTool.Args = json.RawMessage(toolInput.String())
					chunks <- llm.Chunk{ToolCall: currentTool}
					currentTool = nil
					toolInput.Reset()
				}

			case *types.ConverseStreamOutputMemberMetadata:
				if ev.Value.Usage != nil {
					usage = &models.UsageRecord{
						PromptTokens:     int(aws.ToInt32(ev.Value.Usage.InputTokens)),
						CompletionTokens: int(aws.ToInt32(ev.Value.Usage.OutputTokens)),
						TotalTokens:      int(aws.ToInt32(ev.Value.Usage.TotalTokens)),
					}
				}

			case *types.ConverseStreamOutputMemberMessageStop:
				// Metadata may still follow; wait for channel close.
			}
		}
	}
}

func convertBedrockMessages(messages []llm.CompletionMessage) []types.Message {
	result := make([]types.Message, 0, len(messages))
	for _, msg := range messages {
		var content []types.ContentBlock
		if msg.Content != "" {
			content = append(content, &types.ContentBlockMemberText{Value: msg.Content})
		}
		for _, call := range msg.ToolCalls {
			var input any
			if err := json.Unmarshal(call.Args, &input); err != nil {
				input = map[string]any{}
			}
			content = append(content, &types.ContentBlockMemberToolUse{
				Value: types.ToolUseBlock{
					ToolUseId: aws.String(call.ID),
					Name:      aws.String(call.Name),
					Input:     document.NewLazyDocument(input),
				},
			})
		}
		for _, tr := range msg.ToolResults {
			status := types.ToolResultStatusSuccess
			if tr.IsError {
				status = types.ToolResultStatusError
			}
			content = append(content, &types.ContentBlockMemberToolResult{
				Value: types.ToolResultBlock{
					ToolUseId: aws.String(tr.ID),
					Status:    status,
					Content: []types.ToolResultContentBlock{
						&types.ToolResultContentBlockMemberText{Value: tr.Content},
					},
				},
			})
		}
		if len(content) == 0 {
			continue
		}

		role := types.ConversationRoleUser
		if msg.Role == models.RoleAssistant {
			role = types.ConversationRoleAssistant
		}
		result = append(result, types.Message{Role: role, Content: content})
	}
	return result
}

func convertBedrockTools(tools []llm.ToolDef) *types.ToolConfiguration {
	bedrockTools := make([]types.Tool, 0, len(tools))
	for _, tool := range tools {
		var schema any
		if err := json.Unmarshal(tool.Schema, &schema); err != nil {
			schema = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		bedrockTools = append(bedrockTools, &types.ToolMemberToolSpec{
			Value: types.ToolSpecification{
				Name:        aws.String(tool.Name),
				Description: aws.String(tool.Description),
				InputSchema: &types.ToolInputSchemaMemberJson{Value: document.NewLazyDocument(schema)},
			},
		})
	}
	return &types.ToolConfiguration{Tools: bedrockTools}
}
