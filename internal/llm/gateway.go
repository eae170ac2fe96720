package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/quanhua92/buildscale-ai-sub000/internal/apperr"
	"github.com/quanhua92/buildscale-ai-sub000/internal/config"
	"github.com/quanhua92/buildscale-ai-sub000/internal/observability"
	"github.com/quanhua92/buildscale-ai-sub000/pkg/models"
)

// maxToolRounds bounds the call-tool-call loop within one turn so a
// model that keeps requesting tools cannot spin forever.
const maxToolRounds = 16

// Gateway routes chat streams to configured providers and drives the
// tool feedback loop.
type Gateway struct {
	providers       map[string]Provider
	defaultModels   map[string]string
	defaultProvider string
	timeout         time.Duration

	logger  *observability.Logger
	metrics *observability.Metrics
}

// NewGateway validates the provider registry against the configuration
// and returns a ready gateway. It fails when no provider is configured
// or the default provider is missing; the process should not start in
// either case.
func NewGateway(cfg config.LLMConfig, providers map[string]Provider, logger *observability.Logger, metrics *observability.Metrics) (*Gateway, error) {
	if len(providers) == 0 {
		return nil, errors.New("llm: no providers configured")
	}
	if _, ok := providers[cfg.DefaultProvider]; !ok {
		return nil, fmt.Errorf("llm: default provider %q is not among configured providers", cfg.DefaultProvider)
	}

	defaults := make(map[string]string, len(cfg.Providers))
	for name, pc := range cfg.Providers {
		defaults[name] = pc.DefaultModel
	}

	return &Gateway{
		providers:       providers,
		defaultModels:   defaults,
		defaultProvider: cfg.DefaultProvider,
		timeout:         cfg.RequestTimeout,
		logger:          logger,
		metrics:         metrics,
	}, nil
}

// Providers lists the configured provider names.
func (g *Gateway) Providers() []string {
	names := make([]string, 0, len(g.providers))
	for name := range g.providers {
		names = append(names, name)
	}
	return names
}

// Resolve parses a model identifier against the registry. Unknown
// providers and empty model names fail with Validation.
func (g *Gateway) Resolve(model string) (Provider, ModelID, error) {
	id := ParseModelID(model, g.defaultProvider)
	provider, ok := g.providers[id.Provider]
	if !ok {
		return nil, ModelID{}, apperr.Validation("unknown model provider %q", id.Provider)
	}
	if id.Name == "" {
		id.Name = g.defaultModels[id.Provider]
	}
	if id.Name == "" {
		return nil, ModelID{}, apperr.Validation("model identifier %q does not name a model", model)
	}
	return provider, id, nil
}

// Capabilities reports the capability flags for a model identifier.
func (g *Gateway) Capabilities(model string) (Capabilities, error) {
	provider, id, err := g.Resolve(model)
	if err != nil {
		return Capabilities{}, err
	}
	return provider.Capabilities(id.Name), nil
}

// ChatStream opens a streaming chat call. The returned stream is
// single-consumer; Close (or cancelling ctx) aborts the provider call.
func (g *Gateway) ChatStream(ctx context.Context, req Request) (*Stream, error) {
	provider, id, err := g.Resolve(req.Model)
	if err != nil {
		return nil, err
	}

	streamCtx, cancel := context.WithCancel(ctx)
	s := newStream(cancel)
	go g.drive(streamCtx, s, provider, id, req)
	return s, nil
}

// drive runs provider rounds until the model finishes without tool
// calls, a provider error surfaces, or the stream is cancelled. Tool
// calls are relayed to the consumer one at a time; each pushed result
// extends the message history for the next round.
func (g *Gateway) drive(ctx context.Context, s *Stream, provider Provider, id ModelID, req Request) {
	defer close(s.items)
	defer close(s.done)

	start := time.Now()
	preq := CompletionRequest{
		Model:     id.Name,
		System:    req.System,
		Tools:     req.Tools,
		MaxTokens: req.MaxTokens,
	}
	for _, m := range req.History {
		preq.Messages = append(preq.Messages, CompletionMessage{Role: m.Role, Content: m.Content})
	}
	preq.Messages = append(preq.Messages, CompletionMessage{Role: models.RoleUser, Content: req.Prompt})

	var total models.UsageRecord
	for round := 0; round < maxToolRounds; round++ {
		text, calls, usage, err := g.runRound(ctx, s, provider, preq)
		if err != nil {
			kind := Classify(err)
			g.finish(ctx, s, provider, id, start, string(kind), total,
				ProviderError{Kind: kind, Message: err.Error()})
			return
		}
		addUsage(&total, usage)

		if len(calls) == 0 {
			g.finish(ctx, s, provider, id, start, "ok", total,
				Final{Usage: total, Capabilities: provider.Capabilities(id.Name)})
			return
		}

		preq.Messages = append(preq.Messages, CompletionMessage{
			Role:      models.RoleAssistant,
			Content:   text,
			ToolCalls: calls,
		})
		for _, call := range calls {
			if !s.send(ctx, ToolCallRequest{ID: call.ID, Name: call.Name, Args: call.Args}) {
				return
			}
			select {
			case <-ctx.Done():
				return
			case result := <-s.results:
				preq.Messages = append(preq.Messages, CompletionMessage{
					Role: models.RoleTool,
					ToolResults: []ToolResult{{
						ID:      result.ID,
						Name:    result.Name,
						Content: result.Result,
						IsError: result.IsError,
					}},
				})
			}
		}
	}

	g.finish(ctx, s, provider, id, start, string(apperr.KindProviderProtocol), total, ProviderError{
		Kind:    apperr.KindProviderProtocol,
		Message: fmt.Sprintf("model requested tools across %d rounds without finishing", maxToolRounds),
	})
}

// runRound executes one provider call and drains its chunk channel,
// returning the round's text, accumulated tool calls, and usage.
func (g *Gateway) runRound(ctx context.Context, s *Stream, provider Provider, preq CompletionRequest) (string, []ToolCall, *models.UsageRecord, error) {
	roundCtx := ctx
	cancel := context.CancelFunc(func() {})
	if g.timeout > 0 {
		roundCtx, cancel = context.WithTimeout(ctx, g.timeout)
	}
	defer cancel()

	chunks, err := provider.Complete(roundCtx, preq)
	if err != nil {
		return "", nil, nil, err
	}
	// Adapters block sending their terminal chunk; drain whatever this
	// round leaves behind so their goroutines always finish.
	defer func() { go drainChunks(chunks) }()

	var (
		text    strings.Builder
		calls   []ToolCall
		usage   *models.UsageRecord
		sawDone bool
	)
	for chunk := range chunks {
		switch {
		case chunk.Err != nil:
			return "", nil, nil, chunk.Err
		case chunk.Text != "":
			text.WriteString(chunk.Text)
			if !s.send(ctx, TextChunk{Text: chunk.Text}) {
				return "", nil, nil, ctx.Err()
			}
		case chunk.ToolCall != nil:
			calls = append(calls, *chunk.ToolCall)
		}
		if chunk.Done {
			sawDone = true
			if chunk.Usage != nil {
				usage = chunk.Usage
			}
			break
		}
	}
	if !sawDone {
		if err := roundCtx.Err(); err != nil {
			return "", nil, nil, err
		}
		return "", nil, nil, errors.New("provider stream ended without completion")
	}
	return text.String(), calls, usage, nil
}

// finish emits the terminal item and records request metrics.
func (g *Gateway) finish(ctx context.Context, s *Stream, provider Provider, id ModelID, start time.Time, status string, usage models.UsageRecord, item Item) {
	s.send(ctx, item)
	if g.metrics != nil {
		g.metrics.RecordLLMRequest(provider.Name(), id.Name, status,
			time.Since(start).Seconds(), usage.PromptTokens, usage.CompletionTokens)
	}
	if perr, ok := item.(ProviderError); ok {
		g.logger.Warn(ctx, "model stream failed",
			"provider", provider.Name(), "model", id.Name,
			"kind", string(perr.Kind), "error", perr.Message)
		return
	}
	g.logger.Debug(ctx, "model stream finished",
		"provider", provider.Name(), "model", id.Name,
		"prompt_tokens", usage.PromptTokens, "completion_tokens", usage.CompletionTokens,
		"duration_ms", time.Since(start).Milliseconds())
}

func drainChunks(chunks <-chan Chunk) {
	for range chunks {
	}
}

func addUsage(total *models.UsageRecord, usage *models.UsageRecord) {
	if usage == nil {
		return
	}
	total.PromptTokens += usage.PromptTokens
	total.CompletionTokens += usage.CompletionTokens
	total.CachedPromptTokens += usage.CachedPromptTokens
	total.ReasoningTokens += usage.ReasoningTokens
	total.TotalTokens = total.PromptTokens + total.CompletionTokens
}
