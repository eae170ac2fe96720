package providers

import (
	"context"
	"fmt"
	"sync"

	"github.com/quanhua92/buildscale-ai-sub000/internal/llm"
	"github.com/quanhua92/buildscale-ai-sub000/pkg/models"
)

// Mock is a scripted provider for development and tests. Each Complete
// call pops the next queued script and replays its chunks; with no
// scripts queued it echoes the last user message.
type Mock struct {
	mu      sync.Mutex
	scripts [][]llm.Chunk
	calls   []llm.CompletionRequest
}

func NewMock() *Mock {
	return &Mock{}
}

// Enqueue queues one scripted round. Scripts are consumed in order,
// one per Complete call.
func (p *Mock) Enqueue(chunks ...llm.Chunk) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.scripts = append(p.scripts, chunks)
}

// Requests returns a copy of every request Complete has received.
func (p *Mock) Requests() []llm.CompletionRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]llm.CompletionRequest, len(p.calls))
	copy(out, p.calls)
	return out
}

func (p *Mock) Name() string { return "mock" }

func (p *Mock) Capabilities(model string) llm.Capabilities {
	return llm.Capabilities{
		SupportsTools:            true,
		SupportsReasoningSummary: true,
		SupportsCachedPrompt:     true,
	}
}

func (p *Mock) Complete(ctx context.Context, req llm.CompletionRequest) (<-chan llm.Chunk, error) {
	p.mu.Lock()
	p.calls = append(p.calls, req)
	var script []llm.Chunk
	if len(p.scripts) > 0 {
		script = p.scripts[0]
		p.scripts = p.scripts[1:]
	} else {
		script = echoScript(req)
	}
	p.mu.Unlock()

	chunks := make(chan llm.Chunk)
	go func() {
		defer close(chunks)
		for _, chunk := range script {
			select {
			case <-ctx.Done():
				chunks <- llm.Chunk{Err: ctx.Err(), Done: true}
				return
			case chunks <- chunk:
			}
		}
	}()
	return chunks, nil
}

func echoScript(req llm.CompletionRequest) []llm.Chunk {
	prompt := ""
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == models.RoleUser {
			prompt = req.Messages[i].Content
			break
		}
	}
	reply := fmt.Sprintf("mock reply to: %s", prompt)
	return []llm.Chunk{
		{Text: reply},
		{Done: true, Usage: &models.UsageRecord{
			PromptTokens:     len(prompt)/4 + 1,
			CompletionTokens: len(reply)/4 + 1,
			TotalTokens:      len(prompt)/4 + len(reply)/4 + 2,
		}},
	}
}
