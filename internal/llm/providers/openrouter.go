package providers

import (
	"github.com/quanhua92/buildscale-ai-sub000/internal/config"
	"github.com/quanhua92/buildscale-ai-sub000/internal/llm"
)

const openRouterBaseURL = "https://openrouter.ai/api/v1"

// NewOpenRouter builds an adapter for OpenRouter's OpenAI-compatible
// API. Model names carry the upstream vendor prefix, e.g.
// "anthropic/claude-3.5-sonnet".
func NewOpenRouter(cfg config.ProviderConfig) (*OpenRouter, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = openRouterBaseURL
	}
	inner, err := NewOpenAI(cfg)
	if err != nil {
		return nil, err
	}
	inner.name = "openrouter"
	return &OpenRouter{OpenAI: inner}, nil
}

// OpenRouter reuses the OpenAI wire protocol against a different host.
type OpenRouter struct {
	*OpenAI
}

func (p *OpenRouter) Capabilities(model string) llm.Capabilities {
	// Routed models differ per upstream vendor; only tool calling is
	// uniformly available.
	return llm.Capabilities{SupportsTools: true}
}
