// Package providers adapts vendor model SDKs to the llm.Provider
// interface. Each adapter converts message history and tool definitions
// to the vendor wire format, streams the response, and emits llm.Chunk
// values with tool calls fully accumulated.
package providers

import (
	"context"
	"fmt"
	"time"

	"github.com/quanhua92/buildscale-ai-sub000/internal/config"
	"github.com/quanhua92/buildscale-ai-sub000/internal/llm"
)

// Build constructs the provider registry from configuration. Unknown
// provider names fail so a typo cannot silently drop a provider.
func Build(cfg config.LLMConfig) (map[string]llm.Provider, error) {
	registry := make(map[string]llm.Provider, len(cfg.Providers))
	for name, pc := range cfg.Providers {
		var (
			p   llm.Provider
			err error
		)
		switch name {
		case "openai":
			p, err = NewOpenAI(pc)
		case "openrouter":
			p, err = NewOpenRouter(pc)
		case "anthropic":
			p, err = NewAnthropic(pc)
		case "google":
			p, err = NewGoogle(pc)
		case "bedrock":
			p, err = NewBedrock(pc)
		case "mock":
			p = NewMock()
		default:
			return nil, fmt.Errorf("providers: unknown provider %q", name)
		}
		if err != nil {
			return nil, fmt.Errorf("providers: %s: %w", name, err)
		}
		registry[name] = p
	}
	return registry, nil
}

// retrier applies linear backoff to transient stream-open failures.
type retrier struct {
	maxRetries int
	delay      time.Duration
}

func newRetrier() retrier {
	return retrier{maxRetries: 3, delay: time.Second}
}

// Do runs op up to maxRetries times, backing off linearly between
// attempts while the error stays retryable.
func (r retrier) Do(ctx context.Context, op func() error) error {
	var lastErr error
	for attempt := 0; attempt < r.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(r.delay * time.Duration(attempt)):
			}
		}
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !llm.IsRetryable(lastErr) {
			return lastErr
		}
	}
	return fmt.Errorf("max retries exceeded: %w", lastErr)
}
