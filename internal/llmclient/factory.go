// internal/llmclient/factory.go
package llmclient

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/deskpilot/deskpilot-cli/internal/config"
)

// NewClient builds the configured provider client, wrapped with the global
// request throttle when one is configured.
func NewClient(cfg config.LLMConfig, logger *zap.Logger) (Client, error) {
	var (
		client Client
		err    error
	)

	switch cfg.Provider {
	case config.ProviderGemini:
		client, err = NewGeminiClient(cfg, logger)
	case config.ProviderOpenRouter:
		client, err = NewOpenRouterClient(cfg, logger)
	default:
		return nil, fmt.Errorf("unknown or unsupported LLM provider configured: %q. Supported: [%s, %s]",
			cfg.Provider, config.ProviderGemini, config.ProviderOpenRouter)
	}
	if err != nil {
		return nil, err
	}

	if cfg.RequestsPerMinute > 0 {
		client = newThrottledClient(client, cfg.RequestsPerMinute)
	}
	return client, nil
}

// throttledClient applies a token-bucket limiter in front of a Client so burst
// planning cycles cannot exhaust the provider quota.
type throttledClient struct {
	inner   Client
	limiter *rate.Limiter
}

func newThrottledClient(inner Client, requestsPerMinute int) *throttledClient {
	interval := rate.Limit(float64(requestsPerMinute) / 60.0)
	return &throttledClient{
		inner:   inner,
		limiter: rate.NewLimiter(interval, 1),
	}
}

func (t *throttledClient) Generate(ctx context.Context, req GenerationRequest) (string, error) {
	if err := t.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("llm request throttled: %w", err)
	}
	return t.inner.Generate(ctx, req)
}
