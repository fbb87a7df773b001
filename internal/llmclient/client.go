// internal/llmclient/client.go
package llmclient

import (
	"context"
)

// GenerationOptions carries per-request tuning applied on top of the model
// configuration.
type GenerationOptions struct {
	Temperature     float32
	ForceJSONFormat bool
}

// GenerationRequest is a single text-generation call.
type GenerationRequest struct {
	SystemPrompt string
	UserPrompt   string
	// Images holds optional PNG payloads for multimodal requests. Text-only
	// providers ignore them.
	Images  [][]byte
	Options GenerationOptions
}

// Client is the minimal contract every LLM provider implements. The agent
// never cares which provider is behind it.
type Client interface {
	Generate(ctx context.Context, req GenerationRequest) (string, error)
}
