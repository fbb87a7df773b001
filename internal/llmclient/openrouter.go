// internal/llmclient/openrouter.go
package llmclient

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/deskpilot/deskpilot-cli/internal/config"
)

const defaultOpenRouterEndpoint = "https://openrouter.ai/api/v1/chat/completions"

// OpenRouterClient implements Client against OpenRouter's OpenAI-compatible
// chat completions API. Multimodal content is sent as data-URL image parts.
type OpenRouterClient struct {
	apiKey      string
	endpoint    string
	model       string
	temperature float32
	httpClient  *http.Client
	logger      *zap.Logger
}

type orMessagePart struct {
	Type     string      `json:"type"`
	Text     string      `json:"text,omitempty"`
	ImageURL *orImageURL `json:"image_url,omitempty"`
}

type orImageURL struct {
	URL string `json:"url"`
}

type orMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type orRequestPayload struct {
	Model          string      `json:"model"`
	Messages       []orMessage `json:"messages"`
	Temperature    float32     `json:"temperature,omitempty"`
	MaxTokens      int         `json:"max_tokens,omitempty"`
	ResponseFormat *orFormat   `json:"response_format,omitempty"`
}

type orFormat struct {
	Type string `json:"type"`
}

type orResponsePayload struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Code    int    `json:"code"`
	} `json:"error,omitempty"`
}

// NewOpenRouterClient initializes the client.
func NewOpenRouterClient(cfg config.LLMConfig, logger *zap.Logger) (*OpenRouterClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openrouter API key is required")
	}
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = defaultOpenRouterEndpoint
	}
	return &OpenRouterClient{
		apiKey:      cfg.APIKey,
		endpoint:    endpoint,
		model:       cfg.Model,
		temperature: cfg.Temperature,
		httpClient:  &http.Client{Timeout: cfg.APITimeout},
		logger:      logger.Named("llmclient.openrouter"),
	}, nil
}

// Generate sends the request and returns the first choice's content.
func (c *OpenRouterClient) Generate(ctx context.Context, req GenerationRequest) (string, error) {
	payload := c.buildRequestPayload(req)
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request payload: %w", err)
	}

	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = 2 * time.Minute

	var content string
	operation := func() error {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewBuffer(body))
		if err != nil {
			return backoff.Permanent(fmt.Errorf("failed to create HTTP request: %w", err))
		}
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
		httpReq.Header.Set("X-Title", "deskpilot-cli")

		resp, err := c.httpClient.Do(httpReq)
		if err != nil {
			c.logger.Warn("Network error during LLM request, retrying...", zap.Error(err))
			return fmt.Errorf("failed to execute HTTP request: %w", err)
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("failed to read response body: %w", err)
		}

		switch resp.StatusCode {
		case http.StatusOK:
		case http.StatusTooManyRequests, http.StatusServiceUnavailable, http.StatusInternalServerError:
			return fmt.Errorf("openrouter API error: status %d", resp.StatusCode)
		default:
			return backoff.Permanent(fmt.Errorf("openrouter API error: status %d, body: %s", resp.StatusCode, string(respBody)))
		}

		var responsePayload orResponsePayload
		if err := json.Unmarshal(respBody, &responsePayload); err != nil {
			return backoff.Permanent(fmt.Errorf("failed to decode response payload: %w", err))
		}
		if responsePayload.Error != nil {
			return backoff.Permanent(fmt.Errorf("openrouter API error: %s", responsePayload.Error.Message))
		}
		if len(responsePayload.Choices) == 0 {
			return backoff.Permanent(fmt.Errorf("openrouter API returned no choices"))
		}

		content = responsePayload.Choices[0].Message.Content
		return nil
	}

	if err = backoff.Retry(operation, backoff.WithContext(b, ctx)); err != nil {
		return "", err
	}
	return content, nil
}

func (c *OpenRouterClient) buildRequestPayload(req GenerationRequest) orRequestPayload {
	messages := make([]orMessage, 0, 2)
	if req.SystemPrompt != "" {
		messages = append(messages, orMessage{Role: "system", Content: req.SystemPrompt})
	}

	if len(req.Images) == 0 {
		messages = append(messages, orMessage{Role: "user", Content: req.UserPrompt})
	} else {
		parts := []orMessagePart{{Type: "text", Text: req.UserPrompt}}
		for _, img := range req.Images {
			parts = append(parts, orMessagePart{
				Type: "image_url",
				ImageURL: &orImageURL{
					URL: "data:image/png;base64," + base64.StdEncoding.EncodeToString(img),
				},
			})
		}
		messages = append(messages, orMessage{Role: "user", Content: parts})
	}

	temperature := req.Options.Temperature
	if temperature == 0 {
		temperature = c.temperature
	}
	payload := orRequestPayload{
		Model:       c.model,
		Messages:    messages,
		Temperature: temperature,
	}
	if req.Options.ForceJSONFormat {
		payload.ResponseFormat = &orFormat{Type: "json_object"}
	}
	return payload
}
