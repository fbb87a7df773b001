// internal/vision/vision.go

// Package vision implements the escalation path: when text state cannot
// disambiguate the screen, a multimodal model looks at the screenshot and
// returns exactly one action.
package vision

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	json "github.com/json-iterator/go"
	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/deskpilot/deskpilot-cli/api/schemas"
	"github.com/deskpilot/deskpilot-cli/internal/config"
)

// Analyzer decides a single concrete action from a screenshot.
type Analyzer interface {
	Analyze(ctx context.Context, goal string, screenshot []byte, history []string) (*schemas.Action, error)
}

const systemPrompt = `You are a computer use agent. You control a desktop by analyzing screenshots and deciding what action to take.

CRITICAL RULES:
1. Output ONLY valid JSON. No explanations, no markdown, no extra text.
2. Return exactly ONE action per response.
3. Every action must have a "type" field and a "reason" field.

VALID ACTION TYPES:

1. CLICK - Click at coordinates
   {"type": "CLICK", "x": <int>, "y": <int>, "reason": "<why>"}

2. TYPE - Type text (assumes a text field is focused)
   {"type": "TYPE", "text": "<string>", "reason": "<why>"}

3. SCROLL - Scroll up or down
   {"type": "SCROLL", "amount": <int>, "reason": "<why>"}
   (negative = scroll down, positive = scroll up)

4. PRESS_KEY - Press a keyboard key
   {"type": "PRESS_KEY", "key": "<key_name>", "reason": "<why>"}
   (examples: ENTER, TAB, ESCAPE, CTRL+L, CTRL+C, ALT+F4)

5. WAIT - Wait for something to load
   {"type": "WAIT", "seconds": <float 0.1-10.0>, "reason": "<why>"}

6. DONE - Task completed successfully
   {"type": "DONE", "reason": "<why>", "final_answer": "<optional result>"}

7. FAIL - Task cannot be completed
   {"type": "FAIL", "reason": "<why>", "error": "<what went wrong>"}

DECISION PROCESS:
1. Analyze the screenshot carefully
2. Identify what needs to be clicked/typed to progress toward the goal
3. Return the SINGLE best action as JSON

Remember: Output ONLY the JSON object. Nothing else.`

// GeminiAnalyzer implements Analyzer with the official genai SDK.
type GeminiAnalyzer struct {
	client *genai.Client
	cfg    config.LLMConfig
	logger *zap.Logger
}

var _ Analyzer = (*GeminiAnalyzer)(nil)

// NewGeminiAnalyzer creates the vision analyzer. It fails fast on a
// missing API key so misconfiguration surfaces at startup, not mid-run.
func NewGeminiAnalyzer(ctx context.Context, cfg config.LLMConfig, logger *zap.Logger) (*GeminiAnalyzer, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("vision analyzer requires an API key")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	return &GeminiAnalyzer{
		client: client,
		cfg:    cfg,
		logger: logger.Named("vision"),
	}, nil
}

// Analyze sends the screenshot and goal to the vision model and parses
// the single action it returns.
func (a *GeminiAnalyzer) Analyze(ctx context.Context, goal string, screenshot []byte, history []string) (*schemas.Action, error) {
	if len(screenshot) == 0 {
		return nil, fmt.Errorf("vision analysis requires a screenshot")
	}

	model := a.cfg.VisionModel
	if model == "" {
		model = a.cfg.Model
	}

	contents := []*genai.Content{{
		Role: "user",
		Parts: []*genai.Part{
			{InlineData: &genai.Blob{MIMEType: "image/png", Data: screenshot}},
			{Text: buildUserMessage(goal, history)},
		},
	}}

	genCfg := &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{
			Role:  "user",
			Parts: []*genai.Part{{Text: systemPrompt}},
		},
		Temperature: genai.Ptr(float32(a.cfg.Temperature)),
	}

	resp, err := a.client.Models.GenerateContent(ctx, model, contents, genCfg)
	if err != nil {
		return nil, fmt.Errorf("vision generation failed: %w", err)
	}

	text := responseText(resp)
	if text == "" {
		return nil, fmt.Errorf("vision model returned an empty response")
	}

	action, err := parseAction(text)
	if err != nil {
		a.logger.Warn("Failed to parse vision response.",
			zap.String("raw_response", text),
			zap.Error(err))
		return nil, err
	}

	a.logger.Info("Vision analysis produced an action.",
		zap.String("action", action.Summary()))
	return action, nil
}

func buildUserMessage(goal string, history []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "GOAL: %s\n", goal)

	if len(history) > 0 {
		b.WriteString("\nRECENT ACTIONS:\n")
		for i, entry := range history {
			fmt.Fprintf(&b, "%d. %s\n", i+1, entry)
		}
	}

	b.WriteString("\nAnalyze the screenshot and return your next action as JSON.")
	return b.String()
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 {
		return ""
	}
	candidate := resp.Candidates[0]
	if candidate.Content == nil {
		return ""
	}
	var b strings.Builder
	for _, part := range candidate.Content.Parts {
		if part.Text != "" && !part.Thought {
			b.WriteString(part.Text)
		}
	}
	return b.String()
}

var jsonBlockRegex = regexp.MustCompile(fmt.Sprintf("(?s)%s(?:json)?\\s*(.*?)\\s*%s", "```", "```"))

func parseAction(response string) (*schemas.Action, error) {
	response = strings.TrimSpace(response)
	var jsonStringToParse string

	matches := jsonBlockRegex.FindStringSubmatch(response)
	if len(matches) > 1 {
		jsonStringToParse = strings.TrimSpace(matches[1])
	} else {
		firstBracket := strings.Index(response, "{")
		lastBracket := strings.LastIndex(response, "}")
		if firstBracket != -1 && lastBracket != -1 && lastBracket > firstBracket {
			jsonStringToParse = response[firstBracket : lastBracket+1]
		} else {
			jsonStringToParse = response
		}
	}

	if jsonStringToParse == "" {
		return nil, fmt.Errorf("could not find any JSON in the vision response")
	}

	var action schemas.Action
	if err := json.Unmarshal([]byte(jsonStringToParse), &action); err != nil {
		return nil, fmt.Errorf("failed to unmarshal extracted JSON: %w", err)
	}
	if err := action.Validate(); err != nil {
		return nil, fmt.Errorf("vision model returned an invalid action: %w", err)
	}
	return &action, nil
}
