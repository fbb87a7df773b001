// internal/planner/planner.go
package planner

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	json "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/deskpilot/deskpilot-cli/api/schemas"
	"github.com/deskpilot/deskpilot-cli/internal/config"
	"github.com/deskpilot/deskpilot-cli/internal/llmclient"
)

// Planner decides the next action sequence from textual state alone.
// Screenshots never reach this layer; vision is a separate escalation path.
type Planner interface {
	Decide(ctx context.Context, in Input) (*schemas.PlannerDecision, error)
}

// Input carries everything the planner sees for one decision.
type Input struct {
	Goal    string
	Step    int
	History []string
	State   *schemas.TextState
	Hints   []string
}

const systemPrompt = `You are a desktop automation planner. You control a Linux desktop and a Chromium browser by emitting short action sequences based on TEXT STATE ONLY (window titles, URLs, and listed page elements). You never see the screen.

AVAILABLE ACTIONS:
- PRESS_KEY(key)        press a key or combo, e.g. PRESS_KEY(Ctrl+L), PRESS_KEY(ENTER)
- TYPE(text)            type text into the focused element
- CLICK(x,y)            click absolute screen coordinates (use only when told them)
- SCROLL(amount)        scroll; negative scrolls down, default -500 is one page down
- WAIT(seconds)         pause 0.1 to 10.0 seconds
- BROWSER_NAVIGATE(url) navigate the attached browser tab
- BROWSER_CLICK(index)  click a listed page element by its [index]
- BROWSER_TYPE(index, text) focus element [index] and type text
- DONE(final answer)    the goal is achieved
- FAIL(why)             the goal cannot be achieved

STANDARD SKILLS:
- Open an app:  PRESS_KEY(Alt+F2); WAIT(1); TYPE(app_name); PRESS_KEY(ENTER)
- Web address:  PRESS_KEY(Ctrl+L); WAIT(0.5); TYPE(url); PRESS_KEY(ENTER)
- When INTERACTIVE ELEMENTS are listed, prefer BROWSER_CLICK / BROWSER_TYPE by index over coordinates.

OUTPUT FORMAT: respond with a single JSON object, nothing else:
{
  "action_sequence": "PRESS_KEY(Ctrl+L); WAIT(0.5); TYPE(example.com); PRESS_KEY(ENTER)",
  "expected_anchor": "substring expected in the window title or URL after the sequence lands",
  "success_indicators": "comma-separated words visible on screen only when the GOAL ITSELF is complete",
  "sub_goals": "optional comma-separated remaining milestones",
  "reason": "why this sequence",
  "needs_vision": false
}

RULES:
1. Batch related actions with semicolons to save calls.
2. expected_anchor verifies this SEQUENCE landed; success_indicators verify the whole GOAL. Leave success_indicators empty for intermediate steps.
3. Set needs_vision true ONLY when the text state cannot disambiguate the screen.
4. Use DONE only when the goal is genuinely complete, FAIL only when it is impossible.`

// LLMPlanner implements Planner against a chat completion client.
type LLMPlanner struct {
	client llmclient.Client
	cfg    config.AgentConfig
	logger *zap.Logger
}

var _ Planner = (*LLMPlanner)(nil)

// NewLLMPlanner creates an LLM backed planner.
func NewLLMPlanner(client llmclient.Client, cfg config.AgentConfig, logger *zap.Logger) *LLMPlanner {
	return &LLMPlanner{
		client: client,
		cfg:    cfg,
		logger: logger.Named("planner"),
	}
}

// Decide runs one planning call and parses the structured decision.
func (p *LLMPlanner) Decide(ctx context.Context, in Input) (*schemas.PlannerDecision, error) {
	req := llmclient.GenerationRequest{
		SystemPrompt: systemPrompt,
		UserPrompt:   buildUserPrompt(in),
		Options: llmclient.GenerationOptions{
			ForceJSONFormat: true,
		},
	}

	raw, err := p.client.Generate(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("planner generation failed: %w", err)
	}

	decision, err := parseDecision(raw)
	if err != nil {
		p.logger.Warn("Failed to parse planner response.",
			zap.String("raw_response", raw),
			zap.Error(err))
		return nil, err
	}

	p.logger.Debug("Planner decision.",
		zap.String("sequence", decision.ActionSequence),
		zap.String("anchor", decision.ExpectedAnchor),
		zap.Bool("needs_vision", decision.NeedsVision))
	return decision, nil
}

func buildUserPrompt(in Input) string {
	var b strings.Builder
	fmt.Fprintf(&b, "GOAL: %s\nSTEP: %d\n", in.Goal, in.Step)

	if len(in.History) > 0 {
		b.WriteString("\nRECENT ACTIONS:\n")
		for i, entry := range in.History {
			fmt.Fprintf(&b, "%d. %s\n", i+1, entry)
		}
	}

	if in.State != nil {
		b.WriteString("\nCURRENT STATE:\n")
		fmt.Fprintf(&b, "active_app: %s\n", orUnknown(in.State.ActiveApp))
		fmt.Fprintf(&b, "window_title: %s\n", orUnknown(in.State.WindowTitle))
		if in.State.IsBrowser {
			fmt.Fprintf(&b, "browser: yes\nurl: %s\n", orUnknown(in.State.CurrentURL))
		}
		if in.State.FocusedElement != "" {
			fmt.Fprintf(&b, "focused_element: %s\n", in.State.FocusedElement)
		}
		if in.State.InteractiveElements != "" {
			fmt.Fprintf(&b, "\nINTERACTIVE ELEMENTS:\n%s\n", in.State.InteractiveElements)
		}
	}

	for _, hint := range in.Hints {
		fmt.Fprintf(&b, "\nHINT: %s\n", hint)
	}

	b.WriteString("\nReturn the next decision as a single JSON object.")
	return b.String()
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}

// A regex to robustly extract a JSON object from a markdown code block.
var jsonBlockRegex = regexp.MustCompile(fmt.Sprintf("(?s)%s(?:json)?\\s*(.*?)\\s*%s", "```", "```"))

// parseDecision extracts the JSON decision from the model response,
// handling markdown code fences or raw JSON with surrounding chatter.
func parseDecision(response string) (*schemas.PlannerDecision, error) {
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
		return nil, fmt.Errorf("could not find any JSON in the planner response")
	}

	var decision schemas.PlannerDecision
	if err := json.Unmarshal([]byte(jsonStringToParse), &decision); err != nil {
		return nil, fmt.Errorf("failed to unmarshal extracted JSON: %w", err)
	}

	if strings.TrimSpace(decision.ActionSequence) == "" {
		return nil, fmt.Errorf("planner response missing required 'action_sequence' field")
	}
	return &decision, nil
}
