// internal/agent/verifier.go
package agent

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/deskpilot/deskpilot-cli/api/schemas"
	"github.com/deskpilot/deskpilot-cli/internal/config"
	"github.com/deskpilot/deskpilot-cli/internal/perception"
)

// StateSource yields fresh textual observations.
type StateSource interface {
	Read(ctx context.Context) (*schemas.TextState, error)
}

// ScreenshotSource captures the active surface as PNG bytes.
type ScreenshotSource interface {
	Screenshot(ctx context.Context) ([]byte, error)
}

// OCRProvider extracts visible text from a screenshot. Best effort: an empty
// string on failure, never an error.
type OCRProvider interface {
	TextFromImage(ctx context.Context, png []byte) string
}

// Verification is the outcome of one verification pass.
type Verification struct {
	// AnchorMatched means the expected anchor held in the observed state. This
	// marks the sequence as having worked; it does not by itself complete the goal.
	AnchorMatched bool
	// GoalComplete means the anchor held AND a success indicator was found in
	// the OCR'd screen text. Only a complete goal may terminate the task.
	GoalComplete bool
	// MatchedIndicator is the indicator fragment that satisfied completion.
	MatchedIndicator string
	// State is the last observation taken during the pass.
	State *schemas.TextState
}

// Verifier checks planner-declared anchors and success indicators against
// live state, with bounded polling to absorb slow UI transitions.
type Verifier struct {
	states StateSource
	shots  ScreenshotSource
	ocr    OCRProvider
	cfg    config.AgentConfig
	logger *zap.Logger

	// sleep is swappable for tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewVerifier creates a verification engine.
func NewVerifier(states StateSource, shots ScreenshotSource, ocr OCRProvider, cfg config.AgentConfig, logger *zap.Logger) *Verifier {
	return &Verifier{
		states: states,
		shots:  shots,
		ocr:    ocr,
		cfg:    cfg,
		logger: logger.Named("verifier"),
		sleep:  sleepCtx,
	}
}

// Verify polls for the anchor up to the configured attempt budget, then
// evaluates goal completion against the final observation.
func (v *Verifier) Verify(ctx context.Context, anchor, indicators string) Verification {
	var last *schemas.TextState

	for attempt := 1; attempt <= v.cfg.PollAttempts; attempt++ {
		state, err := v.states.Read(ctx)
		if err != nil {
			v.logger.Debug("State read failed during verification poll.",
				zap.Int("attempt", attempt), zap.Error(err))
		} else {
			last = state
			if v.anchorMatches(state, anchor) {
				return v.evaluate(ctx, state, anchor, indicators)
			}
		}

		if attempt < v.cfg.PollAttempts {
			if err := v.sleep(ctx, v.cfg.PollInterval); err != nil {
				break
			}
		}
	}

	v.logger.Debug("Anchor did not appear within the polling budget.",
		zap.String("anchor", anchor))
	return Verification{State: last}
}

// CheckState evaluates anchor and completion against an already captured
// observation without polling. Used for the local completion pre check.
func (v *Verifier) CheckState(ctx context.Context, state *schemas.TextState, anchor, indicators string) Verification {
	if state == nil || !v.anchorMatches(state, anchor) {
		return Verification{State: state}
	}
	return v.evaluate(ctx, state, anchor, indicators)
}

// evaluate runs the completion policy for a state whose anchor already matched.
func (v *Verifier) evaluate(ctx context.Context, state *schemas.TextState, anchor, indicators string) Verification {
	result := Verification{AnchorMatched: true, State: state}

	fragments := splitIndicators(indicators)
	if len(fragments) == 0 {
		// Intermediate step. The anchor holding means the sequence worked,
		// never that the goal is done.
		return result
	}

	if v.isSearchSurface(anchor, state) {
		v.logger.Debug("Anchor matched on a search surface; completion suppressed.",
			zap.String("anchor", anchor))
		return result
	}

	screenText := v.screenText(ctx)
	for _, fragment := range fragments {
		if strings.Contains(strings.ToLower(screenText), strings.ToLower(fragment)) {
			result.GoalComplete = true
			result.MatchedIndicator = fragment
			return result
		}
	}

	v.logger.Debug("Anchor matched but no success indicator found on screen.",
		zap.Strings("indicators", fragments))
	return result
}

// anchorMatches applies the case-insensitive substring policy. The URL is
// preferred over the window title whenever a browser context reports one,
// titles being too dynamic to trust.
func (v *Verifier) anchorMatches(state *schemas.TextState, anchor string) bool {
	anchor = strings.TrimSpace(anchor)
	if anchor == "" {
		return true
	}

	needle := strings.ToLower(anchor)
	if state.IsBrowser && state.CurrentURL != "" {
		return strings.Contains(strings.ToLower(state.CurrentURL), needle)
	}
	return strings.Contains(strings.ToLower(state.WindowTitle), needle)
}

// isSearchSurface reports whether the anchor or the observed location sits on
// a generic search results page, which policy defines as intermediate.
func (v *Verifier) isSearchSurface(anchor string, state *schemas.TextState) bool {
	haystack := anchor
	if state != nil {
		haystack += " " + state.CurrentURL
	}
	return perception.ContainsAny(haystack, v.cfg.SearchEngineMarkers)
}

func (v *Verifier) screenText(ctx context.Context) string {
	if v.shots == nil || v.ocr == nil {
		return ""
	}
	png, err := v.shots.Screenshot(ctx)
	if err != nil || len(png) == 0 {
		v.logger.Debug("Screenshot unavailable for OCR.", zap.Error(err))
		return ""
	}
	return v.ocr.TextFromImage(ctx, png)
}

// splitIndicators breaks the comma-separated indicator string into trimmed,
// non-empty fragments.
func splitIndicators(indicators string) []string {
	var fragments []string
	for _, part := range strings.Split(indicators, ",") {
		if part = strings.TrimSpace(part); part != "" {
			fragments = append(fragments, part)
		}
	}
	return fragments
}

// sleepCtx blocks for d or until ctx is cancelled.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
