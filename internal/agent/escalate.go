// internal/agent/escalate.go
package agent

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/deskpilot/deskpilot-cli/api/schemas"
	"github.com/deskpilot/deskpilot-cli/internal/config"
)

// ActionExecutor runs one action against whichever backend owns it.
type ActionExecutor interface {
	Execute(ctx context.Context, action schemas.Action) schemas.ExecutionResult
}

// VisionAnalyzer is the escalation provider: screenshot in, one action out.
type VisionAnalyzer interface {
	Analyze(ctx context.Context, goal string, screenshot []byte, history []string) (*schemas.Action, error)
}

// PageRecoverer is the slice of the browser session used to undo a wrong move
// after a suggestion did not pan out.
type PageRecoverer interface {
	Back(ctx context.Context) error
	RecoverFocus(ctx context.Context) error
}

// EscalationResult reports what an escalation pass produced.
type EscalationResult struct {
	// Terminal is set when the vision provider decided the task is over.
	Terminal *schemas.Action
	// Recovered means a suggested action was executed and the anchor now holds.
	Recovered bool
}

// Escalator tracks consecutive verification failures and, past the
// thresholds, steers the planner with stuck hints or hands the step to the
// vision provider.
type Escalator struct {
	vision   VisionAnalyzer
	executor ActionExecutor
	verifier *Verifier
	shots    ScreenshotSource
	recover  PageRecoverer
	cfg      config.AgentConfig
	logger   *zap.Logger

	consecutiveFailures int
}

// NewEscalator creates the escalation controller. vision may be nil, in which
// case escalation degrades to "no suggestion available".
func NewEscalator(vision VisionAnalyzer, executor ActionExecutor, verifier *Verifier, shots ScreenshotSource, cfg config.AgentConfig, logger *zap.Logger) *Escalator {
	return &Escalator{
		vision:   vision,
		executor: executor,
		verifier: verifier,
		shots:    shots,
		cfg:      cfg,
		logger:   logger.Named("escalator"),
	}
}

// SetRecoverer attaches browser-session recovery. Without one, a failed
// suggestion is simply left for the next planner cycle.
func (e *Escalator) SetRecoverer(r PageRecoverer) {
	e.recover = r
}

// RecordSuccess resets the failure streak after any verified success.
func (e *Escalator) RecordSuccess() {
	e.consecutiveFailures = 0
}

// RecordFailure increments the streak and returns its new value.
func (e *Escalator) RecordFailure() int {
	e.consecutiveFailures++
	return e.consecutiveFailures
}

// Failures exposes the current streak.
func (e *Escalator) Failures() int {
	return e.consecutiveFailures
}

// IsStuck reports whether the next planner call should receive a stuck hint.
func (e *Escalator) IsStuck() bool {
	return e.consecutiveFailures >= e.cfg.StuckThreshold
}

// MustForceVision reports whether escalation is mandatory even when the
// cheaper anchor check would accept the current state. A locally plausible
// match can mask an overlay or modal that text signals cannot see.
func (e *Escalator) MustForceVision() bool {
	return e.consecutiveFailures >= e.cfg.VisionThreshold
}

// StuckHint renders the history entry that steers the next planner call.
func (e *Escalator) StuckHint(anchor string) string {
	return fmt.Sprintf("stuck: last %d sequences failed verification (expected anchor %q not reached); try a different approach",
		e.consecutiveFailures, anchor)
}

// Escalate invokes the vision provider once with the current screenshot and an
// expected-vs-actual note. A returned terminal action is honored directly; any
// other action is executed once and the anchor is re-checked. Provider errors
// are swallowed: the loop continues without a suggestion rather than faulting.
func (e *Escalator) Escalate(ctx context.Context, goal, anchor string, state *schemas.TextState, history []string) EscalationResult {
	if e.vision == nil {
		e.logger.Debug("No vision provider configured; skipping escalation.")
		return EscalationResult{}
	}

	png, err := e.shots.Screenshot(ctx)
	if err != nil || len(png) == 0 {
		e.logger.Warn("Screenshot unavailable for escalation.", zap.Error(err))
		return EscalationResult{}
	}

	notes := append([]string{}, history...)
	notes = append(notes, expectedVsActual(anchor, state))

	action, err := e.vision.Analyze(ctx, goal, png, notes)
	if err != nil {
		e.logger.Warn("Vision provider failed; continuing without a suggestion.", zap.Error(err))
		return EscalationResult{}
	}

	if action.IsTerminal() {
		e.logger.Info("Vision provider returned a terminal action.",
			zap.String("action", action.Summary()))
		return EscalationResult{Terminal: action}
	}

	result := e.executor.Execute(ctx, *action)
	e.logger.Info("Executed vision-suggested action.",
		zap.String("action", action.Summary()),
		zap.Bool("ok", result.OK))
	if !result.OK {
		e.recoverFocus(ctx, state)
		return EscalationResult{}
	}

	check := e.verifier.Verify(ctx, anchor, "")
	if !check.AnchorMatched && action.Type == schemas.ActionBrowserNavigate {
		// Undo a navigation that landed somewhere other than the anchor.
		e.goBack(ctx, state)
	}
	return EscalationResult{Recovered: check.AnchorMatched}
}

func (e *Escalator) recoverFocus(ctx context.Context, state *schemas.TextState) {
	if e.recover == nil || state == nil || !state.IsBrowser {
		return
	}
	if err := e.recover.RecoverFocus(ctx); err != nil {
		e.logger.Debug("Focus recovery failed.", zap.Error(err))
	}
}

func (e *Escalator) goBack(ctx context.Context, state *schemas.TextState) {
	if e.recover == nil || state == nil || !state.IsBrowser {
		return
	}
	if err := e.recover.Back(ctx); err != nil {
		e.logger.Debug("History-back recovery failed.", zap.Error(err))
	}
}

func expectedVsActual(anchor string, state *schemas.TextState) string {
	actual := "unknown"
	if state != nil {
		if state.IsBrowser && state.CurrentURL != "" {
			actual = state.CurrentURL
		} else if state.WindowTitle != "" {
			actual = state.WindowTitle
		}
	}
	return fmt.Sprintf("verification note: expected anchor %q but the current surface is %q", anchor, actual)
}
