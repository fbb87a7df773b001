// internal/agent/agent.go

// Package agent implements the synchronous orchestration loop: observe the
// desktop, decide an action sequence, execute it, verify the declared anchor,
// and escalate to vision when text signals run out.
package agent

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/deskpilot/deskpilot-cli/api/schemas"
	"github.com/deskpilot/deskpilot-cli/internal/config"
	"github.com/deskpilot/deskpilot-cli/internal/planner"
)

// RunRecorder persists per-run artifacts: screenshots, the action log, and
// the final result. A nil recorder disables artifact capture.
type RunRecorder interface {
	SaveScreenshot(step int, png []byte) (string, error)
	RecordStep(rec schemas.StepRecord) error
	Finalize(result schemas.TaskResult) error
}

// Agent drives one task at a time through the observe/decide/execute/verify
// cycle. A single Agent must not run two tasks concurrently; the browser
// connection underneath is single-flight.
type Agent struct {
	cfg       config.AgentConfig
	planner   planner.Planner
	executor  ActionExecutor
	states    StateSource
	shots     ScreenshotSource
	verifier  *Verifier
	escalator *Escalator
	recorder  RunRecorder
	logger    *zap.Logger

	mu     sync.Mutex
	status schemas.AgentStatus
}

// Options bundles the collaborators an Agent needs.
type Options struct {
	Config    config.AgentConfig
	Planner   planner.Planner
	Executor  ActionExecutor
	States    StateSource
	Shots     ScreenshotSource
	Verifier  *Verifier
	Escalator *Escalator
	Recorder  RunRecorder
	Logger    *zap.Logger
}

// New creates an idle agent.
func New(opts Options) *Agent {
	return &Agent{
		cfg:       opts.Config,
		planner:   opts.Planner,
		executor:  opts.Executor,
		states:    opts.States,
		shots:     opts.Shots,
		verifier:  opts.Verifier,
		escalator: opts.Escalator,
		recorder:  opts.Recorder,
		logger:    opts.Logger.Named("agent"),
		status:    schemas.StatusIdle,
	}
}

// Status reports the agent's lifecycle state.
func (a *Agent) Status() schemas.AgentStatus {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.status
}

func (a *Agent) setStatus(s schemas.AgentStatus) {
	a.mu.Lock()
	a.status = s
	a.mu.Unlock()
}

// Run executes one task to its terminal state. Every exit path, including a
// panic inside the loop, yields a well-formed TaskResult.
func (a *Agent) Run(ctx context.Context, task schemas.Task) (result schemas.TaskResult) {
	a.setStatus(schemas.StatusRunning)
	history := NewHistory()

	// Tracked outside the loop so the recover path can report how far the
	// task got before the fault.
	currentStep := 0

	defer func() {
		if r := recover(); r != nil {
			a.logger.Error("Panic recovered in agent loop.",
				zap.Any("panic_value", r), zap.Stack("stack"))
			result = schemas.TaskResult{
				Success:    false,
				StepsTaken: currentStep,
				Error:      fmt.Sprintf("internal error: %v", r),
			}
		}
		if result.Success {
			a.setStatus(schemas.StatusCompleted)
		} else {
			a.setStatus(schemas.StatusFailed)
		}
		result.RunID = task.RunID
		a.finalize(result)
	}()

	a.logger.Info("Task started.",
		zap.String("run_id", task.RunID),
		zap.String("goal", task.Goal),
		zap.Int("max_steps", task.MaxSteps))

	// Anchor and indicators carried over from the previous decision, for the
	// local completion pre check.
	var pendingAnchor, pendingIndicators string

	for step := 1; step <= task.MaxSteps; step++ {
		currentStep = step
		if err := ctx.Err(); err != nil {
			return schemas.TaskResult{
				Success:    false,
				StepsTaken: step - 1,
				Error:      fmt.Sprintf("task interrupted: %v", err),
			}
		}

		// -- OBSERVE --
		screenshotPath := a.captureScreenshot(ctx, step)
		state, err := a.states.Read(ctx)
		if err != nil {
			a.logger.Warn("Observation failed; continuing with empty state.", zap.Error(err))
			state = &schemas.TextState{}
		}

		// -- Local completion pre check --
		// If the previous sequence's effect only became visible now, terminate
		// without spending another planning call.
		if pendingAnchor != "" || pendingIndicators != "" {
			check := a.verifier.CheckState(ctx, state, pendingAnchor, pendingIndicators)
			if check.GoalComplete {
				if done, res := a.confirmCompletion(ctx, task, history, pendingAnchor, check, step, screenshotPath); done {
					return res
				}
			}
		}

		// -- DECIDE --
		var hints []string
		if a.escalator.IsStuck() {
			hints = append(hints, a.escalator.StuckHint(pendingAnchor))
		}

		decision, err := a.planner.Decide(ctx, planner.Input{
			Goal:    task.Goal,
			Step:    step,
			History: history.Tail(a.cfg.HistoryWindow),
			State:   state,
			Hints:   hints,
		})
		if err != nil {
			a.logger.Warn("Planner call failed; counting as a failed step.", zap.Error(err))
			history.Append(fmt.Sprintf("step %d: planning failed (%v)", step, err))
			a.escalator.RecordFailure()
			continue
		}

		if decision.SubGoals != "" {
			history.Append("checklist: " + decision.SubGoals)
		}

		// -- EXECUTE + VERIFY --
		actions := ParseActionSequence(decision.ActionSequence)
		verified := false

		for attempt := 1; attempt <= a.cfg.SequenceAttempts; attempt++ {
			terminal, res := a.executeSequence(ctx, actions, step, screenshotPath, history)
			if terminal {
				return res
			}

			check := a.verifier.Verify(ctx, decision.ExpectedAnchor, decision.SuccessIndicators)
			if check.GoalComplete {
				if done, res := a.confirmCompletion(ctx, task, history, decision.ExpectedAnchor, check, step, screenshotPath); done {
					return res
				}
			}
			if check.AnchorMatched {
				verified = true
				break
			}

			if attempt < a.cfg.SequenceAttempts {
				a.logger.Info("Anchor mismatch; retrying the sequence.",
					zap.Int("step", step),
					zap.Int("attempt", attempt),
					zap.String("anchor", decision.ExpectedAnchor))
			}
		}

		if verified {
			a.escalator.RecordSuccess()
			pendingAnchor = decision.ExpectedAnchor
			pendingIndicators = decision.SuccessIndicators
			continue
		}

		// -- ESCALATE --
		failures := a.escalator.RecordFailure()
		a.logger.Warn("Sequence failed verification.",
			zap.Int("step", step),
			zap.Int("consecutive_failures", failures),
			zap.String("anchor", decision.ExpectedAnchor))

		if a.escalator.MustForceVision() || decision.NeedsVision {
			esc := a.escalator.Escalate(ctx, task.Goal, decision.ExpectedAnchor, state, history.Tail(a.cfg.HistoryWindow))
			if esc.Terminal != nil {
				return a.terminalResult(*esc.Terminal, step, screenshotPath, history)
			}
			if esc.Recovered {
				a.escalator.RecordSuccess()
				pendingAnchor = decision.ExpectedAnchor
				pendingIndicators = decision.SuccessIndicators
			}
		}
	}

	return schemas.TaskResult{
		Success:    false,
		StepsTaken: task.MaxSteps,
		Error:      "max steps reached",
	}
}

// executeSequence runs actions in order. A terminal action anywhere stops
// execution immediately and skips the remainder.
func (a *Agent) executeSequence(ctx context.Context, actions []schemas.Action, step int, screenshotPath string, history *History) (bool, schemas.TaskResult) {
	for _, action := range actions {
		if action.IsTerminal() {
			return true, a.terminalResult(action, step, screenshotPath, history)
		}

		result := a.executor.Execute(ctx, action)
		a.recordStep(schemas.StepRecord{
			Step:           step,
			Action:         action,
			ResultOK:       result.OK,
			ScreenshotPath: screenshotPath,
			Error:          result.Error,
		})
		history.AppendStep(step, action.Summary(), result.OK)

		if !result.OK {
			a.logger.Warn("Action failed; continuing.",
				zap.String("action", action.Summary()),
				zap.String("error", result.Error))
		}
	}
	return false, schemas.TaskResult{}
}

// confirmCompletion finalizes a goal-complete verification. Past the forced
// vision threshold a locally plausible match is not trusted until the vision
// provider has looked at the actual screen; an overlay or modal can satisfy
// every text signal while blocking the real goal.
func (a *Agent) confirmCompletion(ctx context.Context, task schemas.Task, history *History, anchor string, check Verification, step int, screenshotPath string) (bool, schemas.TaskResult) {
	if a.escalator.MustForceVision() {
		esc := a.escalator.Escalate(ctx, task.Goal, anchor, check.State, history.Tail(a.cfg.HistoryWindow))
		if esc.Terminal != nil {
			return true, a.terminalResult(*esc.Terminal, step, screenshotPath, history)
		}
		// No vision confirmation; keep looping instead of trusting the match.
		return false, schemas.TaskResult{}
	}

	answer := fmt.Sprintf("reached %q with indicator %q visible", anchor, check.MatchedIndicator)
	done := schemas.NewDoneAction(answer, "anchor and success indicator satisfied")
	return true, a.terminalResult(done, step, screenshotPath, history)
}

// terminalResult converts a Done or Fail action into the task's final report.
func (a *Agent) terminalResult(action schemas.Action, step int, screenshotPath string, history *History) schemas.TaskResult {
	a.recordStep(schemas.StepRecord{
		Step:           step,
		Action:         action,
		ResultOK:       action.Type == schemas.ActionDone,
		ScreenshotPath: screenshotPath,
		Error:          action.Error,
	})
	history.AppendStep(step, action.Summary(), action.Type == schemas.ActionDone)

	if action.Type == schemas.ActionDone {
		a.logger.Info("Task completed.",
			zap.Int("steps", step),
			zap.String("final_answer", action.FinalAnswer))
		return schemas.TaskResult{
			Success:     true,
			StepsTaken:  step,
			FinalAnswer: action.FinalAnswer,
		}
	}

	a.logger.Info("Task failed.",
		zap.Int("steps", step),
		zap.String("error", action.Error))
	return schemas.TaskResult{
		Success:    false,
		StepsTaken: step,
		Error:      action.Error,
	}
}

func (a *Agent) captureScreenshot(ctx context.Context, step int) string {
	if a.shots == nil || a.recorder == nil {
		return ""
	}
	png, err := a.shots.Screenshot(ctx)
	if err != nil || len(png) == 0 {
		a.logger.Debug("Screenshot capture failed.", zap.Int("step", step), zap.Error(err))
		return ""
	}
	path, err := a.recorder.SaveScreenshot(step, png)
	if err != nil {
		a.logger.Debug("Screenshot save failed.", zap.Int("step", step), zap.Error(err))
		return ""
	}
	return path
}

func (a *Agent) recordStep(rec schemas.StepRecord) {
	if a.recorder == nil {
		return
	}
	if err := a.recorder.RecordStep(rec); err != nil {
		a.logger.Debug("Failed to record step.", zap.Error(err))
	}
}

func (a *Agent) finalize(result schemas.TaskResult) {
	if a.recorder == nil {
		return
	}
	if err := a.recorder.Finalize(result); err != nil {
		a.logger.Debug("Failed to finalize run artifacts.", zap.Error(err))
	}
}
