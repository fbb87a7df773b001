// api/schemas/state.go
package schemas

// TextState is the backend-agnostic snapshot of everything observable without
// vision. It is produced fresh on every OBSERVE step and never mutated.
type TextState struct {
	ActiveApp      string `json:"active_app"`
	WindowTitle    string `json:"window_title"`
	IsBrowser      bool   `json:"is_browser"`
	CurrentURL     string `json:"current_url,omitempty"`
	FocusedElement string `json:"focused_element,omitempty"`
	// InteractiveElements is the formatted, index-prefixed listing of visible
	// elements. The ordinals here are the same ones BROWSER_CLICK and
	// BROWSER_TYPE consume.
	InteractiveElements string `json:"interactive_elements,omitempty"`
}

// PlannerDecision is the structured output of one planning call.
type PlannerDecision struct {
	// ActionSequence is the raw semicolon-separated action text, e.g.
	// `PRESS_KEY(Alt+F2); WAIT(1); TYPE(firefox); PRESS_KEY(ENTER)`.
	ActionSequence string `json:"action_sequence"`
	// ExpectedAnchor is the window-title or URL substring expected to hold once
	// the sequence has taken effect.
	ExpectedAnchor string `json:"expected_anchor"`
	// SuccessIndicators is a comma-separated list of text fragments expected
	// on screen only when the whole goal is complete. Empty means the step is
	// intermediate.
	SuccessIndicators string `json:"success_indicators"`
	// SubGoals is an advisory decomposition hint; never enforced.
	SubGoals    string `json:"sub_goals"`
	Reason      string `json:"reason"`
	NeedsVision bool   `json:"needs_vision"`
}

// ExecutionResult reports the outcome of one backend executor call.
type ExecutionResult struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// Failure builds a failed result from an error message.
func Failure(errMsg string) ExecutionResult {
	return ExecutionResult{OK: false, Error: errMsg}
}

// Success is the zero-friction OK result.
func Success() ExecutionResult {
	return ExecutionResult{OK: true}
}
