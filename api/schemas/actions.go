// api/schemas/actions.go
package schemas

import (
	"fmt"

	json "github.com/json-iterator/go"
)

// ActionType is an enumeration of every primitive the agent can emit. The set
// is closed: decoding an unknown tag is an error, never a silent coercion.
type ActionType string

const (
	// -- Desktop primitives --
	ActionClick    ActionType = "CLICK"     // Click at absolute screen coordinates.
	ActionTypeText ActionType = "TYPE"      // Type text into the focused element.
	ActionScroll   ActionType = "SCROLL"    // Scroll by a signed amount (negative = page down).
	ActionPressKey ActionType = "PRESS_KEY" // Press a key or a "+"-joined combo (e.g. CTRL+L).
	ActionWait     ActionType = "WAIT"      // Pause for a bounded number of seconds.

	// -- Terminal signals --
	ActionDone ActionType = "DONE" // Task completed, optionally with a final answer.
	ActionFail ActionType = "FAIL" // Task cannot be completed.

	// -- Browser primitives (CDP-backed, index-addressed) --
	ActionBrowserNavigate ActionType = "BROWSER_NAVIGATE"
	ActionBrowserClick    ActionType = "BROWSER_CLICK"
	ActionBrowserType     ActionType = "BROWSER_TYPE"
)

// Bounds for the WAIT action, matching the planner contract.
const (
	WaitSecondsMin = 0.1
	WaitSecondsMax = 10.0
)

// knownActionTypes is the authoritative membership table for the closed set.
var knownActionTypes = map[ActionType]bool{
	ActionClick:           true,
	ActionTypeText:        true,
	ActionScroll:          true,
	ActionPressKey:        true,
	ActionWait:            true,
	ActionDone:            true,
	ActionFail:            true,
	ActionBrowserNavigate: true,
	ActionBrowserClick:    true,
	ActionBrowserType:     true,
}

// Action is a single decided step. Exactly one variant tag per instance; the
// variant fields that do not belong to the tag are left at their zero values
// and omitted on the wire.
type Action struct {
	Type   ActionType `json:"type"`
	Reason string     `json:"reason"`

	// CLICK
	X int `json:"x,omitempty"`
	Y int `json:"y,omitempty"`

	// TYPE / BROWSER_TYPE
	Text string `json:"text,omitempty"`

	// SCROLL
	Amount int `json:"amount,omitempty"`

	// PRESS_KEY
	Key string `json:"key,omitempty"`

	// WAIT
	Seconds float64 `json:"seconds,omitempty"`

	// DONE
	FinalAnswer string `json:"final_answer,omitempty"`

	// FAIL
	Error string `json:"error,omitempty"`

	// BROWSER_NAVIGATE
	URL string `json:"url,omitempty"`

	// BROWSER_CLICK / BROWSER_TYPE
	ElementIndex int `json:"element_index,omitempty"`
}

// -- Constructors --
// Construction is the validation boundary: executors may assume any Action
// built here (or decoded via UnmarshalJSON) carries a known tag.

func NewClickAction(x, y int, reason string) Action {
	return Action{Type: ActionClick, X: x, Y: y, Reason: reason}
}

func NewTypeAction(text, reason string) Action {
	return Action{Type: ActionTypeText, Text: text, Reason: reason}
}

func NewScrollAction(amount int, reason string) Action {
	return Action{Type: ActionScroll, Amount: amount, Reason: reason}
}

func NewPressKeyAction(key, reason string) Action {
	return Action{Type: ActionPressKey, Key: key, Reason: reason}
}

func NewWaitAction(seconds float64, reason string) Action {
	if seconds < WaitSecondsMin {
		seconds = WaitSecondsMin
	}
	if seconds > WaitSecondsMax {
		seconds = WaitSecondsMax
	}
	return Action{Type: ActionWait, Seconds: seconds, Reason: reason}
}

func NewDoneAction(finalAnswer, reason string) Action {
	return Action{Type: ActionDone, FinalAnswer: finalAnswer, Reason: reason}
}

func NewFailAction(errMsg, reason string) Action {
	if errMsg == "" {
		errMsg = "task failed"
	}
	return Action{Type: ActionFail, Error: errMsg, Reason: reason}
}

func NewBrowserNavigateAction(url, reason string) Action {
	return Action{Type: ActionBrowserNavigate, URL: url, Reason: reason}
}

func NewBrowserClickAction(index int, reason string) Action {
	return Action{Type: ActionBrowserClick, ElementIndex: index, Reason: reason}
}

func NewBrowserTypeAction(index int, text, reason string) Action {
	return Action{Type: ActionBrowserType, ElementIndex: index, Text: text, Reason: reason}
}

// Validate checks the variant invariants for the action's tag.
func (a Action) Validate() error {
	if !knownActionTypes[a.Type] {
		return fmt.Errorf("unknown action type: %q", a.Type)
	}

	switch a.Type {
	case ActionClick:
		if a.X < 0 || a.Y < 0 {
			return fmt.Errorf("CLICK coordinates must be non-negative, got (%d, %d)", a.X, a.Y)
		}
	case ActionTypeText:
		if a.Text == "" {
			return fmt.Errorf("TYPE requires non-empty text")
		}
	case ActionPressKey:
		if a.Key == "" {
			return fmt.Errorf("PRESS_KEY requires a key name")
		}
	case ActionWait:
		if a.Seconds < WaitSecondsMin || a.Seconds > WaitSecondsMax {
			return fmt.Errorf("WAIT seconds %.2f outside [%v, %v]", a.Seconds, WaitSecondsMin, WaitSecondsMax)
		}
	case ActionFail:
		if a.Error == "" {
			return fmt.Errorf("FAIL requires an error message")
		}
	case ActionBrowserNavigate:
		if a.URL == "" {
			return fmt.Errorf("BROWSER_NAVIGATE requires a url")
		}
	case ActionBrowserClick:
		if a.ElementIndex < 0 {
			return fmt.Errorf("BROWSER_CLICK element_index must be non-negative, got %d", a.ElementIndex)
		}
	case ActionBrowserType:
		if a.ElementIndex < 0 {
			return fmt.Errorf("BROWSER_TYPE element_index must be non-negative, got %d", a.ElementIndex)
		}
		if a.Text == "" {
			return fmt.Errorf("BROWSER_TYPE requires non-empty text")
		}
	}
	return nil
}

// IsTerminal reports whether the action ends the task.
func (a Action) IsTerminal() bool {
	return a.Type == ActionDone || a.Type == ActionFail
}

// IsBrowserAction reports whether the action must be routed to the browser backend.
func (a Action) IsBrowserAction() bool {
	switch a.Type {
	case ActionBrowserNavigate, ActionBrowserClick, ActionBrowserType:
		return true
	}
	return false
}

// Summary renders a compact one-line description for history buffers and logs.
func (a Action) Summary() string {
	switch a.Type {
	case ActionClick:
		return fmt.Sprintf("CLICK(%d,%d)", a.X, a.Y)
	case ActionTypeText:
		return fmt.Sprintf("TYPE(%s)", a.Text)
	case ActionScroll:
		return fmt.Sprintf("SCROLL(%d)", a.Amount)
	case ActionPressKey:
		return fmt.Sprintf("PRESS_KEY(%s)", a.Key)
	case ActionWait:
		return fmt.Sprintf("WAIT(%.1f)", a.Seconds)
	case ActionDone:
		return "DONE"
	case ActionFail:
		return fmt.Sprintf("FAIL(%s)", a.Error)
	case ActionBrowserNavigate:
		return fmt.Sprintf("BROWSER_NAVIGATE(%s)", a.URL)
	case ActionBrowserClick:
		return fmt.Sprintf("BROWSER_CLICK(%d)", a.ElementIndex)
	case ActionBrowserType:
		return fmt.Sprintf("BROWSER_TYPE(%d,%s)", a.ElementIndex, a.Text)
	}
	return string(a.Type)
}

// actionAlias avoids infinite recursion inside UnmarshalJSON.
type actionAlias Action

// UnmarshalJSON decodes an action and rejects unknown tags at the boundary, so
// nothing downstream ever dispatches on an out-of-set type.
func (a *Action) UnmarshalJSON(data []byte) error {
	var alias actionAlias
	if err := json.Unmarshal(data, &alias); err != nil {
		return err
	}
	decoded := Action(alias)
	if err := decoded.Validate(); err != nil {
		return err
	}
	*a = decoded
	return nil
}
