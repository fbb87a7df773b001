// internal/agent/parser.go
package agent

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/deskpilot/deskpilot-cli/api/schemas"
)

// Defaults applied when the planner emits an unparseable numeric parameter.
const (
	defaultWaitSeconds  = 1.0
	defaultScrollAmount = -500 // one "page down" worth of wheel travel
)

// callTokenRegex matches NAME(params) tokens. The parameter body is greedy so
// nested parentheses inside quoted text survive.
var callTokenRegex = regexp.MustCompile(`^(\w+)\((.*)\)$`)

// ParseActionSequence turns the planner's semicolon-separated sequence string
// into an ordered action list. Unrecognized tokens are skipped rather than
// failing the whole sequence. The result is never empty: when nothing parses,
// a single FAIL action naming the input is returned so the loop always has
// something to react to.
func ParseActionSequence(sequence string) []schemas.Action {
	var actions []schemas.Action

	for _, token := range strings.Split(sequence, ";") {
		token = strings.TrimSpace(token)
		if token == "" {
			continue
		}

		if action, ok := parseToken(token); ok {
			actions = append(actions, action)
		}
	}

	if len(actions) == 0 {
		return []schemas.Action{
			schemas.NewFailAction(
				fmt.Sprintf("no parseable actions in sequence: %q", sequence),
				"planner output did not contain any recognized action"),
		}
	}
	return actions
}

func parseToken(token string) (schemas.Action, bool) {
	// Bare terminal keywords need no parentheses.
	switch strings.ToUpper(token) {
	case "DONE":
		return schemas.NewDoneAction("", "goal reached"), true
	case "FAIL":
		return schemas.NewFailAction("planner declared failure", "planner declared failure"), true
	}

	matches := callTokenRegex.FindStringSubmatch(token)
	if matches == nil {
		return schemas.Action{}, false
	}

	name := strings.ToUpper(matches[1])
	param := stripQuotes(strings.TrimSpace(matches[2]))

	switch name {
	case "PRESS_KEY":
		if param == "" {
			return schemas.Action{}, false
		}
		return schemas.NewPressKeyAction(param, "planned key press"), true

	case "TYPE":
		if param == "" {
			return schemas.Action{}, false
		}
		return schemas.NewTypeAction(param, "planned typing"), true

	case "CLICK":
		x, y, ok := parseCoordinates(param)
		if !ok {
			return schemas.Action{}, false
		}
		return schemas.NewClickAction(x, y, "planned click"), true

	case "SCROLL":
		amount, err := strconv.Atoi(stripKeyPrefix(param))
		if err != nil {
			amount = defaultScrollAmount
		}
		return schemas.NewScrollAction(amount, "planned scroll"), true

	case "WAIT":
		seconds, err := strconv.ParseFloat(stripKeyPrefix(param), 64)
		if err != nil {
			seconds = defaultWaitSeconds
		}
		return schemas.NewWaitAction(seconds, "planned wait"), true

	case "DONE":
		return schemas.NewDoneAction(param, "goal reached"), true

	case "FAIL":
		return schemas.NewFailAction(param, "planner declared failure"), true

	case "BROWSER_NAVIGATE":
		url := stripQuotes(stripKeyPrefix(param))
		if url == "" {
			return schemas.Action{}, false
		}
		return schemas.NewBrowserNavigateAction(url, "planned navigation"), true

	case "BROWSER_CLICK":
		index, err := strconv.Atoi(stripQuotes(stripKeyPrefix(param)))
		if err != nil || index < 0 {
			return schemas.Action{}, false
		}
		return schemas.NewBrowserClickAction(index, "planned element click"), true

	case "BROWSER_TYPE":
		index, text, ok := parseIndexedText(param)
		if !ok {
			return schemas.Action{}, false
		}
		return schemas.NewBrowserTypeAction(index, text, "planned element typing"), true
	}

	return schemas.Action{}, false
}

// parseCoordinates handles CLICK(x,y).
func parseCoordinates(param string) (int, int, bool) {
	parts := strings.SplitN(param, ",", 2)
	if len(parts) != 2 {
		return 0, 0, false
	}
	x, errX := strconv.Atoi(stripQuotes(stripKeyPrefix(strings.TrimSpace(parts[0]))))
	y, errY := strconv.Atoi(stripQuotes(stripKeyPrefix(strings.TrimSpace(parts[1]))))
	if errX != nil || errY != nil || x < 0 || y < 0 {
		return 0, 0, false
	}
	return x, y, true
}

// parseIndexedText handles BROWSER_TYPE(index, text). The text half may itself
// contain commas, so only the first comma splits.
func parseIndexedText(param string) (int, string, bool) {
	parts := strings.SplitN(param, ",", 2)
	if len(parts) != 2 {
		return 0, "", false
	}
	index, err := strconv.Atoi(stripQuotes(stripKeyPrefix(strings.TrimSpace(parts[0]))))
	if err != nil || index < 0 {
		return 0, "", false
	}
	text := stripQuotes(strings.TrimSpace(parts[1]))
	text = stripQuotes(stripKeyPrefix(text))
	if text == "" {
		return 0, "", false
	}
	return index, text, true
}

// stripKeyPrefix tolerates `name=value` noise like BROWSER_CLICK(index=3).
func stripKeyPrefix(s string) string {
	if i := strings.Index(s, "="); i != -1 {
		return strings.TrimSpace(s[i+1:])
	}
	return s
}

// stripQuotes removes one matching pair of surrounding quote characters.
func stripQuotes(s string) string {
	if len(s) >= 2 {
		first, last := s[0], s[len(s)-1]
		if first == last && (first == '"' || first == '\'' || first == '`') {
			return s[1 : len(s)-1]
		}
	}
	return s
}
