// File: internal/agent/parser_test.go
package agent

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deskpilot/deskpilot-cli/api/schemas"
)

func TestParseActionSequenceStandardSkill(t *testing.T) {
	actions := ParseActionSequence("PRESS_KEY(Alt+F2); WAIT(1); TYPE(firefox); PRESS_KEY(ENTER)")
	require.Len(t, actions, 4)

	assert.Equal(t, schemas.ActionPressKey, actions[0].Type)
	assert.Equal(t, "Alt+F2", actions[0].Key)
	assert.Equal(t, schemas.ActionWait, actions[1].Type)
	assert.Equal(t, 1.0, actions[1].Seconds)
	assert.Equal(t, schemas.ActionTypeText, actions[2].Type)
	assert.Equal(t, "firefox", actions[2].Text)
	assert.Equal(t, "ENTER", actions[3].Key)
}

func TestParseActionSequenceNeverEmpty(t *testing.T) {
	inputs := []string{
		"",
		";;;",
		"garbage",
		"NOT_AN_ACTION(x)",
		"TYPE()",
	}
	for _, input := range inputs {
		actions := ParseActionSequence(input)
		require.NotEmpty(t, actions, "input %q", input)
		require.Len(t, actions, 1)
		assert.Equal(t, schemas.ActionFail, actions[0].Type)
		assert.Contains(t, actions[0].Error, "no parseable actions")
	}
}

func TestParseActionSequenceCaseInsensitive(t *testing.T) {
	actions := ParseActionSequence("press_key(ctrl+l); type(hello)")
	require.Len(t, actions, 2)
	assert.Equal(t, schemas.ActionPressKey, actions[0].Type)
	assert.Equal(t, schemas.ActionTypeText, actions[1].Type)
}

func TestParseActionSequenceStripsQuotes(t *testing.T) {
	actions := ParseActionSequence(`TYPE("hello world"); BROWSER_NAVIGATE('example.com')`)
	require.Len(t, actions, 2)
	assert.Equal(t, "hello world", actions[0].Text)
	assert.Equal(t, "example.com", actions[1].URL)
}

func TestParseActionSequenceKeyValueNoise(t *testing.T) {
	actions := ParseActionSequence("BROWSER_CLICK(index=3); BROWSER_TYPE(index=2, text=cats); WAIT(seconds=2)")
	require.Len(t, actions, 3)
	assert.Equal(t, 3, actions[0].ElementIndex)
	assert.Equal(t, 2, actions[1].ElementIndex)
	assert.Equal(t, "cats", actions[1].Text)
	assert.Equal(t, 2.0, actions[2].Seconds)
}

func TestParseActionSequenceNumericDefaults(t *testing.T) {
	actions := ParseActionSequence("WAIT(soon); SCROLL(down)")
	require.Len(t, actions, 2)
	assert.Equal(t, defaultWaitSeconds, actions[0].Seconds)
	assert.Equal(t, defaultScrollAmount, actions[1].Amount)
}

func TestParseActionSequenceBareTerminals(t *testing.T) {
	want := []schemas.ActionType{schemas.ActionDone, schemas.ActionFail}

	var got []schemas.ActionType
	for _, a := range ParseActionSequence("DONE; FAIL") {
		got = append(got, a.Type)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("terminal types mismatch (-want +got):\n%s", diff)
	}
}

func TestParseActionSequenceSkipsUnknownTokens(t *testing.T) {
	actions := ParseActionSequence("HOVER(1,2); TYPE(keep me); SHAKE()")
	require.Len(t, actions, 1)
	assert.Equal(t, "keep me", actions[0].Text)
}

func TestParseActionSequenceDoneWithAnswer(t *testing.T) {
	actions := ParseActionSequence("DONE(the capital is Paris)")
	require.Len(t, actions, 1)
	assert.Equal(t, schemas.ActionDone, actions[0].Type)
	assert.Equal(t, "the capital is Paris", actions[0].FinalAnswer)
}

func TestParseActionSequenceClickCoordinates(t *testing.T) {
	actions := ParseActionSequence("CLICK(120, 450)")
	require.Len(t, actions, 1)
	assert.Equal(t, 120, actions[0].X)
	assert.Equal(t, 450, actions[0].Y)
}

func TestParseActionSequenceBrowserTypeTextWithComma(t *testing.T) {
	actions := ParseActionSequence(`BROWSER_TYPE(0, "hello, world")`)
	require.Len(t, actions, 1)
	assert.Equal(t, 0, actions[0].ElementIndex)
	assert.Equal(t, "hello, world", actions[0].Text)
}

func TestParseActionSequenceAllParsedActionsValid(t *testing.T) {
	sequence := "CLICK(5,5); TYPE(abc); SCROLL(-500); PRESS_KEY(TAB); WAIT(0.5); " +
		"BROWSER_NAVIGATE(example.org); BROWSER_CLICK(1); BROWSER_TYPE(2, xyz); DONE"
	for _, action := range ParseActionSequence(sequence) {
		assert.NoError(t, action.Validate(), "action %s", action.Summary())
	}
}
