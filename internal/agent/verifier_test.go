// File: internal/agent/verifier_test.go
package agent

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/deskpilot/deskpilot-cli/api/schemas"
	"github.com/deskpilot/deskpilot-cli/internal/config"
)

// fakeStates replays a scripted series of observations.
type fakeStates struct {
	states []*schemas.TextState
	calls  int
}

func (f *fakeStates) Read(ctx context.Context) (*schemas.TextState, error) {
	state := f.states[f.calls]
	if f.calls < len(f.states)-1 {
		f.calls++
	}
	return state, nil
}

// fakeShots returns a fixed screenshot.
type fakeShots struct{ png []byte }

func (f *fakeShots) Screenshot(ctx context.Context) ([]byte, error) { return f.png, nil }

// fakeOCR returns fixed screen text.
type fakeOCR struct{ text string }

func (f *fakeOCR) TextFromImage(ctx context.Context, png []byte) string { return f.text }

func testAgentConfig() config.AgentConfig {
	return config.AgentConfig{
		MaxSteps:            10,
		HistoryWindow:       5,
		PollAttempts:        5,
		PollInterval:        time.Millisecond,
		SequenceAttempts:    2,
		StuckThreshold:      2,
		VisionThreshold:     3,
		SearchEngineMarkers: []string{"google", "bing", "duckduckgo", "search"},
	}
}

func newTestVerifier(t *testing.T, states StateSource, ocr OCRProvider) *Verifier {
	t.Helper()
	v := NewVerifier(states, &fakeShots{png: []byte{1}}, ocr, testAgentConfig(), zaptest.NewLogger(t))
	v.sleep = func(ctx context.Context, d time.Duration) error { return nil }
	return v
}

func TestVerifyAnchorMatchesWindowTitle(t *testing.T) {
	states := &fakeStates{states: []*schemas.TextState{
		{WindowTitle: "Editor - Untitled"},
	}}
	v := newTestVerifier(t, states, &fakeOCR{})

	result := v.Verify(context.Background(), "editor", "")
	assert.True(t, result.AnchorMatched)
	assert.False(t, result.GoalComplete, "empty indicators must never complete the goal")
}

func TestVerifyPrefersURLOverTitleInBrowser(t *testing.T) {
	states := &fakeStates{states: []*schemas.TextState{
		{IsBrowser: true, CurrentURL: "https://example.org/docs", WindowTitle: "totally different"},
	}}
	v := newTestVerifier(t, states, &fakeOCR{})

	assert.True(t, v.Verify(context.Background(), "example.org", "").AnchorMatched)
	assert.False(t, v.Verify(context.Background(), "different", "").AnchorMatched,
		"title must be ignored when a URL is available")
}

func TestVerifyPollsUntilAnchorAppears(t *testing.T) {
	states := &fakeStates{states: []*schemas.TextState{
		{WindowTitle: "Desktop"},
		{WindowTitle: "Desktop"},
		{WindowTitle: "Editor"},
	}}
	v := newTestVerifier(t, states, &fakeOCR{})

	result := v.Verify(context.Background(), "Editor", "")
	assert.True(t, result.AnchorMatched)
	require.NotNil(t, result.State)
	assert.Equal(t, "Editor", result.State.WindowTitle)
}

func TestVerifyHardMismatchAfterBudget(t *testing.T) {
	states := &fakeStates{states: []*schemas.TextState{{WindowTitle: "Desktop"}}}
	v := newTestVerifier(t, states, &fakeOCR{})

	result := v.Verify(context.Background(), "Editor", "")
	assert.False(t, result.AnchorMatched)
	assert.False(t, result.GoalComplete)
}

func TestVerifyCompletionRequiresIndicatorInScreenText(t *testing.T) {
	states := &fakeStates{states: []*schemas.TextState{{WindowTitle: "Editor"}}}

	t.Run("indicator present", func(t *testing.T) {
		v := newTestVerifier(t, states, &fakeOCR{text: "Document saved successfully"})
		result := v.Verify(context.Background(), "Editor", "saved")
		assert.True(t, result.GoalComplete)
		assert.Equal(t, "saved", result.MatchedIndicator)
	})

	t.Run("indicator absent", func(t *testing.T) {
		v := newTestVerifier(t, states, &fakeOCR{text: "unrelated screen content"})
		result := v.Verify(context.Background(), "Editor", "saved")
		assert.True(t, result.AnchorMatched)
		assert.False(t, result.GoalComplete,
			"anchor match alone must not complete when indicators are declared")
	})
}

func TestVerifyIndicatorMatchIsCaseInsensitive(t *testing.T) {
	states := &fakeStates{states: []*schemas.TextState{{WindowTitle: "Editor"}}}
	v := newTestVerifier(t, states, &fakeOCR{text: "ALL CHANGES SAVED"})

	result := v.Verify(context.Background(), "editor", "Saved, synced")
	assert.True(t, result.GoalComplete)
}

func TestVerifySearchSurfaceSuppressesCompletion(t *testing.T) {
	states := &fakeStates{states: []*schemas.TextState{
		{IsBrowser: true, CurrentURL: "https://www.google.com/search?q=cat+videos"},
	}}
	v := newTestVerifier(t, states, &fakeOCR{text: "cat videos everywhere"})

	result := v.Verify(context.Background(), "google.com", "cat videos")
	assert.True(t, result.AnchorMatched)
	assert.False(t, result.GoalComplete,
		"search results pages are intermediate even when indicator text matches")
}

func TestCheckStateWithoutPolling(t *testing.T) {
	v := newTestVerifier(t, &fakeStates{states: []*schemas.TextState{{}}}, &fakeOCR{text: "saved"})

	state := &schemas.TextState{WindowTitle: "Editor"}
	result := v.CheckState(context.Background(), state, "Editor", "saved")
	assert.True(t, result.GoalComplete)

	assert.False(t, v.CheckState(context.Background(), nil, "Editor", "saved").AnchorMatched)
}

func TestEmptyAnchorAlwaysMatches(t *testing.T) {
	states := &fakeStates{states: []*schemas.TextState{{WindowTitle: "anything"}}}
	v := newTestVerifier(t, states, &fakeOCR{})

	assert.True(t, v.Verify(context.Background(), "", "").AnchorMatched)
}

func TestSplitIndicators(t *testing.T) {
	assert.Nil(t, splitIndicators(""))
	assert.Equal(t, []string{"saved"}, splitIndicators("saved"))
	assert.Equal(t, []string{"saved", "synced"}, splitIndicators(" saved , synced ,, "))
}
