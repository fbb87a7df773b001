// File: internal/agent/escalate_test.go
package agent

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/deskpilot/deskpilot-cli/api/schemas"
)

// mockVision mocks the vision provider.
type mockVision struct {
	mock.Mock
}

func (m *mockVision) Analyze(ctx context.Context, goal string, screenshot []byte, history []string) (*schemas.Action, error) {
	args := m.Called(ctx, goal, screenshot, history)
	if action := args.Get(0); action != nil {
		return action.(*schemas.Action), args.Error(1)
	}
	return nil, args.Error(1)
}

// mockExecutor mocks the action dispatcher.
type mockExecutor struct {
	mock.Mock
}

func (m *mockExecutor) Execute(ctx context.Context, action schemas.Action) schemas.ExecutionResult {
	args := m.Called(ctx, action)
	return args.Get(0).(schemas.ExecutionResult)
}

func newTestEscalator(t *testing.T, vision VisionAnalyzer, exec ActionExecutor, verifier *Verifier) *Escalator {
	t.Helper()
	return NewEscalator(vision, exec, verifier, &fakeShots{png: []byte{1}}, testAgentConfig(), zaptest.NewLogger(t))
}

func TestFailureCounterThresholds(t *testing.T) {
	e := newTestEscalator(t, nil, nil, nil)

	assert.False(t, e.IsStuck())
	assert.False(t, e.MustForceVision())

	e.RecordFailure()
	assert.False(t, e.IsStuck(), "one failure must not trigger the stuck hint")

	e.RecordFailure()
	assert.True(t, e.IsStuck())
	assert.False(t, e.MustForceVision(), "forced vision requires three failures, never before")

	e.RecordFailure()
	assert.True(t, e.MustForceVision())

	e.RecordSuccess()
	assert.Equal(t, 0, e.Failures(), "any verified success must reset the streak")
	assert.False(t, e.IsStuck())
	assert.False(t, e.MustForceVision())
}

func TestStuckHintNamesAnchor(t *testing.T) {
	e := newTestEscalator(t, nil, nil, nil)
	e.RecordFailure()
	e.RecordFailure()

	hint := e.StuckHint("Editor")
	assert.Contains(t, hint, "stuck")
	assert.Contains(t, hint, `"Editor"`)
}

func TestEscalateWithoutVisionProvider(t *testing.T) {
	e := newTestEscalator(t, nil, nil, nil)
	result := e.Escalate(context.Background(), "goal", "anchor", nil, nil)
	assert.Nil(t, result.Terminal)
	assert.False(t, result.Recovered)
}

func TestEscalateHonorsTerminalAction(t *testing.T) {
	vision := &mockVision{}
	done := schemas.NewDoneAction("finished", "screen shows the result")
	vision.On("Analyze", mock.Anything, "goal", mock.Anything, mock.Anything).Return(&done, nil)

	e := newTestEscalator(t, vision, &mockExecutor{}, nil)
	result := e.Escalate(context.Background(), "goal", "anchor", nil, nil)

	require.NotNil(t, result.Terminal)
	assert.Equal(t, schemas.ActionDone, result.Terminal.Type)
	vision.AssertExpectations(t)
}

func TestEscalateSwallowsProviderErrors(t *testing.T) {
	vision := &mockVision{}
	vision.On("Analyze", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(nil, errors.New("model unavailable"))

	e := newTestEscalator(t, vision, &mockExecutor{}, nil)
	result := e.Escalate(context.Background(), "goal", "anchor", nil, nil)

	assert.Nil(t, result.Terminal)
	assert.False(t, result.Recovered)
}

func TestEscalateExecutesSuggestionAndRechecksAnchor(t *testing.T) {
	vision := &mockVision{}
	click := schemas.NewClickAction(100, 200, "dismiss the modal")
	vision.On("Analyze", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(&click, nil)

	exec := &mockExecutor{}
	exec.On("Execute", mock.Anything, click).Return(schemas.Success())

	states := &fakeStates{states: []*schemas.TextState{{WindowTitle: "Editor"}}}
	verifier := newTestVerifier(t, states, &fakeOCR{})

	e := newTestEscalator(t, vision, exec, verifier)
	result := e.Escalate(context.Background(), "goal", "Editor", &schemas.TextState{WindowTitle: "Modal"}, nil)

	assert.Nil(t, result.Terminal)
	assert.True(t, result.Recovered)
	exec.AssertExpectations(t)
}

// fakeRecoverer records which recovery helpers were invoked.
type fakeRecoverer struct {
	backCalls  int
	focusCalls int
}

func (f *fakeRecoverer) Back(ctx context.Context) error         { f.backCalls++; return nil }
func (f *fakeRecoverer) RecoverFocus(ctx context.Context) error { f.focusCalls++; return nil }

func TestEscalateGoesBackAfterFailedNavigation(t *testing.T) {
	vision := &mockVision{}
	nav := schemas.NewBrowserNavigateAction("https://example.org", "retry the page")
	vision.On("Analyze", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(&nav, nil)

	exec := &mockExecutor{}
	exec.On("Execute", mock.Anything, nav).Return(schemas.Success())

	states := &fakeStates{states: []*schemas.TextState{
		{IsBrowser: true, CurrentURL: "https://wrong.example.com"},
	}}
	verifier := newTestVerifier(t, states, &fakeOCR{})

	recoverer := &fakeRecoverer{}
	e := newTestEscalator(t, vision, exec, verifier)
	e.SetRecoverer(recoverer)

	result := e.Escalate(context.Background(), "goal", "example.org/docs",
		&schemas.TextState{IsBrowser: true, CurrentURL: "https://wrong.example.com"}, nil)

	assert.False(t, result.Recovered)
	assert.Equal(t, 1, recoverer.backCalls, "a navigation that missed the anchor must be undone")
	assert.Zero(t, recoverer.focusCalls)
}

func TestEscalateRecoversFocusAfterFailedSuggestion(t *testing.T) {
	vision := &mockVision{}
	click := schemas.NewBrowserClickAction(3, "dismiss the dialog")
	vision.On("Analyze", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(&click, nil)

	exec := &mockExecutor{}
	exec.On("Execute", mock.Anything, click).Return(schemas.Failure("element index 3 out of range"))

	recoverer := &fakeRecoverer{}
	e := newTestEscalator(t, vision, exec, nil)
	e.SetRecoverer(recoverer)

	result := e.Escalate(context.Background(), "goal", "anchor",
		&schemas.TextState{IsBrowser: true, CurrentURL: "https://example.org"}, nil)

	assert.False(t, result.Recovered)
	assert.Equal(t, 1, recoverer.focusCalls)
	assert.Zero(t, recoverer.backCalls)
}

func TestEscalatePassesExpectedVsActualNote(t *testing.T) {
	vision := &mockVision{}
	fail := schemas.NewFailAction("cannot proceed", "blocked")
	vision.On("Analyze", mock.Anything, mock.Anything, mock.Anything,
		mock.MatchedBy(func(history []string) bool {
			for _, entry := range history {
				if assert.ObjectsAreEqual(entry, expectedVsActual("Editor", &schemas.TextState{WindowTitle: "Desktop"})) {
					return true
				}
			}
			return false
		})).Return(&fail, nil)

	e := newTestEscalator(t, vision, &mockExecutor{}, nil)
	result := e.Escalate(context.Background(), "goal", "Editor", &schemas.TextState{WindowTitle: "Desktop"}, []string{"step 1: TYPE(x) [OK]"})

	require.NotNil(t, result.Terminal)
	assert.Equal(t, schemas.ActionFail, result.Terminal.Type)
}
