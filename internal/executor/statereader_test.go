// internal/executor/statereader_test.go
package executor

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/deskpilot/deskpilot-cli/internal/browser"
)

// stubWindows returns a fixed active window.
type stubWindows struct {
	win *WindowInfo
}

func (s *stubWindows) ActiveWindow(ctx context.Context) *WindowInfo { return s.win }

// stubPage returns a fixed page state.
type stubPage struct {
	state     *browser.PageState
	err       error
	connected bool
}

func (s *stubPage) State(ctx context.Context) (*browser.PageState, error) { return s.state, s.err }
func (s *stubPage) Connected() bool                                       { return s.connected }

func TestStateReaderDesktopOnly(t *testing.T) {
	windows := &stubWindows{win: &WindowInfo{Title: "Files - Home", AppName: "nautilus"}}
	r := NewStateReader(windows, nil, zaptest.NewLogger(t))

	state, err := r.Read(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "nautilus", state.ActiveApp)
	assert.Equal(t, "Files - Home", state.WindowTitle)
	assert.False(t, state.IsBrowser)
	assert.Empty(t, state.CurrentURL)
}

func TestStateReaderDetectsBrowserByWindowClass(t *testing.T) {
	windows := &stubWindows{win: &WindowInfo{Title: "New Tab", AppName: "Chromium"}}
	r := NewStateReader(windows, &stubPage{connected: false}, zaptest.NewLogger(t))

	state, err := r.Read(context.Background())
	require.NoError(t, err)
	assert.True(t, state.IsBrowser)
}

func TestStateReaderMergesPageState(t *testing.T) {
	windows := &stubWindows{win: &WindowInfo{Title: "terminal", AppName: "xterm"}}
	page := &stubPage{
		connected: true,
		state: &browser.PageState{
			URL:            "https://example.org/login",
			Title:          "Sign in - Example",
			FocusedElement: "input#email",
			Elements: []browser.ElementInfo{
				{Index: 0, Tag: "input", Text: "email"},
				{Index: 1, Tag: "button", Text: "Sign in"},
			},
		},
	}
	r := NewStateReader(windows, page, zaptest.NewLogger(t))

	state, err := r.Read(context.Background())
	require.NoError(t, err)

	assert.True(t, state.IsBrowser)
	assert.Equal(t, "https://example.org/login", state.CurrentURL)
	assert.Equal(t, "Sign in - Example", state.WindowTitle, "the page title wins over the window title")
	assert.Equal(t, "input#email", state.FocusedElement)
	assert.Contains(t, state.InteractiveElements, "[0] <input> email")
	assert.Contains(t, state.InteractiveElements, "[1] <button> Sign in")
}

func TestStateReaderDegradesOnPageError(t *testing.T) {
	windows := &stubWindows{win: &WindowInfo{Title: "Desktop", AppName: "xfdesktop"}}
	page := &stubPage{connected: true, err: errors.New("tab crashed")}
	r := NewStateReader(windows, page, zaptest.NewLogger(t))

	state, err := r.Read(context.Background())
	require.NoError(t, err, "a failing browser probe must degrade, not abort")
	assert.Equal(t, "Desktop", state.WindowTitle)
	assert.False(t, state.IsBrowser)
}

func TestStateReaderNilWindow(t *testing.T) {
	r := NewStateReader(&stubWindows{}, nil, zaptest.NewLogger(t))

	state, err := r.Read(context.Background())
	require.NoError(t, err)
	assert.Empty(t, state.ActiveApp)
	assert.Empty(t, state.WindowTitle)
}

func TestIsBrowserApp(t *testing.T) {
	assert.True(t, isBrowserApp("Google-chrome", ""))
	assert.True(t, isBrowserApp("firefox", ""))
	assert.True(t, isBrowserApp("", "Mozilla Firefox"))
	assert.False(t, isBrowserApp("xterm", "bash"))
}
