// internal/executor/statereader.go
package executor

import (
	"context"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/deskpilot/deskpilot-cli/api/schemas"
	"github.com/deskpilot/deskpilot-cli/internal/browser"
)

// browserAppMarkers identify window classes or names that belong to a
// controllable browser process.
var browserAppMarkers = []string{"chrome", "chromium", "firefox", "edge", "brave"}

// WindowSource reports the currently focused desktop window. A nil result
// means no window could be determined.
type WindowSource interface {
	ActiveWindow(ctx context.Context) *WindowInfo
}

// PageSource reports the state of the attached browser tab.
type PageSource interface {
	State(ctx context.Context) (*browser.PageState, error)
	Connected() bool
}

// StateReader assembles the textual observation handed to the planner:
// the active window from the window manager merged with the page state
// from the CDP session when one is attached.
type StateReader struct {
	windows WindowSource
	page    PageSource
	logger  *zap.Logger
}

// NewStateReader creates a state reader. page may be nil when no browser
// session is configured.
func NewStateReader(windows WindowSource, page PageSource, logger *zap.Logger) *StateReader {
	return &StateReader{
		windows: windows,
		page:    page,
		logger:  logger.Named("state_reader"),
	}
}

// Read captures the current text state. The two probes run concurrently;
// either side failing degrades the observation instead of aborting it.
func (r *StateReader) Read(ctx context.Context) (*schemas.TextState, error) {
	var (
		win  *WindowInfo
		page *browser.PageState
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		win = r.windows.ActiveWindow(gctx)
		return nil
	})

	if r.page != nil && r.page.Connected() {
		g.Go(func() error {
			p, err := r.page.State(gctx)
			if err != nil {
				r.logger.Debug("Browser state probe failed.", zap.Error(err))
				return nil
			}
			page = p
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	state := &schemas.TextState{}
	if win != nil {
		state.ActiveApp = win.AppName
		state.WindowTitle = win.Title
	}

	state.IsBrowser = isBrowserApp(state.ActiveApp, state.WindowTitle) || page != nil

	if page != nil {
		state.CurrentURL = page.URL
		if page.Title != "" {
			state.WindowTitle = page.Title
		}
		state.FocusedElement = page.FocusedElement
		state.InteractiveElements = browser.FormatElements(page.Elements)
	}

	return state, nil
}

func isBrowserApp(app, title string) bool {
	haystack := strings.ToLower(app + " " + title)
	for _, marker := range browserAppMarkers {
		if strings.Contains(haystack, marker) {
			return true
		}
	}
	return false
}
