// internal/executor/executor.go
package executor

import (
	"context"

	"go.uber.org/zap"

	"github.com/deskpilot/deskpilot-cli/api/schemas"
	"github.com/deskpilot/deskpilot-cli/internal/browser"
	"github.com/deskpilot/deskpilot-cli/internal/perception"
)

// Executor runs one typed action against its backing surface. Both backends
// report outcomes as ExecutionResult; they never panic across this boundary.
type Executor interface {
	Execute(ctx context.Context, action schemas.Action) schemas.ExecutionResult
}

// BrowserSession is the slice of the CDP session the executors consume.
type BrowserSession interface {
	Navigate(ctx context.Context, url string) error
	ClickByIndex(ctx context.Context, i int) error
	TypeByIndex(ctx context.Context, i int, text string) error
	State(ctx context.Context) (*browser.PageState, error)
	Screenshot(ctx context.Context) ([]byte, error)
	Connected() bool
}

// Dispatcher is the single dispatch point for the closed action set. Desktop
// primitives go to the desktop backend, BROWSER_* primitives to the browser
// backend; the agent never knows which backend handled a given action.
type Dispatcher struct {
	desktop *Desktop
	browser *Browser
	session BrowserSession
	logger  *zap.Logger
}

var _ Executor = (*Dispatcher)(nil)

// NewDispatcher wires both backends behind one Executor.
func NewDispatcher(desktop *Desktop, browserExec *Browser, session BrowserSession, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		desktop: desktop,
		browser: browserExec,
		session: session,
		logger:  logger.Named("dispatcher"),
	}
}

// Execute validates the action tag and routes it to the owning backend.
func (d *Dispatcher) Execute(ctx context.Context, action schemas.Action) schemas.ExecutionResult {
	if err := action.Validate(); err != nil {
		return schemas.Failure(err.Error())
	}

	var result schemas.ExecutionResult
	if action.IsBrowserAction() {
		result = d.browser.Execute(ctx, action)
	} else {
		result = d.desktop.Execute(ctx, action)
	}

	if !result.OK {
		d.logger.Warn("Action execution failed",
			zap.String("action", action.Summary()),
			zap.String("error", result.Error))
	} else {
		d.logger.Debug("Action executed", zap.String("action", action.Summary()))
	}
	return result
}

// Screenshot captures the active surface: the browser viewport when a CDP
// session is live, the desktop otherwise.
func (d *Dispatcher) Screenshot(ctx context.Context) ([]byte, error) {
	if d.session != nil && d.session.Connected() {
		if buf, err := d.session.Screenshot(ctx); err == nil {
			return buf, nil
		}
		// Fall back to desktop capture if the tab refuses.
	}
	return perception.CaptureDesktop()
}
