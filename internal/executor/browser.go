// internal/executor/browser.go
package executor

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/deskpilot/deskpilot-cli/api/schemas"
)

// Browser executes BROWSER_* actions against the persistent CDP session.
type Browser struct {
	session BrowserSession
	logger  *zap.Logger
}

var _ Executor = (*Browser)(nil)

// NewBrowser creates the browser executor.
func NewBrowser(session BrowserSession, logger *zap.Logger) *Browser {
	return &Browser{
		session: session,
		logger:  logger.Named("browser_executor"),
	}
}

// Execute dispatches one browser action. Backend faults are reported as
// failed results, never as panics or errors that abort the loop.
func (b *Browser) Execute(ctx context.Context, action schemas.Action) schemas.ExecutionResult {
	var err error
	switch action.Type {
	case schemas.ActionBrowserNavigate:
		err = b.session.Navigate(ctx, action.URL)
	case schemas.ActionBrowserClick:
		err = b.session.ClickByIndex(ctx, action.ElementIndex)
	case schemas.ActionBrowserType:
		err = b.session.TypeByIndex(ctx, action.ElementIndex, action.Text)
	default:
		return schemas.Failure(fmt.Sprintf("browser backend cannot execute action type %s", action.Type))
	}

	if err != nil {
		return schemas.Failure(err.Error())
	}
	return schemas.Success()
}
