// internal/browser/session.go
package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/deskpilot/deskpilot-cli/internal/config"
)

// PageState is the browser half of an observation snapshot.
type PageState struct {
	URL            string
	Title          string
	FocusedElement string
	Elements       []ElementInfo
}

// Session wraps a single CDP connection to an already-running browser. The
// connection is established lazily on first use and cached for the remainder
// of the task. A Session is not safe for use by two concurrent tasks.
type Session struct {
	cfg    config.BrowserConfig
	logger *zap.Logger

	mu          sync.Mutex
	parent      context.Context
	allocCancel context.CancelFunc
	tabCtx      context.Context
	tabCancel   context.CancelFunc
	connected   bool
}

// NewSession prepares a session against the configured CDP endpoint. No
// connection is made until the first operation needs one.
func NewSession(parent context.Context, cfg config.BrowserConfig, logger *zap.Logger) *Session {
	return &Session{
		cfg:    cfg,
		logger: logger.Named("browser_session"),
		parent: parent,
	}
}

// connect attaches to the remote browser. Callers hold s.mu.
func (s *Session) connect() error {
	if s.connected {
		return nil
	}

	allocCtx, allocCancel := chromedp.NewRemoteAllocator(s.parent, s.cfg.CDPURL)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx)

	// Force target resolution now so a dead endpoint fails here, not mid-action.
	probeCtx, probeCancel := context.WithTimeout(tabCtx, 10*time.Second)
	defer probeCancel()
	if err := chromedp.Run(probeCtx); err != nil {
		tabCancel()
		allocCancel()
		return fmt.Errorf("failed to attach to browser at %s: %w", s.cfg.CDPURL, err)
	}

	s.allocCancel = allocCancel
	s.tabCtx = tabCtx
	s.tabCancel = tabCancel
	s.connected = true
	s.logger.Info("CDP session established", zap.String("cdp_url", s.cfg.CDPURL))
	return nil
}

// acquire returns the cached tab context, connecting on first use.
func (s *Session) acquire(ctx context.Context) (context.Context, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.connect(); err != nil {
		return nil, err
	}
	return s.tabCtx, nil
}

// Connected reports whether the CDP connection has been established.
func (s *Session) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

// Close tears down the CDP connection. Safe to call on a never-connected session.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return
	}
	s.tabCancel()
	s.allocCancel()
	s.connected = false
	s.logger.Info("CDP session closed")
}

// isContextDestroyed matches errors produced when an in-page evaluation is cut
// short because the page navigated away. For click and type operations that is
// the expected outcome, not a fault.
func isContextDestroyed(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "execution context was destroyed") ||
		strings.Contains(msg, "Execution context was destroyed") ||
		strings.Contains(msg, "Cannot find context with specified id") ||
		strings.Contains(msg, "context deadline exceeded")
}

// NormalizeURL prefixes bare hosts with https://.
func NormalizeURL(url string) string {
	for _, scheme := range []string{"http://", "https://", "file://", "about:", "chrome://"} {
		if strings.HasPrefix(url, scheme) {
			return url
		}
	}
	return "https://" + url
}

// Navigate loads a URL and waits for the DOM-ready signal. A navigation that
// times out after the page actually responded is reported as success.
func (s *Session) Navigate(ctx context.Context, url string) error {
	tabCtx, err := s.acquire(ctx)
	if err != nil {
		return err
	}

	url = NormalizeURL(url)
	navCtx, cancel := context.WithTimeout(tabCtx, s.cfg.NavigationTimeout)
	defer cancel()

	err = chromedp.Run(navCtx, chromedp.Navigate(url))
	if err != nil && errors.Is(err, context.DeadlineExceeded) {
		// Not all pages fire load within the budget. If the tab did move, the
		// navigation worked for our purposes.
		var current string
		checkCtx, checkCancel := context.WithTimeout(tabCtx, 2*time.Second)
		defer checkCancel()
		if locErr := chromedp.Run(checkCtx, chromedp.Location(&current)); locErr == nil && current != "" && current != "about:blank" {
			s.logger.Debug("Navigation timed out after response; treating as success",
				zap.String("url", url), zap.String("current", current))
			return nil
		}
		return fmt.Errorf("navigation timeout after %s: %w", s.cfg.NavigationTimeout, err)
	}
	if err != nil {
		return fmt.Errorf("navigation to %s failed: %w", url, err)
	}
	return nil
}

// ClickByIndex re-computes the interactive-element list and clicks element i.
// An out-of-range index is a reported error. A click that destroys the page's
// execution context counts as success.
func (s *Session) ClickByIndex(ctx context.Context, i int) error {
	tabCtx, err := s.acquire(ctx)
	if err != nil {
		return err
	}

	var match indexedMatch
	evalCtx, cancel := context.WithTimeout(tabCtx, s.cfg.ActionTimeout)
	defer cancel()

	err = chromedp.Run(evalCtx, chromedp.Evaluate(clickByIndexJS(i), &match))
	if err != nil {
		if isContextDestroyed(err) {
			s.logger.Debug("Click triggered navigation", zap.Int("index", i))
			s.settleAfterNavigation(tabCtx)
			return nil
		}
		return fmt.Errorf("click on element %d failed: %w", i, err)
	}
	if !match.OK {
		return fmt.Errorf("element index %d out of range (%d interactive elements visible)", i, match.Count)
	}

	s.settleAfterNavigation(tabCtx)
	return nil
}

// TypeByIndex focuses element i using the same index computation and sends
// keystrokes. It never submits the form. Context destruction while typing
// counts as success.
func (s *Session) TypeByIndex(ctx context.Context, i int, text string) error {
	tabCtx, err := s.acquire(ctx)
	if err != nil {
		return err
	}

	var match indexedMatch
	evalCtx, cancel := context.WithTimeout(tabCtx, s.cfg.ActionTimeout)
	defer cancel()

	err = chromedp.Run(evalCtx, chromedp.Evaluate(focusByIndexJS(i), &match))
	if err != nil {
		if isContextDestroyed(err) {
			return nil
		}
		return fmt.Errorf("focus on element %d failed: %w", i, err)
	}
	if !match.OK {
		return fmt.Errorf("element index %d out of range (%d interactive elements visible)", i, match.Count)
	}

	typeCtx, typeCancel := context.WithTimeout(tabCtx, s.cfg.ActionTimeout+time.Duration(len(text))*s.cfg.TypeDelay)
	defer typeCancel()

	tasks := make(chromedp.Tasks, 0, len(text)*2)
	for _, r := range text {
		tasks = append(tasks, chromedp.KeyEvent(string(r)))
		if s.cfg.TypeDelay > 0 {
			tasks = append(tasks, chromedp.Sleep(s.cfg.TypeDelay))
		}
	}
	if err := chromedp.Run(typeCtx, tasks); err != nil {
		if isContextDestroyed(err) {
			return nil
		}
		return fmt.Errorf("typing into element %d failed: %w", i, err)
	}
	return nil
}

// settleAfterNavigation gives a click-triggered navigation a moment to reach
// DOM-ready. Timeouts are expected when no navigation occurred.
func (s *Session) settleAfterNavigation(tabCtx context.Context) {
	waitCtx, cancel := context.WithTimeout(tabCtx, 2*time.Second)
	defer cancel()
	_ = chromedp.Run(waitCtx, chromedp.WaitReady("body", chromedp.ByQuery))
}

// State extracts the current page observation snapshot.
func (s *Session) State(ctx context.Context) (*PageState, error) {
	tabCtx, err := s.acquire(ctx)
	if err != nil {
		return nil, err
	}

	stateCtx, cancel := context.WithTimeout(tabCtx, s.cfg.ActionTimeout)
	defer cancel()

	var (
		url     string
		title   string
		focused string
		els     []ElementInfo
	)
	err = chromedp.Run(stateCtx,
		chromedp.Location(&url),
		chromedp.Title(&title),
		chromedp.Evaluate(focusedElementJS, &focused),
		chromedp.Evaluate(listElementsJS(), &els),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to read page state: %w", err)
	}

	return &PageState{
		URL:            url,
		Title:          title,
		FocusedElement: focused,
		Elements:       els,
	}, nil
}

// Screenshot captures the visible viewport as PNG.
func (s *Session) Screenshot(ctx context.Context) ([]byte, error) {
	tabCtx, err := s.acquire(ctx)
	if err != nil {
		return nil, err
	}
	shotCtx, cancel := context.WithTimeout(tabCtx, s.cfg.ActionTimeout)
	defer cancel()

	var buf []byte
	err = chromedp.Run(shotCtx, chromedp.ActionFunc(func(c context.Context) error {
		var capErr error
		buf, capErr = page.CaptureScreenshot().
			WithFormat(page.CaptureScreenshotFormatPng).
			WithFromSurface(true).
			Do(c)
		return capErr
	}))
	if err != nil {
		return nil, fmt.Errorf("failed to capture browser screenshot: %w", err)
	}
	return buf, nil
}

// Back navigates one step back in history. Recovery helper for the
// vision-escalation path.
func (s *Session) Back(ctx context.Context) error {
	tabCtx, err := s.acquire(ctx)
	if err != nil {
		return err
	}
	backCtx, cancel := context.WithTimeout(tabCtx, s.cfg.NavigationTimeout)
	defer cancel()
	return chromedp.Run(backCtx, chromedp.NavigateBack())
}

// RecoverFocus refocuses the main document body, useful after a dismissed
// modal leaves focus in limbo.
func (s *Session) RecoverFocus(ctx context.Context) error {
	tabCtx, err := s.acquire(ctx)
	if err != nil {
		return err
	}
	focusCtx, cancel := context.WithTimeout(tabCtx, s.cfg.ActionTimeout)
	defer cancel()
	var ignored bool
	return chromedp.Run(focusCtx, chromedp.Evaluate(`(document.body.focus(), true)`, &ignored))
}
