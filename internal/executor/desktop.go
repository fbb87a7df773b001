// internal/executor/desktop.go
package executor

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/deskpilot/deskpilot-cli/api/schemas"
	"github.com/deskpilot/deskpilot-cli/internal/config"
)

// Injector abstracts the raw input-injection primitives so the desktop
// executor stays testable without an X server.
type Injector interface {
	Click(ctx context.Context, x, y int) error
	TypeText(ctx context.Context, text string) error
	PressKey(ctx context.Context, combo string) error
	Scroll(ctx context.Context, amount int) error
}

// XdotoolInjector drives the X11 display through xdotool subprocesses,
// matching the container deployment where the agent shares a display with the
// desktop it controls.
type XdotoolInjector struct {
	timeout time.Duration
	logger  *zap.Logger
}

var _ Injector = (*XdotoolInjector)(nil)

// NewXdotoolInjector creates the production injector.
func NewXdotoolInjector(cfg config.DesktopConfig, logger *zap.Logger) *XdotoolInjector {
	return &XdotoolInjector{
		timeout: cfg.CommandTimeout,
		logger:  logger.Named("xdotool"),
	}
}

func (x *XdotoolInjector) run(ctx context.Context, args ...string) error {
	cmdCtx, cancel := context.WithTimeout(ctx, x.timeout)
	defer cancel()
	out, err := exec.CommandContext(cmdCtx, "xdotool", args...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("xdotool %s: %w (%s)", args[0], err, strings.TrimSpace(string(out)))
	}
	return nil
}

func (x *XdotoolInjector) Click(ctx context.Context, xPos, yPos int) error {
	return x.run(ctx, "mousemove", strconv.Itoa(xPos), strconv.Itoa(yPos), "click", "1")
}

func (x *XdotoolInjector) TypeText(ctx context.Context, text string) error {
	return x.run(ctx, "type", "--delay", "50", "--", text)
}

func (x *XdotoolInjector) PressKey(ctx context.Context, combo string) error {
	return x.run(ctx, "key", NormalizeKeyCombo(combo))
}

func (x *XdotoolInjector) Scroll(ctx context.Context, amount int) error {
	// X11 reports wheel motion as button 4 (up) / 5 (down). Negative amounts
	// scroll down, mirroring the planner's page-down convention.
	button := "4"
	if amount < 0 {
		button = "5"
		amount = -amount
	}
	clicks := amount / 100
	if clicks < 1 {
		clicks = 1
	}
	return x.run(ctx, "click", "--repeat", strconv.Itoa(clicks), button)
}

// keySymbols maps planner key names to X key symbols.
var keySymbols = map[string]string{
	"ENTER":     "Return",
	"RETURN":    "Return",
	"ESC":       "Escape",
	"ESCAPE":    "Escape",
	"TAB":       "Tab",
	"SPACE":     "space",
	"BACKSPACE": "BackSpace",
	"DELETE":    "Delete",
	"UP":        "Up",
	"DOWN":      "Down",
	"LEFT":      "Left",
	"RIGHT":     "Right",
	"HOME":      "Home",
	"END":       "End",
	"PAGEUP":    "Prior",
	"PAGE_UP":   "Prior",
	"PAGEDOWN":  "Next",
	"PAGE_DOWN": "Next",
	"CTRL":      "ctrl",
	"CONTROL":   "ctrl",
	"ALT":       "alt",
	"SHIFT":     "shift",
	"SUPER":     "super",
	"WIN":       "super",
	"META":      "super",
}

// NormalizeKeyCombo converts planner combos like "Alt+F2" or "CTRL+L" into the
// xdotool key syntax ("alt+F2", "ctrl+l").
func NormalizeKeyCombo(combo string) string {
	parts := strings.Split(combo, "+")
	for i, part := range parts {
		part = strings.TrimSpace(part)
		upper := strings.ToUpper(part)
		if sym, ok := keySymbols[upper]; ok {
			parts[i] = sym
			continue
		}
		// Single letters are lowercased; named keys (F1..F12) pass through.
		if len(part) == 1 {
			parts[i] = strings.ToLower(part)
		} else {
			parts[i] = part
		}
	}
	return strings.Join(parts, "+")
}

// Desktop executes the desktop half of the action set. BROWSER_* kinds are not
// an error here; the dispatcher routes them before this executor sees them.
type Desktop struct {
	injector Injector
	logger   *zap.Logger
}

var _ Executor = (*Desktop)(nil)

// NewDesktop creates the desktop executor.
func NewDesktop(injector Injector, logger *zap.Logger) *Desktop {
	return &Desktop{
		injector: injector,
		logger:   logger.Named("desktop_executor"),
	}
}

// Execute dispatches one action to the injection primitives.
func (d *Desktop) Execute(ctx context.Context, action schemas.Action) schemas.ExecutionResult {
	var err error
	switch action.Type {
	case schemas.ActionClick:
		err = d.injector.Click(ctx, action.X, action.Y)
	case schemas.ActionTypeText:
		err = d.injector.TypeText(ctx, action.Text)
	case schemas.ActionScroll:
		err = d.injector.Scroll(ctx, action.Amount)
	case schemas.ActionPressKey:
		err = d.injector.PressKey(ctx, action.Key)
	case schemas.ActionWait:
		err = sleepCtx(ctx, time.Duration(action.Seconds*float64(time.Second)))
	case schemas.ActionDone:
		// Nothing to perform; the agent is signaling completion.
	case schemas.ActionFail:
		return schemas.Failure(action.Error)
	default:
		return schemas.Failure(fmt.Sprintf("desktop backend cannot execute action type %s", action.Type))
	}

	if err != nil {
		return schemas.Failure(err.Error())
	}
	return schemas.Success()
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// WindowInfo describes one X11 window.
type WindowInfo struct {
	ID       string
	Title    string
	AppName  string
	IsActive bool
}

// WindowReader queries window identity via xdotool and wmctrl.
type WindowReader struct {
	timeout time.Duration
	logger  *zap.Logger
}

// NewWindowReader creates a reader with the configured subprocess timeout.
func NewWindowReader(cfg config.DesktopConfig, logger *zap.Logger) *WindowReader {
	return &WindowReader{
		timeout: cfg.CommandTimeout,
		logger:  logger.Named("window_reader"),
	}
}

func (w *WindowReader) query(ctx context.Context, name string, args ...string) (string, error) {
	cmdCtx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()
	out, err := exec.CommandContext(cmdCtx, name, args...).Output()
	if err != nil {
		return "", fmt.Errorf("%s %s: %w", name, strings.Join(args, " "), err)
	}
	return strings.TrimSpace(string(out)), nil
}

// ActiveWindow returns the focused window's identity, or nil when no window
// manager answer is available.
func (w *WindowReader) ActiveWindow(ctx context.Context) *WindowInfo {
	id, err := w.query(ctx, "xdotool", "getactivewindow")
	if err != nil {
		w.logger.Debug("No active window reported", zap.Error(err))
		return nil
	}

	title, _ := w.query(ctx, "xdotool", "getwindowname", id)
	app, _ := w.query(ctx, "xdotool", "getwindowclassname", id)

	return &WindowInfo{
		ID:       id,
		Title:    title,
		AppName:  app,
		IsActive: true,
	}
}

// ListWindows enumerates all managed windows via wmctrl.
func (w *WindowReader) ListWindows(ctx context.Context) []WindowInfo {
	out, err := w.query(ctx, "wmctrl", "-l")
	if err != nil {
		w.logger.Debug("Window enumeration unavailable", zap.Error(err))
		return nil
	}

	active := w.ActiveWindow(ctx)
	activeID := ""
	if active != nil {
		activeID = active.ID
	}

	var windows []WindowInfo
	for _, line := range strings.Split(out, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		parts := strings.Fields(line)
		if len(parts) < 4 {
			continue
		}
		windows = append(windows, WindowInfo{
			ID:       parts[0],
			Title:    strings.Join(parts[3:], " "),
			IsActive: parts[0] == activeID,
		})
	}
	return windows
}
