// internal/executor/desktop_test.go
package executor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap/zaptest"

	"github.com/deskpilot/deskpilot-cli/api/schemas"
)

// mockInjector mocks the raw input primitives.
type mockInjector struct {
	mock.Mock
}

func (m *mockInjector) Click(ctx context.Context, x, y int) error {
	return m.Called(ctx, x, y).Error(0)
}

func (m *mockInjector) TypeText(ctx context.Context, text string) error {
	return m.Called(ctx, text).Error(0)
}

func (m *mockInjector) PressKey(ctx context.Context, combo string) error {
	return m.Called(ctx, combo).Error(0)
}

func (m *mockInjector) Scroll(ctx context.Context, amount int) error {
	return m.Called(ctx, amount).Error(0)
}

func TestDesktopExecuteDispatch(t *testing.T) {
	injector := &mockInjector{}
	injector.On("Click", mock.Anything, 10, 20).Return(nil)
	injector.On("TypeText", mock.Anything, "hello").Return(nil)
	injector.On("PressKey", mock.Anything, "Ctrl+L").Return(nil)
	injector.On("Scroll", mock.Anything, -500).Return(nil)

	d := NewDesktop(injector, zaptest.NewLogger(t))
	ctx := context.Background()

	assert.True(t, d.Execute(ctx, schemas.NewClickAction(10, 20, "")).OK)
	assert.True(t, d.Execute(ctx, schemas.NewTypeAction("hello", "")).OK)
	assert.True(t, d.Execute(ctx, schemas.NewPressKeyAction("Ctrl+L", "")).OK)
	assert.True(t, d.Execute(ctx, schemas.NewScrollAction(-500, "")).OK)

	injector.AssertExpectations(t)
}

func TestDesktopExecuteInjectorError(t *testing.T) {
	injector := &mockInjector{}
	injector.On("Click", mock.Anything, 1, 1).Return(errors.New("no display"))

	d := NewDesktop(injector, zaptest.NewLogger(t))
	result := d.Execute(context.Background(), schemas.NewClickAction(1, 1, ""))

	assert.False(t, result.OK)
	assert.Contains(t, result.Error, "no display")
}

func TestDesktopExecuteWaitHonorsCancellation(t *testing.T) {
	d := NewDesktop(&mockInjector{}, zaptest.NewLogger(t))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	result := d.Execute(ctx, schemas.NewWaitAction(5, ""))
	assert.False(t, result.OK)
	assert.Less(t, time.Since(start), time.Second, "a cancelled wait must return immediately")
}

func TestDesktopExecuteTerminals(t *testing.T) {
	d := NewDesktop(&mockInjector{}, zaptest.NewLogger(t))
	ctx := context.Background()

	assert.True(t, d.Execute(ctx, schemas.NewDoneAction("", "")).OK)

	fail := d.Execute(ctx, schemas.NewFailAction("gave up", ""))
	assert.False(t, fail.OK)
	assert.Equal(t, "gave up", fail.Error)
}

func TestNormalizeKeyCombo(t *testing.T) {
	testCases := []struct {
		in   string
		want string
	}{
		{"ENTER", "Return"},
		{"ESC", "Escape"},
		{"Alt+F2", "alt+F2"},
		{"CTRL+L", "ctrl+l"},
		{"Ctrl+Shift+T", "ctrl+shift+t"},
		{"PAGEDOWN", "Next"},
		{"PAGE_UP", "Prior"},
		{"F5", "F5"},
		{"a", "a"},
	}

	for _, tc := range testCases {
		t.Run(tc.in, func(t *testing.T) {
			assert.Equal(t, tc.want, NormalizeKeyCombo(tc.in))
		})
	}
}
