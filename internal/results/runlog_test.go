// internal/results/runlog_test.go
package results

import (
	"bufio"
	"os"
	"path/filepath"
	"testing"

	json "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/deskpilot/deskpilot-cli/api/schemas"
)

func newTestRunLog(t *testing.T) *RunLog {
	t.Helper()
	rl, err := NewRunLog(t.TempDir(), "20260829_120000_abcd1234", "open a text editor", zaptest.NewLogger(t))
	require.NoError(t, err)
	return rl
}

func TestRunLogSaveScreenshot(t *testing.T) {
	rl := newTestRunLog(t)
	defer rl.Finalize(schemas.TaskResult{})

	path, err := rl.SaveScreenshot(3, []byte{0x89, 0x50, 0x4e, 0x47})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(rl.Dir(), "step_003.png"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x89, 0x50, 0x4e, 0x47}, data)
}

func TestRunLogRecordsOneJSONLinePerAction(t *testing.T) {
	rl := newTestRunLog(t)

	require.NoError(t, rl.RecordStep(schemas.StepRecord{
		Step:           1,
		Action:         schemas.NewPressKeyAction("Alt+F2", "open the launcher"),
		ResultOK:       true,
		ScreenshotPath: "step_001.png",
	}))
	require.NoError(t, rl.RecordStep(schemas.StepRecord{
		Step:     1,
		Action:   schemas.NewBrowserClickAction(99, "press the button"),
		ResultOK: false,
		Error:    "element index 99 out of range",
	}))
	require.NoError(t, rl.Finalize(schemas.TaskResult{Success: false, Error: "max steps reached"}))

	f, err := os.Open(filepath.Join(rl.Dir(), "actions.jsonl"))
	require.NoError(t, err)
	defer f.Close()

	var records []schemas.StepRecord
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var rec schemas.StepRecord
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &rec))
		records = append(records, rec)
	}
	require.NoError(t, scanner.Err())

	require.Len(t, records, 2)
	assert.Equal(t, schemas.ActionPressKey, records[0].Action.Type)
	assert.True(t, records[0].ResultOK)
	assert.Equal(t, "step_001.png", records[0].ScreenshotPath)
	assert.False(t, records[1].ResultOK)
	assert.Contains(t, records[1].Error, "out of range")
}

func TestRunLogFinalizeWritesMetadata(t *testing.T) {
	rl := newTestRunLog(t)

	result := schemas.TaskResult{
		Success:     true,
		StepsTaken:  4,
		FinalAnswer: "the document is saved",
		RunID:       "20260829_120000_abcd1234",
	}
	require.NoError(t, rl.Finalize(result))

	data, err := os.ReadFile(filepath.Join(rl.Dir(), "metadata.json"))
	require.NoError(t, err)

	var meta runMetadata
	require.NoError(t, json.Unmarshal(data, &meta))
	assert.Equal(t, "20260829_120000_abcd1234", meta.RunID)
	assert.Equal(t, "open a text editor", meta.Goal)
	assert.Equal(t, result, meta.Result)
	assert.False(t, meta.FinishedAt.IsZero())
}

func TestRunLogFinalizeIsIdempotent(t *testing.T) {
	rl := newTestRunLog(t)

	require.NoError(t, rl.Finalize(schemas.TaskResult{Success: true}))
	require.NoError(t, rl.Finalize(schemas.TaskResult{Success: false}))

	err := rl.RecordStep(schemas.StepRecord{Step: 1})
	require.Error(t, err, "recording after finalize must be rejected")
}
