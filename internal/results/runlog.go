// internal/results/runlog.go

// Package results persists per-run artifacts: numbered screenshots, a JSONL
// action log, and the final task metadata, all under one run directory.
package results

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	json "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/deskpilot/deskpilot-cli/api/schemas"
)

const (
	actionsLogName  = "actions.jsonl"
	metadataName    = "metadata.json"
	screenshotPerms = 0o644
	runDirPerms     = 0o755
)

// RunLog writes one run's artifacts. Safe for the single-writer agent loop;
// the mutex only guards against a late Finalize racing a step record.
type RunLog struct {
	dir    string
	runID  string
	goal   string
	start  time.Time
	logger *zap.Logger

	mu      sync.Mutex
	actions *os.File
	closed  bool
}

// NewRunLog creates the run directory and opens the action log.
func NewRunLog(baseDir, runID, goal string, logger *zap.Logger) (*RunLog, error) {
	dir := filepath.Join(baseDir, runID)
	if err := os.MkdirAll(dir, runDirPerms); err != nil {
		return nil, fmt.Errorf("failed to create run directory %s: %w", dir, err)
	}

	f, err := os.OpenFile(filepath.Join(dir, actionsLogName), os.O_CREATE|os.O_WRONLY|os.O_APPEND, screenshotPerms)
	if err != nil {
		return nil, fmt.Errorf("failed to open action log: %w", err)
	}

	return &RunLog{
		dir:     dir,
		runID:   runID,
		goal:    goal,
		start:   time.Now(),
		logger:  logger.Named("runlog"),
		actions: f,
	}, nil
}

// Dir returns the run's artifact directory.
func (r *RunLog) Dir() string {
	return r.dir
}

// SaveScreenshot writes the step's screenshot as step_NNN.png and returns its path.
func (r *RunLog) SaveScreenshot(step int, png []byte) (string, error) {
	path := filepath.Join(r.dir, fmt.Sprintf("step_%03d.png", step))
	if err := os.WriteFile(path, png, screenshotPerms); err != nil {
		return "", fmt.Errorf("failed to save screenshot: %w", err)
	}
	return path, nil
}

// RecordStep appends one JSON line to the action log.
func (r *RunLog) RecordStep(rec schemas.StepRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return fmt.Errorf("run log already finalized")
	}

	line, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal step record: %w", err)
	}
	if _, err := r.actions.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("failed to append step record: %w", err)
	}
	return nil
}

// runMetadata is the terminal summary written next to the action log.
type runMetadata struct {
	RunID       string             `json:"run_id"`
	Goal        string             `json:"goal"`
	StartedAt   time.Time          `json:"started_at"`
	FinishedAt  time.Time          `json:"finished_at"`
	DurationSec float64            `json:"duration_sec"`
	Result      schemas.TaskResult `json:"result"`
}

// Finalize writes metadata.json and closes the action log. Idempotent.
func (r *RunLog) Finalize(result schemas.TaskResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true

	if err := r.actions.Close(); err != nil {
		r.logger.Warn("Failed to close action log.", zap.Error(err))
	}

	now := time.Now()
	meta := runMetadata{
		RunID:       r.runID,
		Goal:        r.goal,
		StartedAt:   r.start,
		FinishedAt:  now,
		DurationSec: now.Sub(r.start).Seconds(),
		Result:      result,
	}

	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal run metadata: %w", err)
	}
	if err := os.WriteFile(filepath.Join(r.dir, metadataName), data, screenshotPerms); err != nil {
		return fmt.Errorf("failed to write run metadata: %w", err)
	}

	r.logger.Info("Run artifacts finalized.",
		zap.String("run_id", r.runID),
		zap.String("dir", r.dir))
	return nil
}
