// api/schemas/tasks.go
package schemas

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// AgentStatus tracks where a task is in its lifecycle. COMPLETED and FAILED
// are terminal; no transition leaves them.
type AgentStatus string

const (
	StatusIdle      AgentStatus = "idle"
	StatusRunning   AgentStatus = "running"
	StatusCompleted AgentStatus = "completed"
	StatusFailed    AgentStatus = "failed"
)

// Task is one invocation of the agent: a goal and a step budget.
type Task struct {
	Goal     string `json:"goal" yaml:"goal" mapstructure:"goal"`
	MaxSteps int    `json:"max_steps" yaml:"max_steps" mapstructure:"max_steps"`
	RunID    string `json:"run_id" yaml:"run_id" mapstructure:"run_id"`
}

// NewTask validates the goal and budget and assigns a run identifier.
func NewTask(goal string, maxSteps int) (Task, error) {
	if strings.TrimSpace(goal) == "" {
		return Task{}, fmt.Errorf("task goal cannot be empty")
	}
	if maxSteps < 1 {
		return Task{}, fmt.Errorf("max_steps must be at least 1, got %d", maxSteps)
	}
	return Task{
		Goal:     goal,
		MaxSteps: maxSteps,
		RunID:    time.Now().Format("20060102_150405") + "_" + uuid.New().String()[:8],
	}, nil
}

// TaskResult is the terminal report of a task run.
type TaskResult struct {
	Success     bool   `json:"success"`
	StepsTaken  int    `json:"steps_taken"`
	FinalAnswer string `json:"final_answer,omitempty"`
	Error       string `json:"error,omitempty"`
	RunID       string `json:"run_id,omitempty"`
}

// StepRecord is one executed action in a run's history. Immutable once appended.
type StepRecord struct {
	Step           int    `json:"step"`
	Action         Action `json:"action"`
	ResultOK       bool   `json:"result_ok"`
	ScreenshotPath string `json:"screenshot_path,omitempty"`
	Error          string `json:"error,omitempty"`
}
