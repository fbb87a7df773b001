// File: cmd/run.go
package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/deskpilot/deskpilot-cli/api/schemas"
	"github.com/deskpilot/deskpilot-cli/internal/agent"
	"github.com/deskpilot/deskpilot-cli/internal/browser"
	"github.com/deskpilot/deskpilot-cli/internal/config"
	"github.com/deskpilot/deskpilot-cli/internal/executor"
	"github.com/deskpilot/deskpilot-cli/internal/llmclient"
	"github.com/deskpilot/deskpilot-cli/internal/observability"
	"github.com/deskpilot/deskpilot-cli/internal/perception"
	"github.com/deskpilot/deskpilot-cli/internal/planner"
	"github.com/deskpilot/deskpilot-cli/internal/results"
	"github.com/deskpilot/deskpilot-cli/internal/vision"
)

// taskFile is the on-disk YAML shape accepted by --task-file.
type taskFile struct {
	Goal     string `yaml:"goal"`
	MaxSteps int    `yaml:"max_steps"`
}

// newRunCmd creates and configures the `run` command.
func newRunCmd() *cobra.Command {
	runCmd := &cobra.Command{
		Use:   "run [goal]",
		Short: "Runs the agent against a single natural-language goal",
		Args:  cobra.MaximumNArgs(1),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			bindings := map[string]string{
				"agent.max_steps": "max-steps",
				"llm.model":       "model",
				"browser.cdp_url": "cdp-url",
				"runs.dir":        "runs-dir",
			}
			for key, flag := range bindings {
				if err := viper.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
					return err
				}
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()

			var cfg config.Config
			if err := viper.Unmarshal(&cfg); err != nil {
				return fmt.Errorf("failed to unmarshal config with flag overrides: %w", err)
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}

			taskFilePath, _ := cmd.Flags().GetString("task-file")
			goal, maxSteps, err := resolveTaskInput(args, taskFilePath, cfg.Agent.MaxSteps)
			if err != nil {
				return err
			}

			task, err := schemas.NewTask(goal, maxSteps)
			if err != nil {
				return err
			}

			logger.Info("Starting task",
				zap.String("run_id", task.RunID),
				zap.String("goal", task.Goal),
				zap.Int("max_steps", task.MaxSteps))

			result, err := runTask(ctx, &cfg, task, logger)
			if err != nil {
				return err
			}

			printResult(result)
			if !result.Success {
				return fmt.Errorf("task failed: %s", result.Error)
			}
			return nil
		},
	}

	runCmd.Flags().Int("max-steps", 0, "maximum planner steps before the task is declared failed")
	runCmd.Flags().String("task-file", "", "YAML file with goal and max_steps (overrides the positional goal)")
	runCmd.Flags().String("model", "", "planner model identifier (overrides llm.model)")
	runCmd.Flags().String("cdp-url", "", "DevTools endpoint of the target browser (overrides browser.cdp_url)")
	runCmd.Flags().String("runs-dir", "", "directory for run artifacts (overrides runs.dir)")

	return runCmd
}

func init() {
	rootCmd.AddCommand(newRunCmd())
}

// resolveTaskInput picks the goal and budget from the positional argument or
// the task file. The file wins when both are given.
func resolveTaskInput(args []string, taskFilePath string, defaultMaxSteps int) (string, int, error) {
	goal := ""
	if len(args) > 0 {
		goal = args[0]
	}
	maxSteps := defaultMaxSteps

	if taskFilePath != "" {
		data, err := os.ReadFile(taskFilePath)
		if err != nil {
			return "", 0, fmt.Errorf("failed to read task file: %w", err)
		}
		var tf taskFile
		if err := yaml.Unmarshal(data, &tf); err != nil {
			return "", 0, fmt.Errorf("failed to parse task file: %w", err)
		}
		if tf.Goal != "" {
			goal = tf.Goal
		}
		if tf.MaxSteps > 0 {
			maxSteps = tf.MaxSteps
		}
	}

	if strings.TrimSpace(goal) == "" {
		return "", 0, fmt.Errorf("a goal is required (positional argument or --task-file)")
	}
	return goal, maxSteps, nil
}

// runTask wires the component graph and drives one task to completion.
func runTask(ctx context.Context, cfg *config.Config, task schemas.Task, logger *zap.Logger) (schemas.TaskResult, error) {
	// -- LLM clients --
	client, err := llmclient.NewClient(cfg.LLM, logger)
	if err != nil {
		return schemas.TaskResult{}, fmt.Errorf("failed to create LLM client: %w", err)
	}

	var analyzer agent.VisionAnalyzer
	if va, err := vision.NewGeminiAnalyzer(ctx, cfg.LLM, logger); err != nil {
		logger.Warn("Vision analyzer unavailable; escalation will degrade.", zap.Error(err))
	} else {
		analyzer = va
	}

	// -- Browser session (lazy; connection happens on first use) --
	session := browser.NewSession(ctx, cfg.Browser, logger)
	defer session.Close()

	// -- Executors --
	injector := executor.NewXdotoolInjector(cfg.Desktop, logger)
	desktop := executor.NewDesktop(injector, logger)
	browserExec := executor.NewBrowser(session, logger)
	dispatcher := executor.NewDispatcher(desktop, browserExec, session, logger)

	// -- Observation --
	windows := executor.NewWindowReader(cfg.Desktop, logger)
	if open := windows.ListWindows(ctx); len(open) > 0 {
		names := make([]string, 0, len(open))
		for _, w := range open {
			names = append(names, w.Title)
		}
		logger.Debug("Managed windows at startup", zap.Strings("windows", names))
	}
	states := executor.NewStateReader(windows, session, logger)
	ocr := perception.NewTesseractOCR(logger)

	// -- Verification and escalation --
	verifier := agent.NewVerifier(states, dispatcher, ocr, cfg.Agent, logger)
	escalator := agent.NewEscalator(analyzer, dispatcher, verifier, dispatcher, cfg.Agent, logger)
	escalator.SetRecoverer(session)

	// -- Run artifacts --
	runsDir, err := cfg.ResolveRunsDir()
	if err != nil {
		return schemas.TaskResult{}, err
	}
	recorder, err := results.NewRunLog(runsDir, task.RunID, task.Goal, logger)
	if err != nil {
		return schemas.TaskResult{}, fmt.Errorf("failed to create run log: %w", err)
	}

	a := agent.New(agent.Options{
		Config:    cfg.Agent,
		Planner:   planner.NewLLMPlanner(client, cfg.Agent, logger),
		Executor:  dispatcher,
		States:    states,
		Shots:     dispatcher,
		Verifier:  verifier,
		Escalator: escalator,
		Recorder:  recorder,
		Logger:    logger,
	})

	if cfg.Desktop.StartupDelay > 0 {
		logger.Info("Waiting for the desktop to settle.",
			zap.Duration("delay", cfg.Desktop.StartupDelay))
		select {
		case <-ctx.Done():
			return schemas.TaskResult{}, ctx.Err()
		case <-time.After(cfg.Desktop.StartupDelay):
		}
	}

	return a.Run(ctx, task), nil
}

func printResult(result schemas.TaskResult) {
	if result.Success {
		fmt.Printf("Task completed in %d step(s).\n", result.StepsTaken)
		if result.FinalAnswer != "" {
			fmt.Printf("Answer: %s\n", result.FinalAnswer)
		}
	} else {
		fmt.Printf("Task failed after %d step(s): %s\n", result.StepsTaken, result.Error)
	}
	fmt.Printf("Run ID: %s\n", result.RunID)
}
