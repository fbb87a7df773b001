// internal/config/config.go
package config

import (
	"fmt"
	"path/filepath"
	"time"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// Config holds the entire application configuration.
type Config struct {
	Logger  LoggerConfig  `mapstructure:"logger" yaml:"logger"`
	Agent   AgentConfig   `mapstructure:"agent" yaml:"agent"`
	LLM     LLMConfig     `mapstructure:"llm" yaml:"llm"`
	Browser BrowserConfig `mapstructure:"browser" yaml:"browser"`
	Desktop DesktopConfig `mapstructure:"desktop" yaml:"desktop"`
	Runs    RunsConfig    `mapstructure:"runs" yaml:"runs"`
}

// LoggerConfig controls the zap logger construction.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color names for each log level in console format.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// AgentConfig tunes the orchestration loop and its verification protocol.
type AgentConfig struct {
	MaxSteps int `mapstructure:"max_steps" yaml:"max_steps"`
	// HistoryWindow bounds the trailing history fed to the planner.
	HistoryWindow int `mapstructure:"history_window" yaml:"history_window"`
	// PollAttempts and PollInterval bound the post-sequence anchor wait.
	PollAttempts int           `mapstructure:"poll_attempts" yaml:"poll_attempts"`
	PollInterval time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
	// SequenceAttempts is the total tries of one decided sequence (initial + retry).
	SequenceAttempts int `mapstructure:"sequence_attempts" yaml:"sequence_attempts"`
	// StuckThreshold is the consecutive-failure count that injects a stuck hint.
	StuckThreshold int `mapstructure:"stuck_threshold" yaml:"stuck_threshold"`
	// VisionThreshold is the consecutive-failure count that forces escalation.
	VisionThreshold int `mapstructure:"vision_threshold" yaml:"vision_threshold"`
	// SearchEngineMarkers identify anchor surfaces that never count as complete.
	SearchEngineMarkers []string `mapstructure:"search_engine_markers" yaml:"search_engine_markers"`
}

// LLMProvider names a supported decision-engine backend.
type LLMProvider string

const (
	ProviderGemini     LLMProvider = "gemini"
	ProviderOpenRouter LLMProvider = "openrouter"
)

// LLMConfig configures the planner and vision models.
type LLMConfig struct {
	Provider    LLMProvider   `mapstructure:"provider" yaml:"provider"`
	Model       string        `mapstructure:"model" yaml:"model"`
	VisionModel string        `mapstructure:"vision_model" yaml:"vision_model"`
	APIKey      string        `mapstructure:"api_key" yaml:"api_key"`
	Endpoint    string        `mapstructure:"endpoint" yaml:"endpoint"`
	APITimeout  time.Duration `mapstructure:"api_timeout" yaml:"api_timeout"`
	Temperature float32       `mapstructure:"temperature" yaml:"temperature"`
	TopP        float32       `mapstructure:"top_p" yaml:"top_p"`
	TopK        int           `mapstructure:"top_k" yaml:"top_k"`
	MaxTokens   int           `mapstructure:"max_tokens" yaml:"max_tokens"`
	// RequestsPerMinute throttles outbound generation calls. Zero disables.
	RequestsPerMinute int `mapstructure:"requests_per_minute" yaml:"requests_per_minute"`
}

// BrowserConfig holds settings for the CDP connection to the managed browser.
type BrowserConfig struct {
	CDPURL            string        `mapstructure:"cdp_url" yaml:"cdp_url"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	ActionTimeout     time.Duration `mapstructure:"action_timeout" yaml:"action_timeout"`
	TypeDelay         time.Duration `mapstructure:"type_delay" yaml:"type_delay"`
}

// DesktopConfig holds settings for the X11 desktop surface.
type DesktopConfig struct {
	// StartupDelay waits for the desktop to settle before the first action.
	StartupDelay time.Duration `mapstructure:"startup_delay" yaml:"startup_delay"`
	// CommandTimeout bounds each injected xdotool/wmctrl subprocess.
	CommandTimeout time.Duration `mapstructure:"command_timeout" yaml:"command_timeout"`
}

// RunsConfig controls where per-run artifacts are written.
type RunsConfig struct {
	Dir string `mapstructure:"dir" yaml:"dir"`
}

// SetDefaults initializes default values on the given viper instance.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "deskpilot")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 50)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age", 14)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")
	v.SetDefault("logger.colors.fatal", "magenta")

	// -- Agent --
	v.SetDefault("agent.max_steps", 10)
	v.SetDefault("agent.history_window", 5)
	v.SetDefault("agent.poll_attempts", 5)
	v.SetDefault("agent.poll_interval", "1s")
	v.SetDefault("agent.sequence_attempts", 2)
	v.SetDefault("agent.stuck_threshold", 2)
	v.SetDefault("agent.vision_threshold", 3)
	v.SetDefault("agent.search_engine_markers", []string{"google", "bing", "duckduckgo", "search"})

	// -- LLM --
	v.SetDefault("llm.provider", "gemini")
	v.SetDefault("llm.model", "gemini-2.5-flash")
	v.SetDefault("llm.vision_model", "gemini-2.5-flash")
	v.SetDefault("llm.api_timeout", "60s")
	v.SetDefault("llm.temperature", 0.2)
	v.SetDefault("llm.top_p", 0.95)
	v.SetDefault("llm.top_k", 40)
	v.SetDefault("llm.max_tokens", 2048)
	v.SetDefault("llm.requests_per_minute", 30)

	// -- Browser --
	v.SetDefault("browser.cdp_url", "http://127.0.0.1:9222")
	v.SetDefault("browser.navigation_timeout", "30s")
	v.SetDefault("browser.action_timeout", "5s")
	v.SetDefault("browser.type_delay", "50ms")

	// -- Desktop --
	v.SetDefault("desktop.startup_delay", "0s")
	v.SetDefault("desktop.command_timeout", "2s")

	// -- Runs --
	v.SetDefault("runs.dir", "")
}

// NewDefaultConfig creates a configuration populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// Cannot happen with static defaults.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// ResolveRunsDir expands the configured runs directory, defaulting to
// ~/.deskpilot/runs when unset.
func (c *Config) ResolveRunsDir() (string, error) {
	if c.Runs.Dir != "" {
		return homedir.Expand(c.Runs.Dir)
	}
	home, err := homedir.Dir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve home directory: %w", err)
	}
	return filepath.Join(home, ".deskpilot", "runs"), nil
}

// Validate rejects configurations the loop cannot safely run with.
func (c *Config) Validate() error {
	if c.Agent.MaxSteps < 1 {
		return fmt.Errorf("agent.max_steps must be at least 1")
	}
	if c.Agent.PollAttempts < 1 {
		return fmt.Errorf("agent.poll_attempts must be at least 1")
	}
	if c.Agent.SequenceAttempts < 1 {
		return fmt.Errorf("agent.sequence_attempts must be at least 1")
	}
	if c.Agent.VisionThreshold < c.Agent.StuckThreshold {
		return fmt.Errorf("agent.vision_threshold (%d) must not be below agent.stuck_threshold (%d)",
			c.Agent.VisionThreshold, c.Agent.StuckThreshold)
	}
	switch c.LLM.Provider {
	case ProviderGemini, ProviderOpenRouter:
	default:
		return fmt.Errorf("unknown llm.provider: %q", c.LLM.Provider)
	}
	return nil
}
