package config

import (
	"fmt"
	"strings"
	"time"
)

// Agent kinds understood by the CLI.
const (
	AgentCodex   = "codex"
	AgentCommand = "command"
	AgentMock    = "mock"
)

// Config holds every tunable of an experiment session.
type Config struct {
	Interpreter   string        `mapstructure:"interpreter"`
	MaxIterations int           `mapstructure:"max_iterations"`
	MaxRuns       int           `mapstructure:"max_runs"`
	MaxDiagnostic int           `mapstructure:"max_diagnostic"`
	RunTimeout    time.Duration `mapstructure:"run_timeout"`
	PlotTimeout   time.Duration `mapstructure:"plot_timeout"`
	StateDir      string        `mapstructure:"state_dir"`
	LogLevel      string        `mapstructure:"log_level"`
	Notify        bool          `mapstructure:"notify"`
	Agent         AgentConfig   `mapstructure:"agent"`
}

// AgentConfig selects and tunes the code-modification agent.
type AgentConfig struct {
	Kind    string        `mapstructure:"kind"`
	Command string        `mapstructure:"command"`
	Args    []string      `mapstructure:"args"`
	Timeout time.Duration `mapstructure:"timeout"`
	Retries int           `mapstructure:"retries"`

	// MockCompleteAfter makes the mock agent answer with the completion
	// marker on that call (1-based). Zero never completes.
	MockCompleteAfter int `mapstructure:"mock_complete_after"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		Interpreter:   "python",
		MaxIterations: 4,
		MaxRuns:       5,
		MaxDiagnostic: 1500,
		RunTimeout:    7200 * time.Second,
		PlotTimeout:   600 * time.Second,
		StateDir:      ".labloop",
		LogLevel:      "info",
		Agent: AgentConfig{
			Kind:    AgentCodex,
			Command: "codex",
			Timeout: 30 * time.Minute,
			Retries: 2,
		},
	}
}

// Validate checks ceilings, timeouts and the agent selection.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Interpreter) == "" {
		return fmt.Errorf("interpreter is required")
	}
	if c.MaxIterations < 1 {
		return fmt.Errorf("max_iterations must be at least 1")
	}
	if c.MaxRuns < 1 {
		return fmt.Errorf("max_runs must be at least 1")
	}
	if c.MaxDiagnostic < 1 {
		return fmt.Errorf("max_diagnostic must be at least 1")
	}
	if c.RunTimeout <= 0 {
		return fmt.Errorf("run_timeout must be > 0")
	}
	if c.PlotTimeout <= 0 {
		return fmt.Errorf("plot_timeout must be > 0")
	}
	if strings.TrimSpace(c.StateDir) == "" {
		return fmt.Errorf("state_dir is required")
	}

	switch strings.ToLower(strings.TrimSpace(c.LogLevel)) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be one of debug, info, warn, error")
	}

	switch c.Agent.Kind {
	case AgentCodex, AgentCommand:
		if strings.TrimSpace(c.Agent.Command) == "" {
			return fmt.Errorf("agent.command is required for agent.kind %q", c.Agent.Kind)
		}
	case AgentMock:
	default:
		return fmt.Errorf("agent.kind must be one of %s, %s, %s", AgentCodex, AgentCommand, AgentMock)
	}
	if c.Agent.Timeout < 0 {
		return fmt.Errorf("agent.timeout must be zero or greater")
	}
	if c.Agent.Retries < 0 {
		return fmt.Errorf("agent.retries must be zero or greater")
	}
	if c.Agent.MockCompleteAfter < 0 {
		return fmt.Errorf("agent.mock_complete_after must be zero or greater")
	}
	return nil
}
