package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

const (
	configName = "labloop"
	envPrefix  = "LABLOOP"
)

// Loader resolves configuration with precedence
// defaults < config file < env vars < explicit overrides.
type Loader struct {
	v          *viper.Viper
	searchDir  string
	configFile string
}

// NewLoader creates a loader that looks for labloop.{yaml,yml,json,toml}
// in searchDir.
func NewLoader(searchDir string) *Loader {
	return &Loader{
		v:         viper.New(),
		searchDir: searchDir,
	}
}

// SetConfigFile sets an explicit config file path. A missing explicit file
// is an error.
func (l *Loader) SetConfigFile(path string) {
	l.configFile = path
}

// Set overrides a key, taking precedence over file and environment.
func (l *Loader) Set(key string, value any) {
	l.v.Set(key, value)
}

// Load reads, decodes and validates the configuration.
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()
	l.setupViper(cfg)

	if err := l.loadConfigFile(); err != nil {
		return nil, fmt.Errorf("load config file: %w", err)
	}

	if err := l.v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// ConfigFileUsed returns the config file that was loaded, if any.
func (l *Loader) ConfigFileUsed() string {
	return l.v.ConfigFileUsed()
}

func (l *Loader) setupViper(cfg *Config) {
	v := l.v
	v.SetConfigName(configName)
	if l.searchDir != "" {
		v.AddConfigPath(l.searchDir)
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("interpreter", cfg.Interpreter)
	v.SetDefault("max_iterations", cfg.MaxIterations)
	v.SetDefault("max_runs", cfg.MaxRuns)
	v.SetDefault("max_diagnostic", cfg.MaxDiagnostic)
	v.SetDefault("run_timeout", cfg.RunTimeout)
	v.SetDefault("plot_timeout", cfg.PlotTimeout)
	v.SetDefault("state_dir", cfg.StateDir)
	v.SetDefault("log_level", cfg.LogLevel)
	v.SetDefault("notify", cfg.Notify)

	v.SetDefault("agent.kind", cfg.Agent.Kind)
	v.SetDefault("agent.command", cfg.Agent.Command)
	v.SetDefault("agent.args", cfg.Agent.Args)
	v.SetDefault("agent.timeout", cfg.Agent.Timeout)
	v.SetDefault("agent.retries", cfg.Agent.Retries)
	v.SetDefault("agent.mock_complete_after", cfg.Agent.MockCompleteAfter)
}

func (l *Loader) loadConfigFile() error {
	if l.configFile != "" {
		l.v.SetConfigFile(l.configFile)
	} else if l.searchDir == "" {
		return nil
	}

	if err := l.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return err
	}
	return nil
}
