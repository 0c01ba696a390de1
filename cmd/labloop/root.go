package main

import (
	"errors"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"labloop/internal/config"
	"labloop/internal/logging"
	"labloop/internal/workspace"
)

const appName = "labloop"

// errIncomplete is returned when a session stops without finishing its
// experiments. It is reported through the exit code only.
var errIncomplete = errors.New("experiments did not finish")

type rootOptions struct {
	configFile string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   appName,
		Short: "Drive an agent through iterative experiment runs",
		Long: `labloop hands an experiment folder to a code-modification agent.

Each cycle the agent edits experiment.py, labloop runs it with
--out_dir=run_N and reports the results or the error back. After the
experiments it asks the agent for plots (plot.py) and notes (notes.txt).`,
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	cmd.PersistentFlags().StringVar(&opts.configFile, "config", "", "config file (default is <experiment-dir>/"+workspace.ConfigFile+")")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "override logging level (debug, info, warn, error)")

	cmd.AddCommand(
		newRunCmd(opts),
		newRunsCmd(opts),
		newDiffCmd(opts),
		newEventsCmd(opts),
	)
	return cmd
}

// env is what every subcommand needs about an experiment folder.
type env struct {
	cfg       *config.Config
	workspace *workspace.Workspace
	logger    *slog.Logger
}

// loadEnv resolves the folder and loads its configuration. overrides are
// applied on top of file and environment values.
func (o *rootOptions) loadEnv(dir string, logOutput io.Writer, overrides map[string]any) (*env, error) {
	root, err := workspace.ResolveRoot(dir)
	if err != nil {
		return nil, err
	}

	loader := config.NewLoader(root)
	if o.configFile != "" {
		loader.SetConfigFile(o.configFile)
	}
	if o.logLevel != "" {
		loader.Set("log_level", o.logLevel)
	}
	for key, value := range overrides {
		loader.Set(key, value)
	}
	cfg, err := loader.Load()
	if err != nil {
		return nil, err
	}

	ws, err := workspace.Resolve(root, cfg.StateDir)
	if err != nil {
		return nil, err
	}
	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	logger := logging.New(logOutput, level)
	if used := loader.ConfigFileUsed(); used != "" {
		logger.Debug("loaded config file", slog.String("path", used))
	}
	return &env{cfg: cfg, workspace: ws, logger: logger}, nil
}
