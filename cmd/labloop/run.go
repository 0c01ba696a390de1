package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"labloop/internal/agent"
	"labloop/internal/audit"
	"labloop/internal/config"
	"labloop/internal/experiment"
	"labloop/internal/idea"
	"labloop/internal/notify"
	"labloop/internal/runner"
	"labloop/internal/runstore"
	"labloop/internal/workspace"
)

const agentRetryBackoff = 5 * time.Second

func newRunCmd(root *rootOptions) *cobra.Command {
	var (
		ideaPath      string
		agentKind     string
		interpreter   string
		maxRuns       int
		maxIterations int
		notifyDone    bool
	)
	cmd := &cobra.Command{
		Use:   "run <experiment-dir>",
		Short: "Run the experiment loop, plotting and write-up",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			overrides := map[string]any{}
			flags := cmd.Flags()
			if flags.Changed("agent") {
				overrides["agent.kind"] = agentKind
			}
			if flags.Changed("interpreter") {
				overrides["interpreter"] = interpreter
			}
			if flags.Changed("max-runs") {
				overrides["max_runs"] = maxRuns
			}
			if flags.Changed("max-iterations") {
				overrides["max_iterations"] = maxIterations
			}
			if flags.Changed("notify") {
				overrides["notify"] = notifyDone
			}

			e, err := root.loadEnv(args[0], cmd.ErrOrStderr(), overrides)
			if err != nil {
				return err
			}
			if err := e.workspace.EnsureDirs(); err != nil {
				return err
			}
			if ideaPath == "" {
				return fmt.Errorf("--idea is required")
			}
			i, err := idea.Load(ideaPath)
			if err != nil {
				return err
			}

			store, err := runstore.Open(e.workspace.StateDBPath)
			if err != nil {
				return err
			}
			defer store.Close()

			r := runner.New(e.logger, e.cfg.MaxDiagnostic)
			r.Stdout = cmd.OutOrStdout()
			r.Diagnostics = cmd.ErrOrStderr()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			sessionID := uuid.NewString()
			ok, err := experiment.Perform(ctx, experiment.Options{
				Workspace:     e.workspace,
				Idea:          i,
				Agent:         buildAgent(e.cfg, e.workspace, e.logger),
				Runner:        r,
				Interpreter:   e.cfg.Interpreter,
				MaxIterations: e.cfg.MaxIterations,
				MaxRuns:       e.cfg.MaxRuns,
				RunTimeout:    e.cfg.RunTimeout,
				PlotTimeout:   e.cfg.PlotTimeout,
				SessionID:     sessionID,
				Ledger:        store,
				Audit:         audit.NewLogger(e.workspace.AuditDBPath),
				Notifier:      &notify.Notifier{Enabled: e.cfg.Notify},
				Logger:        e.logger,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "session %s\n", sessionID)
			if !ok {
				return errIncomplete
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&ideaPath, "idea", "", "idea file (YAML or JSON) with Title and Experiment")
	cmd.Flags().StringVar(&agentKind, "agent", "", "agent kind (codex, command, mock)")
	cmd.Flags().StringVar(&interpreter, "interpreter", "", "interpreter for experiment.py and plot.py")
	cmd.Flags().IntVar(&maxRuns, "max-runs", 0, "maximum number of successful runs")
	cmd.Flags().IntVar(&maxIterations, "max-iterations", 0, "attempts allowed per run")
	cmd.Flags().BoolVar(&notifyDone, "notify", false, "send a desktop notification when the session ends")
	return cmd
}

func buildAgent(cfg *config.Config, ws *workspace.Workspace, logger *slog.Logger) agent.Agent {
	var base agent.Agent
	switch cfg.Agent.Kind {
	case config.AgentMock:
		base = &agent.MockAgent{
			CompleteAfter:  cfg.Agent.MockCompleteAfter,
			TranscriptPath: ws.TranscriptPath,
		}
	case config.AgentCommand:
		base = &agent.CommandAgent{
			Command:        cfg.Agent.Command,
			Args:           cfg.Agent.Args,
			WorkDir:        ws.Root,
			Timeout:        cfg.Agent.Timeout,
			TranscriptPath: ws.TranscriptPath,
		}
	default:
		base = agent.NewCodexAgent(cfg.Agent.Command, cfg.Agent.Args, ws.Root, ws.StateDir, ws.TranscriptPath, cfg.Agent.Timeout)
	}
	if cfg.Agent.Retries == 0 {
		return base
	}
	return agent.WithRetry(base, agent.RetryConfig{
		MaxAttempts: cfg.Agent.Retries + 1,
		Backoff:     agentRetryBackoff,
		Logger:      logger,
	})
}
