package experiment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"labloop/internal/agent"
	"labloop/internal/logging"
	"labloop/internal/runner"
	"labloop/internal/workspace"
)

// PlotResult reports whether plot.py ever exited 0.
type PlotResult struct {
	Converged  bool
	Iterations int
}

// Plotter asks the agent to fix plot.py until it runs or attempts run out.
type Plotter struct {
	Agent         agent.Agent
	Runner        *runner.Runner
	Workspace     *workspace.Workspace
	Interpreter   string
	Timeout       time.Duration
	MaxIterations int
	Logger        *slog.Logger
}

// Run drives the plotting phase. Failing to converge is not an error.
func (p *Plotter) Run(ctx context.Context) (PlotResult, error) {
	if p.Agent == nil || p.Runner == nil || p.Workspace == nil {
		return PlotResult{}, errors.New("plotter is not configured")
	}
	logger := logging.OrDiscard(p.Logger)

	var res PlotResult
	prompt := PlotPrompt(p.Interpreter)
	for res.Iterations < p.MaxIterations {
		if _, err := p.Agent.Run(ctx, prompt); err != nil {
			return res, fmt.Errorf("agent %s while plotting: %w", p.Agent.Name(), err)
		}
		outcome, err := p.Runner.Execute(ctx, runner.Command{
			WorkDir:     p.Workspace.Root,
			Interpreter: p.Interpreter,
			Script:      workspace.PlotScript,
			Timeout:     p.Timeout,
		})
		if err != nil {
			return res, fmt.Errorf("plot: %w", err)
		}
		res.Iterations++
		if outcome.Succeeded() {
			res.Converged = true
			return res, nil
		}
		prompt = PlotFailurePrompt(outcome)
	}

	logger.Warn("plotting did not succeed", slog.Int("iterations", res.Iterations))
	return res, nil
}
