package experiment

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"labloop/internal/agent/agenttest"
	"labloop/internal/workspace"
)

func newTestPlotter(ws *workspace.Workspace, ag *agenttest.Scripted) *Plotter {
	return &Plotter{
		Agent:         ag,
		Runner:        testRunner(),
		Workspace:     ws,
		Interpreter:   "sh",
		Timeout:       10 * time.Second,
		MaxIterations: 4,
	}
}

func TestPlotter_RetriesUntilPlotRuns(t *testing.T) {
	ws := newTestWorkspace(t, succeedScript, failPlot)
	ag := agenttest.NewScripted(
		agenttest.Response{Text: "labels filled"},
		writePlot(ws, okPlot),
	)

	res, err := newTestPlotter(ws, ag).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, PlotResult{Converged: true, Iterations: 2}, res)
	prompts := ag.Prompts()
	require.Len(t, prompts, 2)
	assert.Equal(t, PlotPrompt("sh"), prompts[0])
	assert.Equal(t, "Plotting failed with the following error no labels\n", prompts[1])
}

func TestPlotter_NonConvergenceIsNotAnError(t *testing.T) {
	ws := newTestWorkspace(t, succeedScript, failPlot)
	ag := agenttest.NewScripted(agenttest.Repeat(agenttest.Response{Text: "try"}, 2)...)
	plotter := newTestPlotter(ws, ag)
	plotter.MaxIterations = 2

	res, err := plotter.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, PlotResult{Converged: false, Iterations: 2}, res)
	assert.Equal(t, 2, ag.Calls())
}

func TestPlotter_Timeout(t *testing.T) {
	ws := newTestWorkspace(t, succeedScript, "sleep 5\n")
	ag := agenttest.NewScripted(
		agenttest.Response{Text: "try"},
		writePlot(ws, okPlot),
	)
	plotter := newTestPlotter(ws, ag)
	plotter.Timeout = 200 * time.Millisecond

	res, err := plotter.Run(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Converged)
	assert.Equal(t, "Plotting timed out after 0.2 seconds", ag.Prompts()[1])
}

func TestPlotter_AgentErrorIsFatal(t *testing.T) {
	ws := newTestWorkspace(t, succeedScript, okPlot)
	boom := errors.New("offline")
	ag := agenttest.NewScripted(agenttest.Response{Err: boom})

	_, err := newTestPlotter(ws, ag).Run(context.Background())
	assert.True(t, errors.Is(err, boom))
}
