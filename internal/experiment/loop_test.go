package experiment

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"labloop/internal/agent"
	"labloop/internal/agent/agenttest"
	"labloop/internal/runner"
)

func TestLoop_SuccessAdvancesRun(t *testing.T) {
	ws := newTestWorkspace(t, succeedScript, okPlot)
	ag := agenttest.NewScripted(
		agenttest.Response{Text: "implemented run 1"},
		agenttest.Response{Text: agent.CompletionMarker},
	)
	audit := &memoryAudit{}
	loop := newTestLoop(ws, ag)
	loop.Audit = audit

	res, err := loop.Run(context.Background())
	require.NoError(t, err)

	assert.True(t, res.Completed)
	assert.Equal(t, ReasonAgentCompleted, res.Reason)
	assert.Equal(t, 2, res.State.Run)
	assert.Equal(t, 0, res.State.Iteration)

	prompts := ag.Prompts()
	require.Len(t, prompts, 2)
	assert.Contains(t, prompts[1], "Run 1 completed. Here are the results:")
	assert.Contains(t, prompts[1], "final_train_loss_mean")
	assert.Contains(t, prompts[1], "0.1")
	assert.NotContains(t, prompts[1], "stderrs")
	assert.Contains(t, prompts[1], "--out_dir=run_2")

	require.Len(t, res.Runs, 1)
	rec := res.Runs[0]
	assert.Equal(t, runner.StatusSucceeded, rec.Status)
	assert.Equal(t, "run_1", rec.Folder)
	assert.Equal(t, "run_1.py", rec.Snapshot)
	assert.Contains(t, rec.ResultsJSON, "final_train_loss_mean")
	assert.Contains(t, rec.Diff, "+++ run_1.py")

	assert.True(t, exists(ws.RunDir(1)))
	assert.True(t, exists(ws.SnapshotPath(1)))
	assert.Equal(t, []string{"run_dispatched", "run_finished"}, audit.Types())
}

func TestLoop_FailureRetriesSameRun(t *testing.T) {
	ws := newTestWorkspace(t, failScript, okPlot)
	ag := agenttest.NewScripted(
		agenttest.Response{Text: "try"},
		agenttest.Response{Text: agent.CompletionMarker},
	)

	res, err := newTestLoop(ws, ag).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, res.State.Run)
	assert.Equal(t, 1, res.State.Iteration)
	assert.Contains(t, ag.Prompts()[1], "Run failed with the following error boom")
	assert.False(t, exists(ws.RunDir(1)), "failed run folder is removed")

	require.Len(t, res.Runs, 1)
	assert.Equal(t, runner.StatusFailed, res.Runs[0].Status)
	assert.Equal(t, 1, res.Runs[0].ReturnCode)
}

func TestLoop_TimeoutRetries(t *testing.T) {
	ws := newTestWorkspace(t, sleepScript, okPlot)
	ag := agenttest.NewScripted(
		agenttest.Response{Text: "try"},
		agenttest.Response{Text: agent.CompletionMarker},
	)
	loop := newTestLoop(ws, ag)
	loop.RunTimeout = 200 * time.Millisecond

	res, err := loop.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "Run timed out after 0.2 seconds", ag.Prompts()[1])
	assert.False(t, exists(ws.RunDir(1)))
	require.Len(t, res.Runs, 1)
	assert.Equal(t, runner.StatusTimedOut, res.Runs[0].Status)
	assert.Equal(t, 1, res.Runs[0].ReturnCode)
	assert.Equal(t, 1, res.State.Iteration)
}

func TestLoop_CompletionMarkerFirstCall(t *testing.T) {
	ws := newTestWorkspace(t, succeedScript, okPlot)
	ag := agenttest.NewScripted(agenttest.Response{Text: "nothing to do. " + agent.CompletionMarker})

	res, err := newTestLoop(ws, ag).Run(context.Background())
	require.NoError(t, err)

	assert.True(t, res.Completed)
	assert.Equal(t, ReasonAgentCompleted, res.Reason)
	assert.Equal(t, 1, res.State.Run)
	assert.Empty(t, res.Runs)
	assert.Equal(t, 1, ag.Calls())
	assert.False(t, exists(ws.SnapshotPath(1)), "no process dispatched")
	assert.False(t, exists(ws.RunDir(1)))
}

func TestLoop_IterationsExhausted(t *testing.T) {
	ws := newTestWorkspace(t, failScript, okPlot)
	ag := agenttest.NewScripted(agenttest.Repeat(agenttest.Response{Text: "try again"}, 4)...)

	res, err := newTestLoop(ws, ag).Run(context.Background())
	require.NoError(t, err)

	assert.False(t, res.Completed)
	assert.Equal(t, ReasonIterationsExhausted, res.Reason)
	assert.Equal(t, 1, res.State.Run)
	assert.Equal(t, 4, res.State.Iteration)
	assert.Equal(t, 4, ag.Calls())
	assert.Len(t, res.Runs, 4)
}

func TestLoop_RunCeiling(t *testing.T) {
	ws := newTestWorkspace(t, succeedScript, okPlot)
	ag := agenttest.NewScripted(agenttest.Repeat(agenttest.Response{Text: "next"}, 2)...)
	loop := newTestLoop(ws, ag)
	loop.MaxRuns = 2

	res, err := loop.Run(context.Background())
	require.NoError(t, err)

	assert.True(t, res.Completed)
	assert.Equal(t, ReasonRunCeiling, res.Reason)
	assert.Equal(t, 3, res.State.Run)
	assert.Equal(t, 2, ag.Calls())
	assert.True(t, exists(ws.RunDir(1)))
	assert.True(t, exists(ws.RunDir(2)))
	assert.False(t, exists(ws.RunDir(3)))
}

func TestLoop_MissingArtifactIsRetried(t *testing.T) {
	ws := newTestWorkspace(t, noArtifactScript, okPlot)
	ag := agenttest.NewScripted(
		agenttest.Response{Text: "try"},
		agenttest.Response{Text: agent.CompletionMarker},
	)

	res, err := newTestLoop(ws, ag).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, res.State.Run)
	assert.Equal(t, 1, res.State.Iteration)
	assert.False(t, exists(ws.RunDir(1)), "folder without a usable artifact is removed")

	prompt := ag.Prompts()[1]
	assert.Contains(t, prompt, "Run failed with the following error")
	assert.Contains(t, prompt, "results artifact missing")

	require.Len(t, res.Runs, 1)
	assert.Equal(t, runner.StatusFailed, res.Runs[0].Status)
	assert.Equal(t, 0, res.Runs[0].ReturnCode)
}

func TestLoop_IterationResetsAfterSuccess(t *testing.T) {
	ws := newTestWorkspace(t, failScript, okPlot)
	ag := agenttest.NewScripted(
		agenttest.Response{Text: "first attempt"},
		writeExperiment(ws, "fixed", succeedScript+"# fixed\n"),
		writeExperiment(ws, "broke it", failScript),
		agenttest.Response{Text: agent.CompletionMarker},
	)

	res, err := newTestLoop(ws, ag).Run(context.Background())
	require.NoError(t, err)

	require.Len(t, res.Runs, 3)
	var runs, iterations []int
	for _, rec := range res.Runs {
		runs = append(runs, rec.Run)
		iterations = append(iterations, rec.Iteration)
	}
	assert.Equal(t, []int{1, 1, 2}, runs)
	assert.Equal(t, []int{0, 1, 0}, iterations)
	assert.Equal(t, 2, res.State.Run)
	assert.Equal(t, 1, res.State.Iteration)

	assert.Contains(t, res.Runs[1].Diff, "+# fixed")
	assert.Contains(t, res.Runs[1].Diff, "--- run_1.py")
	assert.Contains(t, res.Runs[2].Diff, "--- run_1.py")
	assert.Contains(t, res.Runs[2].Diff, "+++ run_2.py")

	assert.True(t, exists(ws.RunDir(1)))
	assert.False(t, exists(ws.RunDir(2)))
	assert.True(t, exists(ws.SnapshotPath(2)))
}

func TestLoop_AgentErrorIsFatal(t *testing.T) {
	ws := newTestWorkspace(t, succeedScript, okPlot)
	boom := errors.New("model unavailable")
	ag := agenttest.NewScripted(agenttest.Response{Err: boom})

	_, err := newTestLoop(ws, ag).Run(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, boom))
	assert.False(t, exists(ws.SnapshotPath(1)))
}

func TestLoop_CancelledDuringRun(t *testing.T) {
	ws := newTestWorkspace(t, sleepScript, okPlot)
	ctx, cancel := context.WithCancel(context.Background())
	ag := agenttest.NewScripted(agenttest.Response{
		Text: "go",
		Do: func(string) error {
			time.AfterFunc(300*time.Millisecond, cancel)
			return nil
		},
	})
	recorder := &memoryRecorder{}
	loop := newTestLoop(ws, ag)
	loop.Recorder = recorder

	res, err := loop.Run(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.False(t, exists(ws.RunDir(1)), "interrupted run leaves no output folder")

	require.Len(t, res.Runs, 1)
	assert.Equal(t, runner.StatusFailed, res.Runs[0].Status)
	assert.Contains(t, res.Runs[0].Diagnostic, "cancelled")
	require.Len(t, recorder.Runs(), 1)
	assert.Equal(t, runner.StatusFailed, recorder.Runs()[0].Status)
}

func TestLoop_Validate(t *testing.T) {
	_, err := (&Loop{}).Run(context.Background())
	require.Error(t, err)

	ws := newTestWorkspace(t, succeedScript, okPlot)
	loop := newTestLoop(ws, agenttest.NewScripted())
	loop.MaxIterations = 0
	_, err = loop.Run(context.Background())
	require.Error(t, err)
}
