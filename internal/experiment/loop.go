// Package experiment drives an agent through numbered experiment runs,
// then plotting and a notes write-up.
package experiment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"labloop/internal/agent"
	"labloop/internal/idea"
	"labloop/internal/logging"
	"labloop/internal/results"
	"labloop/internal/runner"
	"labloop/internal/runstore"
	"labloop/internal/workspace"
)

const auditActor = "labloop"

// RunRecorder persists dispatched runs.
type RunRecorder interface {
	RecordRun(rec *runstore.RunRecord) error
}

// EventLogger appends audit events.
type EventLogger interface {
	LogEvent(actor string, eventType string, payload any) error
}

// Result is how the experiment loop ended.
type Result struct {
	Completed bool
	Reason    StopReason
	State     LoopState
	Runs      []runstore.RunRecord
}

// Loop proposes, runs and classifies experiments until the agent declares
// completion, the run ceiling is passed, or one run fails too often.
type Loop struct {
	Agent     agent.Agent
	Runner    *runner.Runner
	Workspace *workspace.Workspace

	Idea        idea.Idea
	Baseline    results.Summary
	Interpreter string
	RunTimeout  time.Duration

	MaxIterations int
	MaxRuns       int

	SessionID string
	Recorder  RunRecorder
	Audit     EventLogger
	Logger    *slog.Logger
}

// Run executes the loop from run 1.
func (l *Loop) Run(ctx context.Context) (Result, error) {
	if err := l.validate(); err != nil {
		return Result{}, err
	}
	logger := logging.OrDiscard(l.Logger)

	state := NewLoopState(l.MaxIterations, l.MaxRuns)
	prompt := SeedPrompt(l.Idea, l.MaxRuns, l.Baseline, l.Interpreter)
	result := Result{State: state}

	for {
		result.State = state
		if state.Finished() {
			result.Completed = true
			result.Reason = ReasonRunCeiling
			break
		}
		if state.Exhausted() {
			result.Reason = ReasonIterationsExhausted
			logger.Error("run failed too many times",
				slog.Int("run", state.Run),
				slog.Int("iterations", state.Iteration),
			)
			break
		}

		response, err := l.Agent.Run(ctx, prompt)
		if err != nil {
			return result, fmt.Errorf("agent %s on run %d: %w", l.Agent.Name(), state.Run, err)
		}
		if strings.Contains(response, agent.CompletionMarker) {
			result.Completed = true
			result.Reason = ReasonAgentCompleted
			logger.Info("agent declared experiments complete", slog.Int("run", state.Run))
			break
		}

		rec, next, err := l.dispatch(ctx, state)
		if rec != nil {
			result.Runs = append(result.Runs, *rec)
		}
		if err != nil {
			return result, err
		}
		if rec.Status == runner.StatusSucceeded {
			state = state.Advance()
		} else {
			state = state.Retry()
		}
		prompt = next
	}

	return result, nil
}

// dispatch runs one attempt of state.Run and returns the record and the
// prompt for the next agent call.
func (l *Loop) dispatch(ctx context.Context, state LoopState) (*runstore.RunRecord, string, error) {
	logger := logging.OrDiscard(l.Logger).With(slog.Int("run", state.Run), slog.Int("iteration", state.Iteration))
	run := state.Run
	runDir := workspace.RunDirName(run)

	snap, err := runner.TakeSnapshot(l.Workspace.ExperimentPath, l.Workspace.SnapshotPath(run), l.Workspace.SnapshotPath(run-1))
	if err != nil {
		return nil, "", err
	}

	rec := &runstore.RunRecord{
		SessionID: l.SessionID,
		Run:       run,
		Iteration: state.Iteration,
		Folder:    runDir,
		Status:    runner.StatusPending,
		Snapshot:  workspace.SnapshotName(run),
		Diff:      snap.Diff,
		StartedAt: time.Now(),
	}
	l.logEvent("run_dispatched", map[string]any{
		"session_id": l.SessionID,
		"run":        run,
		"iteration":  state.Iteration,
		"folder":     runDir,
		"snapshot":   rec.Snapshot,
	})
	logger.Info("dispatching experiment", slog.String("folder", runDir))

	outcome, err := l.Runner.Execute(ctx, runner.Command{
		WorkDir:     l.Workspace.Root,
		Interpreter: l.Interpreter,
		Script:      workspace.ExperimentScript,
		Args:        []string{"--out_dir=" + runDir},
		Timeout:     l.RunTimeout,
		OutputDir:   runDir,
	})
	if err != nil {
		l.finishRun(logger, rec, runner.Outcome{
			ReturnCode: 1,
			Status:     runner.StatusFailed,
			Diagnostic: err.Error(),
		})
		return rec, "", fmt.Errorf("run %d: %w", run, err)
	}

	var next string
	if outcome.Succeeded() {
		summary, extractErr := results.Extract(l.Workspace.RunDir(run))
		if extractErr != nil {
			logger.Warn("results unusable", logging.Err(extractErr))
			if err := os.RemoveAll(l.Workspace.RunDir(run)); err != nil {
				return nil, "", fmt.Errorf("remove %s: %w", runDir, err)
			}
			outcome.Status = runner.StatusFailed
			outcome.Diagnostic = runner.Truncate(extractErr.Error(), l.Runner.DiagnosticLimit())
			next = RunFailurePrompt(outcome)
		} else {
			data, err := json.Marshal(summary)
			if err != nil {
				return nil, "", fmt.Errorf("encode results of run %d: %w", run, err)
			}
			rec.ResultsJSON = string(data)
			next = SuccessPrompt(run, summary, l.Interpreter)
		}
	} else {
		next = RunFailurePrompt(outcome)
	}

	l.finishRun(logger, rec, outcome)
	return rec, next, nil
}

// finishRun stamps the attempt with its outcome and persists it.
func (l *Loop) finishRun(logger *slog.Logger, rec *runstore.RunRecord, outcome runner.Outcome) {
	finished := time.Now()
	rec.Status = outcome.Status
	rec.ReturnCode = outcome.ReturnCode
	rec.Diagnostic = outcome.Diagnostic
	rec.FinishedAt = &finished

	if l.Recorder != nil {
		if err := l.Recorder.RecordRun(rec); err != nil {
			logger.Warn("record run failed", logging.Err(err))
		}
	}
	l.logEvent("run_finished", map[string]any{
		"session_id":  l.SessionID,
		"run":         rec.Run,
		"iteration":   rec.Iteration,
		"status":      string(rec.Status),
		"return_code": rec.ReturnCode,
		"duration_ms": finished.Sub(rec.StartedAt).Milliseconds(),
	})
}

func (l *Loop) logEvent(eventType string, payload map[string]any) {
	logEvent(l.Audit, l.Logger, eventType, payload)
}

func (l *Loop) validate() error {
	switch {
	case l.Agent == nil:
		return errors.New("agent is required")
	case l.Runner == nil:
		return errors.New("runner is required")
	case l.Workspace == nil:
		return errors.New("workspace is required")
	case strings.TrimSpace(l.Interpreter) == "":
		return errors.New("interpreter is required")
	case l.MaxIterations <= 0:
		return errors.New("max iterations must be positive")
	case l.MaxRuns <= 0:
		return errors.New("max runs must be positive")
	}
	return nil
}

// logEvent writes an audit event. Failures are logged and never returned.
func logEvent(sink EventLogger, logger *slog.Logger, eventType string, payload map[string]any) {
	if sink == nil {
		return
	}
	if err := sink.LogEvent(auditActor, eventType, payload); err != nil {
		logging.OrDiscard(logger).Warn("audit event dropped", slog.String("type", eventType), logging.Err(err))
	}
}
