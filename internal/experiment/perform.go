package experiment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"labloop/internal/agent"
	"labloop/internal/idea"
	"labloop/internal/logging"
	"labloop/internal/notify"
	"labloop/internal/results"
	"labloop/internal/runner"
	"labloop/internal/runstore"
	"labloop/internal/workspace"
)

// Ledger stores sessions and their runs.
type Ledger interface {
	RunRecorder
	StartSession(sess runstore.Session) error
	FinishSession(id, status, stopReason string) error
}

// Options configures one pipeline session.
type Options struct {
	Workspace *workspace.Workspace
	Idea      idea.Idea
	Agent     agent.Agent
	Runner    *runner.Runner

	Interpreter   string
	MaxIterations int
	MaxRuns       int
	RunTimeout    time.Duration
	PlotTimeout   time.Duration

	// SessionID is generated when empty.
	SessionID string
	Ledger    Ledger
	Audit     EventLogger
	Notifier  *notify.Notifier
	Logger    *slog.Logger
}

// Perform runs the experiment loop, then plotting and the write-up. It
// returns false when a run exhausted its attempts; plotting and the write-up
// are skipped in that case.
func Perform(ctx context.Context, opts Options) (bool, error) {
	if opts.Workspace == nil {
		return false, errors.New("workspace is required")
	}
	if opts.Agent == nil || opts.Runner == nil {
		return false, errors.New("agent and runner are required")
	}
	if err := opts.Idea.Validate(); err != nil {
		return false, err
	}
	if err := opts.Workspace.CheckScripts(); err != nil {
		return false, err
	}
	if opts.SessionID == "" {
		opts.SessionID = uuid.NewString()
	}
	logger := logging.OrDiscard(opts.Logger).With(slog.String("session", opts.SessionID))

	baseline, err := results.LoadBaseline(opts.Workspace.Root)
	if err != nil {
		return false, fmt.Errorf("baseline: %w", err)
	}
	if baseline == nil {
		logger.Warn("no baseline results found", slog.String("folder", results.BaselineDir))
	}

	if opts.Ledger != nil {
		err := opts.Ledger.StartSession(runstore.Session{
			ID:     opts.SessionID,
			Folder: opts.Workspace.Root,
			Title:  opts.Idea.Title,
		})
		if err != nil {
			return false, err
		}
	}
	logEvent(opts.Audit, logger, "session_started", map[string]any{
		"session_id": opts.SessionID,
		"folder":     opts.Workspace.Root,
		"idea":       opts.Idea.Name,
		"title":      opts.Idea.Title,
		"agent":      agentName(opts.Agent),
	})
	logger.Info("session started", slog.String("idea", opts.Idea.Title), slog.String("agent", agentName(opts.Agent)))

	s := &session{opts: opts, logger: logger}

	loop := &Loop{
		Agent:         opts.Agent,
		Runner:        opts.Runner,
		Workspace:     opts.Workspace,
		Idea:          opts.Idea,
		Baseline:      baseline,
		Interpreter:   opts.Interpreter,
		RunTimeout:    opts.RunTimeout,
		MaxIterations: opts.MaxIterations,
		MaxRuns:       opts.MaxRuns,
		SessionID:     opts.SessionID,
		Recorder:      opts.Ledger,
		Audit:         opts.Audit,
		Logger:        logger,
	}
	res, err := loop.Run(ctx)
	if err != nil {
		s.finish(runstore.SessionFailed, "", succeededRuns(res.Runs), err)
		return false, err
	}
	logEvent(opts.Audit, logger, "loop_stopped", map[string]any{
		"session_id": opts.SessionID,
		"completed":  res.Completed,
		"reason":     string(res.Reason),
		"run":        res.State.Run,
		"iteration":  res.State.Iteration,
	})
	if !res.Completed {
		logger.Error("experiments did not finish", slog.String("reason", string(res.Reason)), slog.Int("run", res.State.Run))
		s.finish(runstore.SessionFailed, res.Reason, succeededRuns(res.Runs), nil)
		return false, nil
	}

	plotter := &Plotter{
		Agent:         opts.Agent,
		Runner:        opts.Runner,
		Workspace:     opts.Workspace,
		Interpreter:   opts.Interpreter,
		Timeout:       opts.PlotTimeout,
		MaxIterations: opts.MaxIterations,
		Logger:        logger,
	}
	plot, err := plotter.Run(ctx)
	if err != nil {
		s.finish(runstore.SessionFailed, res.Reason, succeededRuns(res.Runs), err)
		return false, err
	}
	logEvent(opts.Audit, logger, "plotting_finished", map[string]any{
		"session_id": opts.SessionID,
		"converged":  plot.Converged,
		"iterations": plot.Iterations,
	})

	writeup := &Writeup{Agent: opts.Agent, Logger: logger}
	sent := writeup.Send(ctx)
	logEvent(opts.Audit, logger, "writeup_sent", map[string]any{
		"session_id": opts.SessionID,
		"ok":         sent,
		"notes":      opts.Workspace.NotesPath,
	})

	s.finish(runstore.SessionCompleted, res.Reason, succeededRuns(res.Runs), nil)
	return true, nil
}

type session struct {
	opts   Options
	logger *slog.Logger
}

func (s *session) finish(status string, reason StopReason, runs int, cause error) {
	if s.opts.Ledger != nil {
		if err := s.opts.Ledger.FinishSession(s.opts.SessionID, status, string(reason)); err != nil {
			s.logger.Warn("finish session failed", logging.Err(err))
		}
	}
	payload := map[string]any{
		"session_id": s.opts.SessionID,
		"status":     status,
		"reason":     string(reason),
		"runs":       runs,
	}
	if cause != nil {
		payload["error"] = cause.Error()
	}
	logEvent(s.opts.Audit, s.logger, "session_finished", payload)
	s.logger.Info("session finished", slog.String("status", status), slog.Int("runs", runs))

	title, message := notify.FormatSessionComplete(s.opts.Idea.Title, status == runstore.SessionCompleted, runs)
	if err := s.opts.Notifier.Send(title, message); err != nil {
		s.logger.Warn("notification failed", logging.Err(err))
	}
}

func succeededRuns(runs []runstore.RunRecord) int {
	n := 0
	for _, rec := range runs {
		if rec.Status == runner.StatusSucceeded {
			n++
		}
	}
	return n
}

func agentName(a agent.Agent) string {
	if a == nil {
		return ""
	}
	return a.Name()
}
