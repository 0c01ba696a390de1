// Package runner executes experiment and plotting scripts with a deadline,
// captures their diagnostic stream and normalizes the result into an Outcome.
package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"labloop/internal/logging"
)

// DefaultMaxDiagnostic bounds the diagnostic text embedded in prompts.
const DefaultMaxDiagnostic = 1500

// waitDelay bounds how long Wait blocks on I/O after the process is gone.
const waitDelay = 2 * time.Second

// Status is the final classification of a process execution.
type Status string

const (
	StatusPending   Status = "pending"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusTimedOut  Status = "timed_out"
)

// Command describes one script invocation.
type Command struct {
	WorkDir     string
	Interpreter string
	Script      string
	Args        []string
	Timeout     time.Duration

	// OutputDir is removed (relative to WorkDir) when the process fails or
	// times out. Empty means there is nothing to clean up.
	OutputDir string
}

// Outcome is the normalized result of an execution.
type Outcome struct {
	ReturnCode int
	Status     Status
	// Diagnostic is the captured stderr bounded by Truncate, or the timeout
	// message.
	Diagnostic string
	Duration   time.Duration
}

// Succeeded reports whether the process exited with code 0.
func (o Outcome) Succeeded() bool {
	return o.Status == StatusSucceeded
}

// Runner executes commands one at a time.
type Runner struct {
	Logger *slog.Logger
	// Stdout receives the child's standard output. Defaults to os.Stdout.
	Stdout io.Writer
	// Diagnostics receives a live copy of the child's stderr. Defaults to os.Stderr.
	Diagnostics   io.Writer
	MaxDiagnostic int
}

// New returns a Runner writing to the process's own stdout and stderr.
func New(logger *slog.Logger, maxDiagnostic int) *Runner {
	return &Runner{
		Logger:        logger,
		Stdout:        os.Stdout,
		Diagnostics:   os.Stderr,
		MaxDiagnostic: maxDiagnostic,
	}
}

// Execute runs the command and blocks until it exits or its timeout expires.
//
// Nonzero exits and timeouts are reported through the Outcome, not the
// error. The error is reserved for conditions the caller cannot turn into a
// retry: the interpreter cannot be started, the parent context is cancelled,
// or the output directory cannot be removed.
func (r *Runner) Execute(ctx context.Context, c Command) (Outcome, error) {
	if err := c.validate(); err != nil {
		return Outcome{}, err
	}
	workDir, err := filepath.Abs(c.WorkDir)
	if err != nil {
		return Outcome{}, fmt.Errorf("resolve workdir: %w", err)
	}
	logger := logging.OrDiscard(r.Logger).With(slog.String("script", c.Script))

	runCtx := ctx
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	maxDiag := r.DiagnosticLimit()
	stderr := newTailBuffer(tailCapacity(maxDiag))

	args := append([]string{c.Script}, c.Args...)
	cmd := exec.Command(c.Interpreter, args...)
	cmd.Dir = workDir
	cmd.Stdout = writerOr(r.Stdout, os.Stdout)
	cmd.Stderr = io.MultiWriter(stderr, writerOr(r.Diagnostics, os.Stderr))
	cmd.WaitDelay = waitDelay
	setProcessGroup(cmd)

	logger.Debug("process starting", slog.String("interpreter", c.Interpreter), slog.Any("args", c.Args), slog.String("workdir", workDir))

	started := time.Now()
	if err := cmd.Start(); err != nil {
		return Outcome{}, fmt.Errorf("start %s %s: %w", c.Interpreter, c.Script, err)
	}

	done := make(chan error, 1)
	go func() {
		done <- cmd.Wait()
	}()

	var waitErr error
	select {
	case <-runCtx.Done():
		killProcessGroup(cmd)
		<-done
		if ctxErr := ctx.Err(); ctxErr != nil {
			if err := removeOutputDir(workDir, c.OutputDir); err != nil {
				logger.Warn("cleanup after cancellation failed", logging.Err(err))
			}
			return Outcome{}, fmt.Errorf("execution cancelled: %w", ctxErr)
		}
		outcome := Outcome{
			ReturnCode: 1,
			Status:     StatusTimedOut,
			Diagnostic: TimeoutMessage(c.Timeout),
			Duration:   time.Since(started),
		}
		logger.Warn("process timed out", slog.Duration("timeout", c.Timeout))
		if err := removeOutputDir(workDir, c.OutputDir); err != nil {
			return outcome, err
		}
		return outcome, nil
	case waitErr = <-done:
	}

	outcome := Outcome{
		Diagnostic: Truncate(stderr.String(), maxDiag),
		Duration:   time.Since(started),
	}
	if waitErr != nil {
		var exitErr *exec.ExitError
		switch {
		case errors.As(waitErr, &exitErr):
			outcome.ReturnCode = exitErr.ExitCode()
		case errors.Is(waitErr, exec.ErrWaitDelay) && cmd.ProcessState != nil:
			// The script exited but a background child kept its output open.
			killProcessGroup(cmd)
			logger.Warn("process left children holding its output; killed process group")
			outcome.ReturnCode = cmd.ProcessState.ExitCode()
		default:
			return Outcome{}, fmt.Errorf("wait %s %s: %w", c.Interpreter, c.Script, waitErr)
		}
	}

	if outcome.ReturnCode != 0 {
		outcome.Status = StatusFailed
		logger.Warn("process failed",
			slog.Int("return_code", outcome.ReturnCode),
			slog.Duration("duration", outcome.Duration),
		)
		if err := removeOutputDir(workDir, c.OutputDir); err != nil {
			return outcome, err
		}
		return outcome, nil
	}

	outcome.Status = StatusSucceeded
	logger.Info("process finished", slog.Duration("duration", outcome.Duration))
	return outcome, nil
}

// TimeoutMessage is the diagnostic synthesized for a timed-out process.
func TimeoutMessage(timeout time.Duration) string {
	return fmt.Sprintf("timed out after %s seconds", strconv.FormatFloat(timeout.Seconds(), 'f', -1, 64))
}

func (c Command) validate() error {
	if strings.TrimSpace(c.WorkDir) == "" {
		return errors.New("workdir is required")
	}
	if strings.TrimSpace(c.Interpreter) == "" {
		return errors.New("interpreter is required")
	}
	if strings.TrimSpace(c.Script) == "" {
		return errors.New("script is required")
	}
	if c.OutputDir != "" {
		clean := filepath.Clean(c.OutputDir)
		if filepath.IsAbs(clean) || clean == "." || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
			return fmt.Errorf("output dir must be a subdirectory of the workdir: %s", c.OutputDir)
		}
	}
	return nil
}

// DiagnosticLimit is the number of characters kept from a diagnostic.
func (r *Runner) DiagnosticLimit() int {
	if r.MaxDiagnostic <= 0 {
		return DefaultMaxDiagnostic
	}
	return r.MaxDiagnostic
}

func removeOutputDir(workDir, outputDir string) error {
	if outputDir == "" {
		return nil
	}
	path := filepath.Join(workDir, outputDir)
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("stat output dir: %w", err)
	}
	if err := os.RemoveAll(path); err != nil {
		return fmt.Errorf("remove output dir %s: %w", path, err)
	}
	return nil
}

func writerOr(w io.Writer, fallback io.Writer) io.Writer {
	if w == nil {
		return fallback
	}
	return w
}
