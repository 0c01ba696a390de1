package agent

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// CommandAgent shells out to a code-modification CLI. The prompt is written
// to stdin and the response is the command's stdout, or the contents of
// OutputFile when set.
type CommandAgent struct {
	Label      string
	Command    string
	Args       []string
	WorkDir    string
	Timeout    time.Duration
	OutputFile string

	// TranscriptPath receives every prompt, the raw command output and the
	// response.
	TranscriptPath string
}

var _ Agent = (*CommandAgent)(nil)

// NewCodexAgent runs `codex exec` non-interactively inside workDir and reads
// the final message from a file under stateDir.
func NewCodexAgent(command string, extraArgs []string, workDir, stateDir, transcriptPath string, timeout time.Duration) *CommandAgent {
	if command == "" {
		command = "codex"
	}
	lastMessage := filepath.Join(stateDir, "agent", "last_message.txt")
	args := []string{
		"-a", "never",
		"-s", "workspace-write",
		"exec",
		"-C", workDir,
		"--output-last-message", lastMessage,
	}
	args = append(args, extraArgs...)
	args = append(args, "-")
	return &CommandAgent{
		Label:          "codex",
		Command:        command,
		Args:           args,
		WorkDir:        workDir,
		Timeout:        timeout,
		OutputFile:     lastMessage,
		TranscriptPath: transcriptPath,
	}
}

func (a *CommandAgent) Name() string {
	if a.Label != "" {
		return a.Label
	}
	return filepath.Base(a.Command)
}

func (a *CommandAgent) Run(ctx context.Context, prompt string) (string, error) {
	if a.Command == "" {
		return "", errors.New("agent command is required")
	}
	if a.WorkDir == "" {
		return "", errors.New("workdir is required")
	}
	workDir, err := filepath.Abs(a.WorkDir)
	if err != nil {
		return "", fmt.Errorf("resolve workdir: %w", err)
	}

	if a.OutputFile != "" {
		if err := os.MkdirAll(filepath.Dir(a.OutputFile), 0o755); err != nil {
			return "", fmt.Errorf("ensure output dir: %w", err)
		}
		if err := os.Remove(a.OutputFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("clear stale output: %w", err)
		}
	}

	runCtx := ctx
	if a.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, a.Timeout)
		defer cancel()
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(runCtx, a.Command, a.Args...)
	cmd.Dir = workDir
	cmd.Stdin = strings.NewReader(prompt)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = 2 * time.Second

	runErr := cmd.Run()

	response := stdout.String()
	if runErr == nil && a.OutputFile != "" {
		data, err := os.ReadFile(a.OutputFile)
		if err != nil {
			return "", fmt.Errorf("read agent output: %w", err)
		}
		response = string(data)
	}

	transcript := response
	if stderr.Len() > 0 {
		transcript = response + "\n[stderr]\n" + stderr.String()
	}
	if err := appendTranscript(a.TranscriptPath, a.Name(), prompt, transcript); err != nil {
		return "", err
	}

	if runErr != nil {
		if ctxErr := runCtx.Err(); ctxErr != nil {
			return "", fmt.Errorf("%s interrupted: %w", a.Name(), ctxErr)
		}
		return "", fmt.Errorf("%s exited with code %d: %w", a.Name(), exitCodeFromError(runErr), runErr)
	}
	return response, nil
}

func exitCodeFromError(err error) int {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return 124
	}
	return 1
}
