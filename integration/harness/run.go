package harness

import (
	"bytes"
	"errors"
	"os"
	"os/exec"
	"strings"
	"testing"
)

// Result is one labloop invocation.
type Result struct {
	Args     []string
	Stdout   string
	Stderr   string
	ExitCode int
}

// RequireExit fails the test unless the command exited with code.
func (r Result) RequireExit(t *testing.T, code int) {
	t.Helper()
	if r.ExitCode != code {
		t.Fatalf("labloop %s: exit code %d, want %d\nstdout:\n%s\nstderr:\n%s",
			strings.Join(r.Args, " "), r.ExitCode, code, r.Stdout, r.Stderr)
	}
}

// RequireStdout fails the test unless stdout contains every fragment.
func (r Result) RequireStdout(t *testing.T, fragments ...string) {
	t.Helper()
	for _, fragment := range fragments {
		if !strings.Contains(r.Stdout, fragment) {
			t.Fatalf("labloop %s: stdout lacks %q\nstdout:\n%s", strings.Join(r.Args, " "), fragment, r.Stdout)
		}
	}
}

// Runner invokes the built binary inside an experiment folder.
type Runner struct {
	Bin string
	Dir string
	// Env entries (KEY=VALUE) are appended to the inherited environment.
	Env []string
}

// Run executes labloop with args.
func (r Runner) Run(t *testing.T, args ...string) Result {
	t.Helper()

	cmd := exec.Command(r.Bin, args...)
	cmd.Dir = r.Dir
	cmd.Env = append(withoutLabloopEnv(os.Environ()), r.Env...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	res := Result{Args: args}
	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			t.Fatalf("run %s: %v", r.Bin, err)
		}
		res.ExitCode = exitErr.ExitCode()
	}
	res.Stdout = stdout.String()
	res.Stderr = stderr.String()
	return res
}

// withoutLabloopEnv drops LABLOOP_* variables from the developer's shell so
// fixtures see only their own configuration.
func withoutLabloopEnv(env []string) []string {
	out := make([]string, 0, len(env))
	for _, entry := range env {
		if strings.HasPrefix(entry, "LABLOOP_") {
			continue
		}
		out = append(out, entry)
	}
	return out
}
