package experiment

import (
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"labloop/internal/agent/agenttest"
	"labloop/internal/runner"
	"labloop/internal/runstore"
	"labloop/internal/workspace"
)

// The experiment and plot scripts are shell scripts run with sh so the tests
// need no Python.
const (
	succeedScript = `out="${1#--out_dir=}"
mkdir -p "$out"
printf '{"x_plus_y": {"means": {"final_train_loss_mean": [0.1]}, "stderrs": {"final_train_loss_mean": [0.01]}}}' > "$out/final_info.json"
`
	failScript = `out="${1#--out_dir=}"
mkdir -p "$out"
echo boom >&2
exit 1
`
	sleepScript = `out="${1#--out_dir=}"
mkdir -p "$out"
sleep 5
`
	noArtifactScript = `out="${1#--out_dir=}"
mkdir -p "$out"
exit 0
`
	okPlot   = "exit 0\n"
	failPlot = "echo no labels >&2\nexit 1\n"
)

func newTestWorkspace(t *testing.T, experiment, plot string) *workspace.Workspace {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("scripts need a POSIX shell")
	}
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, workspace.ExperimentScript), []byte(experiment), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, workspace.PlotScript), []byte(plot), 0o644))
	ws, err := workspace.Resolve(dir, "")
	require.NoError(t, err)
	require.NoError(t, ws.EnsureDirs())
	return ws
}

func testRunner() *runner.Runner {
	return &runner.Runner{
		Stdout:        io.Discard,
		Diagnostics:   io.Discard,
		MaxDiagnostic: runner.DefaultMaxDiagnostic,
	}
}

func newTestLoop(ws *workspace.Workspace, ag *agenttest.Scripted) *Loop {
	return &Loop{
		Agent:         ag,
		Runner:        testRunner(),
		Workspace:     ws,
		Interpreter:   "sh",
		RunTimeout:    10 * time.Second,
		MaxIterations: 4,
		MaxRuns:       5,
		SessionID:     "test-session",
	}
}

// writeExperiment returns an agent turn that rewrites experiment.py.
func writeExperiment(ws *workspace.Workspace, text, body string) agenttest.Response {
	return agenttest.Response{
		Text: text,
		Do: func(string) error {
			return os.WriteFile(ws.ExperimentPath, []byte(body), 0o644)
		},
	}
}

func writePlot(ws *workspace.Workspace, body string) agenttest.Response {
	return agenttest.Response{
		Text: "updated plot.py",
		Do: func(string) error {
			return os.WriteFile(ws.PlotPath, []byte(body), 0o644)
		},
	}
}

type memoryAudit struct {
	mu     sync.Mutex
	events []string
}

func (m *memoryAudit) LogEvent(actor string, eventType string, payload any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, eventType)
	return nil
}

func (m *memoryAudit) Types() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.events...)
}

type memoryRecorder struct {
	mu   sync.Mutex
	runs []runstore.RunRecord
}

func (m *memoryRecorder) RecordRun(rec *runstore.RunRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs = append(m.runs, *rec)
	return nil
}

func (m *memoryRecorder) Runs() []runstore.RunRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]runstore.RunRecord(nil), m.runs...)
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
