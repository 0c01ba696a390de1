package workspace

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Well-known file names inside an experiment folder.
const (
	ExperimentScript = "experiment.py"
	PlotScript       = "plot.py"
	NotesFile        = "notes.txt"
	ConfigFile       = "labloop.yaml"
)

// Workspace defines experiment-folder-relative paths for labloop operations.
type Workspace struct {
	Root           string
	ExperimentPath string
	PlotPath       string
	NotesPath      string
	StateDir       string
	AuditDBPath    string
	StateDBPath    string
	TranscriptPath string
}

// Resolve expands and validates the experiment folder, ensuring it exists.
// stateDir is resolved relative to the folder unless absolute.
func Resolve(root, stateDir string) (*Workspace, error) {
	abs, err := resolveRoot(root)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("experiment folder: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("experiment folder is not a directory: %s", abs)
	}
	return newWorkspace(abs, stateDir)
}

// ResolveRoot resolves the experiment folder without requiring it to exist.
func ResolveRoot(root string) (string, error) {
	return resolveRoot(root)
}

// EnsureDirs creates the state directory used for ledgers and transcripts.
func (w *Workspace) EnsureDirs() error {
	if w == nil {
		return fmt.Errorf("workspace is nil")
	}
	dirs := []string{
		w.StateDir,
		filepath.Dir(w.TranscriptPath),
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("ensure %s: %w", dir, err)
		}
	}
	return nil
}

// CheckScripts verifies that the experiment and plotting scripts exist.
func (w *Workspace) CheckScripts() error {
	for _, path := range []string{w.ExperimentPath, w.PlotPath} {
		info, err := os.Stat(path)
		if err != nil {
			return fmt.Errorf("check script: %w", err)
		}
		if info.IsDir() {
			return fmt.Errorf("check script: %s is a directory", path)
		}
	}
	return nil
}

// RunDirName is the output folder name handed to the experiment for run n.
func RunDirName(run int) string {
	return fmt.Sprintf("run_%d", run)
}

// RunDir returns the absolute output folder for run n.
func (w *Workspace) RunDir(run int) string {
	return filepath.Join(w.Root, RunDirName(run))
}

// SnapshotPath returns the provenance copy of the experiment script for run n.
func (w *Workspace) SnapshotPath(run int) string {
	return filepath.Join(w.Root, SnapshotName(run))
}

// SnapshotName is the file name of the provenance copy for run n.
func SnapshotName(run int) string {
	return fmt.Sprintf("run_%d.py", run)
}

// ResolvePath returns an absolute path, resolving relative paths from the folder root.
func (w *Workspace) ResolvePath(path string) (string, error) {
	if w == nil {
		return "", fmt.Errorf("workspace is nil")
	}
	if strings.TrimSpace(path) == "" {
		return "", nil
	}
	expanded, err := expandHome(path)
	if err != nil {
		return "", err
	}
	if filepath.IsAbs(expanded) {
		return filepath.Clean(expanded), nil
	}
	return filepath.Abs(filepath.Join(w.Root, expanded))
}

func newWorkspace(root, stateDir string) (*Workspace, error) {
	w := &Workspace{
		Root:           root,
		ExperimentPath: filepath.Join(root, ExperimentScript),
		PlotPath:       filepath.Join(root, PlotScript),
		NotesPath:      filepath.Join(root, NotesFile),
	}
	if strings.TrimSpace(stateDir) == "" {
		stateDir = ".labloop"
	}
	resolved, err := w.ResolvePath(stateDir)
	if err != nil {
		return nil, fmt.Errorf("resolve state dir: %w", err)
	}
	w.StateDir = resolved
	w.AuditDBPath = filepath.Join(resolved, "audit.sqlite")
	w.StateDBPath = filepath.Join(resolved, "state.sqlite")
	w.TranscriptPath = filepath.Join(resolved, "agent", "transcript.log")
	return w, nil
}

func resolveRoot(root string) (string, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return "", fmt.Errorf("experiment folder is required")
	}
	expanded, err := expandHome(root)
	if err != nil {
		return "", err
	}
	abs, err := filepath.Abs(expanded)
	if err != nil {
		return "", fmt.Errorf("resolve experiment folder: %w", err)
	}
	return abs, nil
}

func expandHome(path string) (string, error) {
	if path == "" || path[0] != '~' {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	if path == "~" {
		return home, nil
	}
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(home, path[2:]), nil
	}
	return "", fmt.Errorf("unsupported home expansion: %s", path)
}
