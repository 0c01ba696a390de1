package harness

import (
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

// Experiment is a throwaway copy of a fixture experiment folder.
type Experiment struct {
	Dir  string
	Idea string
}

// Path joins elem onto the experiment folder.
func (e Experiment) Path(elem ...string) string {
	return filepath.Join(append([]string{e.Dir}, elem...)...)
}

// StateDB returns the path of one of the sqlite files under .labloop.
func (e Experiment) StateDB(name string) string {
	return e.Path(".labloop", name)
}

// WriteScript replaces experiment.py or plot.py with a shell body.
func (e Experiment) WriteScript(t *testing.T, name, body string) {
	t.Helper()
	if err := os.WriteFile(e.Path(name), []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

// NewExperiment copies integration/fixtures/<fixture> into a temp dir,
// keeping file modes. The fixture must carry both scripts, idea.yaml and a
// run_0 baseline.
func NewExperiment(t *testing.T, fixture string) Experiment {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fixture scripts need a POSIX shell")
	}
	src := filepath.Join(RepoRoot(t), "integration", "fixtures", fixture)
	dst := t.TempDir()

	err := filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		info, err := d.Info()
		if err != nil {
			return err
		}
		if d.IsDir() {
			return os.MkdirAll(target, info.Mode().Perm())
		}
		if !info.Mode().IsRegular() {
			return &fs.PathError{Op: "copy", Path: path, Err: fs.ErrInvalid}
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		return os.WriteFile(target, data, info.Mode().Perm())
	})
	if err != nil {
		t.Fatalf("copy fixture %s: %v", fixture, err)
	}

	exp := Experiment{Dir: dst, Idea: filepath.Join(dst, "idea.yaml")}
	for _, name := range []string{"experiment.py", "plot.py", "idea.yaml", filepath.Join("run_0", "final_info.json")} {
		if _, err := os.Stat(exp.Path(name)); err != nil {
			t.Fatalf("fixture %s is missing %s: %v", fixture, name, err)
		}
	}
	return exp
}
