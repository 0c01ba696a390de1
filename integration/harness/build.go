package harness

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sync"
	"testing"
)

// binaryName is the labloop executable built for integration tests.
var binaryName = func() string {
	if runtime.GOOS == "windows" {
		return "labloop.exe"
	}
	return "labloop"
}()

var build struct {
	once sync.Once
	path string
	err  error
}

// RepoRoot returns the directory holding the module's go.mod.
func RepoRoot(t *testing.T) string {
	t.Helper()
	root, err := findModuleRoot()
	if err != nil {
		t.Fatalf("resolve repo root: %v", err)
	}
	return root
}

func findModuleRoot() (string, error) {
	_, file, _, ok := runtime.Caller(0)
	if !ok {
		return "", errors.New("runtime.Caller failed")
	}
	for dir := filepath.Dir(file); ; dir = filepath.Dir(dir) {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}
		if parent := filepath.Dir(dir); parent == dir {
			return "", fmt.Errorf("no go.mod above %s", file)
		}
	}
}

// BuildBinary compiles cmd/labloop once per test process and returns the
// executable path. The binary lives in a temp dir outside the repo.
func BuildBinary(t *testing.T) string {
	t.Helper()
	root := RepoRoot(t)

	build.once.Do(func() {
		dir, err := os.MkdirTemp("", "labloop-bin-")
		if err != nil {
			build.err = fmt.Errorf("create temp dir: %w", err)
			return
		}
		out := filepath.Join(dir, binaryName)

		cmd := exec.Command("go", "build", "-trimpath", "-o", out, "./cmd/labloop")
		cmd.Dir = root
		var stderr bytes.Buffer
		cmd.Stderr = &stderr
		if err := cmd.Run(); err != nil {
			build.err = fmt.Errorf("go build ./cmd/labloop: %w\n%s", err, stderr.String())
			return
		}
		build.path = out
	})

	if build.err != nil {
		t.Fatalf("build labloop: %v", build.err)
	}
	return build.path
}
