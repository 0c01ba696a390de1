package runner

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTakeSnapshot_FirstRunDiffsAgainstNothing(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "experiment.py")
	require.NoError(t, os.WriteFile(src, []byte("lr = 0.1\n"), 0o644))

	snap, err := TakeSnapshot(src, filepath.Join(dir, "run_1.py"), filepath.Join(dir, "run_0.py"))
	require.NoError(t, err)

	data, err := os.ReadFile(snap.Path)
	require.NoError(t, err)
	assert.Equal(t, "lr = 0.1\n", string(data))
	assert.Contains(t, snap.Diff, "--- /dev/null")
	assert.Contains(t, snap.Diff, "+lr = 0.1")
}

func TestTakeSnapshot_DiffsAgainstPreviousRun(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "experiment.py")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "run_1.py"), []byte("lr = 0.1\n"), 0o644))
	require.NoError(t, os.WriteFile(src, []byte("lr = 0.2\n"), 0o644))

	snap, err := TakeSnapshot(src, filepath.Join(dir, "run_2.py"), filepath.Join(dir, "run_1.py"))
	require.NoError(t, err)

	assert.Contains(t, snap.Diff, "--- run_1.py")
	assert.Contains(t, snap.Diff, "+++ run_2.py")
	assert.Contains(t, snap.Diff, "-lr = 0.1")
	assert.Contains(t, snap.Diff, "+lr = 0.2")
}

func TestTakeSnapshot_RetryDiffsAgainstEarlierAttempt(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "experiment.py")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "run_1.py"), []byte("a\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "run_2.py"), []byte("b\n"), 0o644))
	require.NoError(t, os.WriteFile(src, []byte("c\n"), 0o644))

	snap, err := TakeSnapshot(src, filepath.Join(dir, "run_2.py"), filepath.Join(dir, "run_1.py"))
	require.NoError(t, err)
	assert.Contains(t, snap.Diff, "-b")
	assert.Contains(t, snap.Diff, "+c")
	assert.NotContains(t, snap.Diff, "-a")
}

func TestTakeSnapshot_UnchangedHasEmptyDiff(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "experiment.py")
	require.NoError(t, os.WriteFile(src, []byte("same\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "run_1.py"), []byte("same\n"), 0o644))

	snap, err := TakeSnapshot(src, filepath.Join(dir, "run_1.py"), "")
	require.NoError(t, err)
	assert.Empty(t, snap.Diff)
}

func TestTakeSnapshot_MissingSource(t *testing.T) {
	dir := t.TempDir()
	_, err := TakeSnapshot(filepath.Join(dir, "experiment.py"), filepath.Join(dir, "run_1.py"), "")
	require.Error(t, err)
	assert.NoFileExists(t, filepath.Join(dir, "run_1.py"))
}

func TestDiffFiles(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "run_1.py")
	b := filepath.Join(dir, "run_3.py")
	require.NoError(t, os.WriteFile(a, []byte("x = 1\ny = 2\n"), 0o644))
	require.NoError(t, os.WriteFile(b, []byte("x = 1\ny = 3\n"), 0o644))

	diff, err := DiffFiles(a, b)
	require.NoError(t, err)
	assert.Contains(t, diff, "-y = 2")
	assert.Contains(t, diff, "+y = 3")

	_, err = DiffFiles(a, filepath.Join(dir, "run_9.py"))
	require.Error(t, err)
}
