package runner

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
)

// Snapshot is the provenance copy of an experiment script taken before a run.
type Snapshot struct {
	Path string
	// Diff is a unified diff from the previous snapshot to this one. Empty
	// when nothing changed.
	Diff string
}

// TakeSnapshot copies src to dst and diffs the new content against what it
// replaces. The base is the existing dst (an earlier attempt at the same
// run) or, failing that, previous. With neither present the diff shows the
// whole file as added.
func TakeSnapshot(src, dst, previous string) (Snapshot, error) {
	newBytes, err := os.ReadFile(src)
	if err != nil {
		return Snapshot{}, fmt.Errorf("read experiment script: %w", err)
	}

	base, baseName, err := readFirst(dst, previous)
	if err != nil {
		return Snapshot{}, err
	}

	if err := copyFile(src, dst); err != nil {
		return Snapshot{}, fmt.Errorf("snapshot %s: %w", filepath.Base(dst), err)
	}

	diff, err := unifiedDiff(base, string(newBytes), baseName, filepath.Base(dst))
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{Path: dst, Diff: diff}, nil
}

// DiffFiles renders a unified diff between two snapshot files.
func DiffFiles(from, to string) (string, error) {
	a, err := os.ReadFile(from)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", filepath.Base(from), err)
	}
	b, err := os.ReadFile(to)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", filepath.Base(to), err)
	}
	return unifiedDiff(string(a), string(b), filepath.Base(from), filepath.Base(to))
}

func unifiedDiff(a, b, fromName, toName string) (string, error) {
	diff := difflib.UnifiedDiff{
		A:        difflib.SplitLines(a),
		B:        difflib.SplitLines(b),
		FromFile: fromName,
		ToFile:   toName,
		Context:  3,
	}
	text, err := difflib.GetUnifiedDiffString(diff)
	if err != nil {
		return "", fmt.Errorf("diff %s: %w", toName, err)
	}
	if strings.TrimSpace(text) == "" {
		return "", nil
	}
	return text, nil
}

// readFirst returns the content of the first existing path.
func readFirst(paths ...string) (string, string, error) {
	for _, path := range paths {
		if path == "" {
			continue
		}
		data, err := os.ReadFile(path)
		if err == nil {
			return string(data), filepath.Base(path), nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return "", "", fmt.Errorf("read snapshot base: %w", err)
		}
	}
	return "", "/dev/null", nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() {
		_ = in.Close()
	}()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}
