// Package agent defines the code-modification capability the experiment loop
// talks to and the concrete agents that implement it.
package agent

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// CompletionMarker is the sentinel an agent includes in its response to
// declare that all planned experiments are done.
const CompletionMarker = "ALL_COMPLETED"

// Agent edits the experiment folder in response to a natural-language prompt
// and answers with free text.
type Agent interface {
	Name() string
	Run(ctx context.Context, prompt string) (string, error)
}

// appendTranscript records one prompt/response exchange. An empty path
// disables the transcript.
func appendTranscript(path, agentName, prompt, response string) error {
	if path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("ensure transcript dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open transcript: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()

	ts := time.Now().UTC().Format(time.RFC3339)
	if _, err := fmt.Fprintf(f, "## %s %s prompt\n\n%s\n\n## %s %s response\n\n%s\n\n", ts, agentName, prompt, ts, agentName, response); err != nil {
		return fmt.Errorf("write transcript: %w", err)
	}
	return nil
}
