package agent

import (
	"context"
	"fmt"
)

// MockAgent is a deterministic, offline agent. It never edits files and
// answers with the completion marker on call CompleteAfter (1-based); zero
// means it never completes.
type MockAgent struct {
	CompleteAfter  int
	TranscriptPath string

	calls int
}

var _ Agent = (*MockAgent)(nil)

func (a *MockAgent) Name() string {
	return "mock"
}

func (a *MockAgent) Run(ctx context.Context, prompt string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	a.calls++

	response := fmt.Sprintf("mock agent call %d: no changes applied", a.calls)
	if a.CompleteAfter > 0 && a.calls >= a.CompleteAfter {
		response = fmt.Sprintf("mock agent call %d: %s", a.calls, CompletionMarker)
	}
	if err := appendTranscript(a.TranscriptPath, a.Name(), prompt, response); err != nil {
		return "", err
	}
	return response, nil
}

// Calls reports how many prompts the agent has answered.
func (a *MockAgent) Calls() int {
	return a.calls
}
