package experiment

import (
	"context"
	"log/slog"

	"labloop/internal/agent"
	"labloop/internal/logging"
)

// Writeup hands the agent the final notes instruction.
type Writeup struct {
	Agent  agent.Agent
	Logger *slog.Logger
}

// Send makes one agent call and reports whether it returned without error.
// Errors are logged only.
func (w *Writeup) Send(ctx context.Context) bool {
	if w.Agent == nil {
		return false
	}
	if _, err := w.Agent.Run(ctx, NotesPrompt); err != nil {
		logging.OrDiscard(w.Logger).Warn("write-up request failed", slog.String("agent", w.Agent.Name()), logging.Err(err))
		return false
	}
	return true
}
