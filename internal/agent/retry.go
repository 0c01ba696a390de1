package agent

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"labloop/internal/logging"
)

// RetryConfig controls retries of failed agent calls.
type RetryConfig struct {
	MaxAttempts int
	Backoff     time.Duration
	ShouldRetry func(error) bool
	Logger      *slog.Logger
}

// WithRetry wraps an agent with bounded, error-only retries. Context
// cancellation and deadlines are never retried.
func WithRetry(next Agent, cfg RetryConfig) Agent {
	if next == nil {
		return nil
	}
	return &retryAgent{next: next, cfg: cfg}
}

type retryAgent struct {
	next Agent
	cfg  RetryConfig
}

func (r *retryAgent) Name() string {
	return r.next.Name()
}

func (r *retryAgent) Run(ctx context.Context, prompt string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	logger := logging.OrDiscard(r.cfg.Logger)

	attempts := r.cfg.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		response, err := r.next.Run(ctx, prompt)
		if err == nil {
			return response, nil
		}
		lastErr = err
		if attempt == attempts || !r.shouldRetry(ctx, err) {
			break
		}
		logger.Warn("agent call failed, retrying",
			slog.String("agent", r.next.Name()),
			slog.Int("attempt", attempt),
			logging.Err(err),
		)
		if !sleep(ctx, r.cfg.Backoff) {
			return "", ctx.Err()
		}
	}
	return "", lastErr
}

func (r *retryAgent) shouldRetry(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if r.cfg.ShouldRetry == nil {
		return true
	}
	return r.cfg.ShouldRetry(err)
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
