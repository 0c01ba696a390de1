// Package agenttest provides deterministic agents for loop tests.
package agenttest

import (
	"context"
	"fmt"
	"sync"

	"labloop/internal/agent"
)

// Response configures one agent turn in a scripted sequence.
type Response struct {
	Text string
	Err  error
	// Do runs before the turn returns, typically to edit the experiment
	// folder the way a real agent would.
	Do func(prompt string) error
}

// Scripted replays responses in order and records every prompt it receives.
type Scripted struct {
	mu        sync.Mutex
	index     int
	responses []Response
	prompts   []string
}

var _ agent.Agent = (*Scripted)(nil)

func NewScripted(responses ...Response) *Scripted {
	cloned := make([]Response, len(responses))
	copy(cloned, responses)
	return &Scripted{responses: cloned}
}

// Repeat returns n copies of r.
func Repeat(r Response, n int) []Response {
	out := make([]Response, n)
	for i := range out {
		out[i] = r
	}
	return out
}

func (s *Scripted) Name() string {
	return "scripted"
}

func (s *Scripted) Run(ctx context.Context, prompt string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.prompts = append(s.prompts, prompt)
	if s.index >= len(s.responses) {
		return "", fmt.Errorf("script exhausted at call %d", s.index+1)
	}
	current := s.responses[s.index]
	s.index++

	if current.Do != nil {
		if err := current.Do(prompt); err != nil {
			return "", err
		}
	}
	if current.Err != nil {
		return "", current.Err
	}
	return current.Text, nil
}

// Prompts returns a copy of every prompt received so far.
func (s *Scripted) Prompts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.prompts))
	copy(out, s.prompts)
	return out
}

// Calls reports how many times Run was invoked.
func (s *Scripted) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.prompts)
}
