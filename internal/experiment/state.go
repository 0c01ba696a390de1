package experiment

// StopReason records why the experiment loop stopped.
type StopReason string

const (
	ReasonAgentCompleted      StopReason = "agent_completed"
	ReasonRunCeiling          StopReason = "run_ceiling"
	ReasonIterationsExhausted StopReason = "iterations_exhausted"
)

// LoopState is the position of the loop. Transitions return new values.
type LoopState struct {
	Iteration     int `json:"iteration"`
	Run           int `json:"run"`
	MaxIterations int `json:"max_iterations"`
	MaxRuns       int `json:"max_runs"`
}

// NewLoopState starts at run 1, iteration 0.
func NewLoopState(maxIterations, maxRuns int) LoopState {
	return LoopState{
		Run:           1,
		MaxIterations: maxIterations,
		MaxRuns:       maxRuns,
	}
}

// Advance moves to the next run after a successful one.
func (s LoopState) Advance() LoopState {
	s.Run++
	s.Iteration = 0
	return s
}

// Retry counts one more failed attempt at the current run.
func (s LoopState) Retry() LoopState {
	s.Iteration++
	return s
}

// Exhausted reports whether the current run has used up its attempts.
func (s LoopState) Exhausted() bool {
	return s.Iteration >= s.MaxIterations
}

// Finished reports whether every allowed run has succeeded.
func (s LoopState) Finished() bool {
	return s.Run > s.MaxRuns
}
