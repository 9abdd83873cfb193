package engine

import "errors"

var (
	ErrInvalidConfig      = errors.New("invalid simulation config")
	ErrInvariantViolation = errors.New("simulation invariant violated")
	ErrRunnerActive       = errors.New("runner is already active")
	ErrRunnerNotActive    = errors.New("runner is not active")
	ErrRunnerNotPaused    = errors.New("runner is not paused")
	ErrRunComplete        = errors.New("simulation run is complete")
)
