package scheduler

import "errors"

var (
	ErrUnknownPolicy        = errors.New("unknown scheduling policy")
	ErrInvalidQuantum       = errors.New("quantum must be a positive integer")
	ErrInvalidProbability   = errors.New("file access probability must be within [0, 1]")
	ErrInvalidProcess       = errors.New("invalid process")
	ErrProcessAlreadyQueued = errors.New("process was already admitted")
	ErrNotRunning           = errors.New("process is not the running process")
)
