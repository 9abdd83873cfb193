package memory

import "errors"

var (
	ErrInvalidFrameCount  = errors.New("frame count must be positive")
	ErrUnknownReplacement = errors.New("unknown page replacement policy")
)
