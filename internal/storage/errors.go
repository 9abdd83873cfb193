package storage

import "errors"

var (
	ErrRunNotFound    = errors.New("run not found")
	ErrRegistryFull   = errors.New("run registry is full")
	ErrResultNotFound = errors.New("result not found")
	ErrUnknownDriver  = errors.New("unknown storage driver")
)
