package filesystem

import "errors"

var (
	ErrNoResources       = errors.New("file system needs at least one resource")
	ErrDuplicateResource = errors.New("duplicate resource name")
	ErrEmptyResourceName = errors.New("resource name is empty")
)
