package errors

import "errors"

var (
	// ErrNotFound is a generic sentinel for missing resources.
	ErrNotFound = errors.New("not found")
	// ErrInvalidArgument is a generic sentinel for invalid input.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrInvalidTransition is returned when a job status would regress.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrTerminal is returned when a write targets a job that already finished.
	ErrTerminal = errors.New("job is terminal")
)
