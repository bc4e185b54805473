package engine

import "errors"

var (
	// ErrConfiguration is returned when an engine is constructed with an
	// invalid configuration, or a scenario obstacle is out of range.
	ErrConfiguration = errors.New("invalid configuration")

	// ErrInvalidAction is returned by Step for actions outside {0,1,2}.
	ErrInvalidAction = errors.New("invalid action")
)
