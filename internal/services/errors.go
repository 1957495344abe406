package services

import "errors"

var (
	// ErrInvalidArgument marks blank or malformed caller input.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrInvalidScore marks a bounded numeric field outside [0.0, 1.0] or non-finite.
	ErrInvalidScore = errors.New("score must be within [0.0, 1.0]")
	// ErrInvalidStatus marks an unrecognized agent status token.
	ErrInvalidStatus = errors.New("invalid agent status")
	// ErrMissingPrerequisite marks a stage submission whose upstream record does not exist.
	ErrMissingPrerequisite = errors.New("missing prerequisite record")
)
