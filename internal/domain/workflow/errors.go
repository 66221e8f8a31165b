package workflow

import "errors"

var (
	// ErrInvalidTransition is returned when a report does not apply to the current state
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrInvalidState is returned when a state is not valid
	ErrInvalidState = errors.New("invalid state")
)
