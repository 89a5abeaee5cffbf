package negotiation

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidStateTransition = errors.New("invalid state transition")
	ErrEngineFailure          = errors.New("negotiation engine failure")
	ErrGatheringTimeout       = errors.New("candidate gathering timed out")
	ErrEmptyDescription       = errors.New("empty description")
)

// Error describes a failed controller operation and the state it failed in.
type Error struct {
	Op      string
	State   State
	Err     error
	Details string
}

func (e *Error) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s (%s): %v: %s", e.Op, e.State, e.Err, e.Details)
	}
	return fmt.Sprintf("%s (%s): %v", e.Op, e.State, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func transitionError(op string, state State, details string) *Error {
	return &Error{Op: op, State: state, Err: ErrInvalidStateTransition, Details: details}
}

func engineError(op string, state State, err error) *Error {
	return &Error{Op: op, State: state, Err: fmt.Errorf("%w: %w", ErrEngineFailure, err)}
}
