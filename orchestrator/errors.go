package orchestrator

import (
	"errors"
	"fmt"
)

type Kind string

const (
	SolveFailure      Kind = "SolveFailure"
	NavigationFailure Kind = "NavigationFailure"
	WaitTimeout       Kind = "WaitTimeout"
)

var (
	ErrSolveFailure      = errors.New("solver returned no usable token")
	ErrNavigationFailure = errors.New("page failed to load")
	ErrWaitTimeout       = errors.New("confirmation condition not satisfied in time")
)

func (k Kind) sentinel() error {
	switch k {
	case SolveFailure:
		return ErrSolveFailure
	case NavigationFailure:
		return ErrNavigationFailure
	case WaitTimeout:
		return ErrWaitTimeout
	}
	return nil
}

// Terminal failure of a workflow run
type Error struct {
	Kind      Kind
	Op        string
	SessionID string
	Err       error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// errors.Is(err, ErrWaitTimeout) matches by kind
func (e *Error) Is(target error) bool {
	return target != nil && target == e.Kind.sentinel()
}

func failure(kind Kind, op, sessionID string, err error) error {
	return &Error{Kind: kind, Op: op, SessionID: sessionID, Err: err}
}
