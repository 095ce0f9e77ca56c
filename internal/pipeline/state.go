package pipeline

import (
	"errors"
	"fmt"
)

// State is a step of a run's lifecycle.
type State int

const (
	StateIdle State = iota
	StateRunning
	StateCompleted
	StateInterrupted
	StateFaulted
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateInterrupted:
		return "interrupted"
	case StateFaulted:
		return "faulted"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

var (
	// ErrInterrupted wraps the context error of a cancelled run.
	ErrInterrupted = errors.New("run interrupted")
	// ErrPanic wraps a panic recovered while processing lines.
	ErrPanic = errors.New("panic while processing")
	// ErrBusy is returned when Run is called on a pipeline that is already running.
	ErrBusy = errors.New("pipeline already running")
)

// RunError reports a run that stopped before the end of its input.
// Index is the line the next run resumes from.
type RunError struct {
	State State
	Index uint64
	Err   error
}

func (e *RunError) Error() string {
	return fmt.Sprintf("run %s at line %d: %v", e.State, e.Index, e.Err)
}

func (e *RunError) Unwrap() error { return e.Err }
