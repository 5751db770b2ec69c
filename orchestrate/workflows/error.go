package workflows

import "fmt"

// ChainError reports the step at which a chain stopped.
//
// It keeps the item being processed and the accumulated state at the time of the
// failure, and unwraps to the underlying error so errors.Is and errors.As see through it:
//
//	var chainErr *workflows.ChainError[Stage, Pipeline]
//	if errors.As(err, &chainErr) {
//	    log.Printf("stage %d failed", chainErr.StepIndex)
//	}
type ChainError[TItem, TContext any] struct {
	// StepIndex is the 0-based index of the step that failed
	StepIndex int

	// Item is the item being processed when the error occurred
	Item TItem

	// State is the accumulated context at the time of failure
	State TContext

	// Err is the underlying error that caused the failure
	Err error
}

func (e *ChainError[TItem, TContext]) Error() string {
	return fmt.Sprintf("chain failed at step %d: %v", e.StepIndex, e.Err)
}

func (e *ChainError[TItem, TContext]) Unwrap() error {
	return e.Err
}

// ConditionalError reports a routing failure, with the selected route when one was chosen.
type ConditionalError[TState any] struct {
	Route string
	State TState
	Err   error
}

func (e *ConditionalError[TState]) Error() string {
	if e.Route == "" {
		return fmt.Sprintf("conditional routing failed: %v", e.Err)
	}
	return fmt.Sprintf("conditional routing failed for route '%s': %v", e.Route, e.Err)
}

func (e *ConditionalError[TState]) Unwrap() error {
	return e.Err
}
