package messaging

// Result is a tagged Ok/Err value. Exactly one arm is populated.
type Result[T any] struct {
	data T
	err  *AgentError
}

func Ok[T any](data T) Result[T] {
	return Result[T]{data: data}
}

// Fail returns the Err arm. A nil error is replaced with a HANDLER_EXECUTION_ERROR so
// that an Err result always carries a cause.
func Fail[T any](err *AgentError) Result[T] {
	if err == nil {
		err = NewAgentError(CodeHandlerExecution, "failure without error", "", "")
	}
	return Result[T]{err: err}
}

func (r Result[T]) IsOk() bool {
	return r.err == nil
}

func (r Result[T]) Data() T {
	return r.data
}

func (r Result[T]) Failure() *AgentError {
	return r.err
}

// Unpack returns the result as a conventional Go value/error pair.
func (r Result[T]) Unpack() (T, error) {
	if r.err != nil {
		var zero T
		return zero, r.err
	}
	return r.data, nil
}
