package workflows

// ProgressFunc is called after each successful step with the number of completed
// steps, the total, and the state so far. It is not called for failed steps.
type ProgressFunc[TContext any] func(
	completed int,
	total int,
	state TContext,
)
