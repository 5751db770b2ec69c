// Package workflows provides the generic sequencing primitives the coordinator is built on.
//
// # Sequential Chain
//
// ProcessChain folds a slice of items into an accumulated state, one item at a time,
// stopping at the first error. The coordinator runs its pipeline stages this way:
// each stage is an item and the in-flight recommendation is the state.
//
//	result, err := workflows.ProcessChain(ctx, cfg, observer, stages, initial,
//	    func(ctx context.Context, stage Stage, state Pipeline) (Pipeline, error) {
//	        return stage.Run(ctx, state)
//	    }, nil)
//
// Failures are returned as *ChainError, which carries the step index, the item, and the
// state at the point of failure and unwraps to the processor's error.
//
// # Conditional Routing
//
// ProcessConditional evaluates a predicate against the state and runs the handler
// registered for the selected route, or the default handler when the route is unknown.
// The coordinator uses it to choose between recommendation sources.
//
// # Observability
//
// Both primitives emit events to the observer they are given: chain.start,
// step.start, step.complete, chain.complete, route.evaluate, route.select, and
// route.execute. A nil observer discards events.
package workflows
