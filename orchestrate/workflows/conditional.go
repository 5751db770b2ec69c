package workflows

import (
	"context"
	"fmt"

	"github.com/tailored-agentic-units/sommelier/observability"
)

const conditionalSource = "workflows.ProcessConditional"

// RoutePredicate evaluates state and names the route to take.
type RoutePredicate[TState any] func(state TState) (route string, err error)

// RouteHandler processes state for one route.
type RouteHandler[TState any] func(
	ctx context.Context,
	state TState,
) (TState, error)

// Routes maps route names to handlers. Default, when set, handles any route the
// predicate names that has no entry in Handlers.
type Routes[TState any] struct {
	Handlers map[string]RouteHandler[TState]
	Default  RouteHandler[TState]
}

// ProcessConditional selects a route with predicate and runs its handler.
//
// On any failure the original state is returned together with a *ConditionalError:
// predicate errors, an unknown route with no default, a cancelled context, or a
// handler error.
func ProcessConditional[TState any](
	ctx context.Context,
	observer observability.Observer,
	state TState,
	predicate RoutePredicate[TState],
	routes Routes[TState],
) (TState, error) {
	observer = observability.OrNoOp(observer)

	if err := ctx.Err(); err != nil {
		return state, &ConditionalError[TState]{
			State: state,
			Err:   fmt.Errorf("context cancelled before evaluation: %w", err),
		}
	}

	emit(ctx, observer, EventRouteEvaluate, observability.LevelVerbose, conditionalSource, map[string]any{
		"route_count": len(routes.Handlers),
	})

	route, err := predicate(state)
	if err != nil {
		return state, &ConditionalError[TState]{
			State: state,
			Err:   fmt.Errorf("predicate evaluation failed: %w", err),
		}
	}

	handler, found := routes.Handlers[route]
	if !found {
		if routes.Default == nil {
			return state, &ConditionalError[TState]{
				Route: route,
				State: state,
				Err:   fmt.Errorf("route '%s' not found and no default handler", route),
			}
		}
		handler = routes.Default
		route = "default"
	}

	emit(ctx, observer, EventRouteSelect, observability.LevelVerbose, conditionalSource, map[string]any{
		"route":       route,
		"has_default": routes.Default != nil,
	})

	result, err := handler(ctx, state)
	if err != nil {
		emit(ctx, observer, EventRouteExecute, observability.LevelWarning, conditionalSource, map[string]any{
			"route": route,
			"error": true,
		})
		return state, &ConditionalError[TState]{
			Route: route,
			State: state,
			Err:   fmt.Errorf("handler execution failed: %w", err),
		}
	}

	emit(ctx, observer, EventRouteExecute, observability.LevelVerbose, conditionalSource, map[string]any{
		"route": route,
		"error": false,
	})

	return result, nil
}
