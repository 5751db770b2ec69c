package workflows

import "github.com/tailored-agentic-units/sommelier/observability"

const (
	// Sequential chains
	EventChainStart    observability.EventType = "chain.start"
	EventChainComplete observability.EventType = "chain.complete"
	EventStepStart     observability.EventType = "step.start"
	EventStepComplete  observability.EventType = "step.complete"

	// Conditional routing
	EventRouteEvaluate observability.EventType = "route.evaluate"
	EventRouteSelect   observability.EventType = "route.select"
	EventRouteExecute  observability.EventType = "route.execute"
)
