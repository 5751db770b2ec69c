package hub

import "github.com/tailored-agentic-units/sommelier/observability"

const (
	EventAgentRegistered observability.EventType = "bus.agent.registered"
	EventMessageRouted   observability.EventType = "bus.message.routed"
	EventNoHandler       observability.EventType = "bus.message.no_handler"
	EventHandlerFailed   observability.EventType = "bus.handler.failed"
	EventMessageDropped  observability.EventType = "bus.message.dropped"
	EventRequestTimeout  observability.EventType = "bus.request.timeout"
)
