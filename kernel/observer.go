package kernel

import "github.com/tailored-agentic-units/sommelier/observability"

// Kernel lifecycle events.
const (
	EventStart    observability.EventType = "kernel.start"
	EventStop     observability.EventType = "kernel.stop"
	EventReplay   observability.EventType = "kernel.replay"
	EventRunError observability.EventType = "kernel.error"
)
