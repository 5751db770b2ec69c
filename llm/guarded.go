package llm

import (
	"context"

	"github.com/tailored-agentic-units/sommelier/orchestrate/retry"
)

// Guarded sends every prompt through a retry manager, and so through the manager's
// circuit breaker.
type Guarded struct {
	client  Client
	manager *retry.Manager
}

func NewGuarded(client Client, manager *retry.Manager) *Guarded {
	return &Guarded{
		client:  client,
		manager: manager,
	}
}

func (g *Guarded) SendPrompt(ctx context.Context, prompt, correlationID string) (string, error) {
	return retry.Do(ctx, g.manager, func(ctx context.Context) (string, error) {
		return g.client.SendPrompt(ctx, prompt, correlationID)
	})
}
