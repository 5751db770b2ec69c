package graph

import (
	"context"
	"errors"

	"github.com/tailored-agentic-units/sommelier/orchestrate/breaker"
	"github.com/tailored-agentic-units/sommelier/orchestrate/messaging"
	"github.com/tailored-agentic-units/sommelier/orchestrate/retry"
)

// BreakerClient runs queries through a retry manager and its circuit breaker, and
// reports failures as AgentErrors: NEO4J_CONNECTION_FAILED (recoverable) when the
// backend is unreachable or the circuit is open, NEO4J_QUERY_FAILED otherwise.
type BreakerClient struct {
	client  Client
	manager *retry.Manager
	source  string
}

func NewBreakerClient(client Client, manager *retry.Manager, source string) *BreakerClient {
	return &BreakerClient{
		client:  client,
		manager: manager,
		source:  source,
	}
}

// RetryOn matches the failures worth retrying against a graph backend.
func RetryOn() []retry.Matcher {
	return []retry.Matcher{retry.Is(ErrConnection)}
}

func (c *BreakerClient) ExecuteQuery(ctx context.Context, query string, params map[string]any) ([]map[string]any, error) {
	rows, err := retry.Do(ctx, c.manager, func(ctx context.Context) ([]map[string]any, error) {
		return c.client.ExecuteQuery(ctx, query, params)
	})
	if err == nil {
		return rows, nil
	}

	if errors.Is(err, ErrConnection) || errors.Is(err, breaker.ErrCircuitOpen) {
		return nil, messaging.WrapError(err, messaging.CodeGraphConnection, c.source, "").WithRecoverable(true)
	}
	return nil, messaging.WrapError(err, messaging.CodeGraphQuery, c.source, "")
}
