package agents

import (
	"context"
	"log/slog"

	"github.com/tailored-agentic-units/sommelier/orchestrate/messaging"
	"github.com/tailored-agentic-units/sommelier/sommelier"
)

// Enricher supplies extra context for a request from an external tool service.
type Enricher interface {
	Enrich(ctx context.Context, query sommelier.RecommendationQuery) (map[string]any, error)
}

type EnricherFunc func(ctx context.Context, query sommelier.RecommendationQuery) (map[string]any, error)

func (f EnricherFunc) Enrich(ctx context.Context, query sommelier.RecommendationQuery) (map[string]any, error) {
	return f(ctx, query)
}

// MCPAdapter forwards requests to an Enricher. Without one it answers with an
// empty context.
type MCPAdapter struct {
	*Base
	enricher Enricher
}

func NewMCPAdapter(enricher Enricher, logger *slog.Logger) *MCPAdapter {
	a := &MCPAdapter{
		Base:     newBase(sommelier.AgentMCPAdapter, "MCP Adapter", logger),
		enricher: enricher,
	}
	a.handle(sommelier.TypeMCPRequest, a.enrich)
	return a
}

func (a *MCPAdapter) enrich(ctx context.Context, msg *messaging.Message) messaging.Result[*messaging.Message] {
	query, agentErr := decode[sommelier.RecommendationQuery](a.Base, msg)
	if agentErr != nil {
		return messaging.Fail[*messaging.Message](agentErr)
	}

	if a.enricher == nil {
		return a.reply(msg, sommelier.TypeMCPResult, sommelier.MCPResult{})
	}

	enrichment, err := a.enricher.Enrich(ctx, query)
	if err != nil {
		return messaging.Fail[*messaging.Message](
			messaging.WrapError(err, messaging.CodeMCPService, a.id, msg.CorrelationID).WithRecoverable(true),
		)
	}

	return a.reply(msg, sommelier.TypeMCPResult, sommelier.MCPResult{Context: enrichment})
}
