package agents

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/tailored-agentic-units/sommelier/orchestrate/config"
	"github.com/tailored-agentic-units/sommelier/orchestrate/messaging"
	"github.com/tailored-agentic-units/sommelier/sommelier"
)

// SourceFallback marks degraded recommendations.
const SourceFallback = "fallback"

// Fallback produces a degraded response. It asks the LLM for general advice and
// answers with a static message when that fails, so it only fails on a bad payload.
type Fallback struct {
	*Base
	defaultMessage string
}

func NewFallback(defaultMessage string, logger *slog.Logger) *Fallback {
	if defaultMessage == "" {
		defaultMessage = config.DefaultFallbackMessage
	}
	a := &Fallback{
		Base:           newBase(sommelier.AgentFallback, "Fallback", logger),
		defaultMessage: defaultMessage,
	}
	a.handle(sommelier.TypeFallbackRequest, a.fallback)
	return a
}

func (a *Fallback) fallback(ctx context.Context, msg *messaging.Message) messaging.Result[*messaging.Message] {
	request, agentErr := decode[sommelier.FallbackRequest](a.Base, msg)
	if agentErr != nil {
		return messaging.Fail[*messaging.Message](agentErr)
	}

	text, err := a.prompt(ctx, fallbackPrompt(request), msg.CorrelationID)
	text = strings.TrimSpace(text)
	if err != nil || text == "" {
		attrs := []any{slog.String("correlation_id", msg.CorrelationID)}
		if err != nil {
			attrs = append(attrs, slog.String("error", err.Error()))
		}
		a.logger.WarnContext(ctx, "using static fallback message", attrs...)
		text = a.defaultMessage
	}

	return a.reply(msg, sommelier.TypeFallbackResult, sommelier.Recommendation{
		Wines:    []sommelier.Wine{},
		Source:   SourceFallback,
		Fallback: true,
		Message:  text,
	})
}

func fallbackPrompt(request sommelier.FallbackRequest) string {
	if request.Message == "" {
		return "A guest asked for a wine recommendation without saying what they like. " +
			"Suggest two versatile wines in one short paragraph."
	}
	return fmt.Sprintf("A guest asked: %q. We could not search our catalog (%s). "+
		"Suggest two versatile wines in one short paragraph.", request.Message, request.Reason)
}
