package agents

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/tailored-agentic-units/sommelier/orchestrate/messaging"
	"github.com/tailored-agentic-units/sommelier/sommelier"
)

// Explanation writes prose for a recommendation. When no LLM is configured it
// falls back to a template.
type Explanation struct {
	*Base
}

func NewExplanation(logger *slog.Logger) *Explanation {
	a := &Explanation{Base: newBase(sommelier.AgentExplanation, "Explanation", logger)}
	a.handle(sommelier.TypeGenerateExplanation, a.explain)
	return a
}

func (a *Explanation) explain(ctx context.Context, msg *messaging.Message) messaging.Result[*messaging.Message] {
	request, agentErr := decode[sommelier.ExplanationRequest](a.Base, msg)
	if agentErr != nil {
		return messaging.Fail[*messaging.Message](agentErr)
	}
	if len(request.Recommendation.Wines) == 0 {
		return a.fail(msg, messaging.CodeInvalidPayload, "nothing to explain: recommendation has no wines")
	}

	text, err := a.prompt(ctx, explanationPrompt(request), msg.CorrelationID)
	if err != nil {
		if !messaging.HasCode(err, messaging.CodeLLMNotConfigured) {
			return messaging.Fail[*messaging.Message](
				messaging.WrapError(err, messaging.CodeLLMService, a.id, msg.CorrelationID),
			)
		}
		text = TemplateExplanation(request.Recommendation)
	}

	return a.reply(msg, sommelier.TypeExplanationResult, sommelier.Explanation{Text: strings.TrimSpace(text)})
}

func explanationPrompt(request sommelier.ExplanationRequest) string {
	var b strings.Builder
	b.WriteString("In two or three friendly sentences, explain why these wines suit the request.\n")
	if request.Request.Message != "" {
		fmt.Fprintf(&b, "Request: %s\n", request.Request.Message)
	}
	for _, w := range request.Recommendation.Wines {
		fmt.Fprintf(&b, "- %s (%s, %s, %s)\n", w.Name, w.Grape, w.Region, w.Type)
	}
	if request.Recommendation.Reasoning != "" {
		fmt.Fprintf(&b, "Selection notes: %s\n", request.Recommendation.Reasoning)
	}
	return b.String()
}

// TemplateExplanation describes a recommendation without a language model.
func TemplateExplanation(rec sommelier.Recommendation) string {
	names := make([]string, 0, len(rec.Wines))
	for _, w := range rec.Wines {
		names = append(names, w.Name)
	}

	text := "We recommend " + strings.Join(names, ", ") + "."
	if rec.Reasoning != "" {
		text += " " + rec.Reasoning
	}
	if top := rec.Wines[0]; top.Description != "" {
		text += fmt.Sprintf(" %s: %s", top.Name, top.Description)
	}
	return text
}
