package agents

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/tailored-agentic-units/sommelier/graph"
	"github.com/tailored-agentic-units/sommelier/llm"
	"github.com/tailored-agentic-units/sommelier/orchestrate/config"
	"github.com/tailored-agentic-units/sommelier/orchestrate/messaging"
	"github.com/tailored-agentic-units/sommelier/sommelier"
)

const defaultRecommendationLimit = 3

// Recommendation answers from the knowledge graph.
type Recommendation struct {
	*Base
	graph graph.Client
	limit int
}

func NewRecommendation(client graph.Client, limit int, logger *slog.Logger) *Recommendation {
	if limit <= 0 {
		limit = defaultRecommendationLimit
	}
	a := &Recommendation{
		Base:  newBase(sommelier.AgentRecommendation, "Knowledge Graph Recommendation", logger),
		graph: client,
		limit: limit,
	}
	a.handle(sommelier.TypeRecommendationRequest, a.recommend)
	return a
}

func (a *Recommendation) recommend(ctx context.Context, msg *messaging.Message) messaging.Result[*messaging.Message] {
	query, agentErr := decode[sommelier.RecommendationQuery](a.Base, msg)
	if agentErr != nil {
		return messaging.Fail[*messaging.Message](agentErr)
	}

	prefs := storedPreferences(a.Base, query.UserID).Merge(query.Preferences)

	limit := query.Limit
	if limit <= 0 {
		limit = a.limit
	}

	wines, err := graph.Query[sommelier.Wine](ctx, a.graph, graph.QueryWinesByPreferences, queryParams(prefs, query.Ingredients, limit))
	if err != nil {
		return messaging.Fail[*messaging.Message](
			messaging.WrapError(err, messaging.CodeGraphQuery, a.id, msg.CorrelationID),
		)
	}

	result := sommelier.Recommendation{
		Wines:  wines,
		Source: config.SourceKnowledgeGraph,
	}
	if len(wines) == 0 {
		result.Error = "no wines in the catalog match the requested preferences"
	} else {
		result.Reasoning = reasoning(prefs, query.Ingredients, query.Value)
	}

	a.logger.DebugContext(
		ctx,
		"knowledge graph recommendation",
		slog.String("correlation_id", msg.CorrelationID),
		slog.Int("wines", len(wines)),
	)

	return a.reply(msg, sommelier.TypeRecommendationResult, result)
}

// storedPreferences returns the preferences the user preference agent shared with
// b for userID.
func storedPreferences(b *Base, userID string) *sommelier.Preferences {
	if userID == "" || b.bus == nil {
		return nil
	}
	entry, ok := b.bus.GetContext(b.id, PreferencesKey(userID))
	if !ok {
		return nil
	}
	prefs, _ := entry.Value.(*sommelier.Preferences)
	return prefs
}

func queryParams(prefs *sommelier.Preferences, ingredients []string, limit int) map[string]any {
	params := map[string]any{
		"type":        prefs.WineType,
		"body":        prefs.Body,
		"sweetness":   prefs.Sweetness,
		"regions":     prefs.Regions,
		"grapes":      prefs.Grapes,
		"ingredients": ingredients,
		"limit":       limit,
		"minPrice":    0.0,
		"maxPrice":    0.0,
	}
	if !prefs.PriceRange.IsZero() {
		params["minPrice"] = prefs.PriceRange.Min
		params["maxPrice"] = prefs.PriceRange.Max
	}
	return params
}

func reasoning(prefs *sommelier.Preferences, ingredients []string, value *sommelier.ValueAnalysis) string {
	var parts []string
	if prefs.WineType != "" {
		parts = append(parts, prefs.WineType+" wines")
	}
	if prefs.Body != "" {
		parts = append(parts, prefs.Body+"-bodied")
	}
	if len(prefs.Regions) > 0 {
		parts = append(parts, "from "+strings.Join(prefs.Regions, ", "))
	}
	if len(ingredients) > 0 {
		parts = append(parts, "pairing with "+strings.Join(ingredients, ", "))
	}
	if value != nil && value.Band != sommelier.BandAny && value.Band != "" {
		parts = append(parts, "in the "+value.Band+" price band")
	}

	if len(parts) == 0 {
		return "Highest rated wines in the catalog."
	}
	return "Selected for " + strings.Join(parts, ", ") + "."
}

// LLMRecommendation asks the language model for wines as structured output.
type LLMRecommendation struct {
	*Base
}

type llmRecommendation struct {
	Wines     []sommelier.Wine `json:"wines"`
	Reasoning string           `json:"reasoning"`
}

func NewLLMRecommendation(logger *slog.Logger) *LLMRecommendation {
	a := &LLMRecommendation{Base: newBase(sommelier.AgentLLMRecommendation, "LLM Recommendation", logger)}
	a.handle(sommelier.TypeRecommendationRequest, a.recommend)
	return a
}

func (a *LLMRecommendation) recommend(ctx context.Context, msg *messaging.Message) messaging.Result[*messaging.Message] {
	query, agentErr := decode[sommelier.RecommendationQuery](a.Base, msg)
	if agentErr != nil {
		return messaging.Fail[*messaging.Message](agentErr)
	}
	query.Preferences = storedPreferences(a.Base, query.UserID).Merge(query.Preferences)

	reply, err := llm.SendStructured[llmRecommendation](ctx, promptFunc(a.prompt), recommendationPrompt(query), msg.CorrelationID)
	if err != nil {
		failure := messaging.WrapError(err, messaging.CodeLLMService, a.id, msg.CorrelationID)
		if errors.Is(err, llm.ErrNoJSON) {
			failure.Message = "language model reply did not contain a recommendation"
		}
		return messaging.Fail[*messaging.Message](failure)
	}

	result := sommelier.Recommendation{
		Wines:     reply.Wines,
		Reasoning: reply.Reasoning,
		Source:    config.SourceLLM,
	}
	if len(result.Wines) == 0 {
		result.Error = "language model recommended no wines"
	}

	return a.reply(msg, sommelier.TypeRecommendationResult, result)
}

func recommendationPrompt(query sommelier.RecommendationQuery) string {
	request, _ := json.MarshalIndent(query, "", "  ")

	limit := query.Limit
	if limit <= 0 {
		limit = defaultRecommendationLimit
	}

	return fmt.Sprintf(`You are a sommelier. Recommend up to %d wines for this request:

%s

Answer with JSON only, in the form:
{"wines": [{"id": "", "name": "", "type": "", "region": "", "grape": "", "vintage": 0, "price": 0, "description": ""}], "reasoning": ""}`,
		limit, request)
}
