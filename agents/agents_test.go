package agents_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tailored-agentic-units/sommelier/agents"
	"github.com/tailored-agentic-units/sommelier/graph"
	"github.com/tailored-agentic-units/sommelier/orchestrate/config"
	"github.com/tailored-agentic-units/sommelier/orchestrate/hub"
	"github.com/tailored-agentic-units/sommelier/orchestrate/messaging"
	"github.com/tailored-agentic-units/sommelier/sommelier"
)

const tester = "tester"

type fakeLLM struct {
	mu      sync.Mutex
	reply   string
	err     error
	prompts []string
}

func (f *fakeLLM) SendPrompt(ctx context.Context, prompt, correlationID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompts = append(f.prompts, prompt)
	return f.reply, f.err
}

func newBus(t *testing.T, llmClient hub.Prompter, registered ...agents.Agent) *hub.Hub {
	t.Helper()

	var opts []hub.Option
	if llmClient != nil {
		opts = append(opts, hub.WithLLM(llmClient))
	}
	bus := hub.New(config.HubConfig{DefaultTimeout: config.Duration(2 * time.Second)}, opts...)
	for _, a := range registered {
		a.Register(bus)
	}
	return bus
}

func send(t *testing.T, bus *hub.Hub, target, msgType, userID string, payload any) (*messaging.Message, error) {
	t.Helper()

	msg := messaging.New(msgType, payload, tester, "conv-1", "", target).UserID(userID).Build()
	return bus.SendMessageAndWaitForResponse(context.Background(), target, msg, 0).Unpack()
}

func payloadOf[T any](t *testing.T, msg *messaging.Message) T {
	t.Helper()
	require.NotNil(t, msg)
	out, err := messaging.DecodePayload[T](msg)
	require.NoError(t, err)
	return out
}

func requireCode(t *testing.T, err error, code messaging.ErrorCode) *messaging.AgentError {
	t.Helper()
	var agentErr *messaging.AgentError
	require.True(t, errors.As(err, &agentErr), "expected AgentError, got %v", err)
	assert.Equal(t, code, agentErr.Code)
	return agentErr
}

func TestRegister_DirectoryAndHandlers(t *testing.T) {
	agent := agents.NewValueAnalysis(nil)
	bus := newBus(t, nil, agent)

	info, ok := bus.Agent(sommelier.AgentValueAnalysis)
	require.True(t, ok)
	assert.Equal(t, "Value Analysis", info.Name)
	assert.Equal(t, []string{sommelier.TypeAnalyzeValue}, info.Capabilities)
	assert.True(t, bus.HasHandler(sommelier.AgentValueAnalysis, sommelier.TypeAnalyzeValue))
}

func TestInputValidation(t *testing.T) {
	bus := newBus(t, nil, agents.NewInputValidation(nil))

	resp, err := send(t, bus, sommelier.AgentInputValidation, sommelier.TypeValidateInput, "", sommelier.Request{
		Message: "Looking for a full-bodied red from Rioja under $30 to go with lamb",
	})
	require.NoError(t, err)
	assert.Equal(t, sommelier.TypeValidationResult, resp.Type)
	assert.Equal(t, tester, resp.TargetAgent)

	result := payloadOf[sommelier.ValidationResult](t, resp)
	assert.True(t, result.Valid)
	require.NotNil(t, result.Preferences)
	assert.Equal(t, "red", result.Preferences.WineType)
	assert.Equal(t, "full", result.Preferences.Body)
	assert.Equal(t, []string{"Rioja"}, result.Preferences.Regions)
	require.NotNil(t, result.Preferences.PriceRange)
	assert.Equal(t, 30.0, result.Preferences.PriceRange.Max)
	assert.Equal(t, []string{"lamb"}, result.Ingredients)
}

func TestInputValidation_Errors(t *testing.T) {
	bus := newBus(t, nil, agents.NewInputValidation(nil))

	_, err := send(t, bus, sommelier.AgentInputValidation, sommelier.TypeValidateInput, "", nil)
	requireCode(t, err, messaging.CodeMissingPayload)

	_, err = send(t, bus, sommelier.AgentInputValidation, sommelier.TypeValidateInput, "", sommelier.Request{Message: "  "})
	requireCode(t, err, messaging.CodeInvalidPayload)

	_, err = send(t, bus, sommelier.AgentInputValidation, sommelier.TypeValidateInput, "", "not a request")
	requireCode(t, err, messaging.CodeInvalidPayload)
}

func TestExtract(t *testing.T) {
	unknown := agents.Extract("hello there")
	assert.False(t, unknown.Valid)
	assert.NotEmpty(t, unknown.Issues)
	assert.Nil(t, unknown.Preferences)

	ranged := agents.Extract("something sparkling between $20 and $40 for oysters")
	require.NotNil(t, ranged.Preferences)
	assert.Equal(t, "sparkling", ranged.Preferences.WineType)
	assert.Equal(t, &sommelier.PriceRange{Min: 20, Max: 40}, ranged.Preferences.PriceRange)
	assert.Equal(t, []string{"oysters"}, ranged.Ingredients)

	sweet := agents.Extract("an off-dry Riesling with spicy food")
	require.NotNil(t, sweet.Preferences)
	assert.Equal(t, "off-dry", sweet.Preferences.Sweetness)
	assert.Equal(t, []string{"Riesling"}, sweet.Preferences.Grapes)
	assert.Equal(t, []string{"spicy food"}, sweet.Ingredients)
}

func TestAnalyze(t *testing.T) {
	tests := []struct {
		price *sommelier.PriceRange
		band  string
	}{
		{nil, sommelier.BandAny},
		{&sommelier.PriceRange{Max: 12}, sommelier.BandBudget},
		{&sommelier.PriceRange{Min: 10, Max: 40}, sommelier.BandMid},
		{&sommelier.PriceRange{Max: 90}, sommelier.BandPremium},
		{&sommelier.PriceRange{Min: 150}, sommelier.BandLuxury},
	}

	for _, tt := range tests {
		analysis := agents.Analyze(tt.price)
		assert.Equal(t, tt.band, analysis.Band)
		assert.NotEmpty(t, analysis.Guidance)
	}
}

func TestValueAnalysis(t *testing.T) {
	bus := newBus(t, nil, agents.NewValueAnalysis(nil))

	resp, err := send(t, bus, sommelier.AgentValueAnalysis, sommelier.TypeAnalyzeValue, "", sommelier.RecommendationQuery{
		Preferences: &sommelier.Preferences{PriceRange: &sommelier.PriceRange{Max: 25}},
	})
	require.NoError(t, err)
	assert.Equal(t, sommelier.BandMid, payloadOf[sommelier.ValueAnalysis](t, resp).Band)

	_, err = send(t, bus, sommelier.AgentValueAnalysis, sommelier.TypeAnalyzeValue, "", sommelier.RecommendationQuery{
		Preferences: &sommelier.Preferences{PriceRange: &sommelier.PriceRange{Min: 50, Max: 20}},
	})
	requireCode(t, err, messaging.CodeInvalidPayload)
}

func TestUserPreference_AccumulatesAndShares(t *testing.T) {
	bus := newBus(t, nil, agents.NewUserPreference(nil))

	_, err := send(t, bus, sommelier.AgentUserPreference, sommelier.TypeUpdatePreferences, "", sommelier.RecommendationQuery{
		UserID:      "u1",
		Preferences: &sommelier.Preferences{WineType: "red"},
	})
	require.NoError(t, err)

	resp, err := send(t, bus, sommelier.AgentUserPreference, sommelier.TypeUpdatePreferences, "u1", sommelier.RecommendationQuery{
		Preferences: &sommelier.Preferences{Body: "full"},
	})
	require.NoError(t, err)

	merged := payloadOf[*sommelier.Preferences](t, resp)
	assert.Equal(t, "red", merged.WineType)
	assert.Equal(t, "full", merged.Body)

	for _, agentID := range []string{sommelier.AgentRecommendation, sommelier.AgentLLMRecommendation} {
		entry, ok := bus.GetContext(agentID, agents.PreferencesKey("u1"))
		require.True(t, ok, agentID)
		shared := entry.Value.(*sommelier.Preferences)
		assert.Equal(t, "full", shared.Body)
		assert.Equal(t, "u1", entry.Metadata["userId"])
	}
}

func TestUserPreference_Anonymous(t *testing.T) {
	bus := newBus(t, nil, agents.NewUserPreference(nil))

	resp, err := send(t, bus, sommelier.AgentUserPreference, sommelier.TypeUpdatePreferences, "", sommelier.RecommendationQuery{
		Preferences: &sommelier.Preferences{WineType: "white"},
	})
	require.NoError(t, err)
	assert.Equal(t, "white", payloadOf[*sommelier.Preferences](t, resp).WineType)

	_, ok := bus.GetContext(sommelier.AgentUserPreference, agents.PreferencesKey(""))
	assert.False(t, ok)
}

func TestMCPAdapter(t *testing.T) {
	query := sommelier.RecommendationQuery{Ingredients: []string{"duck"}}

	bus := newBus(t, nil, agents.NewMCPAdapter(nil, nil))
	resp, err := send(t, bus, sommelier.AgentMCPAdapter, sommelier.TypeMCPRequest, "", query)
	require.NoError(t, err)
	assert.Empty(t, payloadOf[sommelier.MCPResult](t, resp).Context)

	bus = newBus(t, nil, agents.NewMCPAdapter(agents.EnricherFunc(func(ctx context.Context, q sommelier.RecommendationQuery) (map[string]any, error) {
		return map[string]any{"season": "autumn", "ingredients": len(q.Ingredients)}, nil
	}), nil))
	resp, err = send(t, bus, sommelier.AgentMCPAdapter, sommelier.TypeMCPRequest, "", query)
	require.NoError(t, err)
	assert.Equal(t, "autumn", payloadOf[sommelier.MCPResult](t, resp).Context["season"])

	bus = newBus(t, nil, agents.NewMCPAdapter(agents.EnricherFunc(func(context.Context, sommelier.RecommendationQuery) (map[string]any, error) {
		return nil, errors.New("tool server unavailable")
	}), nil))
	_, err = send(t, bus, sommelier.AgentMCPAdapter, sommelier.TypeMCPRequest, "", query)
	agentErr := requireCode(t, err, messaging.CodeMCPService)
	assert.True(t, agentErr.Recoverable)
}

func catalog(t *testing.T) *graph.CatalogClient {
	t.Helper()
	client, err := graph.New(&graph.Config{})
	require.NoError(t, err)
	return client
}

func TestRecommendation_FromGraph(t *testing.T) {
	bus := newBus(t, nil, agents.NewRecommendation(catalog(t), 3, nil))

	resp, err := send(t, bus, sommelier.AgentRecommendation, sommelier.TypeRecommendationRequest, "", sommelier.RecommendationQuery{
		Preferences: &sommelier.Preferences{WineType: "red"},
		Ingredients: []string{"pizza"},
	})
	require.NoError(t, err)
	assert.Equal(t, sommelier.TypeRecommendationResult, resp.Type)

	rec := payloadOf[sommelier.Recommendation](t, resp)
	assert.Empty(t, rec.Error)
	assert.Equal(t, config.SourceKnowledgeGraph, rec.Source)
	require.Len(t, rec.Wines, 3)
	for _, w := range rec.Wines {
		assert.Equal(t, "red", w.Type)
	}
	assert.Contains(t, rec.Reasoning, "pizza")
}

func TestRecommendation_NoMatchIsInBand(t *testing.T) {
	bus := newBus(t, nil, agents.NewRecommendation(catalog(t), 3, nil))

	resp, err := send(t, bus, sommelier.AgentRecommendation, sommelier.TypeRecommendationRequest, "", sommelier.RecommendationQuery{
		Preferences: &sommelier.Preferences{WineType: "dessert", PriceRange: &sommelier.PriceRange{Max: 5}},
	})
	require.NoError(t, err)

	rec := payloadOf[sommelier.Recommendation](t, resp)
	assert.Empty(t, rec.Wines)
	assert.NotEmpty(t, rec.Error)
}

type brokenGraph struct{}

func (brokenGraph) ExecuteQuery(context.Context, string, map[string]any) ([]map[string]any, error) {
	return nil, errors.New("invalid syntax")
}

func TestRecommendation_GraphFailure(t *testing.T) {
	bus := newBus(t, nil, agents.NewRecommendation(brokenGraph{}, 3, nil))

	_, err := send(t, bus, sommelier.AgentRecommendation, sommelier.TypeRecommendationRequest, "", sommelier.RecommendationQuery{})
	agentErr := requireCode(t, err, messaging.CodeGraphQuery)
	assert.Equal(t, sommelier.AgentRecommendation, agentErr.SourceAgent)
}

func TestRecommendation_UsesSharedPreferences(t *testing.T) {
	bus := newBus(t, nil,
		agents.NewUserPreference(nil),
		agents.NewRecommendation(catalog(t), 5, nil),
	)

	_, err := send(t, bus, sommelier.AgentUserPreference, sommelier.TypeUpdatePreferences, "u7", sommelier.RecommendationQuery{
		UserID:      "u7",
		Preferences: &sommelier.Preferences{WineType: "white"},
	})
	require.NoError(t, err)

	resp, err := send(t, bus, sommelier.AgentRecommendation, sommelier.TypeRecommendationRequest, "u7", sommelier.RecommendationQuery{UserID: "u7"})
	require.NoError(t, err)

	rec := payloadOf[sommelier.Recommendation](t, resp)
	require.NotEmpty(t, rec.Wines)
	for _, w := range rec.Wines {
		assert.Equal(t, "white", w.Type)
	}
}

func TestLLMRecommendation(t *testing.T) {
	fake := &fakeLLM{reply: "Here you go:\n```json\n" +
		`{"wines":[{"id":"x1","name":"Etna Rosso","type":"red","price":28}],"reasoning":"volcanic and bright"}` +
		"\n```"}
	bus := newBus(t, fake, agents.NewLLMRecommendation(nil))

	resp, err := send(t, bus, sommelier.AgentLLMRecommendation, sommelier.TypeRecommendationRequest, "", sommelier.RecommendationQuery{
		Message: "a red for tuna",
	})
	require.NoError(t, err)

	rec := payloadOf[sommelier.Recommendation](t, resp)
	assert.Equal(t, config.SourceLLM, rec.Source)
	require.Len(t, rec.Wines, 1)
	assert.Equal(t, "Etna Rosso", rec.Wines[0].Name)
	assert.Equal(t, "volcanic and bright", rec.Reasoning)
	require.Len(t, fake.prompts, 1)
	assert.Contains(t, fake.prompts[0], "a red for tuna")
}

func TestLLMRecommendation_Failures(t *testing.T) {
	query := sommelier.RecommendationQuery{Message: "anything"}

	bus := newBus(t, nil, agents.NewLLMRecommendation(nil))
	_, err := send(t, bus, sommelier.AgentLLMRecommendation, sommelier.TypeRecommendationRequest, "", query)
	requireCode(t, err, messaging.CodeLLMNotConfigured)

	bus = newBus(t, &fakeLLM{reply: "I would suggest a nice Merlot."}, agents.NewLLMRecommendation(nil))
	_, err = send(t, bus, sommelier.AgentLLMRecommendation, sommelier.TypeRecommendationRequest, "", query)
	requireCode(t, err, messaging.CodeLLMService)

	bus = newBus(t, &fakeLLM{err: errors.New("rate limited")}, agents.NewLLMRecommendation(nil))
	_, err = send(t, bus, sommelier.AgentLLMRecommendation, sommelier.TypeRecommendationRequest, "", query)
	agentErr := requireCode(t, err, messaging.CodeLLMService)
	assert.True(t, agentErr.Recoverable)

	bus = newBus(t, &fakeLLM{reply: `{"wines":[]}`}, agents.NewLLMRecommendation(nil))
	resp, err := send(t, bus, sommelier.AgentLLMRecommendation, sommelier.TypeRecommendationRequest, "", query)
	require.NoError(t, err)
	assert.NotEmpty(t, payloadOf[sommelier.Recommendation](t, resp).Error)
}

func explanationRequest() sommelier.ExplanationRequest {
	return sommelier.ExplanationRequest{
		Request: sommelier.RecommendationQuery{Message: "red for lamb"},
		Recommendation: sommelier.Recommendation{
			Wines:     []sommelier.Wine{{Name: "Marqués de Riscal Reserva", Description: "Red cherry and vanilla."}},
			Reasoning: "Selected for red wines.",
		},
	}
}

func TestExplanation(t *testing.T) {
	bus := newBus(t, nil, agents.NewExplanation(nil))
	resp, err := send(t, bus, sommelier.AgentExplanation, sommelier.TypeGenerateExplanation, "", explanationRequest())
	require.NoError(t, err)
	text := payloadOf[sommelier.Explanation](t, resp).Text
	assert.Contains(t, text, "Marqués de Riscal Reserva")
	assert.Contains(t, text, "Selected for red wines.")

	fake := &fakeLLM{reply: "  Tempranillo's cherry fruit loves lamb.  "}
	bus = newBus(t, fake, agents.NewExplanation(nil))
	resp, err = send(t, bus, sommelier.AgentExplanation, sommelier.TypeGenerateExplanation, "", explanationRequest())
	require.NoError(t, err)
	assert.Equal(t, "Tempranillo's cherry fruit loves lamb.", payloadOf[sommelier.Explanation](t, resp).Text)
}

func TestExplanation_Failures(t *testing.T) {
	bus := newBus(t, &fakeLLM{err: errors.New("overloaded")}, agents.NewExplanation(nil))
	_, err := send(t, bus, sommelier.AgentExplanation, sommelier.TypeGenerateExplanation, "", explanationRequest())
	requireCode(t, err, messaging.CodeLLMService)

	_, err = send(t, bus, sommelier.AgentExplanation, sommelier.TypeGenerateExplanation, "", sommelier.ExplanationRequest{})
	requireCode(t, err, messaging.CodeInvalidPayload)
}

func TestFallback(t *testing.T) {
	request := sommelier.FallbackRequest{Message: "surprise me", Reason: "no preferences"}

	bus := newBus(t, &fakeLLM{reply: "Try a Côtes du Rhône."}, agents.NewFallback("static", nil))
	resp, err := send(t, bus, sommelier.AgentFallback, sommelier.TypeFallbackRequest, "", request)
	require.NoError(t, err)
	rec := payloadOf[sommelier.Recommendation](t, resp)
	assert.True(t, rec.Fallback)
	assert.Equal(t, "Try a Côtes du Rhône.", rec.Message)
	assert.Equal(t, agents.SourceFallback, rec.Source)

	bus = newBus(t, &fakeLLM{err: errors.New("down")}, agents.NewFallback("static", nil))
	resp, err = send(t, bus, sommelier.AgentFallback, sommelier.TypeFallbackRequest, "", request)
	require.NoError(t, err)
	assert.Equal(t, "static", payloadOf[sommelier.Recommendation](t, resp).Message)

	bus = newBus(t, nil, agents.NewFallback("", nil))
	resp, err = send(t, bus, sommelier.AgentFallback, sommelier.TypeFallbackRequest, "", sommelier.FallbackRequest{Reason: "empty"})
	require.NoError(t, err)
	assert.Equal(t, config.DefaultFallbackMessage, payloadOf[sommelier.Recommendation](t, resp).Message)
}
