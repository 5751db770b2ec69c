// Package coordinator drives the recommendation pipeline for one user request.
//
// A request is first classified: free text goes to input validation, supplied
// preferences or ingredients are used directly, and an empty request is sent to the
// fallback agent. The pipeline then calls value analysis, user preference, and MCP
// enrichment, then the recommendation agent, then explanation, strictly in sequence.
// Every failed stage is dead-lettered. Only the recommendation stage aborts the
// request; the other stages are skipped over.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/tailored-agentic-units/sommelier/observability"
	"github.com/tailored-agentic-units/sommelier/orchestrate/config"
	"github.com/tailored-agentic-units/sommelier/orchestrate/deadletter"
	"github.com/tailored-agentic-units/sommelier/orchestrate/hub"
	"github.com/tailored-agentic-units/sommelier/orchestrate/messaging"
	"github.com/tailored-agentic-units/sommelier/orchestrate/workflows"
	"github.com/tailored-agentic-units/sommelier/sommelier"
)

const (
	EventStageFailed observability.EventType = "pipeline.stage.failed"
	EventFallback    observability.EventType = "pipeline.fallback"
	EventComplete    observability.EventType = "pipeline.complete"
)

// Requester sends a request envelope and waits for its correlated response.
type Requester interface {
	SendMessageAndWaitForResponse(
		ctx context.Context,
		targetAgentID string,
		message *messaging.Message,
		timeout time.Duration,
	) messaging.Result[*messaging.Message]
}

// DeadLetterer durably records a failed stage before returning. It never reports
// failure to the caller and never retries on the request path.
type DeadLetterer interface {
	Record(ctx context.Context, message any, err error, metadata map[string]any)
}

type Coordinator struct {
	bus         Requester
	deadLetters DeadLetterer
	cfg         config.CoordinatorConfig

	logger     *slog.Logger
	observer   observability.Observer
	registerer prometheus.Registerer
	failures   *prometheus.CounterVec
	fallbacks  prometheus.Counter
}

type Option func(*Coordinator)

func WithLogger(logger *slog.Logger) Option {
	return func(c *Coordinator) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func WithObserver(observer observability.Observer) Option {
	return func(c *Coordinator) {
		c.observer = observability.OrNoOp(observer)
	}
}

func WithRegisterer(reg prometheus.Registerer) Option {
	return func(c *Coordinator) {
		if reg != nil {
			c.registerer = reg
		}
	}
}

func New(bus Requester, deadLetters DeadLetterer, coordinatorConfig config.CoordinatorConfig, opts ...Option) *Coordinator {
	cfg := config.DefaultCoordinatorConfig()
	cfg.Merge(&coordinatorConfig)

	c := &Coordinator{
		bus:         bus,
		deadLetters: deadLetters,
		cfg:         cfg,
		logger:      slog.Default(),
		observer:    observability.NoOpObserver{},
		registerer:  prometheus.NewRegistry(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With(slog.String("agent_id", sommelier.AgentCoordinator))

	factory := promauto.With(c.registerer)
	c.failures = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "sommelier_pipeline_stage_failures_total",
		Help: "Pipeline stages that failed and were dead-lettered, by stage.",
	}, []string{"stage"})
	c.fallbacks = factory.NewCounter(prometheus.CounterOpts{
		Name: "sommelier_pipeline_fallbacks_total",
		Help: "Requests answered by the fallback path.",
	})

	return c
}

// Register makes the coordinator reachable on bus as the USER_REQUEST handler.
func (c *Coordinator) Register(bus *hub.Hub) {
	bus.RegisterAgent(sommelier.AgentCoordinator, hub.AgentInfo{
		Name:         "Coordinator",
		Capabilities: []string{sommelier.TypeUserRequest},
	})
	bus.RegisterMessageHandler(sommelier.AgentCoordinator, sommelier.TypeUserRequest, c.Handler())
}

// Handler answers USER_REQUEST envelopes with RECOMMENDATION_RESPONSE.
func (c *Coordinator) Handler() hub.Handler {
	return func(ctx context.Context, msg *messaging.Message) messaging.Result[*messaging.Message] {
		rec, err := c.Recommend(ctx, msg)
		if err != nil {
			return messaging.Fail[*messaging.Message](
				messaging.WrapError(err, messaging.CodeRecommendationFailed, sommelier.AgentCoordinator, msg.CorrelationID),
			)
		}
		return messaging.Ok(messaging.NewResponse(msg, sommelier.AgentCoordinator, sommelier.TypeRecommendationResponse, rec).Build())
	}
}

// pipeline is the state threaded through the stages.
type pipeline struct {
	envelope       *messaging.Message
	request        sommelier.Request
	query          sommelier.RecommendationQuery
	recommendation sommelier.Recommendation
}

// stage is one step of the pipeline. run returns the envelope it sent so a failure
// can be dead-lettered with it.
type stage struct {
	name     string
	agent    string
	required bool
	run      func(ctx context.Context, c *Coordinator, p pipeline) (pipeline, *messaging.Message, error)
}

var stages = []stage{
	{name: sommelier.StageValueAnalysis, agent: sommelier.AgentValueAnalysis, run: analyzeValue},
	{name: sommelier.StageUserPreference, agent: sommelier.AgentUserPreference, run: updatePreferences},
	{name: sommelier.StageMCPAdapter, agent: sommelier.AgentMCPAdapter, run: enrich},
	{name: sommelier.StageRecommendation, required: true, run: recommend},
	{name: sommelier.StageExplanation, agent: sommelier.AgentExplanation, run: explain},
}

// Recommend runs the pipeline for a USER_REQUEST envelope. It returns an error only
// for an unreadable request or a failed recommendation stage.
func (c *Coordinator) Recommend(ctx context.Context, envelope *messaging.Message) (*sommelier.Recommendation, error) {
	request, err := messaging.DecodePayload[sommelier.Request](envelope)
	if err != nil {
		return nil, messaging.NewAgentError(
			messaging.CodeInvalidPayload,
			err.Error(),
			sommelier.AgentCoordinator,
			envelope.CorrelationID,
		).WithCause(err)
	}
	if request.UserID == "" {
		request.UserID = envelope.UserID
	}

	p := pipeline{
		envelope: envelope,
		request:  request,
		query: sommelier.RecommendationQuery{
			UserID:      request.UserID,
			Message:     request.Message,
			Preferences: request.Preferences,
			Ingredients: request.Ingredients,
		},
	}

	if !request.HasInput() {
		undetermined := messaging.NewAgentError(
			messaging.CodeRequestTypeUndetermined,
			"request has no message, preferences, or ingredients",
			sommelier.AgentCoordinator,
			envelope.CorrelationID,
		)
		c.stageFailed(ctx, p, sommelier.StageRequestTypeDetermination, sommelier.AgentCoordinator, request, undetermined)
		return c.fallback(ctx, p, undetermined.Message), nil
	}

	if request.Message != "" {
		var usable bool
		p, usable = c.validate(ctx, p)
		if !usable {
			return c.fallback(ctx, p, "no wine preferences or ingredients recognised"), nil
		}
	}

	result, err := workflows.ProcessChain(
		ctx,
		c.cfg.ChainConfig(),
		c.observer,
		stages,
		p,
		c.runStage,
		c.progress(envelope.CorrelationID),
	)
	if err != nil {
		var agentErr *messaging.AgentError
		if errors.As(err, &agentErr) {
			return nil, agentErr
		}
		return nil, err
	}

	if c.cfg.CaptureIntermediateStates {
		c.logger.DebugContext(
			ctx,
			"pipeline states captured",
			slog.String("correlation_id", envelope.CorrelationID),
			slog.Int("states", len(result.Intermediate)),
		)
	}
	c.emit(ctx, EventComplete, observability.LevelInfo, map[string]any{
		"correlation_id": envelope.CorrelationID,
		"source":         result.Final.recommendation.Source,
		"wines":          len(result.Final.recommendation.Wines),
	})

	rec := result.Final.recommendation
	return &rec, nil
}

func (c *Coordinator) runStage(ctx context.Context, s stage, p pipeline) (pipeline, error) {
	updated, sent, err := s.run(ctx, c, p)
	if err == nil {
		return updated, nil
	}

	source := s.agent
	if sent != nil {
		source = sent.TargetAgent
	}
	if source == "" {
		source = sommelier.AgentCoordinator
	}

	var dead any = sent
	if sent == nil {
		dead = p.query
	}
	c.stageFailed(ctx, p, s.name, source, dead, err)

	if s.required {
		return p, err
	}
	return p, nil
}

func (c *Coordinator) progress(correlationID string) workflows.ProgressFunc[pipeline] {
	return func(completed, total int, _ pipeline) {
		c.logger.Debug(
			"pipeline stage complete",
			slog.String("correlation_id", correlationID),
			slog.String("stage", stages[completed-1].name),
			slog.Int("completed", completed),
			slog.Int("total", total),
		)
	}
}

// validate runs input validation and folds what it extracted into the query. The
// second result is false when nothing usable is left to recommend from. A failed
// validation stage is dead-lettered and the supplied input is used as is.
func (c *Coordinator) validate(ctx context.Context, p pipeline) (pipeline, bool) {
	result, sent, err := ask[sommelier.ValidationResult](ctx, c, p, sommelier.AgentInputValidation, sommelier.TypeValidateInput, p.request)
	if err != nil {
		c.stageFailed(ctx, p, sommelier.StageInputValidation, sommelier.AgentInputValidation, sent, err)
		return p, true
	}

	if result.Valid {
		p.query.Preferences = result.Preferences.Merge(p.request.Preferences)
		p.query.Ingredients = union(result.Ingredients, p.request.Ingredients)
		return p, true
	}

	return p, !p.request.Preferences.IsEmpty() || len(p.request.Ingredients) > 0
}

// fallback answers with the fallback agent, or with the static message when that
// agent cannot be reached.
func (c *Coordinator) fallback(ctx context.Context, p pipeline, reason string) *sommelier.Recommendation {
	c.fallbacks.Inc()
	c.emit(ctx, EventFallback, observability.LevelWarning, map[string]any{
		"correlation_id": p.envelope.CorrelationID,
		"reason":         reason,
	})

	rec, sent, err := ask[sommelier.Recommendation](ctx, c, p, sommelier.AgentFallback, sommelier.TypeFallbackRequest, sommelier.FallbackRequest{
		UserID:  p.request.UserID,
		Message: p.request.Message,
		Reason:  reason,
	})
	if err != nil {
		c.stageFailed(ctx, p, sommelier.StageFallback, sommelier.AgentFallback, sent, err)
		return &sommelier.Recommendation{
			Wines:    []sommelier.Wine{},
			Source:   sommelier.AgentFallback,
			Fallback: true,
			Message:  c.cfg.FallbackMessage,
		}
	}
	return &rec
}

func analyzeValue(ctx context.Context, c *Coordinator, p pipeline) (pipeline, *messaging.Message, error) {
	value, sent, err := ask[sommelier.ValueAnalysis](ctx, c, p, sommelier.AgentValueAnalysis, sommelier.TypeAnalyzeValue, p.query)
	if err != nil {
		return p, sent, err
	}
	p.query.Value = &value
	return p, sent, nil
}

func updatePreferences(ctx context.Context, c *Coordinator, p pipeline) (pipeline, *messaging.Message, error) {
	prefs, sent, err := ask[*sommelier.Preferences](ctx, c, p, sommelier.AgentUserPreference, sommelier.TypeUpdatePreferences, p.query)
	if err != nil {
		return p, sent, err
	}
	if prefs != nil {
		p.query.Preferences = prefs
	}
	return p, sent, nil
}

func enrich(ctx context.Context, c *Coordinator, p pipeline) (pipeline, *messaging.Message, error) {
	result, sent, err := ask[sommelier.MCPResult](ctx, c, p, sommelier.AgentMCPAdapter, sommelier.TypeMCPRequest, p.query)
	if err != nil {
		return p, sent, err
	}
	p.query.Enrichment = result.Context
	return p, sent, nil
}

// recommenders maps a recommendation source to the agent serving it.
var recommenders = map[string]string{
	config.SourceKnowledgeGraph: sommelier.AgentRecommendation,
	config.SourceLLM:            sommelier.AgentLLMRecommendation,
}

func recommend(ctx context.Context, c *Coordinator, p pipeline) (pipeline, *messaging.Message, error) {
	var sent *messaging.Message

	routes := workflows.Routes[pipeline]{Handlers: make(map[string]workflows.RouteHandler[pipeline], len(recommenders))}
	for source, agentID := range recommenders {
		routes.Handlers[source] = func(ctx context.Context, p pipeline) (pipeline, error) {
			rec, request, err := ask[sommelier.Recommendation](ctx, c, p, agentID, sommelier.TypeRecommendationRequest, p.query)
			sent = request
			if err != nil {
				return p, err
			}
			if rec.Error != "" {
				return p, messaging.NewAgentError(messaging.CodeRecommendationFailed, rec.Error, agentID, p.envelope.CorrelationID)
			}
			p.recommendation = rec
			return p, nil
		}
	}

	result, err := workflows.ProcessConditional(ctx, c.observer, p, c.selectSource, routes)
	return result, sent, err
}

func (c *Coordinator) selectSource(p pipeline) (string, error) {
	source := p.request.RecommendationSource
	if source == "" {
		source = c.cfg.RecommendationSource
	}
	if _, ok := recommenders[source]; !ok {
		return "", messaging.NewAgentError(
			messaging.CodeInvalidPayload,
			fmt.Sprintf("unknown recommendation source %q", source),
			sommelier.AgentCoordinator,
			p.envelope.CorrelationID,
		)
	}
	return source, nil
}

func explain(ctx context.Context, c *Coordinator, p pipeline) (pipeline, *messaging.Message, error) {
	explanation, sent, err := ask[sommelier.Explanation](ctx, c, p, sommelier.AgentExplanation, sommelier.TypeGenerateExplanation, sommelier.ExplanationRequest{
		Request:        p.query,
		Recommendation: p.recommendation,
	})
	if err != nil {
		return p, sent, err
	}
	p.recommendation.Explanation = explanation.Text
	return p, sent, nil
}

// ask sends payload to target as msgType and decodes the reply payload as T. It also
// returns the envelope it sent.
func ask[T any](
	ctx context.Context,
	c *Coordinator,
	p pipeline,
	target, msgType string,
	payload any,
) (T, *messaging.Message, error) {
	var out T

	request := messaging.New(
		msgType,
		payload,
		sommelier.AgentCoordinator,
		p.envelope.ConversationID,
		messaging.NewCorrelationID(),
		target,
	).UserID(p.request.UserID).Build()

	response, err := c.bus.SendMessageAndWaitForResponse(ctx, target, request, c.cfg.StageTimeout.Std()).Unpack()
	if err != nil {
		return out, request, err
	}
	if response == nil {
		return out, request, messaging.NewAgentError(
			messaging.CodeHandlerExecution,
			fmt.Sprintf("%s returned no reply to %s", target, msgType),
			target,
			request.CorrelationID,
		)
	}

	out, err = messaging.DecodePayload[T](response)
	if err != nil {
		return out, request, messaging.NewAgentError(
			messaging.CodeInvalidPayload,
			err.Error(),
			target,
			request.CorrelationID,
		).WithCause(err)
	}
	return out, request, nil
}

// stageFailed dead-letters message with the stage that failed and its source agent.
func (c *Coordinator) stageFailed(ctx context.Context, p pipeline, stageName, source string, message any, err error) {
	recoverable := false
	var agentErr *messaging.AgentError
	if errors.As(err, &agentErr) {
		recoverable = agentErr.Recoverable
		err = agentErr
	}

	c.failures.WithLabelValues(stageName).Inc()
	c.logger.WarnContext(
		ctx,
		"pipeline stage failed",
		slog.String("correlation_id", p.envelope.CorrelationID),
		slog.String("stage", stageName),
		slog.String("source", source),
		slog.String("error", err.Error()),
	)
	c.emit(ctx, EventStageFailed, observability.LevelWarning, map[string]any{
		"correlation_id": p.envelope.CorrelationID,
		"stage":          stageName,
		"source":         source,
		"error":          err.Error(),
	})

	c.deadLetters.Record(ctx, message, err, map[string]any{
		deadletter.MetaStage:         stageName,
		deadletter.MetaSource:        source,
		deadletter.MetaCorrelationID: p.envelope.CorrelationID,
		deadletter.MetaRecoverable:   recoverable,
	})
}

func (c *Coordinator) emit(ctx context.Context, eventType observability.EventType, level observability.Level, data map[string]any) {
	c.observer.OnEvent(ctx, observability.Event{
		Type:      eventType,
		Level:     level,
		Timestamp: time.Now(),
		Source:    sommelier.AgentCoordinator,
		Data:      data,
	})
}

func union(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	var out []string
	for _, s := range append(append([]string(nil), a...), b...) {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
