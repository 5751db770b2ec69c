// Package kernel is the composition root. It builds the bus, the agents, the
// resilience layer, the dead-letter pipeline, and the coordinator from one Config,
// and runs the HTTP server and the scheduled replayer.
package kernel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/tailored-agentic-units/sommelier/agents"
	"github.com/tailored-agentic-units/sommelier/graph"
	"github.com/tailored-agentic-units/sommelier/llm"
	"github.com/tailored-agentic-units/sommelier/observability"
	"github.com/tailored-agentic-units/sommelier/orchestrate/breaker"
	"github.com/tailored-agentic-units/sommelier/orchestrate/config"
	"github.com/tailored-agentic-units/sommelier/orchestrate/coordinator"
	"github.com/tailored-agentic-units/sommelier/orchestrate/deadletter"
	"github.com/tailored-agentic-units/sommelier/orchestrate/hub"
	"github.com/tailored-agentic-units/sommelier/orchestrate/messaging"
	"github.com/tailored-agentic-units/sommelier/orchestrate/retry"
	"github.com/tailored-agentic-units/sommelier/server"
	"github.com/tailored-agentic-units/sommelier/sommelier"
)

// defaultReplaySchedule backs manual replays when no schedule is configured.
const defaultReplaySchedule = "*/5 * * * *"

const requestSource = "kernel"

// Kernel owns every long-lived component of a running recommender.
type Kernel struct {
	cfg         Config
	bus         *hub.Hub
	coordinator *coordinator.Coordinator
	deadLetters *deadletter.Processor
	queue       deadletter.Queue
	replayer    *deadletter.Replayer
	registry    *prometheus.Registry

	logger   *slog.Logger
	observer observability.Observer
}

type options struct {
	logger   *slog.Logger
	observer observability.Observer
	registry *prometheus.Registry
	llm      llm.Client
	graph    graph.Client
	queue    deadletter.Queue
	enricher agents.Enricher
}

// Option configures a Kernel during construction.
type Option func(*options)

func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithObserver overrides the observer named by Config.Observer.
func WithObserver(observer observability.Observer) Option {
	return func(o *options) {
		o.observer = observer
	}
}

// WithRegistry sets the Prometheus registry every component registers with and
// /metrics serves.
func WithRegistry(registry *prometheus.Registry) Option {
	return func(o *options) {
		o.registry = registry
	}
}

// WithLLMClient overrides the provider client built from Config.LLM.
func WithLLMClient(client llm.Client) Option {
	return func(o *options) {
		o.llm = client
	}
}

// WithGraphClient overrides the catalog built from Config.Catalog.
func WithGraphClient(client graph.Client) Option {
	return func(o *options) {
		o.graph = client
	}
}

// WithQueue overrides the dead-letter queue built from Config.DeadLetter. The
// kernel closes it on Close.
func WithQueue(queue deadletter.Queue) Option {
	return func(o *options) {
		o.queue = queue
	}
}

func WithEnricher(enricher agents.Enricher) Option {
	return func(o *options) {
		o.enricher = enricher
	}
}

// New wires a Kernel. A nil cfg uses DefaultConfig.
func New(cfg *Config, opts ...Option) (*Kernel, error) {
	merged := DefaultConfig()
	if cfg != nil {
		merged.Merge(cfg)
	}

	o := options{}
	for _, opt := range opts {
		opt(&o)
	}

	logger := o.logger
	if logger == nil {
		logger = slog.Default()
	}

	registry := o.registry
	if registry == nil {
		registry = prometheus.NewRegistry()
		registry.MustRegister(collectors.NewGoCollector())
	}

	observer := o.observer
	if observer == nil {
		var err error
		observer, err = observability.NewRegistry(logger).Get(merged.Observer)
		if err != nil {
			return nil, fmt.Errorf("failed to create observer: %w", err)
		}
	}

	k := &Kernel{
		cfg:      merged,
		registry: registry,
		logger:   logger,
		observer: observer,
	}

	client, err := k.buildLLM(o.llm)
	if err != nil {
		return nil, err
	}

	hubOpts := []hub.Option{
		hub.WithLogger(logger),
		hub.WithObserver(observer),
		hub.WithRegisterer(registry),
	}
	if client != nil {
		hubOpts = append(hubOpts, hub.WithLLM(client))
	}
	k.bus = hub.New(merged.Hub, hubOpts...)

	catalog, err := k.buildGraph(o.graph)
	if err != nil {
		return nil, err
	}

	for _, agent := range []agents.Agent{
		agents.NewInputValidation(logger),
		agents.NewValueAnalysis(logger),
		agents.NewUserPreference(logger),
		agents.NewMCPAdapter(o.enricher, logger),
		agents.NewRecommendation(catalog, merged.RecommendationLimit, logger),
		agents.NewLLMRecommendation(logger),
		agents.NewExplanation(logger),
		agents.NewFallback(merged.Coordinator.FallbackMessage, logger),
	} {
		agent.Register(k.bus)
	}

	k.queue = o.queue
	if k.queue == nil {
		if k.queue, err = openQueue(context.Background(), merged.DeadLetter); err != nil {
			return nil, err
		}
	}

	// The coordinator only records stage failures; these handlers run on replay.
	k.deadLetters = deadletter.NewProcessor(
		k.queue,
		k.manager("dead-letters", merged.DeadLetter.Retry, []retry.Matcher{recoverable}),
		[]deadletter.Handler{
			deadletter.LoggingHandler{Logger: logger},
			deadletter.RedeliveryHandler{Bus: k.bus, Timeout: merged.Coordinator.StageTimeout.Std()},
		},
		deadletter.WithLogger(logger),
		deadletter.WithObserver(observer),
		deadletter.WithRegisterer(registry),
	)

	k.coordinator = coordinator.New(
		k.bus,
		k.deadLetters,
		merged.Coordinator,
		coordinator.WithLogger(logger),
		coordinator.WithObserver(observer),
		coordinator.WithRegisterer(registry),
	)
	k.coordinator.Register(k.bus)

	schedule := merged.DeadLetter.ReplaySchedule
	if schedule == "" {
		schedule = defaultReplaySchedule
	}
	if k.replayer, err = deadletter.NewReplayer(schedule, k.deadLetters, logger); err != nil {
		k.queue.Close()
		return nil, err
	}

	return k, nil
}

// recoverable retries only failures an agent marked recoverable.
func recoverable(err error) bool {
	var agentErr *messaging.AgentError
	return errors.As(err, &agentErr) && agentErr.Recoverable
}

func (k *Kernel) manager(name string, retryConfig config.RetryConfig, retryOn []retry.Matcher) *retry.Manager {
	cb := breaker.New(
		name,
		k.cfg.Breaker,
		breaker.WithLogger(k.logger),
		breaker.WithObserver(k.observer),
		breaker.WithRegisterer(k.registry),
	)
	return retry.FromConfig(
		name,
		retryConfig,
		cb,
		retryOn,
		retry.WithLogger(k.logger),
		retry.WithObserver(k.observer),
		retry.WithRegisterer(k.registry),
	)
}

func (k *Kernel) buildLLM(override llm.Client) (llm.Client, error) {
	client := override
	if client == nil {
		var err error
		if client, err = llm.New(&k.cfg.LLM); err != nil {
			return nil, fmt.Errorf("failed to create llm client: %w", err)
		}
	}
	if client == nil {
		k.logger.Info("llm disabled")
		return nil, nil
	}
	return llm.NewGuarded(client, k.manager("llm", k.cfg.Retry, nil)), nil
}

func (k *Kernel) buildGraph(override graph.Client) (graph.Client, error) {
	client := override
	if client == nil {
		catalog, err := graph.New(&k.cfg.Catalog)
		if err != nil {
			return nil, fmt.Errorf("failed to load wine catalog: %w", err)
		}
		client = catalog
	}
	return graph.NewBreakerClient(client, k.manager("graph", k.cfg.Retry, graph.RetryOn()), sommelier.AgentRecommendation), nil
}

func openQueue(ctx context.Context, cfg config.DeadLetterConfig) (deadletter.Queue, error) {
	switch cfg.Driver {
	case config.DriverMemory, "":
		return deadletter.NewMemoryQueue(), nil
	case config.DriverSQLite:
		return deadletter.NewSQLiteQueue(ctx, cfg.DSN, cfg.Key)
	case config.DriverPostgres:
		if cfg.DSN == "" {
			return nil, fmt.Errorf("%w: %s", ErrMissingDSN, cfg.Driver)
		}
		return deadletter.NewPostgresQueue(ctx, cfg.DSN, cfg.Key)
	case config.DriverRedis:
		if cfg.DSN == "" {
			return nil, fmt.Errorf("%w: %s", ErrMissingDSN, cfg.Driver)
		}
		return deadletter.NewRedisQueue(ctx, cfg.DSN, cfg.Key)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, cfg.Driver)
	}
}

func (k *Kernel) Bus() *hub.Hub { return k.bus }

func (k *Kernel) Coordinator() *coordinator.Coordinator { return k.coordinator }

func (k *Kernel) DeadLetters() *deadletter.Processor { return k.deadLetters }

func (k *Kernel) Queue() deadletter.Queue { return k.queue }

func (k *Kernel) Registry() *prometheus.Registry { return k.registry }

// Server builds the HTTP front end over this kernel's bus and queue.
func (k *Kernel) Server() *server.Server {
	return server.New(
		k.cfg.Server,
		k.bus,
		k.queue,
		server.WithLogger(k.logger),
		server.WithGatherer(k.registry),
	)
}

// Recommend sends request to the coordinator over the bus, exactly as the HTTP
// server does, and waits up to the server request timeout.
func (k *Kernel) Recommend(ctx context.Context, request sommelier.Request) (*sommelier.Recommendation, error) {
	envelope := messaging.New(
		sommelier.TypeUserRequest,
		request,
		requestSource,
		request.ConversationID,
		messaging.NewCorrelationID(),
		sommelier.AgentCoordinator,
	).UserID(request.UserID).Build()

	response, err := k.bus.SendMessageAndWaitForResponse(ctx, sommelier.AgentCoordinator, envelope, k.cfg.Server.RequestTimeout.Std()).Unpack()
	if err != nil {
		return nil, err
	}
	if response == nil {
		return nil, errors.New("coordinator returned no response")
	}
	return messaging.DecodePayload[*sommelier.Recommendation](response)
}

// Replay re-processes every queued dead letter once.
func (k *Kernel) Replay(ctx context.Context) (int, error) {
	n, err := k.replayer.ReplayOnce(ctx)
	if err != nil {
		return n, err
	}
	k.emit(ctx, EventReplay, observability.LevelInfo, map[string]any{"count": n})
	return n, nil
}

// Run serves HTTP and, when a replay schedule is configured, replays dead letters
// on it. Run returns when ctx ends or either task fails.
func (k *Kernel) Run(ctx context.Context) error {
	k.emit(ctx, EventStart, observability.LevelInfo, map[string]any{
		"addr":            k.cfg.Server.Addr,
		"replay_schedule": k.cfg.DeadLetter.ReplaySchedule,
		"dead_letters":    k.cfg.DeadLetter.Driver,
	})

	g, gctx := errgroup.WithContext(ctx)

	srv := k.Server()
	g.Go(func() error {
		return srv.ListenAndServe(gctx)
	})

	if k.cfg.DeadLetter.ReplaySchedule != "" {
		g.Go(func() error {
			return k.replayer.Run(gctx)
		})
	}

	err := g.Wait()
	if err != nil {
		k.emit(ctx, EventRunError, observability.LevelError, map[string]any{"error": err.Error()})
	}
	k.emit(ctx, EventStop, observability.LevelInfo, nil)
	return err
}

// Close releases the dead-letter queue.
func (k *Kernel) Close() error {
	return k.queue.Close()
}

func (k *Kernel) emit(ctx context.Context, eventType observability.EventType, level observability.Level, data map[string]any) {
	k.observer.OnEvent(ctx, observability.Event{
		Type:      eventType,
		Level:     level,
		Timestamp: time.Now(),
		Source:    "kernel",
		Data:      data,
	})
}
