package hub

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/tailored-agentic-units/sommelier/observability"
	"github.com/tailored-agentic-units/sommelier/orchestrate/config"
	"github.com/tailored-agentic-units/sommelier/orchestrate/messaging"
)

// DefaultTopic is the channel used by Publish and Subscribe when no topic is given.
const DefaultTopic = "message"

// SubscriptionID identifies a single Subscribe call.
type SubscriptionID uint64

type subscription struct {
	id       SubscriptionID
	agentID  string
	callback Subscriber
}

// Hub is the communication bus. Construct it with New and pass it to the agents and
// the coordinator that share it.
type Hub struct {
	name           string
	defaultTimeout time.Duration

	agents      map[string]*AgentInfo
	agentsMutex sync.RWMutex

	subscriptions map[string][]subscription
	nextSubID     atomic.Uint64
	subsMutex     sync.RWMutex

	memory      map[string]map[string]ContextEntry
	memoryMutex sync.RWMutex

	handlers      map[string]map[string]Handler
	handlersMutex sync.RWMutex

	pending *pendingTable

	llm        Prompter
	logger     *slog.Logger
	observer   observability.Observer
	registerer prometheus.Registerer
	metrics    *Metrics
	collectors *collectors
}

type Option func(*Hub)

func WithLogger(logger *slog.Logger) Option {
	return func(h *Hub) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// WithLLM installs the client SendLLMPrompt delegates to.
func WithLLM(client Prompter) Option {
	return func(h *Hub) {
		h.llm = client
	}
}

// WithRegisterer sets where the bus registers its Prometheus collectors. Without it the
// collectors go to a private registry.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(h *Hub) {
		if reg != nil {
			h.registerer = reg
		}
	}
}

func WithObserver(observer observability.Observer) Option {
	return func(h *Hub) {
		h.observer = observability.OrNoOp(observer)
	}
}

func New(hubConfig config.HubConfig, opts ...Option) *Hub {
	cfg := config.DefaultHubConfig()
	cfg.Merge(&hubConfig)

	h := &Hub{
		name:           cfg.Name,
		defaultTimeout: cfg.DefaultTimeout.Std(),
		agents:         make(map[string]*AgentInfo),
		subscriptions:  make(map[string][]subscription),
		memory:         make(map[string]map[string]ContextEntry),
		handlers:       make(map[string]map[string]Handler),
		pending:        newPendingTable(),
		logger:         slog.Default(),
		observer:       observability.NoOpObserver{},
		registerer:     prometheus.NewRegistry(),
		metrics:        NewMetrics(),
	}

	for _, opt := range opts {
		opt(h)
	}

	h.collectors = newCollectors(h.registerer)
	return h
}

func (h *Hub) Name() string {
	return h.name
}

// DefaultTimeout is the request timeout used when a caller passes zero.
func (h *Hub) DefaultTimeout() time.Duration {
	return h.defaultTimeout
}

// RegisterAgent upserts the directory record for id and stamps LastSeen. It always
// succeeds; capabilities of an existing record are replaced.
func (h *Hub) RegisterAgent(id string, info AgentInfo) {
	info.ID = id
	if info.Name == "" {
		info.Name = id
	}
	info.LastSeen = time.Now()

	h.agentsMutex.Lock()
	_, existed := h.agents[id]
	h.agents[id] = &info
	h.agentsMutex.Unlock()

	if !existed {
		h.metrics.RecordLocalAgent(1)
	}

	h.logger.Debug(
		"agent registered",
		slog.String("hub_name", h.name),
		slog.String("agent_id", id),
		slog.Bool("updated", existed),
	)

	h.observer.OnEvent(context.Background(), observability.Event{
		Type:      EventAgentRegistered,
		Level:     observability.LevelVerbose,
		Timestamp: info.LastSeen,
		Source:    h.name,
		Data: map[string]any{
			"agent_id":     id,
			"capabilities": info.Capabilities,
		},
	})
}

// Agent returns a copy of the directory record for id.
func (h *Hub) Agent(id string) (AgentInfo, bool) {
	h.agentsMutex.RLock()
	defer h.agentsMutex.RUnlock()

	info, exists := h.agents[id]
	if !exists {
		return AgentInfo{}, false
	}
	return *info, true
}

func (h *Hub) Agents() []AgentInfo {
	h.agentsMutex.RLock()
	defer h.agentsMutex.RUnlock()

	agents := make([]AgentInfo, 0, len(h.agents))
	for _, info := range h.agents {
		agents = append(agents, *info)
	}
	return agents
}

func (h *Hub) updateLastSeen(agentID string) {
	h.agentsMutex.Lock()
	if info, exists := h.agents[agentID]; exists {
		info.LastSeen = time.Now()
	}
	h.agentsMutex.Unlock()
}

// Subscribe adds callback to topic for agentID. Subscribing again with another
// callback adds a second subscription.
func (h *Hub) Subscribe(agentID, topic string, callback Subscriber) SubscriptionID {
	if topic == "" {
		topic = DefaultTopic
	}

	id := SubscriptionID(h.nextSubID.Add(1))

	h.subsMutex.Lock()
	h.subscriptions[topic] = append(h.subscriptions[topic], subscription{
		id:       id,
		agentID:  agentID,
		callback: callback,
	})
	h.subsMutex.Unlock()

	h.logger.Debug(
		"agent subscribed to topic",
		slog.String("hub_name", h.name),
		slog.String("agent_id", agentID),
		slog.String("topic", topic),
	)

	return id
}

// Unsubscribe removes the one subscription identified by id.
func (h *Hub) Unsubscribe(id SubscriptionID) bool {
	h.subsMutex.Lock()
	defer h.subsMutex.Unlock()

	for topic, subs := range h.subscriptions {
		for i, sub := range subs {
			if sub.id != id {
				continue
			}
			remaining := append(subs[:i:i], subs[i+1:]...)
			if len(remaining) == 0 {
				delete(h.subscriptions, topic)
			} else {
				h.subscriptions[topic] = remaining
			}
			return true
		}
	}
	return false
}

// Publish delivers message to the subscribers of topic whose agent is the message
// target, or to all of them when the target is empty or a broadcast. It returns the
// number of callbacks invoked.
func (h *Hub) Publish(ctx context.Context, message *messaging.Message, topic string) int {
	if topic == "" {
		topic = DefaultTopic
	}

	h.subsMutex.RLock()
	subs := make([]subscription, len(h.subscriptions[topic]))
	copy(subs, h.subscriptions[topic])
	h.subsMutex.RUnlock()

	delivered := 0
	for _, sub := range subs {
		if message.TargetAgent != "" && !message.IsBroadcast() && message.TargetAgent != sub.agentID {
			continue
		}
		if h.notify(ctx, sub, message) {
			delivered++
		}
	}

	h.logger.DebugContext(
		ctx,
		"message published",
		slog.String("hub_name", h.name),
		slog.String("topic", topic),
		slog.String("message_type", message.Type),
		slog.Int("delivered", delivered),
	)

	return delivered
}

func (h *Hub) notify(ctx context.Context, sub subscription, message *messaging.Message) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
			h.logger.ErrorContext(
				ctx,
				"subscriber panicked",
				slog.String("hub_name", h.name),
				slog.String("agent_id", sub.agentID),
				slog.String("panic", fmt.Sprint(r)),
			)
		}
	}()

	sub.callback(ctx, message)
	return true
}

// SetContext stores value under key in agentID's context memory.
func (h *Hub) SetContext(agentID, key string, value any, metadata map[string]any) {
	h.memoryMutex.Lock()
	defer h.memoryMutex.Unlock()

	store, exists := h.memory[agentID]
	if !exists {
		store = make(map[string]ContextEntry)
		h.memory[agentID] = store
	}
	store[key] = ContextEntry{
		Value:     value,
		Metadata:  maps.Clone(metadata),
		UpdatedAt: time.Now(),
	}
}

func (h *Hub) GetContext(agentID, key string) (ContextEntry, bool) {
	h.memoryMutex.RLock()
	defer h.memoryMutex.RUnlock()

	entry, exists := h.memory[agentID][key]
	return entry, exists
}

// ShareContext copies fromAgent's entry for key, value and metadata, into toAgent's
// memory. It reports false when the source entry does not exist.
func (h *Hub) ShareContext(fromAgent, toAgent, key string) bool {
	entry, exists := h.GetContext(fromAgent, key)
	if !exists {
		return false
	}

	h.SetContext(toAgent, key, entry.Value, entry.Metadata)
	return true
}

// BroadcastContext copies fromAgent's entry for key into every other registered agent
// and returns how many agents received it.
func (h *Hub) BroadcastContext(fromAgent, key string) int {
	entry, exists := h.GetContext(fromAgent, key)
	if !exists {
		return 0
	}

	copied := 0
	for _, info := range h.Agents() {
		if info.ID == fromAgent {
			continue
		}
		h.SetContext(info.ID, key, entry.Value, entry.Metadata)
		copied++
	}
	return copied
}

// SendLLMPrompt forwards prompt to the configured LLM client.
func (h *Hub) SendLLMPrompt(ctx context.Context, prompt, correlationID string) messaging.Result[string] {
	if h.llm == nil {
		return messaging.Fail[string](messaging.NewAgentError(
			messaging.CodeLLMNotConfigured,
			"LLM service is not configured",
			h.name,
			correlationID,
		))
	}

	text, err := h.llm.SendPrompt(ctx, prompt, correlationID)
	if err != nil {
		h.logger.WarnContext(
			ctx,
			"LLM prompt failed",
			slog.String("hub_name", h.name),
			slog.String("correlation_id", correlationID),
			slog.String("error", err.Error()),
		)
		return messaging.Fail[string](messaging.NewAgentError(
			messaging.CodeLLMService,
			err.Error(),
			h.name,
			correlationID,
		).WithRecoverable(true).WithCause(err))
	}

	return messaging.Ok(text)
}

func (h *Hub) Metrics() MetricsSnapshot {
	return h.metrics.Snapshot()
}

// Pending returns the number of requests waiting for a response.
func (h *Hub) Pending() int {
	return h.pending.len()
}
